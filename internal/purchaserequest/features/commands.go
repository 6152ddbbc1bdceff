// Package features holds the purchase request command slices: one command,
// its validation and its handler per use case.
package features

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/pkg/validators"
)

// VersionedCommand carries the version token its caller last saw.
type VersionedCommand interface {
	SetExpectedVersion(v int64)
}

// Command types routed by the command bus.
const (
	CreateCommandType  = "purchaserequest.Create"
	SubmitCommandType  = "purchaserequest.Submit"
	ApproveCommandType = "purchaserequest.Approve"
	RejectCommandType  = "purchaserequest.Reject"
	CancelCommandType  = "purchaserequest.Cancel"
)

const (
	maxTitleLength    = 200
	maxTextLength     = 2000
	maxLineItems      = 100
	maxItemNameLength = 200
)

// CreatePurchaseRequest opens a draft request.
type CreatePurchaseRequest struct {
	RequestID      uuid.UUID                  `json:"requestId"`
	RequesterID    uuid.UUID                  `json:"requesterId"`
	RequesterName  string                     `json:"requesterName"`
	Title          string                     `json:"title"`
	Description    string                     `json:"description"`
	LineItems      []purchaserequest.LineItem `json:"lineItems"`
	IdempotencyKey string                     `json:"idempotencyKey"`
}

func (c *CreatePurchaseRequest) ID() string          { return c.IdempotencyKey }
func (c *CreatePurchaseRequest) AggregateID() string { return c.RequestID.String() }
func (c *CreatePurchaseRequest) CommandType() string { return CreateCommandType }

func (c *CreatePurchaseRequest) Validate() error {
	b := validators.NewValidationBuilder()
	b.Add(validators.ValidateID(c.RequestID, "request_id"))
	b.Add(validators.ValidateID(c.RequesterID, "requester_id"))
	b.Add(validators.ValidateStringEmpty(c.Title, "title"))
	b.Add(validators.ValidateStringLength(c.Title, "title", 1, maxTitleLength))
	b.Add(validators.ValidateStringLength(c.Description, "description", 0, maxTextLength))
	if len(c.LineItems) > maxLineItems {
		b.Add(validators.NewValidationResult(false, "line_items",
			validators.WithMessage(fmt.Sprintf("Line items must not exceed %d entries.", maxLineItems)),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
		))
	}
	for i, item := range c.LineItems {
		field := fmt.Sprintf("line_items.%d.", i)
		b.Add(validators.ValidateStringEmpty(item.Name, field+"name"))
		b.Add(validators.ValidateStringLength(item.Name, field+"name", 1, maxItemNameLength))
		b.Add(validators.ValidateIntPositive(item.Quantity, field+"quantity"))
		b.Add(validators.ValidateDecimalPositive(item.UnitPrice, field+"unit_price"))
	}
	return b.Err()
}

// SubmitPurchaseRequest sends a draft into approval.
type SubmitPurchaseRequest struct {
	RequestID       uuid.UUID `json:"requestId"`
	ActorID         uuid.UUID `json:"actorId"`
	ExpectedVersion int64     `json:"expectedVersion,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey"`
}

func (c *SubmitPurchaseRequest) ID() string                 { return c.IdempotencyKey }
func (c *SubmitPurchaseRequest) AggregateID() string        { return c.RequestID.String() }
func (c *SubmitPurchaseRequest) CommandType() string        { return SubmitCommandType }
func (c *SubmitPurchaseRequest) SetExpectedVersion(v int64) { c.ExpectedVersion = v }

func (c *SubmitPurchaseRequest) Validate() error {
	b := validators.NewValidationBuilder()
	b.Add(validators.ValidateID(c.RequestID, "request_id"))
	b.Add(validators.ValidateID(c.ActorID, "actor_id"))
	return b.Err()
}

// ApprovePurchaseRequest approves the current step.
type ApprovePurchaseRequest struct {
	RequestID       uuid.UUID `json:"requestId"`
	ApproverID      uuid.UUID `json:"approverId"`
	Comment         string    `json:"comment,omitempty"`
	ExpectedVersion int64     `json:"expectedVersion,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey"`
}

func (c *ApprovePurchaseRequest) ID() string                 { return c.IdempotencyKey }
func (c *ApprovePurchaseRequest) AggregateID() string        { return c.RequestID.String() }
func (c *ApprovePurchaseRequest) CommandType() string        { return ApproveCommandType }
func (c *ApprovePurchaseRequest) SetExpectedVersion(v int64) { c.ExpectedVersion = v }

func (c *ApprovePurchaseRequest) Validate() error {
	b := validators.NewValidationBuilder()
	b.Add(validators.ValidateID(c.RequestID, "request_id"))
	b.Add(validators.ValidateID(c.ApproverID, "approver_id"))
	b.Add(validators.ValidateStringLength(c.Comment, "comment", 0, maxTextLength))
	return b.Err()
}

// RejectPurchaseRequest rejects the request at the current step.
type RejectPurchaseRequest struct {
	RequestID       uuid.UUID `json:"requestId"`
	ApproverID      uuid.UUID `json:"approverId"`
	Reason          string    `json:"reason"`
	ExpectedVersion int64     `json:"expectedVersion,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey"`
}

func (c *RejectPurchaseRequest) ID() string                 { return c.IdempotencyKey }
func (c *RejectPurchaseRequest) AggregateID() string        { return c.RequestID.String() }
func (c *RejectPurchaseRequest) CommandType() string        { return RejectCommandType }
func (c *RejectPurchaseRequest) SetExpectedVersion(v int64) { c.ExpectedVersion = v }

func (c *RejectPurchaseRequest) Validate() error {
	b := validators.NewValidationBuilder()
	b.Add(validators.ValidateID(c.RequestID, "request_id"))
	b.Add(validators.ValidateID(c.ApproverID, "approver_id"))
	b.Add(validators.ValidateStringEmpty(c.Reason, "reason"))
	b.Add(validators.ValidateStringLength(c.Reason, "reason", 0, maxTextLength))
	return b.Err()
}

// CancelPurchaseRequest withdraws the request.
type CancelPurchaseRequest struct {
	RequestID       uuid.UUID `json:"requestId"`
	ActorID         uuid.UUID `json:"actorId"`
	Reason          string    `json:"reason,omitempty"`
	ExpectedVersion int64     `json:"expectedVersion,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey"`
}

func (c *CancelPurchaseRequest) ID() string                 { return c.IdempotencyKey }
func (c *CancelPurchaseRequest) AggregateID() string        { return c.RequestID.String() }
func (c *CancelPurchaseRequest) CommandType() string        { return CancelCommandType }
func (c *CancelPurchaseRequest) SetExpectedVersion(v int64) { c.ExpectedVersion = v }

func (c *CancelPurchaseRequest) Validate() error {
	b := validators.NewValidationBuilder()
	b.Add(validators.ValidateID(c.RequestID, "request_id"))
	b.Add(validators.ValidateID(c.ActorID, "actor_id"))
	b.Add(validators.ValidateStringLength(c.Reason, "reason", 0, maxTextLength))
	return b.Err()
}
