package purchaserequest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plaenen/purchasing/pkg/domain"
)

// AggregateType names the PurchaseRequest stream in the event store.
const AggregateType = "PurchaseRequest"

// Event types produced by the aggregate.
const (
	EventCreated               = "purchaserequest.Created"
	EventSubmitted             = "purchaserequest.Submitted"
	EventApprovalStepActivated = "purchaserequest.ApprovalStepActivated"
	EventApprovalStepApproved  = "purchaserequest.ApprovalStepApproved"
	EventApproved              = "purchaserequest.Approved"
	EventRejected              = "purchaserequest.Rejected"
	EventCancelled             = "purchaserequest.Cancelled"
)

// Created is recorded when a draft request is opened.
type Created struct {
	RequestID     uuid.UUID  `json:"requestId"`
	TenantID      string     `json:"tenantId"`
	RequesterID   uuid.UUID  `json:"requesterId"`
	RequesterName string     `json:"requesterName"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	LineItems     []LineItem `json:"lineItems"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Submitted fixes the approval flow for the submitted total.
type Submitted struct {
	Total       decimal.Decimal    `json:"total"`
	Steps       []ApprovalFlowStep `json:"steps"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

// ApprovalStepActivated moves the request to the status waiting on StepNumber.
type ApprovalStepActivated struct {
	StepNumber int    `json:"stepNumber"`
	Status     Status `json:"status"`
}

// ApprovalStepApproved records one approver's decision.
type ApprovalStepApproved struct {
	StepNumber int       `json:"stepNumber"`
	ApproverID uuid.UUID `json:"approverId"`
	Comment    string    `json:"comment,omitempty"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// Approved is recorded after the last step was approved.
type Approved struct {
	ApprovedAt time.Time `json:"approvedAt"`
}

// Rejected ends the flow at StepNumber.
type Rejected struct {
	StepNumber int       `json:"stepNumber"`
	ApproverID uuid.UUID `json:"approverId"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// Cancelled is recorded when the requester withdraws the request.
type Cancelled struct {
	CancelledBy uuid.UUID `json:"cancelledBy"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// DecodeEvent turns a stored event back into its payload type.
func DecodeEvent(event *domain.Event) (any, error) {
	var payload any
	switch event.EventType {
	case EventCreated:
		payload = &Created{}
	case EventSubmitted:
		payload = &Submitted{}
	case EventApprovalStepActivated:
		payload = &ApprovalStepActivated{}
	case EventApprovalStepApproved:
		payload = &ApprovalStepApproved{}
	case EventApproved:
		payload = &Approved{}
	case EventRejected:
		payload = &Rejected{}
	case EventCancelled:
		payload = &Cancelled{}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.EventType)
	}

	if err := domain.DecodePayload(event.Data, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", event.EventType, err)
	}
	return payload, nil
}
