package purchaserequest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/multitenancy"
)

// PurchaseRequest is the event-sourced aggregate for a request moving
// through its approval flow.
type PurchaseRequest struct {
	domain.AggregateRoot

	requestID          uuid.UUID
	tenantID           string
	requesterID        uuid.UUID
	requesterName      string
	title              string
	description        string
	lineItems          []LineItem
	steps              []*ApprovalStep
	status             Status
	createdAt          time.Time
	submittedAt        *time.Time
	approvedAt         *time.Time
	rejectedAt         *time.Time
	cancelledAt        *time.Time
	rejectionReason    string
	cancellationReason string
}

// AggregateIDFor returns the tenant-scoped stream id of a request.
func AggregateIDFor(tenantID string, requestID uuid.UUID) string {
	return multitenancy.ComposeAggregateID(tenantID, requestID.String())
}

// New returns an empty aggregate for the given stream id, ready to have its
// history applied.
func New(aggregateID string) *PurchaseRequest {
	r := &PurchaseRequest{AggregateRoot: domain.NewAggregateRoot(aggregateID, AggregateType)}
	if tenantID, id, err := multitenancy.DecomposeAggregateID(aggregateID); err == nil {
		r.tenantID = tenantID
		r.requestID, _ = uuid.Parse(id)
	}
	return r
}

// Apply folds a stored event into the aggregate.
func Apply(r *PurchaseRequest, event *domain.Event) error {
	payload, err := DecodeEvent(event)
	if err != nil {
		return err
	}
	return r.when(payload)
}

// CreateParams describes a new draft request.
type CreateParams struct {
	RequestID     uuid.UUID
	TenantID      string
	RequesterID   uuid.UUID
	RequesterName string
	Title         string
	Description   string
	LineItems     []LineItem
}

// Create opens a draft request.
func Create(p CreateParams, md domain.EventMetadata) (*PurchaseRequest, error) {
	if p.RequesterID == uuid.Nil {
		return nil, NewDomainError(CodeUserNotAuthenticated, "a requester is required")
	}
	if p.RequestID == uuid.Nil {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrInvalidCommand)
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidCommand)
	}

	r := New(AggregateIDFor(p.TenantID, p.RequestID))
	err := r.raise(EventCreated, &Created{
		RequestID:     p.RequestID,
		TenantID:      p.TenantID,
		RequesterID:   p.RequesterID,
		RequesterName: p.RequesterName,
		Title:         p.Title,
		Description:   p.Description,
		LineItems:     append([]LineItem(nil), p.LineItems...),
		CreatedAt:     domain.Now(),
	}, md)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Submit attaches flow and starts its first step.
func (r *PurchaseRequest) Submit(actor uuid.UUID, flow ApprovalFlow, md domain.EventMetadata) error {
	if err := r.CanSubmit(actor).Err(); err != nil {
		return err
	}
	if flow.Len() == 0 {
		return NewDomainError(CodeInvalidState, "an approval flow is required")
	}

	if err := r.raise(EventSubmitted, &Submitted{
		Total:       r.Total(),
		Steps:       flow.Steps(),
		SubmittedAt: domain.Now(),
	}, md); err != nil {
		return err
	}
	return r.activate(1, md)
}

// Approve records the current approver's decision and either activates the
// next step or completes the request.
func (r *PurchaseRequest) Approve(actor uuid.UUID, comment string, md domain.EventMetadata) error {
	if err := r.CanApprove(actor).Err(); err != nil {
		return err
	}

	step := r.currentStep()
	now := domain.Now()
	if err := r.raise(EventApprovalStepApproved, &ApprovalStepApproved{
		StepNumber: step.StepNumber,
		ApproverID: actor,
		Comment:    comment,
		ApprovedAt: now,
	}, md); err != nil {
		return err
	}

	if step.StepNumber < len(r.steps) {
		return r.activate(step.StepNumber+1, md)
	}
	return r.raise(EventApproved, &Approved{ApprovedAt: now}, md)
}

// Reject ends the flow at the current step. Remaining steps stay undecided.
func (r *PurchaseRequest) Reject(actor uuid.UUID, reason string, md domain.EventMetadata) error {
	if err := r.CanReject(actor).Err(); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return NewDomainError(CodeReasonRequired, "a rejection reason is required")
	}

	return r.raise(EventRejected, &Rejected{
		StepNumber: r.currentStep().StepNumber,
		ApproverID: actor,
		Reason:     reason,
		RejectedAt: domain.Now(),
	}, md)
}

// Cancel withdraws the request on behalf of its requester.
func (r *PurchaseRequest) Cancel(actor uuid.UUID, reason string, md domain.EventMetadata) error {
	if err := r.CanCancel(actor).Err(); err != nil {
		return err
	}
	return r.raise(EventCancelled, &Cancelled{
		CancelledBy: actor,
		Reason:      reason,
		CancelledAt: domain.Now(),
	}, md)
}

// CanSubmit checks that actor may send the draft into approval.
func (r *PurchaseRequest) CanSubmit(actor uuid.UUID) Decision {
	switch {
	case actor == uuid.Nil:
		return Deny(CodeUserNotAuthenticated, "user is not authenticated")
	case r.status.IsTerminal():
		return Deny(CodeTerminalState, "request is %s", r.status)
	case r.status != StatusDraft:
		return Deny(CodeInvalidState, "only draft requests can be submitted, request is %s", r.status)
	case actor != r.requesterID:
		return Deny(CodeNotRequester, "only the requester can submit the request")
	case len(r.lineItems) == 0:
		return Deny(CodeEmptyRequest, "request has no line items")
	case !r.Total().IsPositive():
		return Deny(CodeEmptyRequest, "request total must be positive")
	}
	return Allow()
}

// CanApprove checks that actor is the approver of the current step.
// The checks run in a fixed order and the first failure is reported.
func (r *PurchaseRequest) CanApprove(actor uuid.UUID) Decision {
	switch {
	case actor == uuid.Nil:
		return Deny(CodeUserNotAuthenticated, "user is not authenticated")
	case r.status.IsTerminal():
		return Deny(CodeTerminalState, "request is %s", r.status)
	}

	step := r.currentStep()
	if step == nil {
		return Deny(CodeNoPendingStep, "request has no step awaiting approval")
	}
	if step.ApproverID != actor {
		return Deny(CodeNotAssignedApprover, "step %d is assigned to %s", step.StepNumber, step.ApproverName)
	}
	return Allow()
}

// CanReject follows the same rule as CanApprove.
func (r *PurchaseRequest) CanReject(actor uuid.UUID) Decision {
	return r.CanApprove(actor)
}

// CanCancel checks that actor is the requester of a submitted, open request.
func (r *PurchaseRequest) CanCancel(actor uuid.UUID) Decision {
	switch {
	case actor == uuid.Nil:
		return Deny(CodeUserNotAuthenticated, "user is not authenticated")
	case r.status.IsTerminal():
		return Deny(CodeTerminalState, "request is %s", r.status)
	case r.status == StatusDraft:
		return Deny(CodeInvalidState, "draft requests cannot be cancelled")
	case actor != r.requesterID:
		return Deny(CodeNotRequester, "only the requester can cancel the request")
	}
	return Allow()
}

func (r *PurchaseRequest) RequestID() uuid.UUID       { return r.requestID }
func (r *PurchaseRequest) TenantID() string           { return r.tenantID }
func (r *PurchaseRequest) RequesterID() uuid.UUID     { return r.requesterID }
func (r *PurchaseRequest) RequesterName() string      { return r.requesterName }
func (r *PurchaseRequest) Title() string              { return r.title }
func (r *PurchaseRequest) Description() string        { return r.description }
func (r *PurchaseRequest) Status() Status             { return r.status }
func (r *PurchaseRequest) CreatedAt() time.Time       { return r.createdAt }
func (r *PurchaseRequest) SubmittedAt() *time.Time    { return r.submittedAt }
func (r *PurchaseRequest) ApprovedAt() *time.Time     { return r.approvedAt }
func (r *PurchaseRequest) RejectedAt() *time.Time     { return r.rejectedAt }
func (r *PurchaseRequest) CancelledAt() *time.Time    { return r.cancelledAt }
func (r *PurchaseRequest) RejectionReason() string    { return r.rejectionReason }
func (r *PurchaseRequest) CancellationReason() string { return r.cancellationReason }
func (r *PurchaseRequest) Total() decimal.Decimal     { return Total(r.lineItems) }
func (r *PurchaseRequest) LineItems() []LineItem      { return append([]LineItem(nil), r.lineItems...) }

// Steps returns a copy of the approval steps in order.
func (r *PurchaseRequest) Steps() []ApprovalStep {
	steps := make([]ApprovalStep, len(r.steps))
	for i, s := range r.steps {
		steps[i] = *s
	}
	return steps
}

// CurrentStep returns the step awaiting a decision, if any.
func (r *PurchaseRequest) CurrentStep() (ApprovalStep, bool) {
	if step := r.currentStep(); step != nil {
		return *step, true
	}
	return ApprovalStep{}, false
}

func (r *PurchaseRequest) currentStep() *ApprovalStep {
	n, ok := r.status.PendingStep()
	if !ok || n > len(r.steps) {
		return nil
	}
	step := r.steps[n-1]
	if step.IsDecided() {
		return nil
	}
	return step
}

func (r *PurchaseRequest) activate(stepNumber int, md domain.EventMetadata) error {
	status, ok := PendingStatusForStep(stepNumber)
	if !ok {
		return NewDomainError(CodeInvalidState, "no pending status for step %d", stepNumber)
	}
	return r.raise(EventApprovalStepActivated, &ApprovalStepActivated{StepNumber: stepNumber, Status: status}, md)
}

func (r *PurchaseRequest) raise(eventType string, payload any, md domain.EventMetadata) error {
	data, err := domain.EncodePayload(payload)
	if err != nil {
		return err
	}
	if err := r.ApplyChange(data, eventType, md); err != nil {
		return err
	}
	return r.when(payload)
}

func (r *PurchaseRequest) when(payload any) error {
	switch e := payload.(type) {
	case *Created:
		r.requestID = e.RequestID
		r.tenantID = e.TenantID
		r.requesterID = e.RequesterID
		r.requesterName = e.RequesterName
		r.title = e.Title
		r.description = e.Description
		r.lineItems = e.LineItems
		r.createdAt = e.CreatedAt
		r.status = StatusDraft

	case *Submitted:
		r.steps = make([]*ApprovalStep, len(e.Steps))
		for i, s := range e.Steps {
			r.steps[i] = newApprovalStep(s)
		}
		at := e.SubmittedAt
		r.submittedAt = &at
		r.status = StatusSubmitted

	case *ApprovalStepActivated:
		if e.StepNumber < 1 || e.StepNumber > len(r.steps) {
			return fmt.Errorf("activated step %d outside flow of %d steps", e.StepNumber, len(r.steps))
		}
		r.status = e.Status

	case *ApprovalStepApproved:
		step, err := r.stepAt(e.StepNumber)
		if err != nil {
			return err
		}
		step.decide(StepApproved, e.Comment, e.ApprovedAt)

	case *Approved:
		at := e.ApprovedAt
		r.approvedAt = &at
		r.status = StatusApproved

	case *Rejected:
		step, err := r.stepAt(e.StepNumber)
		if err != nil {
			return err
		}
		step.decide(StepRejected, e.Reason, e.RejectedAt)
		at := e.RejectedAt
		r.rejectedAt = &at
		r.rejectionReason = e.Reason
		r.status = StatusRejected

	case *Cancelled:
		at := e.CancelledAt
		r.cancelledAt = &at
		r.cancellationReason = e.Reason
		r.status = StatusCancelled

	default:
		return fmt.Errorf("unhandled event payload %T", payload)
	}
	return nil
}

func (r *PurchaseRequest) stepAt(n int) (*ApprovalStep, error) {
	if n < 1 || n > len(r.steps) {
		return nil, fmt.Errorf("step %d outside flow of %d steps", n, len(r.steps))
	}
	return r.steps[n-1], nil
}
