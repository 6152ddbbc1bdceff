// Package boundary decides what an actor may do with a purchase request and
// describes those options for a presentation layer.
package boundary

import (
	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
)

// Eligibility tells whether an actor may act on the current approval step.
// BlockingReasons holds at most one entry: the first failing check.
type Eligibility struct {
	CanApprove            bool                          `json:"canApprove"`
	CanReject             bool                          `json:"canReject"`
	CurrentStepApproverID *uuid.UUID                    `json:"currentStepApproverId,omitempty"`
	BlockingReasons       []purchaserequest.DomainError `json:"blockingReasons"`
}

// IsEligible reports whether approve and reject are both granted.
func (e Eligibility) IsEligible() bool {
	return e.CanApprove && e.CanReject
}

// FirstReason returns the reason the actor is blocked, if any.
func (e Eligibility) FirstReason() (purchaserequest.DomainError, bool) {
	if len(e.BlockingReasons) == 0 {
		return purchaserequest.DomainError{}, false
	}
	return e.BlockingReasons[0], true
}

// CheckEligibility evaluates, in order: request exists, actor is known,
// request is not terminal, a step is pending, actor is its approver.
func CheckEligibility(req *purchaserequest.PurchaseRequest, actor uuid.UUID) Eligibility {
	if req == nil {
		return denied(nil, *purchaserequest.NewDomainError(purchaserequest.CodeRequestNotFound, "purchase request not found"))
	}

	var approver *uuid.UUID
	if step, ok := req.CurrentStep(); ok {
		id := step.ApproverID
		approver = &id
	}

	approve := req.CanApprove(actor)
	if !approve.Allowed {
		return denied(approver, *approve.Reason)
	}
	reject := req.CanReject(actor)
	if !reject.Allowed {
		return denied(approver, *reject.Reason)
	}

	return Eligibility{
		CanApprove:            true,
		CanReject:             true,
		CurrentStepApproverID: approver,
		BlockingReasons:       []purchaserequest.DomainError{},
	}
}

func denied(approver *uuid.UUID, reason purchaserequest.DomainError) Eligibility {
	return Eligibility{
		CurrentStepApproverID: approver,
		BlockingReasons:       []purchaserequest.DomainError{reason},
	}
}
