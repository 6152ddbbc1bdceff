// Package purchaserequest holds the event-sourced PurchaseRequest aggregate
// and its multi-step approval flow.
package purchaserequest

// Status is the lifecycle state of a purchase request.
type Status string

const (
	StatusDraft                 Status = "Draft"
	StatusSubmitted             Status = "Submitted"
	StatusPendingFirstApproval  Status = "PendingFirstApproval"
	StatusPendingSecondApproval Status = "PendingSecondApproval"
	StatusPendingFinalApproval  Status = "PendingFinalApproval"
	StatusApproved              Status = "Approved"
	StatusRejected              Status = "Rejected"
	StatusCancelled             Status = "Cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusPendingFirstApproval,
	StatusPendingSecondApproval,
	StatusPendingFinalApproval,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsPending reports whether the request is waiting on an approver.
func (s Status) IsPending() bool {
	_, ok := s.PendingStep()
	return ok
}

// PendingStep returns the step ordinal a pending status waits on.
func (s Status) PendingStep() (int, bool) {
	switch s {
	case StatusPendingFirstApproval:
		return 1, true
	case StatusPendingSecondApproval:
		return 2, true
	case StatusPendingFinalApproval:
		return 3, true
	default:
		return 0, false
	}
}

// PendingStatusForStep maps a step ordinal to the status that waits on it.
func PendingStatusForStep(step int) (Status, bool) {
	switch step {
	case 1:
		return StatusPendingFirstApproval, true
	case 2:
		return StatusPendingSecondApproval, true
	case 3:
		return StatusPendingFinalApproval, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}
