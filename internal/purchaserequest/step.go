package purchaserequest

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the state of one approval step.
type StepStatus string

const (
	StepPending  StepStatus = "Pending"
	StepApproved StepStatus = "Approved"
	StepRejected StepStatus = "Rejected"
)

// ApprovalStep is one approver's slot in a request's flow.
type ApprovalStep struct {
	StepNumber   int
	ApproverID   uuid.UUID
	ApproverName string
	Role         string
	Status       StepStatus
	Comment      string
	DecidedAt    *time.Time
}

// IsDecided reports whether the approver has acted on the step.
func (s ApprovalStep) IsDecided() bool {
	return s.Status != StepPending
}

func newApprovalStep(flowStep ApprovalFlowStep) *ApprovalStep {
	return &ApprovalStep{
		StepNumber:   flowStep.StepNumber,
		ApproverID:   flowStep.ApproverID,
		ApproverName: flowStep.ApproverName,
		Role:         flowStep.Role,
		Status:       StepPending,
	}
}

func (s *ApprovalStep) decide(status StepStatus, comment string, at time.Time) {
	s.Status = status
	s.Comment = comment
	s.DecidedAt = &at
}
