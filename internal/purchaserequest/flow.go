package purchaserequest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plaenen/purchasing/pkg/config"
)

// MaxApprovalSteps is the longest flow a request can get.
const MaxApprovalSteps = 3

// ApprovalFlowStep assigns one approver to one step of a flow.
type ApprovalFlowStep struct {
	StepNumber   int       `json:"stepNumber"`
	ApproverID   uuid.UUID `json:"approverId"`
	ApproverName string    `json:"approverName"`
	Role         string    `json:"role"`
}

// ApprovalFlow is an ordered, immutable list of approval steps.
type ApprovalFlow struct {
	steps []ApprovalFlowStep
}

// NewApprovalFlow validates that steps are numbered 1..n with an approver each.
func NewApprovalFlow(steps ...ApprovalFlowStep) (ApprovalFlow, error) {
	if len(steps) == 0 || len(steps) > MaxApprovalSteps {
		return ApprovalFlow{}, fmt.Errorf("approval flow needs 1 to %d steps, got %d", MaxApprovalSteps, len(steps))
	}
	for i, step := range steps {
		if step.StepNumber != i+1 {
			return ApprovalFlow{}, fmt.Errorf("approval step %d has number %d", i+1, step.StepNumber)
		}
		if step.ApproverID == uuid.Nil {
			return ApprovalFlow{}, fmt.Errorf("approval step %d has no approver", step.StepNumber)
		}
	}
	return ApprovalFlow{steps: append([]ApprovalFlowStep(nil), steps...)}, nil
}

// Steps returns a copy of the flow's steps.
func (f ApprovalFlow) Steps() []ApprovalFlowStep {
	return append([]ApprovalFlowStep(nil), f.steps...)
}

// Len returns the number of steps.
func (f ApprovalFlow) Len() int { return len(f.steps) }

// ApproverDirectory resolves who approves for a role.
type ApproverDirectory interface {
	ApproverFor(role string) (ApprovalFlowStep, bool)
}

// StaticDirectory is an ApproverDirectory backed by a map keyed by role.
// StepNumber of the returned entries is ignored.
type StaticDirectory map[string]ApprovalFlowStep

func (d StaticDirectory) ApproverFor(role string) (ApprovalFlowStep, bool) {
	step, ok := d[role]
	if ok {
		step.Role = role
	}
	return step, ok
}

// DirectoryFromConfig parses the configured approvers.
func DirectoryFromConfig(approvers map[string]config.Approver) (StaticDirectory, error) {
	dir := make(StaticDirectory, len(approvers))
	for role, approver := range approvers {
		id, err := uuid.Parse(approver.ID)
		if err != nil {
			return nil, fmt.Errorf("approver for role %s: %w", role, err)
		}
		dir[role] = ApprovalFlowStep{ApproverID: id, ApproverName: approver.Name, Role: role}
	}
	return dir, nil
}

// FlowPolicy decides how many approvals a total needs and who gives them.
type FlowPolicy struct {
	SecondStepThreshold decimal.Decimal
	ThirdStepThreshold  decimal.Decimal
	Directory           ApproverDirectory
}

// tierRoles lists the role of each step in order.
var tierRoles = [MaxApprovalSteps]string{config.RoleManager, config.RoleDirector, config.RoleExecutive}

// PolicyFromConfig builds the policy from the approval configuration.
func PolicyFromConfig(cfg config.ApprovalConfig) (FlowPolicy, error) {
	dir, err := DirectoryFromConfig(cfg.Approvers)
	if err != nil {
		return FlowPolicy{}, err
	}
	return FlowPolicy{
		SecondStepThreshold: cfg.SecondStepThreshold,
		ThirdStepThreshold:  cfg.ThirdStepThreshold,
		Directory:           dir,
	}, nil
}

// StepsFor returns the number of approvals total requires.
func (p FlowPolicy) StepsFor(total decimal.Decimal) int {
	switch {
	case total.LessThan(p.SecondStepThreshold):
		return 1
	case total.LessThan(p.ThirdStepThreshold):
		return 2
	default:
		return 3
	}
}

// FlowFor builds the approval flow for total.
func (p FlowPolicy) FlowFor(total decimal.Decimal) (ApprovalFlow, error) {
	if p.Directory == nil {
		return ApprovalFlow{}, fmt.Errorf("approval policy has no approver directory")
	}

	n := p.StepsFor(total)
	steps := make([]ApprovalFlowStep, 0, n)
	for i := 0; i < n; i++ {
		approver, ok := p.Directory.ApproverFor(tierRoles[i])
		if !ok {
			return ApprovalFlow{}, fmt.Errorf("no approver configured for role %s", tierRoles[i])
		}
		approver.StepNumber = i + 1
		steps = append(steps, approver)
	}
	return NewApprovalFlow(steps...)
}
