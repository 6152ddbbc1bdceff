package boundary

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
)

// Action is a button-level operation a presentation layer may show.
type Action string

const (
	ActionApprove Action = "Approve"
	ActionReject  Action = "Reject"
	ActionCancel  Action = "Cancel"
)

// StepView is a read-only copy of an approval step.
type StepView struct {
	StepNumber   int                        `json:"stepNumber"`
	ApproverID   uuid.UUID                  `json:"approverId"`
	ApproverName string                     `json:"approverName"`
	Role         string                     `json:"role"`
	Status       purchaserequest.StepStatus `json:"status"`
	Comment      string                     `json:"comment,omitempty"`
	DecidedAt    *time.Time                 `json:"decidedAt,omitempty"`
	UI           *StepUI                    `json:"ui,omitempty"`
}

// StepUI is optional presentation data for a step.
type StepUI struct {
	Icon      string `json:"icon"`
	CSSClass  string `json:"cssClass"`
	IsCurrent bool   `json:"isCurrent"`
}

// ApprovalContext is everything a presentation layer needs to render a
// request for one actor.
type ApprovalContext struct {
	RequestID      uuid.UUID              `json:"requestId"`
	Status         purchaserequest.Status `json:"status"`
	StatusDisplay  StatusDisplay          `json:"statusDisplay"`
	IsTerminal     bool                   `json:"isTerminal"`
	CurrentStep    *StepView              `json:"currentStep,omitempty"`
	CompletedSteps []StepView             `json:"completedSteps"`
	RemainingSteps []StepView             `json:"remainingSteps"`
	AllowedActions []Action               `json:"allowedActions"`
	Eligibility    Eligibility            `json:"eligibility"`
	Intents        IntentContext          `json:"intents"`
}

// Allows reports whether action is in AllowedActions.
func (c ApprovalContext) Allows(action Action) bool {
	return slices.Contains(c.AllowedActions, action)
}

// BuildContext composes eligibility, intents, steps and status display.
// Cancel is offered only to the requester of a submitted, open request.
func BuildContext(req *purchaserequest.PurchaseRequest, actor uuid.UUID, withStepUI bool) ApprovalContext {
	c := ApprovalContext{
		CompletedSteps: []StepView{},
		RemainingSteps: []StepView{},
		AllowedActions: []Action{},
		Eligibility:    CheckEligibility(req, actor),
		Intents:        IntentContext{Intents: []AvailableIntent{}},
	}
	if req == nil {
		c.StatusDisplay = StatusDisplayFor("")
		return c
	}

	c.RequestID = req.RequestID()
	c.Status = req.Status()
	c.StatusDisplay = StatusDisplayFor(req.Status())
	c.IsTerminal = req.Status().IsTerminal()
	c.Intents = GetIntentContext(req, actor)

	current, hasCurrent := req.CurrentStep()
	for _, step := range req.Steps() {
		isCurrent := hasCurrent && step.StepNumber == current.StepNumber
		view := stepView(step, isCurrent, withStepUI)
		switch {
		case isCurrent:
			c.CurrentStep = &view
		case step.IsDecided():
			c.CompletedSteps = append(c.CompletedSteps, view)
		default:
			c.RemainingSteps = append(c.RemainingSteps, view)
		}
	}

	if c.Eligibility.CanApprove {
		c.AllowedActions = append(c.AllowedActions, ActionApprove)
	}
	if c.Eligibility.CanReject {
		c.AllowedActions = append(c.AllowedActions, ActionReject)
	}
	if req.CanCancel(actor).Allowed {
		c.AllowedActions = append(c.AllowedActions, ActionCancel)
	}
	return c
}

func stepView(step purchaserequest.ApprovalStep, isCurrent, withUI bool) StepView {
	v := StepView{
		StepNumber:   step.StepNumber,
		ApproverID:   step.ApproverID,
		ApproverName: step.ApproverName,
		Role:         step.Role,
		Status:       step.Status,
		Comment:      step.Comment,
		DecidedAt:    step.DecidedAt,
	}
	if withUI {
		v.UI = stepUI(step.Status, isCurrent)
	}
	return v
}

func stepUI(status purchaserequest.StepStatus, isCurrent bool) *StepUI {
	switch {
	case status == purchaserequest.StepApproved:
		return &StepUI{Icon: "check-circle", CSSClass: "step-approved"}
	case status == purchaserequest.StepRejected:
		return &StepUI{Icon: "x-circle", CSSClass: "step-rejected"}
	case isCurrent:
		return &StepUI{Icon: "hourglass-half", CSSClass: "step-current", IsCurrent: true}
	default:
		return &StepUI{Icon: "circle", CSSClass: "step-upcoming"}
	}
}
