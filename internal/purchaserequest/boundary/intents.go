package boundary

import (
	"slices"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
)

// Intent is what a user wants to do, independent of the command that does it.
type Intent string

const (
	IntentPerformFirstApproval  Intent = "PerformFirstApproval"
	IntentPerformSecondApproval Intent = "PerformSecondApproval"
	IntentPerformFinalApproval  Intent = "PerformFinalApproval"
	IntentSendBackForRevision   Intent = "SendBackForRevision"
	IntentRejectPermanently     Intent = "RejectPermanently"
)

// IntentMetadata is the static presentation data of an intent.
type IntentMetadata struct {
	Label                string `json:"label"`
	CSSClass             string `json:"cssClass"`
	Icon                 string `json:"icon"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	ConfirmationMessage  string `json:"confirmationMessage,omitempty"`
}

var catalog = map[Intent]IntentMetadata{
	IntentPerformFirstApproval: {
		Label:    "Approve (first approval)",
		CSSClass: "btn-success",
		Icon:     "check",
	},
	IntentPerformSecondApproval: {
		Label:    "Approve (second approval)",
		CSSClass: "btn-success",
		Icon:     "check",
	},
	IntentPerformFinalApproval: {
		Label:                "Approve (final approval)",
		CSSClass:             "btn-success",
		Icon:                 "check-double",
		RequiresConfirmation: true,
		ConfirmationMessage:  "This is the final approval. The request will be approved.",
	},
	IntentSendBackForRevision: {
		Label:                "Send back for revision",
		CSSClass:             "btn-warning",
		Icon:                 "undo",
		RequiresConfirmation: true,
		ConfirmationMessage:  "This approves the current step with your comment. The request moves on to the next approver, or is approved if this is the last step.",
	},
	IntentRejectPermanently: {
		Label:                "Reject",
		CSSClass:             "btn-danger",
		Icon:                 "x",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Rejecting ends the approval flow. This cannot be undone.",
	},
}

// MetadataFor looks up the presentation data of intent.
func MetadataFor(intent Intent) (IntentMetadata, bool) {
	m, ok := catalog[intent]
	return m, ok
}

// Known reports whether intent is in the catalog.
func (i Intent) Known() bool {
	_, ok := catalog[i]
	return ok
}

// PerformIntentFor returns the approval intent matching a pending status.
func PerformIntentFor(status purchaserequest.Status) (Intent, bool) {
	switch status {
	case purchaserequest.StatusPendingFirstApproval:
		return IntentPerformFirstApproval, true
	case purchaserequest.StatusPendingSecondApproval:
		return IntentPerformSecondApproval, true
	case purchaserequest.StatusPendingFinalApproval:
		return IntentPerformFinalApproval, true
	default:
		return "", false
	}
}

// AvailableIntent is one intent offered to the actor. CompletesApproval is
// set on approving intents when the current step is the last one.
type AvailableIntent struct {
	Intent            Intent `json:"intent"`
	Enabled           bool   `json:"enabled"`
	CompletesApproval bool   `json:"completesApproval"`
	IntentMetadata
}

// IntentContext lists the intents an actor can execute on a request.
type IntentContext struct {
	Intents []AvailableIntent `json:"intents"`
}

// Has reports whether intent is offered and enabled.
func (c IntentContext) Has(intent Intent) bool {
	return slices.ContainsFunc(c.Intents, func(a AvailableIntent) bool {
		return a.Intent == intent && a.Enabled
	})
}

// Kinds returns the offered intents in order.
func (c IntentContext) Kinds() []Intent {
	kinds := make([]Intent, len(c.Intents))
	for i, a := range c.Intents {
		kinds[i] = a.Intent
	}
	return kinds
}

// GetIntentContext offers the approval intent for the current step plus
// send-back and reject, or nothing when the actor is not eligible.
func GetIntentContext(req *purchaserequest.PurchaseRequest, actor uuid.UUID) IntentContext {
	ctx := IntentContext{Intents: []AvailableIntent{}}
	if !CheckEligibility(req, actor).IsEligible() {
		return ctx
	}

	perform, ok := PerformIntentFor(req.Status())
	if !ok {
		return ctx
	}
	step, _ := req.CurrentStep()
	last := step.StepNumber == len(req.Steps())
	for _, intent := range []Intent{perform, IntentSendBackForRevision, IntentRejectPermanently} {
		ctx.Intents = append(ctx.Intents, AvailableIntent{
			Intent:            intent,
			Enabled:           true,
			CompletesApproval: last && intent != IntentRejectPermanently,
			IntentMetadata:    catalog[intent],
		})
	}
	return ctx
}

// CanExecuteIntent reports whether GetIntentContext offers intent to actor.
func CanExecuteIntent(req *purchaserequest.PurchaseRequest, intent Intent, actor uuid.UUID) bool {
	return GetIntentContext(req, actor).Has(intent)
}
