package boundary

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/plaenen/purchasing/internal/purchaserequest"
)

// Severity ranks how much attention a status needs.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityNeutral Severity = "neutral"
)

// StatusDisplay is how a presentation layer renders a status badge.
type StatusDisplay struct {
	Label      string   `json:"label"`
	BadgeColor string   `json:"badgeColor"`
	Icon       string   `json:"icon"`
	Severity   Severity `json:"severity"`
	AriaLabel  string   `json:"ariaLabel"`
}

// StatusDisplayFor maps a status to its badge. Unknown statuses get a
// neutral badge labelled with the raw value.
func StatusDisplayFor(status purchaserequest.Status) StatusDisplay {
	var d StatusDisplay
	switch status {
	case purchaserequest.StatusDraft:
		d = StatusDisplay{Label: "Draft", BadgeColor: "secondary", Icon: "pencil", Severity: SeverityNeutral}
	case purchaserequest.StatusSubmitted:
		d = StatusDisplay{Label: "Submitted", BadgeColor: "info", Icon: "send", Severity: SeverityInfo}
	case purchaserequest.StatusPendingFirstApproval:
		d = StatusDisplay{Label: "Pending First Approval", BadgeColor: "warning", Icon: "hourglass-start", Severity: SeverityWarning}
	case purchaserequest.StatusPendingSecondApproval:
		d = StatusDisplay{Label: "Pending Second Approval", BadgeColor: "warning", Icon: "hourglass-half", Severity: SeverityWarning}
	case purchaserequest.StatusPendingFinalApproval:
		d = StatusDisplay{Label: "Pending Final Approval", BadgeColor: "warning", Icon: "hourglass-end", Severity: SeverityWarning}
	case purchaserequest.StatusApproved:
		d = StatusDisplay{Label: "Approved", BadgeColor: "success", Icon: "check-circle", Severity: SeveritySuccess}
	case purchaserequest.StatusRejected:
		d = StatusDisplay{Label: "Rejected", BadgeColor: "danger", Icon: "x-circle", Severity: SeverityError}
	case purchaserequest.StatusCancelled:
		d = StatusDisplay{Label: "Cancelled", BadgeColor: "dark", Icon: "slash-circle", Severity: SeverityNeutral}
	default:
		d = StatusDisplay{Label: string(status), BadgeColor: "secondary", Icon: "question-circle", Severity: SeverityNeutral}
	}
	d.AriaLabel = "Request status: " + cases.Lower(language.English).String(d.Label)
	return d
}
