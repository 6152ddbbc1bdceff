package features

import (
	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/idgen"
)

// IntentCommandFactory maps boundary intents onto this package's commands.
type IntentCommandFactory struct{}

var _ boundary.CommandFactory = IntentCommandFactory{}

// CreateCommand builds the command for intent. Every approval intent and
// send-back approve the current step; reject-permanently rejects with the
// comment as reason. An empty idempotency key gets a fresh one.
func (IntentCommandFactory) CreateCommand(intent boundary.Intent, requestID, userID uuid.UUID, comment, idempotencyKey string) (domain.Command, error) {
	if idempotencyKey == "" {
		key, err := idgen.GenerateSortableID()
		if err != nil {
			return nil, err
		}
		idempotencyKey = key
	}

	switch intent {
	case boundary.IntentPerformFirstApproval,
		boundary.IntentPerformSecondApproval,
		boundary.IntentPerformFinalApproval,
		boundary.IntentSendBackForRevision:
		return &ApprovePurchaseRequest{
			RequestID:      requestID,
			ApproverID:     userID,
			Comment:        comment,
			IdempotencyKey: idempotencyKey,
		}, nil
	case boundary.IntentRejectPermanently:
		return &RejectPurchaseRequest{
			RequestID:      requestID,
			ApproverID:     userID,
			Reason:         comment,
			IdempotencyKey: idempotencyKey,
		}, nil
	default:
		return nil, purchaserequest.NewDomainError(purchaserequest.CodeUnknownIntent, "no command for intent %q", intent)
	}
}
