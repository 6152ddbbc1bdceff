package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/multitenancy"
)

// CommandResultStore looks up commands that were already processed.
type CommandResultStore interface {
	// GetCommandResult returns nil when the command is unknown or expired.
	GetCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error)
}

// IdempotencyMiddleware replays the recorded events of a command that was
// already processed instead of executing it a second time. A command ID
// recorded for another aggregate or command type is rejected with
// domain.ErrIdempotencyKeyConflict.
//
// It runs after tenant isolation so the metadata tenant scopes the aggregate.
func IdempotencyMiddleware(store CommandResultStore, logger *slog.Logger) cqrs.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			commandID := cmd.Metadata.CommandID
			if commandID == "" {
				return next.Handle(ctx, cmd)
			}

			result, err := store.GetCommandResult(ctx, commandID)
			if err != nil {
				return nil, fmt.Errorf("failed to check processed command: %w", err)
			}

			if result != nil {
				target := multitenancy.ComposeAggregateID(cmd.Metadata.TenantID, aggregateID(cmd))
				if err := result.SameCommand(target, cmd.CommandType()); err != nil {
					return nil, err
				}
				logger.InfoContext(ctx, "Command already processed, replaying result",
					slog.String("command_id", commandID),
					slog.String("command_type", cmd.CommandType()),
					slog.Time("processed_at", result.ProcessedAt),
				)
				return result.Events, nil
			}

			return next.Handle(ctx, cmd)
		})
	}
}
