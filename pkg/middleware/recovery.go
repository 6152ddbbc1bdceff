package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// RecoveryMiddleware turns a handler panic into an error wrapping
// domain.ErrHandlerPanicked. The command produces no events.
func RecoveryMiddleware(logger *slog.Logger) cqrs.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) (events []*domain.Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "Command handler panicked",
						slog.String("command_id", cmd.Metadata.CommandID),
						slog.String("command_type", cmd.CommandType()),
						slog.String("aggregate_id", aggregateID(cmd)),
						slog.String("tenant_id", cmd.Metadata.TenantID),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)

					err = fmt.Errorf("%w: %v", domain.ErrHandlerPanicked, r)
					events = nil
				}
			}()

			return next.Handle(ctx, cmd)
		})
	}
}
