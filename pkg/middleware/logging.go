package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// LoggingMiddleware logs each command with its duration. Business rule
// rejections (domain.CodedError) are logged at warn level with their code,
// every other failure at error level.
func LoggingMiddleware(logger *slog.Logger) cqrs.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()
			commandType := cmd.CommandType()
			commandID := cmd.Metadata.CommandID

			logger.InfoContext(ctx, "Executing command",
				slog.String("command_type", commandType),
				slog.String("command_id", commandID),
				slog.String("aggregate_id", aggregateID(cmd)),
				slog.String("principal_id", cmd.Metadata.PrincipalID),
				slog.String("tenant_id", cmd.Metadata.TenantID),
				slog.String("correlation_id", cmd.Metadata.CorrelationID),
			)

			events, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if code := domain.ErrorCode(err); code != "" {
				logger.WarnContext(ctx, "Command rejected",
					slog.String("command_type", commandType),
					slog.String("command_id", commandID),
					slog.String("error_code", code),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}
			if err != nil {
				logger.ErrorContext(ctx, "Command execution failed",
					slog.String("command_type", commandType),
					slog.String("command_id", commandID),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "Command executed successfully",
				slog.String("command_type", commandType),
				slog.String("command_id", commandID),
				slog.Int("events_count", len(events)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)

			return events, nil
		})
	}
}

func aggregateID(cmd *domain.CommandEnvelope) string {
	if cmd.Command == nil {
		return ""
	}
	return cmd.Command.AggregateID()
}
