package observability

import (
	"context"
	"time"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// MetricsMiddleware records duration, count and errors of every command.
func MetricsMiddleware(metrics *Metrics) cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()
			events, err := next.Handle(ctx, cmd)
			metrics.RecordCommand(ctx, cmd.CommandType(), time.Since(start), err)
			return events, err
		})
	}
}
