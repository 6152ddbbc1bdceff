package multitenancy

import (
	"context"
	"fmt"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// TenantExtractionMiddleware puts the metadata tenant ID into the context
// when the caller did not already provide one.
func TenantExtractionMiddleware() cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, envelope *domain.CommandEnvelope) ([]*domain.Event, error) {
			if !HasTenantID(ctx) && envelope.Metadata.TenantID != "" {
				ctx = WithTenantID(ctx, envelope.Metadata.TenantID)
			}
			return next.Handle(ctx, envelope)
		})
	}
}

// TenantIsolationMiddleware ensures commands cannot cross tenant boundaries.
// The context must carry a tenant, the metadata tenant must match it, the
// target aggregate must belong to it and so must every emitted event.
func TenantIsolationMiddleware() cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, envelope *domain.CommandEnvelope) ([]*domain.Event, error) {
			tenantID, err := GetTenantID(ctx)
			if err != nil {
				return nil, fmt.Errorf("tenant isolation: %w", err)
			}

			if envelope.Metadata.TenantID != "" && envelope.Metadata.TenantID != tenantID {
				return nil, fmt.Errorf("tenant isolation: metadata tenant (%s) doesn't match context tenant (%s)",
					envelope.Metadata.TenantID, tenantID)
			}
			envelope.Metadata.TenantID = tenantID

			if aggregateID := envelope.Command.AggregateID(); aggregateID != "" {
				if err := ValidateTenantID(aggregateID, tenantID); err != nil {
					return nil, fmt.Errorf("tenant isolation: %w", err)
				}
			}

			events, err := next.Handle(ctx, envelope)
			if err != nil {
				return nil, err
			}

			for _, event := range events {
				if err := ValidateTenantID(event.AggregateID, tenantID); err != nil {
					return nil, fmt.Errorf("tenant isolation: event validation failed: %w", err)
				}
				event.Metadata.TenantID = tenantID
			}

			return events, nil
		})
	}
}
