package middleware

import (
	"context"
	"fmt"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// Authorizer defines the interface for authorization checks.
type Authorizer interface {
	// Authorize checks if the principal is authorized to execute the command.
	Authorize(ctx context.Context, principalID string, cmd domain.Command) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, principalID string, cmd domain.Command) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, principalID string, cmd domain.Command) error {
	return f(ctx, principalID, cmd)
}

// AuthorizationMiddleware enforces authorization for commands.
// The authorizer's error is wrapped so callers can still match it with errors.As.
func AuthorizationMiddleware(authorizer Authorizer) cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if err := authorizer.Authorize(ctx, cmd.Metadata.PrincipalID, cmd.Command); err != nil {
				return nil, fmt.Errorf("authorization failed: %w", err)
			}

			return next.Handle(ctx, cmd)
		})
	}
}
