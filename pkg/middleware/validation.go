package middleware

import (
	"context"
	"fmt"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
)

// Validator defines the interface for validating commands.
type Validator interface {
	// Validate validates a command and returns an error if invalid.
	Validate(cmd domain.Command) error
}

// ValidationMiddleware validates commands before they are handled.
func ValidationMiddleware(validator Validator) cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if err := validator.Validate(cmd.Command); err != nil {
				return nil, fmt.Errorf("command validation failed: %w", err)
			}

			return next.Handle(ctx, cmd)
		})
	}
}

// MetadataValidationMiddleware validates command metadata.
func MetadataValidationMiddleware() cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if cmd.Metadata.CommandID == "" {
				return nil, fmt.Errorf("%w: command_id is required", domain.ErrInvalidCommand)
			}

			if cmd.Metadata.PrincipalID == "" {
				return nil, fmt.Errorf("%w: principal_id is required", domain.ErrInvalidCommand)
			}

			return next.Handle(ctx, cmd)
		})
	}
}

// SelfValidator validates commands that implement Validate() error.
// Commands without a Validate method pass through.
type SelfValidator struct{}

// Validate implements Validator.
func (SelfValidator) Validate(cmd domain.Command) error {
	type validatable interface {
		Validate() error
	}

	if v, ok := cmd.(validatable); ok {
		return v.Validate()
	}
	return nil
}
