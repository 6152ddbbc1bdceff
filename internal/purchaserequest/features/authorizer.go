package features

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/middleware"
	"github.com/plaenen/purchasing/pkg/multitenancy"
	"github.com/plaenen/purchasing/pkg/observability"
)

// BoundaryAuthorizer applies the purchase request rules before a command
// reaches its handler. The principal must be the actor named in the command.
type BoundaryAuthorizer struct {
	repo    *purchaserequest.Repository
	metrics *observability.Metrics
	logger  *slog.Logger
}

var _ middleware.Authorizer = (*BoundaryAuthorizer)(nil)

// AuthorizerOption configures a BoundaryAuthorizer.
type AuthorizerOption func(*BoundaryAuthorizer)

// WithAuthorizerMetrics counts denials by action and reason code.
func WithAuthorizerMetrics(metrics *observability.Metrics) AuthorizerOption {
	return func(a *BoundaryAuthorizer) { a.metrics = metrics }
}

// WithAuthorizerLogger sets the logger.
func WithAuthorizerLogger(logger *slog.Logger) AuthorizerOption {
	return func(a *BoundaryAuthorizer) { a.logger = logger }
}

// NewBoundaryAuthorizer creates an authorizer reading requests from repo.
func NewBoundaryAuthorizer(repo *purchaserequest.Repository, opts ...AuthorizerOption) *BoundaryAuthorizer {
	a := &BoundaryAuthorizer{
		repo:    repo,
		metrics: observability.NoopMetrics(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize implements middleware.Authorizer. Commands of other modules pass.
func (a *BoundaryAuthorizer) Authorize(ctx context.Context, principalID string, cmd domain.Command) error {
	principal, err := uuid.Parse(principalID)
	if err != nil || principal == uuid.Nil {
		return a.deny(ctx, cmd, purchaserequest.NewDomainError(purchaserequest.CodeUserNotAuthenticated, "principal is not a known user"))
	}

	switch c := cmd.(type) {
	case *CreatePurchaseRequest:
		if c.RequesterID != principal {
			return a.deny(ctx, cmd, purchaserequest.NewDomainError(purchaserequest.CodeNotRequester, "requests can only be opened for yourself"))
		}
		return nil

	case *SubmitPurchaseRequest:
		return a.check(ctx, cmd, principal, c.ActorID, c.RequestID, func(r *purchaserequest.PurchaseRequest) purchaserequest.Decision {
			return r.CanSubmit(principal)
		})

	case *ApprovePurchaseRequest:
		return a.check(ctx, cmd, principal, c.ApproverID, c.RequestID, func(r *purchaserequest.PurchaseRequest) purchaserequest.Decision {
			return eligibilityDecision(boundary.CheckEligibility(r, principal), true)
		})

	case *RejectPurchaseRequest:
		return a.check(ctx, cmd, principal, c.ApproverID, c.RequestID, func(r *purchaserequest.PurchaseRequest) purchaserequest.Decision {
			return eligibilityDecision(boundary.CheckEligibility(r, principal), false)
		})

	case *CancelPurchaseRequest:
		return a.check(ctx, cmd, principal, c.ActorID, c.RequestID, func(r *purchaserequest.PurchaseRequest) purchaserequest.Decision {
			return r.CanCancel(principal)
		})
	}
	return nil
}

func (a *BoundaryAuthorizer) check(
	ctx context.Context,
	cmd domain.Command,
	principal, actor, requestID uuid.UUID,
	decide func(*purchaserequest.PurchaseRequest) purchaserequest.Decision,
) error {
	if actor != principal {
		return a.deny(ctx, cmd, purchaserequest.NewDomainError(purchaserequest.CodeUserNotAuthenticated, "command actor does not match the caller"))
	}

	tenantID, _ := multitenancy.GetTenantID(ctx)
	r, err := a.repo.Load(ctx, purchaserequest.AggregateIDFor(tenantID, requestID))
	if errors.Is(err, domain.ErrAggregateNotFound) {
		return a.deny(ctx, cmd, purchaserequest.NewDomainError(purchaserequest.CodeRequestNotFound, "purchase request %s not found", requestID))
	}
	if err != nil {
		return err
	}

	if d := decide(r); !d.Allowed {
		return a.deny(ctx, cmd, d.Err())
	}
	return nil
}

func (a *BoundaryAuthorizer) deny(ctx context.Context, cmd domain.Command, err error) error {
	code := "UNKNOWN"
	if de, ok := purchaserequest.AsDomainError(err); ok {
		code = de.Code
	}
	a.metrics.RecordBoundaryDenial(ctx, cmd.CommandType(), code)
	a.logger.InfoContext(ctx, "Command denied",
		slog.String("command_type", cmd.CommandType()),
		slog.String("aggregate_id", cmd.AggregateID()),
		slog.String("code", code),
	)
	return err
}

func eligibilityDecision(e boundary.Eligibility, approve bool) purchaserequest.Decision {
	allowed := e.CanReject
	if approve {
		allowed = e.CanApprove
	}
	if allowed {
		return purchaserequest.Allow()
	}
	reason, ok := e.FirstReason()
	if !ok {
		return purchaserequest.Deny(purchaserequest.CodeInvalidState, "action denied")
	}
	return purchaserequest.Decision{Reason: &reason}
}
