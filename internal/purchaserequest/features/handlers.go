package features

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/multitenancy"
	"github.com/plaenen/purchasing/pkg/store"
)

const defaultConflictRetries = 3

// Handlers executes purchase request commands against the event store.
type Handlers struct {
	repo    *purchaserequest.Repository
	results store.EventStore
	policy  purchaserequest.FlowPolicy
	logger  *slog.Logger
	retries int
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handlers) { h.logger = logger }
}

// WithConflictRetries sets how often a command without an expected version
// is retried against a reloaded aggregate after a concurrency conflict.
func WithConflictRetries(n int) HandlerOption {
	return func(h *Handlers) { h.retries = n }
}

// NewHandlers creates the command handlers. es must be the store behind repo.
func NewHandlers(es store.EventStore, repo *purchaserequest.Repository, policy purchaserequest.FlowPolicy, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		repo:    repo,
		results: es,
		policy:  policy,
		logger:  slog.Default(),
		retries: defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds every purchase request handler to bus.
func (h *Handlers) Register(bus cqrs.CommandBus) {
	bus.Register(CreateCommandType, cqrs.CommandHandlerFunc(h.handleCreate))
	bus.Register(SubmitCommandType, cqrs.CommandHandlerFunc(h.handleSubmit))
	bus.Register(ApproveCommandType, cqrs.CommandHandlerFunc(h.handleApprove))
	bus.Register(RejectCommandType, cqrs.CommandHandlerFunc(h.handleReject))
	bus.Register(CancelCommandType, cqrs.CommandHandlerFunc(h.handleCancel))
}

func (h *Handlers) handleCreate(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(*CreatePurchaseRequest)
	if !ok {
		return nil, unexpected(cmd, env.Command)
	}

	if events, done, err := h.replay(ctx, env); done || err != nil {
		return events, err
	}

	id := purchaserequest.AggregateIDFor(env.Metadata.TenantID, cmd.RequestID)
	exists, err := h.repo.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, purchaserequest.NewDomainError(purchaserequest.CodeInvalidState, "purchase request %s already exists", cmd.RequestID)
	}

	r, err := purchaserequest.Create(purchaserequest.CreateParams{
		RequestID:     cmd.RequestID,
		TenantID:      env.Metadata.TenantID,
		RequesterID:   cmd.RequesterID,
		RequesterName: cmd.RequesterName,
		Title:         cmd.Title,
		Description:   cmd.Description,
		LineItems:     cmd.LineItems,
	}, domain.MetadataFromCommand(env.Metadata))
	if err != nil {
		return nil, err
	}
	r.SetCommandID(env.Metadata.CommandID)
	return h.save(ctx, r, env)
}

func (h *Handlers) handleSubmit(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(*SubmitPurchaseRequest)
	if !ok {
		return nil, unexpected(cmd, env.Command)
	}
	return h.mutate(ctx, env, cmd.RequestID, cmd.ExpectedVersion, func(r *purchaserequest.PurchaseRequest, md domain.EventMetadata) error {
		if err := r.CanSubmit(cmd.ActorID).Err(); err != nil {
			return err
		}
		flow, err := h.policy.FlowFor(r.Total())
		if err != nil {
			return fmt.Errorf("failed to build approval flow: %w", err)
		}
		return r.Submit(cmd.ActorID, flow, md)
	})
}

func (h *Handlers) handleApprove(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(*ApprovePurchaseRequest)
	if !ok {
		return nil, unexpected(cmd, env.Command)
	}
	return h.mutate(ctx, env, cmd.RequestID, cmd.ExpectedVersion, func(r *purchaserequest.PurchaseRequest, md domain.EventMetadata) error {
		return r.Approve(cmd.ApproverID, cmd.Comment, md)
	})
}

func (h *Handlers) handleReject(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(*RejectPurchaseRequest)
	if !ok {
		return nil, unexpected(cmd, env.Command)
	}
	return h.mutate(ctx, env, cmd.RequestID, cmd.ExpectedVersion, func(r *purchaserequest.PurchaseRequest, md domain.EventMetadata) error {
		return r.Reject(cmd.ApproverID, cmd.Reason, md)
	})
}

func (h *Handlers) handleCancel(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(*CancelPurchaseRequest)
	if !ok {
		return nil, unexpected(cmd, env.Command)
	}
	return h.mutate(ctx, env, cmd.RequestID, cmd.ExpectedVersion, func(r *purchaserequest.PurchaseRequest, md domain.EventMetadata) error {
		return r.Cancel(cmd.ActorID, cmd.Reason, md)
	})
}

// mutate loads the request, applies fn and saves. With an expected version
// the caller's token must match and conflicts are returned; without one the
// command is re-evaluated against the reloaded request on conflict.
func (h *Handlers) mutate(
	ctx context.Context,
	env *domain.CommandEnvelope,
	requestID uuid.UUID,
	expectedVersion int64,
	fn func(*purchaserequest.PurchaseRequest, domain.EventMetadata) error,
) ([]*domain.Event, error) {
	if events, done, err := h.replay(ctx, env); done || err != nil {
		return events, err
	}

	retries := h.retries
	if expectedVersion > 0 {
		retries = 0
	}

	id := purchaserequest.AggregateIDFor(env.Metadata.TenantID, requestID)
	md := domain.MetadataFromCommand(env.Metadata)

	var events []*domain.Event
	err := h.repo.RetryOnConflict(ctx, id, retries, func(r *purchaserequest.PurchaseRequest) error {
		if expectedVersion > 0 && r.Version() != expectedVersion {
			return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict,
				purchaserequest.NewDomainError(purchaserequest.CodeVersionMismatch,
					"expected version %d, current version %d", expectedVersion, r.Version()))
		}

		r.SetCommandID(env.Metadata.CommandID)
		if err := fn(r, md); err != nil {
			return err
		}

		saved, err := h.save(ctx, r, env)
		if err != nil {
			return err
		}
		events = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (h *Handlers) save(ctx context.Context, r *purchaserequest.PurchaseRequest, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	pending := r.UncommittedEvents()
	result, err := h.repo.SaveWithCommand(ctx, r, env.Metadata.CommandID, env.CommandType())
	if err != nil {
		return nil, err
	}
	if result.AlreadyProcessed {
		return result.Events, nil
	}

	h.logger.DebugContext(ctx, "Purchase request saved",
		slog.String("aggregate_id", r.ID()),
		slog.String("status", r.Status().String()),
		slog.Int64("version", r.Version()),
		slog.Int("event_count", len(pending)),
	)
	return pending, nil
}

// replay returns the recorded events of a command that already ran.
func (h *Handlers) replay(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, bool, error) {
	if env.Metadata.CommandID == "" {
		return nil, false, fmt.Errorf("%w: command id is required", domain.ErrInvalidCommand)
	}
	result, err := h.results.GetCommandResult(ctx, env.Metadata.CommandID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check processed command: %w", err)
	}
	if result == nil {
		return nil, false, nil
	}
	target := multitenancy.ComposeAggregateID(env.Metadata.TenantID, env.Command.AggregateID())
	if err := result.SameCommand(target, env.CommandType()); err != nil {
		return nil, false, err
	}
	return result.Events, true, nil
}

func unexpected(want any, got domain.Command) error {
	return fmt.Errorf("%w: expected %T, got %T", domain.ErrInvalidCommand, want, got)
}
