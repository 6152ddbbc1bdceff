package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/purchasing/pkg/domain"
)

// Repository provides persistence operations for aggregates.
type Repository[T domain.Aggregate] interface {
	// Load loads an aggregate by ID from the event store.
	Load(ctx context.Context, id string) (T, error)

	// Save persists an aggregate's uncommitted events to the event store.
	Save(ctx context.Context, aggregate T) error

	// SaveWithCommand persists events with command-level idempotency.
	SaveWithCommand(ctx context.Context, aggregate T, commandID, commandType string) (*domain.CommandResult, error)

	// Exists checks if an aggregate exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// BaseRepository is an event-sourced Repository backed by an EventStore.
type BaseRepository[T domain.Aggregate] struct {
	eventStore    EventStore
	aggregateType string
	factory       func(id string) T
	applier       func(aggregate T, event *domain.Event) error
	commandTTL    time.Duration
}

// NewRepository creates a new repository for the given aggregate type.
// factory creates an empty aggregate and applier folds one event into it.
func NewRepository[T domain.Aggregate](
	eventStore EventStore,
	aggregateType string,
	factory func(id string) T,
	applier func(aggregate T, event *domain.Event) error,
) *BaseRepository[T] {
	return &BaseRepository[T]{
		eventStore:    eventStore,
		aggregateType: aggregateType,
		factory:       factory,
		applier:       applier,
		commandTTL:    domain.DefaultCommandTTL,
	}
}

// WithCommandTTL overrides how long processed commands are remembered.
func (r *BaseRepository[T]) WithCommandTTL(ttl time.Duration) *BaseRepository[T] {
	r.commandTTL = ttl
	return r
}

// Load loads an aggregate by ID from the event store.
func (r *BaseRepository[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T

	events, err := r.eventStore.LoadEvents(ctx, id, 0)
	if err != nil {
		return zero, fmt.Errorf("failed to load events: %w", err)
	}

	if len(events) == 0 {
		return zero, fmt.Errorf("%s %s: %w", r.aggregateType, id, domain.ErrAggregateNotFound)
	}

	aggregate := r.factory(id)
	for _, event := range events {
		if err := r.applier(aggregate, event); err != nil {
			return zero, fmt.Errorf("failed to apply event %s: %w", event.EventType, err)
		}
	}

	if agg, ok := any(aggregate).(interface{ LoadFromHistory([]*domain.Event) error }); ok {
		if err := agg.LoadFromHistory(events); err != nil {
			return zero, fmt.Errorf("failed to load history: %w", err)
		}
	}

	return aggregate, nil
}

// Save persists an aggregate's uncommitted events.
func (r *BaseRepository[T]) Save(ctx context.Context, aggregate T) error {
	uncommitted := aggregate.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	expectedVersion := aggregate.Version() - int64(len(uncommitted))

	if err := r.eventStore.AppendEvents(ctx, aggregate.ID(), expectedVersion, uncommitted); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}

	aggregate.ClearUncommittedEvents()
	return nil
}

// SaveWithCommand persists events with command-level idempotency.
// The result reports whether the command had already been processed.
func (r *BaseRepository[T]) SaveWithCommand(ctx context.Context, aggregate T, commandID, commandType string) (*domain.CommandResult, error) {
	uncommitted := aggregate.UncommittedEvents()
	if len(uncommitted) == 0 {
		return &domain.CommandResult{CommandID: commandID, AggregateID: aggregate.ID(), CommandType: commandType}, nil
	}

	expectedVersion := aggregate.Version() - int64(len(uncommitted))

	result, err := r.eventStore.AppendEventsIdempotent(ctx, aggregate.ID(), expectedVersion, uncommitted, commandID, commandType, r.commandTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to append events: %w", err)
	}

	if !result.AlreadyProcessed {
		aggregate.ClearUncommittedEvents()
	}

	return result, nil
}

// Exists checks if an aggregate exists in the event store.
func (r *BaseRepository[T]) Exists(ctx context.Context, id string) (bool, error) {
	version, err := r.eventStore.GetAggregateVersion(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check aggregate existence: %w", err)
	}
	return version > 0, nil
}

// RetryOnConflict runs fn against a freshly loaded aggregate and retries
// with backoff (10ms, 20ms, 40ms, ...) when fn fails with a concurrency conflict.
func (r *BaseRepository[T]) RetryOnConflict(ctx context.Context, id string, maxRetries int, fn func(T) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var agg T
		agg, err = r.Load(ctx, id)
		if err != nil {
			return err
		}

		err = fn(agg)
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}

		if attempt == maxRetries {
			break
		}

		backoff := time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}
