// Package store defines event persistence contracts and the generic aggregate repository.
package store

import (
	"context"
	"time"

	"github.com/plaenen/purchasing/pkg/domain"
)

// EventStore defines the interface for persisting and retrieving events.
type EventStore interface {
	// AppendEvents appends events to an aggregate's stream atomically.
	// Returns domain.ErrConcurrencyConflict if expectedVersion doesn't match the current version.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) error

	// AppendEventsIdempotent appends events with command-level idempotency.
	// If commandID was already processed, returns the recorded result without appending.
	// A commandID recorded for another aggregate or command type fails with
	// domain.ErrIdempotencyKeyConflict.
	// TTL specifies how long to remember processed commands.
	AppendEventsIdempotent(
		ctx context.Context,
		aggregateID string,
		expectedVersion int64,
		events []*domain.Event,
		commandID string,
		commandType string,
		ttl time.Duration,
	) (*domain.CommandResult, error)

	// GetCommandResult retrieves the result of a previously processed command.
	// Returns nil if the command hasn't been processed or its TTL expired.
	GetCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error)

	// LoadEvents loads all events for an aggregate after afterVersion.
	LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error)

	// LoadAllEvents loads events from all aggregates in append order, starting after fromPosition.
	LoadAllEvents(ctx context.Context, fromPosition int64, limit int) ([]*domain.Event, error)

	// GetAggregateVersion returns the current version of an aggregate.
	// Returns 0 if the aggregate doesn't exist.
	GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error)

	// Close closes the event store and releases resources.
	Close() error
}

// OutboxMessage is an appended event waiting to be published to the event bus.
type OutboxMessage struct {
	ID        string
	Event     *domain.Event
	CreatedAt time.Time
	Attempts  int
}

// Outbox exposes events that were written together with their aggregate
// changes but not yet delivered to the event bus.
type Outbox interface {
	// PendingOutbox returns up to limit unpublished messages, oldest first.
	PendingOutbox(ctx context.Context, limit int) ([]*OutboxMessage, error)

	// MarkPublished flags messages as delivered.
	MarkPublished(ctx context.Context, ids []string) error

	// MarkFailed records a failed delivery attempt.
	MarkFailed(ctx context.Context, id string, reason string) error
}
