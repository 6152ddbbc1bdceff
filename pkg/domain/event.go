package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
)

// Event represents a domain event that has occurred in the system.
// Events are immutable facts about state changes.
type Event struct {
	// ID is the unique identifier for this event (deterministic per command)
	ID string

	// AggregateID is the identifier of the aggregate this event belongs to
	AggregateID string

	// AggregateType is the type name of the aggregate (e.g., "PurchaseRequest")
	AggregateType string

	// EventType is the type name of the event (e.g., "purchaserequest.Submitted")
	EventType string

	// Version is the version number of the aggregate after applying this event
	Version int64

	// Timestamp is when the event was created
	Timestamp time.Time

	// Data is the serialized protobuf payload of the event
	Data []byte

	// Metadata contains additional contextual information
	Metadata EventMetadata
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	// CausationID is the ID of the command that caused this event
	CausationID string

	// CorrelationID is used to trace related events across aggregates
	CorrelationID string

	// PrincipalID is the identifier of the user or service that triggered this event
	PrincipalID string

	// TenantID is the identifier of the tenant this event belongs to
	TenantID string

	// Custom allows for application-specific metadata
	Custom map[string]string
}

// EventEnvelope wraps an event with its deserialized payload.
type EventEnvelope struct {
	Event
	Payload proto.Message
}

// EventFilter defines criteria for filtering events on an event bus.
type EventFilter struct {
	// AggregateTypes filters by aggregate type (empty = all types)
	AggregateTypes []string

	// EventTypes filters by event type (empty = all types)
	EventTypes []string
}

// EventHandler processes an event received from an event bus.
type EventHandler func(event *EventEnvelope) error

// Subscription represents an active event subscription.
type Subscription interface {
	Unsubscribe() error
}

// EventBus publishes and subscribes to events.
type EventBus interface {
	Publish(events []*Event) error
	Subscribe(filter EventFilter, handler EventHandler) (Subscription, error)
	Close() error
}

// MetadataFromCommand derives event metadata from the metadata of the command that caused it.
func MetadataFromCommand(cmd CommandMetadata) EventMetadata {
	return EventMetadata{
		CausationID:   cmd.CommandID,
		CorrelationID: cmd.CorrelationID,
		PrincipalID:   cmd.PrincipalID,
		TenantID:      cmd.TenantID,
	}
}

// GenerateDeterministicEventID generates an event ID from command context.
// The same command always produces the same event IDs.
func GenerateDeterministicEventID(commandID, aggregateID string, sequence int) string {
	h := sha256.New()
	h.Write([]byte(fmt.Sprintf("%s:%s:%d", commandID, aggregateID, sequence)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// DefaultCommandTTL is the default time to remember processed commands.
const DefaultCommandTTL = 7 * 24 * time.Hour
