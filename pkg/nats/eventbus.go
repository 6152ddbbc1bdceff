// Package nats publishes and consumes domain events over NATS JetStream.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/idgen"
)

// EventBus is a JetStream implementation of domain.EventBus with
// at-least-once delivery. Event IDs are used as message IDs, so a
// republished event inside the duplicate window is stored once.
type EventBus struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
	logger        *slog.Logger
	mu            sync.RWMutex
	subs          map[string]*nats.Subscription
}

// Config holds configuration for the NATS event bus.
type Config struct {
	// URL is the NATS server URL
	URL string

	// StreamName is the JetStream stream name for events
	StreamName string

	// SubjectPrefix is prepended to "<aggregate type>.<event type>"
	SubjectPrefix string

	// MaxAge is how long to retain events in the stream
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store
	MaxBytes int64

	// DuplicateWindow bounds message-ID deduplication
	DuplicateWindow time.Duration

	// MemoryStorage keeps the stream in memory instead of on disk
	MemoryStorage bool

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for NATS event bus.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "PURCHASING_EVENTS",
		SubjectPrefix:   "purchasing.events",
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        1024 * 1024 * 1024,
		DuplicateWindow: 2 * time.Minute,
	}
}

// NewEventBus connects to NATS and makes sure the stream exists.
func NewEventBus(config Config) (*EventBus, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	nc, err := nats.Connect(config.URL, nats.Name("purchasing-eventbus"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &EventBus{
		nc:            nc,
		js:            js,
		streamName:    config.StreamName,
		subjectPrefix: config.SubjectPrefix,
		logger:        config.Logger,
		subs:          make(map[string]*nats.Subscription),
	}

	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return bus, nil
}

// ensureStream creates or updates the JetStream stream.
func (b *EventBus) ensureStream(config Config) error {
	storage := nats.FileStorage
	if config.MemoryStorage {
		storage = nats.MemoryStorage
	}

	streamConfig := &nats.StreamConfig{
		Name:       config.StreamName,
		Subjects:   []string{config.SubjectPrefix + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     config.MaxAge,
		MaxBytes:   config.MaxBytes,
		Duplicates: config.DuplicateWindow,
		Storage:    storage,
		Replicas:   1,
	}

	stream, err := b.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}

	return nil
}

// Publish publishes events in order, stopping at the first failure.
func (b *EventBus) Publish(events []*domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
		}

		if _, err := b.js.Publish(b.Subject(event), data, nats.MsgId(event.ID)); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}
	}

	return nil
}

// Subject returns the subject an event is published on.
func (b *EventBus) Subject(event *domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", b.subjectPrefix, subjectToken(event.AggregateType), subjectToken(event.EventType))
}

// Subscribe delivers every stored and future event matching filter to handler.
// A handler error naks the message for redelivery.
func (b *EventBus) Subscribe(filter domain.EventFilter, handler domain.EventHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	consumerName := "consumer_" + strings.ToLower(idgen.MustGenerateSortableID())

	sub, err := b.js.QueueSubscribe(
		b.buildSubject(filter),
		consumerName,
		func(msg *nats.Msg) {
			var event domain.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				b.logger.Error("dropping undecodable event", "subject", msg.Subject, "error", err)
				_ = msg.Term()
				return
			}

			if !matches(filter, &event) {
				_ = msg.Ack()
				return
			}

			if err := handler(&domain.EventEnvelope{Event: event}); err != nil {
				b.logger.Warn("event handler failed, requesting redelivery",
					"event_id", event.ID, "event_type", event.EventType, "error", err)
				_ = msg.Nak()
				return
			}

			_ = msg.Ack()
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	b.subs[consumerName] = sub

	return &subscription{bus: b, sub: sub, consumerName: consumerName}, nil
}

// buildSubject narrows the subscription subject where a single subject can
// express the filter. Wider filters are narrowed again by matches.
func (b *EventBus) buildSubject(filter domain.EventFilter) string {
	switch {
	case len(filter.AggregateTypes) == 1 && len(filter.EventTypes) == 1:
		return fmt.Sprintf("%s.%s.%s", b.subjectPrefix, subjectToken(filter.AggregateTypes[0]), subjectToken(filter.EventTypes[0]))
	case len(filter.AggregateTypes) == 1:
		return fmt.Sprintf("%s.%s.>", b.subjectPrefix, subjectToken(filter.AggregateTypes[0]))
	default:
		return b.subjectPrefix + ".>"
	}
}

func matches(filter domain.EventFilter, event *domain.Event) bool {
	if len(filter.AggregateTypes) > 0 && !slices.Contains(filter.AggregateTypes, event.AggregateType) {
		return false
	}
	if len(filter.EventTypes) > 0 && !slices.Contains(filter.EventTypes, event.EventType) {
		return false
	}
	return true
}

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// subjectToken makes a value safe to use as a single subject token.
func subjectToken(s string) string {
	return subjectReplacer.Replace(s)
}

// Ping reports whether the connection to the server is up.
func (b *EventBus) Ping() error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats connection is %s", b.nc.Status())
	}
	return nil
}

// Close closes the event bus and all subscriptions.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, sub := range b.subs {
		_ = sub.Unsubscribe()
		delete(b.subs, name)
	}

	b.nc.Close()
	return nil
}

type subscription struct {
	bus          *EventBus
	sub          *nats.Subscription
	consumerName string
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.consumerName)
	return s.sub.Unsubscribe()
}
