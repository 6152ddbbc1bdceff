package nats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/domain"
	natspkg "github.com/plaenen/purchasing/pkg/nats"
)

func newEvent(id, aggregateType, eventType string) *domain.Event {
	return &domain.Event{
		ID:            id,
		AggregateID:   "tenant-a::" + id,
		AggregateType: aggregateType,
		EventType:     eventType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Data:          []byte("payload"),
		Metadata:      domain.EventMetadata{PrincipalID: "test-user", TenantID: "tenant-a"},
	}
}

func TestEmbeddedNATSEventBus(t *testing.T) {
	bus, srv, err := natspkg.NewEmbeddedEventBus()
	if err != nil {
		t.Fatalf("failed to create embedded event bus: %v", err)
	}
	defer srv.Shutdown()
	defer bus.Close()

	require.NoError(t, bus.Ping())

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Event, 1)

		sub, err := bus.Subscribe(domain.EventFilter{
			AggregateTypes: []string{"TestAggregate"},
		}, func(envelope *domain.EventEnvelope) error {
			received <- &envelope.Event
			return nil
		})
		if err != nil {
			t.Fatalf("failed to subscribe: %v", err)
		}
		defer sub.Unsubscribe()

		event := newEvent("test-event-1", "TestAggregate", "TestCreated")
		if err := bus.Publish([]*domain.Event{event}); err != nil {
			t.Fatalf("failed to publish event: %v", err)
		}

		select {
		case evt := <-received:
			assert.Equal(t, "test-event-1", evt.ID)
			assert.Equal(t, event.AggregateID, evt.AggregateID)
			assert.Equal(t, []byte("payload"), evt.Data)
			assert.Equal(t, "tenant-a", evt.Metadata.TenantID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("EventIdempotency", func(t *testing.T) {
		received := make(chan *domain.Event, 10)

		sub, err := bus.Subscribe(domain.EventFilter{
			AggregateTypes: []string{"IdempotentAggregate"},
		}, func(envelope *domain.EventEnvelope) error {
			received <- &envelope.Event
			return nil
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		event := newEvent("idempotent-event-1", "IdempotentAggregate", "TestCreated")
		require.NoError(t, bus.Publish([]*domain.Event{event}))
		require.NoError(t, bus.Publish([]*domain.Event{event}))

		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for first event")
		}

		select {
		case <-received:
			t.Error("received duplicate event (deduplication failed)")
		case <-time.After(500 * time.Millisecond):
		}
	})

	t.Run("EventTypeFilter", func(t *testing.T) {
		received := make(chan *domain.Event, 10)

		sub, err := bus.Subscribe(domain.EventFilter{
			AggregateTypes: []string{"FilteredAggregate"},
			EventTypes:     []string{"Approved", "Rejected"},
		}, func(envelope *domain.EventEnvelope) error {
			received <- &envelope.Event
			return nil
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, bus.Publish([]*domain.Event{
			newEvent("f-1", "FilteredAggregate", "Submitted"),
			newEvent("f-2", "FilteredAggregate", "Approved"),
		}))

		select {
		case evt := <-received:
			assert.Equal(t, "f-2", evt.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for filtered event")
		}

		select {
		case evt := <-received:
			t.Errorf("unexpected event %s", evt.ID)
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		received1 := make(chan *domain.Event, 1)
		received2 := make(chan *domain.Event, 1)

		for _, ch := range []chan *domain.Event{received1, received2} {
			ch := ch
			sub, err := bus.Subscribe(domain.EventFilter{
				AggregateTypes: []string{"MultiSubAggregate"},
			}, func(envelope *domain.EventEnvelope) error {
				ch <- &envelope.Event
				return nil
			})
			require.NoError(t, err)
			defer sub.Unsubscribe()
		}

		require.NoError(t, bus.Publish([]*domain.Event{newEvent("multi-sub-event-1", "MultiSubAggregate", "TestCreated")}))

		timeout := time.After(2 * time.Second)
		receivedCount := 0
		for receivedCount < 2 {
			select {
			case <-received1:
				receivedCount++
			case <-received2:
				receivedCount++
			case <-timeout:
				t.Fatalf("timeout: only received %d/2 events", receivedCount)
			}
		}
	})
}

func TestSubjectTokens(t *testing.T) {
	bus, srv, err := natspkg.NewEmbeddedEventBus()
	require.NoError(t, err)
	defer srv.Shutdown()
	defer bus.Close()

	subject := bus.Subject(newEvent("s-1", "Purchase Request", "purchaserequest.Approved"))
	assert.Equal(t, "purchasing.events.Purchase_Request.purchaserequest_Approved", subject)
}
