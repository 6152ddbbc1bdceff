package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/domain"
	natspkg "github.com/plaenen/purchasing/pkg/nats"
	"github.com/plaenen/purchasing/pkg/outbox"
	"github.com/plaenen/purchasing/pkg/store/sqlite"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failOn    string
}

func (p *fakePublisher) Publish(events []*domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		if e.ID == p.failOn {
			return errors.New("bus unavailable")
		}
		p.published = append(p.published, e.ID)
	}
	return nil
}

func (p *fakePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func seed(t *testing.T, store *sqlite.EventStore, aggregateID string, n int) []string {
	t.Helper()
	events := make([]*domain.Event, n)
	ids := make([]string, n)
	for i := range events {
		ids[i] = fmt.Sprintf("%s-e%d", aggregateID, i+1)
		events[i] = &domain.Event{
			ID:            ids[i],
			AggregateID:   aggregateID,
			AggregateType: "PurchaseRequest",
			EventType:     "PurchaseRequestCreated",
			Version:       int64(i + 1),
			Timestamp:     domain.Now(),
			Data:          []byte("{}"),
		}
	}
	require.NoError(t, store.AppendEvents(context.Background(), aggregateID, 0, events))
	return ids
}

func newStore(t *testing.T) *sqlite.EventStore {
	t.Helper()
	store, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRelayFlush(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ids := seed(t, store, "t::req-1", 3)

	pub := &fakePublisher{}
	relay := outbox.NewRelay(store, pub, outbox.WithBatchSize(2))

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, ids, pub.ids())
}

func TestRelayStopsBatchAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ids := seed(t, store, "t::req-2", 3)

	pub := &fakePublisher{failOn: ids[1]}
	relay := outbox.NewRelay(store, pub)

	n, err := relay.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, ids[:1], pub.ids())

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].Event.ID)
	assert.Equal(t, 1, pending[0].Attempts)

	pub.failOn = ""
	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, ids, pub.ids())
}

func TestRelayLoop(t *testing.T) {
	store := newStore(t)
	ids := seed(t, store, "t::req-3", 5)

	pub := &fakePublisher{}
	relay := outbox.NewRelay(store, pub, outbox.WithInterval(10*time.Millisecond), outbox.WithBatchSize(2))

	require.NoError(t, relay.Start(context.Background()))
	require.Error(t, relay.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return len(pub.ids()) == len(ids) }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, relay.Stop(stopCtx))
	require.NoError(t, relay.Stop(stopCtx), "stop is idempotent")

	assert.Equal(t, ids, pub.ids())
}

func TestRelayToNATS(t *testing.T) {
	ctx := context.Background()
	bus, srv, err := natspkg.NewEmbeddedEventBus()
	require.NoError(t, err)
	defer srv.Shutdown()
	defer bus.Close()

	received := make(chan string, 10)
	sub, err := bus.Subscribe(domain.EventFilter{AggregateTypes: []string{"PurchaseRequest"}}, func(env *domain.EventEnvelope) error {
		received <- env.ID
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	store := newStore(t)
	ids := seed(t, store, "t::req-4", 2)

	relay := outbox.NewRelay(store, bus)
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case id := <-received:
			got = append(got, id)
		case <-timeout:
			t.Fatalf("received %d/2 events", len(got))
		}
	}
	assert.ElementsMatch(t, ids, got)
}
