package sqlite_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/store/sqlite"
)

func newStore(t *testing.T, opts ...sqlite.EventStoreOption) *sqlite.EventStore {
	t.Helper()
	s, err := sqlite.NewEventStore(append([]sqlite.EventStoreOption{sqlite.WithMemoryDatabase()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id, aggregateID string, version int64) *domain.Event {
	return &domain.Event{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: "TestAggregate",
		EventType:     "test.Created",
		Version:       version,
		Timestamp:     domain.Now(),
		Data:          []byte("test data"),
		Metadata: domain.EventMetadata{
			PrincipalID: "test-user",
			TenantID:    "tenant-a",
		},
	}
}

func TestEventStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	t.Run("AppendAndLoadEvents", func(t *testing.T) {
		aggregateID := "tenant-a::agg-1"
		err := store.AppendEvents(ctx, aggregateID, 0, []*domain.Event{
			testEvent("event-1", aggregateID, 1),
			testEvent("event-2", aggregateID, 2),
		})
		if err != nil {
			t.Fatalf("failed to append events: %v", err)
		}

		loaded, err := store.LoadEvents(ctx, aggregateID, 0)
		if err != nil {
			t.Fatalf("failed to load events: %v", err)
		}
		if len(loaded) != 2 {
			t.Fatalf("expected 2 events, got %d", len(loaded))
		}
		if loaded[0].ID != "event-1" || loaded[1].ID != "event-2" {
			t.Errorf("unexpected event order: %s, %s", loaded[0].ID, loaded[1].ID)
		}
		if loaded[0].Metadata.TenantID != "tenant-a" {
			t.Errorf("expected metadata to round-trip, got %+v", loaded[0].Metadata)
		}
		if !loaded[0].Timestamp.Equal(domain.Now()) {
			t.Errorf("expected timestamp %v, got %v", domain.Now(), loaded[0].Timestamp)
		}

		after, err := store.LoadEvents(ctx, aggregateID, 1)
		require.NoError(t, err)
		assert.Len(t, after, 1)

		version, err := store.GetAggregateVersion(ctx, aggregateID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
	})

	t.Run("ConcurrencyConflict", func(t *testing.T) {
		aggregateID := "tenant-a::agg-2"
		require.NoError(t, store.AppendEvents(ctx, aggregateID, 0, []*domain.Event{testEvent("event-3", aggregateID, 1)}))

		err := store.AppendEvents(ctx, aggregateID, 0, []*domain.Event{testEvent("event-4", aggregateID, 2)})
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Errorf("expected concurrency conflict, got %v", err)
		}
	})

	t.Run("Idempotency", func(t *testing.T) {
		aggregateID := "tenant-a::agg-3"
		commandID := "test-command-1"
		events := []*domain.Event{
			testEvent(domain.GenerateDeterministicEventID(commandID, aggregateID, 0), aggregateID, 1),
		}

		result1, err := store.AppendEventsIdempotent(ctx, aggregateID, 0, events, commandID, "test.Command", 24*time.Hour)
		require.NoError(t, err)
		assert.False(t, result1.AlreadyProcessed)

		// The stale expected version is ignored because the command is recognised first.
		result2, err := store.AppendEventsIdempotent(ctx, aggregateID, 0, events, commandID, "test.Command", 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, result2.AlreadyProcessed)
		require.Len(t, result2.Events, 1)
		assert.Equal(t, events[0].ID, result2.Events[0].ID)

		loaded, err := store.LoadEvents(ctx, aggregateID, 0)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)

		recorded, err := store.GetCommandResult(ctx, commandID)
		require.NoError(t, err)
		require.NotNil(t, recorded)
		assert.True(t, recorded.AlreadyProcessed)
		assert.Equal(t, aggregateID, recorded.AggregateID)
		assert.Equal(t, "test.Command", recorded.CommandType)

		missing, err := store.GetCommandResult(ctx, "never-seen")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ReusedCommandIDConflicts", func(t *testing.T) {
		aggregateID := "tenant-a::agg-5"
		commandID := "shared-command"
		_, err := store.AppendEventsIdempotent(ctx, aggregateID, 0,
			[]*domain.Event{testEvent("event-11", aggregateID, 1)}, commandID, "test.Command", time.Hour)
		require.NoError(t, err)

		other := "tenant-a::agg-6"
		_, err = store.AppendEventsIdempotent(ctx, other, 0,
			[]*domain.Event{testEvent("event-12", other, 1)}, commandID, "test.Command", time.Hour)
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)

		_, err = store.AppendEventsIdempotent(ctx, aggregateID, 1,
			[]*domain.Event{testEvent("event-13", aggregateID, 2)}, commandID, "test.Other", time.Hour)
		var conflict *domain.IdempotencyConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "test.Command", conflict.RecordedCommandType)
		assert.Equal(t, domain.CodeIdempotencyKeyConflict, domain.ErrorCode(err))

		version, err := store.GetAggregateVersion(ctx, other)
		require.NoError(t, err)
		assert.Zero(t, version)
	})

	t.Run("IdempotentRequiresCommandID", func(t *testing.T) {
		_, err := store.AppendEventsIdempotent(ctx, "tenant-a::agg-9", 0, []*domain.Event{testEvent("event-9", "tenant-a::agg-9", 1)}, "", "test.Command", time.Hour)
		assert.ErrorIs(t, err, domain.ErrInvalidCommand)
	})

	t.Run("ExpiredCommandsAreForgotten", func(t *testing.T) {
		aggregateID := "tenant-a::agg-4"
		commandID := "short-lived"
		_, err := store.AppendEventsIdempotent(ctx, aggregateID, 0, []*domain.Event{testEvent("event-10", aggregateID, 1)}, commandID, "test.Command", -time.Second)
		require.NoError(t, err)

		result, err := store.GetCommandResult(ctx, commandID)
		require.NoError(t, err)
		assert.Nil(t, result)

		removed, err := store.CleanExpiredCommands(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))
	})

	t.Run("LoadAllEvents", func(t *testing.T) {
		all, err := store.LoadAllEvents(ctx, 0, 100)
		require.NoError(t, err)
		require.NotEmpty(t, all)
		assert.Equal(t, "event-1", all[0].ID)

		limited, err := store.LoadAllEvents(ctx, 0, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestConcurrentAppendsConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	aggregateID := "tenant-a::race"
	require.NoError(t, store.AppendEvents(ctx, aggregateID, 0, []*domain.Event{testEvent("race-0", aggregateID, 1)}))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.GenerateDeterministicEventID("racer", aggregateID, i)
			errs[i] = store.AppendEvents(ctx, aggregateID, 1, []*domain.Event{testEvent(id, aggregateID, 2)})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	}
	assert.Equal(t, 1, succeeded, "exactly one writer wins")
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	aggregateID := "tenant-a::outbox"
	require.NoError(t, store.AppendEvents(ctx, aggregateID, 0, []*domain.Event{
		testEvent("ob-1", aggregateID, 1),
		testEvent("ob-2", aggregateID, 2),
	}))

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "ob-1", pending[0].Event.ID)
	assert.Equal(t, "ob-2", pending[1].Event.ID)

	require.NoError(t, store.MarkFailed(ctx, pending[1].ID, "bus unavailable"))
	require.NoError(t, store.MarkPublished(ctx, []string{pending[0].ID}))

	pending, err = store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ob-2", pending[0].Event.ID)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, store.MarkPublished(ctx, []string{pending[0].ID}))
	pending, err = store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxDisabled(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, sqlite.WithOutbox(false))

	require.NoError(t, store.AppendEvents(ctx, "agg", 0, []*domain.Event{testEvent("no-ob", "agg", 1)}))
	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationStatus(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	statuses, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d should be applied", s.Version)
	}

	applied, err := store.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestMain(m *testing.M) {
	domain.TimeFunc = func() time.Time {
		return time.Unix(1234567890, 0)
	}

	code := m.Run()

	domain.TimeFunc = time.Now
	os.Exit(code)
}
