package nats_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/domain"
	natspkg "github.com/plaenen/purchasing/pkg/nats"
)

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	config := natspkg.DefaultConfig()
	config.MemoryStorage = true
	config.MaxBytes = 10 * 1024 * 1024
	svc := natspkg.NewService(config, natspkg.WithEmbeddedServer(natspkg.EmbeddedOptions{}))

	assert.ErrorIs(t, svc.Publish([]*domain.Event{newEvent("early", "PurchaseRequest", "Created")}), natspkg.ErrNotStarted)
	assert.ErrorIs(t, svc.HealthCheck(ctx), natspkg.ErrNotStarted)

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.HealthCheck(ctx))

	received := make(chan string, 1)
	sub, err := svc.Subscribe(domain.EventFilter{AggregateTypes: []string{"PurchaseRequest"}}, func(env *domain.EventEnvelope) error {
		received <- env.Event.ID
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, svc.Publish([]*domain.Event{newEvent("svc-event-1", "PurchaseRequest", "Created")}))
	select {
	case id := <-received:
		assert.Equal(t, "svc-event-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, svc.Stop(ctx))
	assert.ErrorIs(t, svc.HealthCheck(ctx), natspkg.ErrNotStarted)
}
