// Package outbox relays events stored in the transactional outbox to an event bus.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/observability"
	"github.com/plaenen/purchasing/pkg/store"
)

// Publisher delivers events downstream. domain.EventBus satisfies it.
type Publisher interface {
	Publish(events []*domain.Event) error
}

// Relay polls the outbox and publishes pending messages in append order.
// A failed message stops the batch so later events never overtake it.
type Relay struct {
	outbox    store.Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer

	mu     sync.Mutex // serializes Flush
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithInterval sets the polling interval. Default is one second.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize sets how many messages one Flush reads. Default is 100.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithMetrics records delivery counts.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Relay) { r.metrics = metrics }
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Relay) { r.tracer = tracer }
}

// NewRelay creates a relay. It does nothing until Start or Flush is called.
func NewRelay(outbox store.Outbox, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics(),
		tracer:    otel.Tracer("github.com/plaenen/purchasing/pkg/outbox"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements runner.Service.
func (r *Relay) Name() string {
	return "outbox-relay"
}

// Start launches the polling loop and returns immediately.
func (r *Relay) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("outbox relay already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(ctx, r.done)
	return nil
}

// Stop ends the polling loop and waits for an in-flight batch to finish.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while full batches keep coming.
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Warn("outbox flush failed", "error", err)
					}
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// Flush publishes one batch of pending messages synchronously and returns
// how many were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, r.tracer, "outbox.flush")

	pending, err := r.outbox.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		err = fmt.Errorf("failed to read outbox: %w", err)
		observability.EndSpan(span, err)
		return 0, err
	}

	published := make([]string, 0, len(pending))
	var publishErr error
	for _, msg := range pending {
		if err := r.publisher.Publish([]*domain.Event{msg.Event}); err != nil {
			publishErr = fmt.Errorf("failed to publish event %s: %w", msg.Event.ID, err)
			if markErr := r.outbox.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				publishErr = errors.Join(publishErr, markErr)
			}
			break
		}
		published = append(published, msg.ID)
	}

	if err := r.outbox.MarkPublished(ctx, published); err != nil {
		err = errors.Join(publishErr, fmt.Errorf("failed to mark outbox published: %w", err))
		observability.EndSpan(span, err)
		return 0, err
	}

	failed := 0
	if publishErr != nil {
		failed = 1
	}
	r.metrics.RecordOutboxDelivery(ctx, len(published), failed)

	if len(published) > 0 {
		r.logger.DebugContext(ctx, "outbox messages published", "count", len(published))
	}

	span.SetAttributes(observability.AttrEventCount.Int(len(published)))
	observability.EndSpan(span, publishErr)
	return len(published), publishErr
}
