package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/plaenen/purchasing/pkg/domain"
)

// Metrics holds all metric instruments for the purchasing service
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	// Event store metrics
	EventsAppended    metric.Int64Counter
	EventStoreLatency metric.Float64Histogram

	// Outbox metrics
	OutboxPublished metric.Int64Counter
	OutboxFailures  metric.Int64Counter

	// Boundary metrics
	BoundaryDenials metric.Int64Counter
}

// NewMetrics creates all metric instruments
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"purchasing.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"purchasing.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"purchasing.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"purchasing.events.appended",
		metric.WithDescription("Total events appended to event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventStoreLatency, err = meter.Float64Histogram(
		"purchasing.eventstore.latency",
		metric.WithDescription("Event store operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.latency: %w", err)
	}

	m.OutboxPublished, err = meter.Int64Counter(
		"purchasing.outbox.published",
		metric.WithDescription("Outbox messages delivered to the event bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.published: %w", err)
	}

	m.OutboxFailures, err = meter.Int64Counter(
		"purchasing.outbox.failures",
		metric.WithDescription("Outbox delivery attempts that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.failures: %w", err)
	}

	m.BoundaryDenials, err = meter.Int64Counter(
		"purchasing.boundary.denials",
		metric.WithDescription("Actions denied by the approval boundary, by reason code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundary.denials: %w", err)
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	if err != nil {
		panic(err)
	}
	return m
}

// RecordCommand records command execution metrics
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		AttrCommandType.String(commandType),
	}

	m.CommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.CommandTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil {
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, AttrErrorType.String(errorKind(err)))...))
	}
}

// RecordEventStoreOperation records event store operation metrics
func (m *Metrics) RecordEventStoreOperation(ctx context.Context, operation string, duration time.Duration, eventCount int) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	m.EventStoreLatency.Record(ctx, duration.Seconds(), attrs)

	if operation == "append" {
		m.EventsAppended.Add(ctx, int64(eventCount), attrs)
	}
}

// RecordOutboxDelivery records the outcome of one relay batch.
func (m *Metrics) RecordOutboxDelivery(ctx context.Context, published, failed int) {
	if published > 0 {
		m.OutboxPublished.Add(ctx, int64(published))
	}
	if failed > 0 {
		m.OutboxFailures.Add(ctx, int64(failed))
	}
}

// RecordBoundaryDenial counts a denied action by its reason code.
func (m *Metrics) RecordBoundaryDenial(ctx context.Context, action, code string) {
	m.BoundaryDenials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		AttrErrorCode.String(code),
	))
}

// errorKind keeps the error attribute low-cardinality.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, domain.ErrAggregateNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, domain.ErrCommandNotFound):
		return "no_handler"
	default:
		return fmt.Sprintf("%T", err)
	}
}
