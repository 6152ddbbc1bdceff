package observability_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/observability"
)

type pingCommand struct{ id string }

func (c pingCommand) ID() string          { return c.id }
func (c pingCommand) AggregateID() string { return "agg" }
func (c pingCommand) CommandType() string { return "Ping" }

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsMiddleware(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:  "purchasing-test",
		MetricReader: reader,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	bus := cqrs.NewCommandBus()
	bus.Use(observability.MetricsMiddleware(tel.Metrics))
	bus.Register("Ping", cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
		if cmd.Metadata.CommandID == "fail" {
			return nil, fmt.Errorf("ping: %w", domain.ErrConcurrencyConflict)
		}
		return nil, nil
	}))

	_, err = bus.Send(ctx, domain.NewCommandEnvelope(pingCommand{id: "ok"}, domain.CommandMetadata{}))
	require.NoError(t, err)
	_, err = bus.Send(ctx, domain.NewCommandEnvelope(pingCommand{id: "fail"}, domain.CommandMetadata{}))
	require.Error(t, err)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["purchasing.command.total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["purchasing.command.errors"]))

	errs := metrics["purchasing.command.errors"].Data.(metricdata.Sum[int64])
	kind, ok := errs.DataPoints[0].Attributes.Value(observability.AttrErrorType)
	require.True(t, ok)
	assert.Equal(t, "concurrency_conflict", kind.AsString())
}

func TestMetricsRecorders(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	metrics, err := observability.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	metrics.RecordEventStoreOperation(ctx, "append", 0, 3)
	metrics.RecordEventStoreOperation(ctx, "load", 0, 7)
	metrics.RecordOutboxDelivery(ctx, 4, 1)
	metrics.RecordBoundaryDenial(ctx, "approve", "NOT_ASSIGNED_APPROVER")

	collected := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, collected["purchasing.events.appended"]))
	assert.Equal(t, int64(4), sumOf(t, collected["purchasing.outbox.published"]))
	assert.Equal(t, int64(1), sumOf(t, collected["purchasing.outbox.failures"]))
	assert.Equal(t, int64(1), sumOf(t, collected["purchasing.boundary.denials"]))
}

func TestInitWithoutExporters(t *testing.T) {
	ctx := context.Background()
	tel, err := observability.Init(ctx, observability.Config{ServiceName: "noop"})
	require.NoError(t, err)
	require.NotNil(t, tel.Metrics)

	tel.Metrics.RecordCommand(ctx, "Ping", 0, errors.New("ignored"))
	_, span := tel.Tracer("test").Start(ctx, "noop")
	span.End()
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestSQLiteSpanExporter(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	exporter, err := observability.NewSQLiteSpanExporter(ctx, db, 0)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })
	tracer := tp.Tracer("test")

	parentCtx, parent := observability.StartSpan(ctx, tracer, "http.request", attribute.String("route", "/purchase-requests"))
	_, child := observability.StartSpan(parentCtx, tracer, "command.ApprovePurchaseRequest")
	observability.EndSpan(child, errors.New("denied"))
	observability.EndSpan(parent, nil)

	traceID := observability.TraceID(parentCtx)
	require.NotEmpty(t, traceID)

	spans, err := exporter.Trace(ctx, traceID)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	byName := map[string]observability.StoredSpan{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	assert.Equal(t, "/purchase-requests", byName["http.request"].Attributes["route"])
	assert.Equal(t, byName["http.request"].SpanID, byName["command.ApprovePurchaseRequest"].ParentSpanID)
	assert.Equal(t, "denied", byName["command.ApprovePurchaseRequest"].Status)
}
