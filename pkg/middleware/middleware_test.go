package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/middleware"
)

type testCommand struct {
	id      string
	invalid bool
}

func (c testCommand) ID() string          { return c.id }
func (c testCommand) AggregateID() string { return "agg-1" }
func (c testCommand) CommandType() string { return "test.Command" }

func (c testCommand) Validate() error {
	if c.invalid {
		return errors.New("title is required")
	}
	return nil
}

func envelope(id string) *domain.CommandEnvelope {
	return domain.NewCommandEnvelope(testCommand{id: id}, domain.CommandMetadata{PrincipalID: "user-1", TenantID: "tenant-a"})
}

func handlerReturning(events []*domain.Event, err error, calls *int) cqrs.CommandHandler {
	return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
		if calls != nil {
			*calls++
		}
		return events, err
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := middleware.LoggingMiddleware(logger)(handlerReturning([]*domain.Event{{ID: "e1"}}, nil, nil))
	events, err := h.Handle(context.Background(), envelope("cmd-1"))

	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Contains(t, buf.String(), "Executing command")
	assert.Contains(t, buf.String(), "Command executed successfully")
	assert.Contains(t, buf.String(), `"command_id":"cmd-1"`)

	buf.Reset()
	h = middleware.LoggingMiddleware(logger)(handlerReturning(nil, errors.New("boom"), nil))
	_, err = h.Handle(context.Background(), envelope("cmd-2"))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Command execution failed")

	buf.Reset()
	h = middleware.LoggingMiddleware(logger)(handlerReturning(nil, fmt.Errorf("wrapped: %w", codedError{"NOT_ASSIGNED_APPROVER"}), nil))
	_, err = h.Handle(context.Background(), envelope("cmd-3"))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Command rejected")
	assert.Contains(t, buf.String(), `"error_code":"NOT_ASSIGNED_APPROVER"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

type codedError struct{ code string }

func (e codedError) Error() string     { return "rejected: " + e.code }
func (e codedError) ErrorCode() string { return e.code }

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	panicking := cqrs.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
		panic("unexpected")
	})

	events, err := middleware.RecoveryMiddleware(logger)(panicking).Handle(context.Background(), envelope("cmd-1"))
	require.Error(t, err)
	assert.Nil(t, events)
	assert.ErrorIs(t, err, domain.ErrHandlerPanicked)
	assert.Contains(t, err.Error(), "unexpected")
	assert.Contains(t, buf.String(), "stack_trace")
}

func TestValidationMiddleware(t *testing.T) {
	calls := 0
	h := middleware.ValidationMiddleware(middleware.SelfValidator{})(handlerReturning(nil, nil, &calls))

	_, err := h.Handle(context.Background(), domain.NewCommandEnvelope(testCommand{id: "cmd-1", invalid: true}, domain.CommandMetadata{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")
	assert.Equal(t, 0, calls)

	_, err = h.Handle(context.Background(), envelope("cmd-2"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMetadataValidationMiddleware(t *testing.T) {
	h := middleware.MetadataValidationMiddleware()(handlerReturning(nil, nil, nil))

	_, err := h.Handle(context.Background(), &domain.CommandEnvelope{Command: testCommand{}, Metadata: domain.CommandMetadata{PrincipalID: "user-1"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	_, err = h.Handle(context.Background(), &domain.CommandEnvelope{Command: testCommand{id: "cmd-1"}, Metadata: domain.CommandMetadata{CommandID: "cmd-1"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	_, err = h.Handle(context.Background(), envelope("cmd-1"))
	assert.NoError(t, err)
}

type denial struct{ code string }

func (d *denial) Error() string { return d.code }

func TestAuthorizationMiddleware(t *testing.T) {
	authorizer := middleware.AuthorizerFunc(func(ctx context.Context, principalID string, cmd domain.Command) error {
		if principalID != "user-1" {
			return &denial{code: "NOT_ASSIGNED_APPROVER"}
		}
		return nil
	})

	calls := 0
	h := middleware.AuthorizationMiddleware(authorizer)(handlerReturning(nil, nil, &calls))

	_, err := h.Handle(context.Background(), envelope("cmd-1"))
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), domain.NewCommandEnvelope(testCommand{id: "cmd-2"}, domain.CommandMetadata{PrincipalID: "user-2"}))
	var d *denial
	require.ErrorAs(t, err, &d)
	assert.Equal(t, "NOT_ASSIGNED_APPROVER", d.code)
	assert.Equal(t, 1, calls)
}

type memoryResults map[string]*domain.CommandResult

func (m memoryResults) GetCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error) {
	return m[commandID], nil
}

func TestIdempotencyMiddleware(t *testing.T) {
	results := memoryResults{
		"cmd-done": {CommandID: "cmd-done", AggregateID: "tenant-a::agg-1", CommandType: "test.Command",
			Events: []*domain.Event{{ID: "recorded"}}, AlreadyProcessed: true, ProcessedAt: time.Now()},
		"cmd-elsewhere": {CommandID: "cmd-elsewhere", AggregateID: "tenant-a::agg-2", CommandType: "test.Command",
			Events: []*domain.Event{{ID: "other"}}, AlreadyProcessed: true, ProcessedAt: time.Now()},
		"cmd-other-type": {CommandID: "cmd-other-type", AggregateID: "tenant-a::agg-1", CommandType: "test.Other",
			Events: []*domain.Event{{ID: "other"}}, AlreadyProcessed: true, ProcessedAt: time.Now()},
	}

	calls := 0
	h := middleware.IdempotencyMiddleware(results, nil)(handlerReturning([]*domain.Event{{ID: "fresh"}}, nil, &calls))

	events, err := h.Handle(context.Background(), envelope("cmd-done"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "recorded", events[0].ID)
	assert.Equal(t, 0, calls)

	events, err = h.Handle(context.Background(), envelope("cmd-new"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", events[0].ID)
	assert.Equal(t, 1, calls)

	for _, id := range []string{"cmd-elsewhere", "cmd-other-type"} {
		events, err = h.Handle(context.Background(), envelope(id))
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict, id)
		assert.Nil(t, events)
	}
	assert.Equal(t, 1, calls)
}

func TestOpenTelemetryMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	h := middleware.OpenTelemetryMiddlewareWithTracer(tracer)(handlerReturning([]*domain.Event{{ID: "e1", EventType: "test.Created"}}, nil, nil))
	_, err := h.Handle(context.Background(), envelope("cmd-1"))
	require.NoError(t, err)

	h = middleware.OpenTelemetryMiddlewareWithTracer(tracer)(handlerReturning(nil, errors.New("boom"), nil))
	_, err = h.Handle(context.Background(), envelope("cmd-2"))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "command.test.Command", spans[0].Name())
	assert.Equal(t, "Ok", spans[0].Status().Code.String())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
