package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/observability"
)

// ErrNotStarted is returned by Service methods called before Start.
var ErrNotStarted = errors.New("event bus service not started")

// Service runs the event bus, and optionally an embedded server, as a
// runner.Service. It publishes through the bus once started, so it can be
// handed to the outbox relay before the connection exists.
type Service struct {
	config   Config
	embedded *EmbeddedOptions
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.RWMutex
	server *EmbeddedServer
	bus    *EventBus
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEmbeddedServer starts an in-process server on Start. Config.URL is
// replaced by the server URL.
func WithEmbeddedServer(opts EmbeddedOptions) ServiceOption {
	return func(s *Service) { s.embedded = &opts }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithServiceTracer traces Start, Stop and health checks.
func WithServiceTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// NewService creates the service. Nothing connects until Start.
func NewService(config Config, opts ...ServiceOption) *Service {
	s := &Service{
		config: config,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("eventbus"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.Logger == nil {
		s.config.Logger = s.logger
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string { return "eventbus" }

// Start starts the embedded server when configured and connects the bus.
func (s *Service) Start(ctx context.Context) (err error) {
	_, span := observability.StartSpan(ctx, s.tracer, "eventbus.Start",
		attribute.String("stream.name", s.config.StreamName),
		attribute.Bool("nats.embedded", s.embedded != nil),
	)
	defer func() { observability.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	config := s.config
	if s.embedded != nil {
		srv, err := StartEmbeddedServer(*s.embedded)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		s.server = srv
		config.URL = srv.URL()
	}

	bus, err := NewEventBus(config)
	if err != nil {
		if s.server != nil {
			s.server.Shutdown()
			s.server = nil
		}
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = bus

	span.SetAttributes(attribute.String("nats.url", config.URL))
	s.logger.InfoContext(ctx, "Event bus started",
		slog.String("url", config.URL),
		slog.String("stream", config.StreamName))
	return nil
}

// Stop closes the bus first, then the embedded server.
func (s *Service) Stop(ctx context.Context) (err error) {
	_, span := observability.StartSpan(ctx, s.tracer, "eventbus.Stop")
	defer func() { observability.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		err = s.bus.Close()
		s.bus = nil
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	s.logger.InfoContext(ctx, "Event bus stopped")
	return err
}

// HealthCheck implements runner.HealthChecker.
func (s *Service) HealthCheck(ctx context.Context) (err error) {
	_, span := observability.StartSpan(ctx, s.tracer, "eventbus.HealthCheck")
	defer func() { observability.EndSpan(span, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bus == nil {
		return ErrNotStarted
	}
	return s.bus.Ping()
}

// Publish implements outbox.Publisher.
func (s *Service) Publish(events []*domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bus == nil {
		return ErrNotStarted
	}
	return s.bus.Publish(events)
}

// Subscribe forwards to the running bus.
func (s *Service) Subscribe(filter domain.EventFilter, handler domain.EventHandler) (domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bus == nil {
		return nil, ErrNotStarted
	}
	return s.bus.Subscribe(filter, handler)
}
