package features

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/middleware"
	"github.com/plaenen/purchasing/pkg/multitenancy"
	"github.com/plaenen/purchasing/pkg/observability"
	"github.com/plaenen/purchasing/pkg/store"
)

// PipelineConfig holds what the command pipeline is assembled from.
type PipelineConfig struct {
	Store      store.EventStore
	Repository *purchaserequest.Repository
	Policy     purchaserequest.FlowPolicy
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
}

// NewCommandBus assembles the purchase request command bus. Middleware runs
// outermost first: recovery, logging, tracing, metrics, metadata checks,
// tenant scoping, validation, idempotent replay, authorization.
func NewCommandBus(cfg PipelineConfig) *cqrs.DefaultCommandBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("purchasing")
	}
	if cfg.Repository == nil {
		cfg.Repository = purchaserequest.NewRepository(cfg.Store, 0)
	}

	bus := cqrs.NewCommandBus()
	bus.Use(middleware.RecoveryMiddleware(cfg.Logger))
	bus.Use(middleware.LoggingMiddleware(cfg.Logger))
	bus.Use(middleware.OpenTelemetryMiddlewareWithTracer(cfg.Tracer))
	bus.Use(observability.MetricsMiddleware(cfg.Metrics))
	bus.Use(middleware.MetadataValidationMiddleware())
	bus.Use(multitenancy.TenantExtractionMiddleware())
	bus.Use(multitenancy.TenantIsolationMiddleware())
	bus.Use(middleware.ValidationMiddleware(middleware.SelfValidator{}))
	bus.Use(middleware.IdempotencyMiddleware(cfg.Store, cfg.Logger))
	bus.Use(middleware.AuthorizationMiddleware(NewBoundaryAuthorizer(cfg.Repository,
		WithAuthorizerMetrics(cfg.Metrics),
		WithAuthorizerLogger(cfg.Logger),
	)))

	NewHandlers(cfg.Store, cfg.Repository, cfg.Policy, WithHandlerLogger(cfg.Logger)).Register(bus)
	return bus
}
