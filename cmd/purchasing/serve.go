package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/internal/purchaserequest/features"
	"github.com/plaenen/purchasing/internal/purchaserequest/httpapi"
	"github.com/plaenen/purchasing/internal/purchaserequest/queries"
	"github.com/plaenen/purchasing/pkg/config"
	natsbus "github.com/plaenen/purchasing/pkg/nats"
	"github.com/plaenen/purchasing/pkg/observability"
	"github.com/plaenen/purchasing/pkg/outbox"
	"github.com/plaenen/purchasing/pkg/runner"
	"github.com/plaenen/purchasing/pkg/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the outbox relay and the event bus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := observability.NewLogger(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := ensureDir(cfg.Database.Path); err != nil {
		return err
	}

	var exporter sdktrace.SpanExporter
	if cfg.Telemetry.StoreSpans {
		spanDB, err := sql.Open("sqlite", cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open span database: %w", err)
		}
		defer spanDB.Close()
		spans, err := observability.NewSQLiteSpanExporter(ctx, spanDB, cfg.Telemetry.SpanRetention)
		if err != nil {
			return err
		}
		exporter = spans
	}
	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:     cfg.Service.Name,
		ServiceVersion:  version,
		Environment:     cfg.Service.Environment,
		TraceExporter:   exporter,
		TraceSampleRate: cfg.Telemetry.TraceSampleRate,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	es, err := sqlite.NewEventStore(
		sqlite.WithDSN(cfg.Database.Path),
		sqlite.WithWALMode(cfg.Database.WALMode),
		sqlite.WithOutbox(cfg.Outbox.Enabled),
		sqlite.WithLogger(logger),
		sqlite.WithMetrics(tel.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer es.Close()

	policy, err := purchaserequest.PolicyFromConfig(cfg.Approval)
	if err != nil {
		return err
	}
	repo := purchaserequest.NewRepository(es, cfg.Database.CommandTTL)
	bus := features.NewCommandBus(features.PipelineConfig{
		Store:      es,
		Repository: repo,
		Policy:     policy,
		Logger:     logger,
		Metrics:    tel.Metrics,
		Tracer:     tel.Tracer("github.com/plaenen/purchasing"),
	})

	service := boundary.NewService(features.IntentCommandFactory{})
	handlers := httpapi.NewPurchaseRequestHandlers(bus, es, queries.NewContextQuery(repo, service), service, logger)

	var services []runner.Service
	var eventBus *natsbus.Service
	if cfg.Outbox.Enabled {
		eventBus = newEventBusService(cfg.NATS, logger, tel.Tracer("github.com/plaenen/purchasing/pkg/nats"))
		services = append(services,
			eventBus,
			outbox.NewRelay(es, eventBus,
				outbox.WithInterval(cfg.Outbox.PollInterval),
				outbox.WithBatchSize(cfg.Outbox.BatchSize),
				outbox.WithLogger(logger),
				outbox.WithMetrics(tel.Metrics),
				outbox.WithTracer(tel.Tracer("github.com/plaenen/purchasing/pkg/outbox")),
			),
		)
	}

	router := httpapi.NewRouter(
		httpapi.WithTimeout(cfg.HTTP.WriteTimeout),
		httpapi.WithReadinessCheck(func(ctx context.Context) error {
			if err := es.Ping(ctx); err != nil {
				return fmt.Errorf("event store: %w", err)
			}
			if eventBus != nil {
				if err := eventBus.HealthCheck(ctx); err != nil {
					return fmt.Errorf("event bus: %w", err)
				}
			}
			return nil
		}),
		httpapi.WithPurchaseRequestRoutes(handlers.Routes),
	)
	services = append(services,
		newCleanupService(es, cfg.Database.CleanupInterval, logger),
		newHTTPService(cfg.HTTP, router, logger),
	)

	return runner.New(services,
		runner.WithLogger(logger),
		runner.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		runner.WithSignalHandling(),
	).Run(ctx)
}

func newEventBusService(cfg config.NATSConfig, logger *slog.Logger, tracer trace.Tracer) *natsbus.Service {
	busCfg := natsbus.DefaultConfig()
	busCfg.URL = cfg.URL
	busCfg.StreamName = cfg.StreamName
	busCfg.SubjectPrefix = cfg.SubjectPrefix

	opts := []natsbus.ServiceOption{
		natsbus.WithServiceLogger(logger),
		natsbus.WithServiceTracer(tracer),
	}
	if cfg.Embedded {
		opts = append(opts, natsbus.WithEmbeddedServer(natsbus.EmbeddedOptions{Port: cfg.Port, StoreDir: cfg.StoreDir}))
	}
	return natsbus.NewService(busCfg, opts...)
}

// newCleanupService periodically drops expired idempotency records.
func newCleanupService(es *sqlite.EventStore, interval time.Duration, logger *slog.Logger) runner.Service {
	var cancel context.CancelFunc
	done := make(chan struct{})
	return runner.FuncService{
		ServiceName: "command-cleanup",
		StartFunc: func(context.Context) error {
			if interval <= 0 {
				close(done)
				return nil
			}
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						n, err := es.CleanExpiredCommands(ctx)
						if err != nil {
							logger.Error("Failed to clean expired commands", slog.String("error", err.Error()))
							continue
						}
						if n > 0 {
							logger.Info("Cleaned expired commands", slog.Int64("count", n))
						}
					}
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error {
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
		},
	}
}

func newHTTPService(cfg config.HTTPConfig, handler http.Handler, logger *slog.Logger) runner.Service {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return runner.FuncService{
		ServiceName: "http",
		StartFunc: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
			}
			logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		StopFunc: srv.Shutdown,
	}
}
