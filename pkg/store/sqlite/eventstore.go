// Package sqlite implements the event store, processed-command registry and
// transactional outbox on SQLite using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/idgen"
	"github.com/plaenen/purchasing/pkg/observability"
)

// EventStore is a SQLite implementation of store.EventStore and store.Outbox.
type EventStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	outbox  bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

type eventStoreConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
	outbox       bool
	logger       *slog.Logger
	metrics      *observability.Metrics
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "purchasing.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
		outbox:       true,
	}
}

// EventStoreOption configures an EventStore.
type EventStoreOption func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase uses an in-memory database. WAL mode is disabled for it.
func WithMemoryDatabase() EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
		c.walMode = false
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode toggles write-ahead logging. Not available for :memory: databases.
func WithWALMode(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate runs pending migrations when the store opens.
func WithAutoMigrate(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.autoMigrate = enabled
	}
}

// WithOutbox toggles writing an outbox row for every appended event.
func WithOutbox(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.outbox = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.logger = logger
	}
}

// WithMetrics records append and load latency on the given instruments.
func WithMetrics(metrics *observability.Metrics) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.metrics = metrics
	}
}

// NewEventStore opens a SQLite event store.
//
//	// In-memory database for tests
//	store, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
//
//	// File database with a bigger pool
//	store, err := sqlite.NewEventStore(
//	    sqlite.WithDSN("/var/lib/purchasing/events.db"),
//	    sqlite.WithMaxOpenConns(50),
//	)
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	config := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.logger == nil {
		config.logger = slog.Default()
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: gets its own database.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &EventStore{
		db:      db,
		outbox:  config.outbox,
		logger:  config.logger,
		metrics: config.metrics,
	}

	if config.walMode {
		if err := s.setWALMode(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if _, err := runMigrations(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return s, nil
}

func (s *EventStore) setWALMode() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

// AppendEvents appends events to an aggregate's stream atomically.
func (s *EventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkVersion(ctx, tx, aggregateID, expectedVersion); err != nil {
		return err
	}

	if err := s.insertEvents(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.recordAppend(ctx, start, len(events))
	return nil
}

// AppendEventsIdempotent appends events and records commandID in the same transaction.
// A command seen before returns its recorded result with AlreadyProcessed set,
// unless it was recorded for another aggregate or command type.
func (s *EventStore) AppendEventsIdempotent(
	ctx context.Context,
	aggregateID string,
	expectedVersion int64,
	events []*domain.Event,
	commandID string,
	commandType string,
	ttl time.Duration,
) (*domain.CommandResult, error) {
	if commandID == "" {
		return nil, fmt.Errorf("%w: command ID is required", domain.ErrInvalidCommand)
	}

	if len(events) == 0 {
		return &domain.CommandResult{CommandID: commandID}, nil
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.getCommandResult(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if result != nil {
		if err := result.SameCommand(aggregateID, commandType); err != nil {
			return nil, err
		}
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkVersion(ctx, tx, aggregateID, expectedVersion); err != nil {
		return nil, err
	}

	if err := s.insertEvents(ctx, tx, events); err != nil {
		return nil, err
	}

	eventIDs := make([]string, len(events))
	for i, event := range events {
		eventIDs[i] = event.ID
	}
	eventIDsJSON, err := json.Marshal(eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event IDs: %w", err)
	}

	now := domain.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO processed_commands (command_id, aggregate_id, command_type, processed_at, expires_at, event_ids)
		VALUES (?, ?, ?, ?, ?, ?)`,
		commandID, aggregateID, commandType, now.Unix(), now.Add(ttl).Unix(), string(eventIDsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record command: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.recordAppend(ctx, start, len(events))

	return &domain.CommandResult{
		CommandID:   commandID,
		AggregateID: aggregateID,
		CommandType: commandType,
		Events:      events,
		ProcessedAt: now,
	}, nil
}

func (s *EventStore) checkVersion(ctx context.Context, tx *sql.Tx, aggregateID string, expectedVersion int64) error {
	var current int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to check current version: %w", err)
	}

	if current != expectedVersion {
		return fmt.Errorf("%w: %s expected version %d, current %d",
			domain.ErrConcurrencyConflict, aggregateID, expectedVersion, current)
	}
	return nil
}

func (s *EventStore) insertEvents(ctx context.Context, tx *sql.Tx, events []*domain.Event) error {
	for _, event := range events {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for event %s: %w", event.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.AggregateID, event.AggregateType, event.EventType,
			event.Version, event.Timestamp.UnixNano(), event.Data, string(metadataJSON),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}

		if !s.outbox {
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outbox (id, event_id, created_at) VALUES (?, ?, ?)`,
			idgen.MustGenerateSortableID(), event.ID, domain.Now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to write outbox entry: %w", err)
		}
	}
	return nil
}

func (s *EventStore) recordAppend(ctx context.Context, start time.Time, count int) {
	if s.metrics != nil {
		s.metrics.RecordEventStoreOperation(ctx, "append", time.Since(start), count)
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
