package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/purchasing/pkg/domain"
)

const eventColumns = `event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata`

// GetCommandResult retrieves the result of a previously processed command.
// Returns nil when the command is unknown or its TTL expired.
func (s *EventStore) GetCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCommandResult(ctx, commandID)
}

// getCommandResult does not lock; callers hold s.mu.
func (s *EventStore) getCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error) {
	var (
		aggregateID  string
		commandType  string
		processedAt  int64
		eventIDsJSON string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_id, command_type, processed_at, event_ids FROM processed_commands
		WHERE command_id = ? AND expires_at > ?`,
		commandID, domain.Now().Unix(),
	).Scan(&aggregateID, &commandType, &processedAt, &eventIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query command: %w", err)
	}

	var eventIDs []string
	if err := json.Unmarshal([]byte(eventIDsJSON), &eventIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event IDs: %w", err)
	}

	events := make([]*domain.Event, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		event, err := scanEvent(s.db.QueryRowContext(ctx,
			`SELECT `+eventColumns+` FROM events WHERE event_id = ?`, eventID))
		if err != nil {
			return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
		}
		events = append(events, event)
	}

	return &domain.CommandResult{
		CommandID:        commandID,
		AggregateID:      aggregateID,
		CommandType:      commandType,
		Events:           events,
		AlreadyProcessed: true,
		ProcessedAt:      time.Unix(processedAt, 0),
	}, nil
}

// LoadEvents loads all events for an aggregate after afterVersion.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE aggregate_id = ? AND version > ?
		ORDER BY version ASC`,
		aggregateID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEventStoreOperation(ctx, "load", time.Since(start), len(events))
	}
	return events, nil
}

// LoadAllEvents loads events from all aggregates in append order, after fromPosition.
func (s *EventStore) LoadAllEvents(ctx context.Context, fromPosition int64, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE position > ?
		ORDER BY position ASC
		LIMIT ?`,
		fromPosition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAggregateVersion returns the current version of an aggregate, 0 if it doesn't exist.
func (s *EventStore) GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get aggregate version: %w", err)
	}
	return version, nil
}

// CleanExpiredCommands removes expired processed-command records.
func (s *EventStore) CleanExpiredCommands(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_commands WHERE expires_at <= ?`, domain.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired commands: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// Close closes the event store and releases resources.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		event     domain.Event
		timestamp int64
		metadata  string
	)

	err := row.Scan(
		&event.ID, &event.AggregateID, &event.AggregateType, &event.EventType,
		&event.Version, &timestamp, &event.Data, &metadata,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp = time.Unix(0, timestamp)
	if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for event %s: %w", event.ID, err)
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	events := make([]*domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
