package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/store"
)

// PendingOutbox returns up to limit unpublished outbox messages, oldest first.
func (s *EventStore) PendingOutbox(ctx context.Context, limit int) ([]*store.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.created_at, o.attempts,
		       e.event_id, e.aggregate_id, e.aggregate_type, e.event_type, e.version, e.timestamp, e.data, e.metadata
		FROM outbox o
		JOIN events e ON e.event_id = o.event_id
		WHERE o.published_at IS NULL
		ORDER BY o.created_at ASC, o.rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.OutboxMessage, 0)
	for rows.Next() {
		var (
			msg       store.OutboxMessage
			createdAt int64
		)
		event, err := scanEvent(prefixScanner{rows: rows, prefix: []any{&msg.ID, &createdAt, &msg.Attempts}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		msg.Event = event
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}

	return messages, nil
}

// MarkPublished flags outbox messages as delivered.
func (s *EventStore) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, domain.Now().UnixNano())
	for _, id := range ids {
		args = append(args, id)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = ?, last_error = NULL WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark outbox messages published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt for an outbox message.
func (s *EventStore) MarkFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

// prefixScanner lets scanEvent read rows that carry extra leading columns.
type prefixScanner struct {
	rows   rowScanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(p.prefix, dest...)...)
}
