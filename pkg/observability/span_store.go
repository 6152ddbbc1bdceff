package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const spansTable = `
	CREATE TABLE IF NOT EXISTS otel_spans (
		span_id TEXT PRIMARY KEY,
		trace_id TEXT NOT NULL,
		parent_span_id TEXT,
		name TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		status_code INTEGER NOT NULL,
		status_message TEXT,
		attributes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_otel_spans_trace_id ON otel_spans(trace_id);
	CREATE INDEX IF NOT EXISTS idx_otel_spans_start_time ON otel_spans(start_time);
`

// StoredSpan is a span as persisted by SQLiteSpanExporter.
type StoredSpan struct {
	SpanID       string
	TraceID      string
	ParentSpanID string
	Name         string
	Start        time.Time
	End          time.Time
	StatusCode   int
	Status       string
	Attributes   map[string]any
}

// SQLiteSpanExporter keeps spans in a local SQLite table so a single-node
// deployment can inspect traces without a collector.
type SQLiteSpanExporter struct {
	db        *sql.DB
	retention time.Duration
	mu        sync.Mutex
}

// NewSQLiteSpanExporter creates the spans table if needed.
// A zero retention keeps spans forever.
func NewSQLiteSpanExporter(ctx context.Context, db *sql.DB, retention time.Duration) (*SQLiteSpanExporter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.ExecContext(ctx, spansTable); err != nil {
		return nil, fmt.Errorf("creating spans table: %w", err)
	}
	return &SQLiteSpanExporter{db: db, retention: retention}, nil
}

// ExportSpans implements sdktrace.SpanExporter
func (e *SQLiteSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, span := range spans {
		var parent sql.NullString
		if span.Parent().SpanID().IsValid() {
			parent = sql.NullString{String: span.Parent().SpanID().String(), Valid: true}
		}

		attrs, err := json.Marshal(attributesToMap(span.Attributes()))
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO otel_spans (
				span_id, trace_id, parent_span_id, name,
				start_time, end_time, status_code, status_message, attributes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			span.SpanContext().SpanID().String(),
			span.SpanContext().TraceID().String(),
			parent,
			span.Name(),
			span.StartTime().UnixNano(),
			span.EndTime().UnixNano(),
			int(span.Status().Code),
			span.Status().Description,
			string(attrs),
		)
		if err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}

	if e.retention > 0 {
		cutoff := time.Now().Add(-e.retention).UnixNano()
		if _, err := tx.ExecContext(ctx, `DELETE FROM otel_spans WHERE start_time < ?`, cutoff); err != nil {
			return fmt.Errorf("prune spans: %w", err)
		}
	}

	return tx.Commit()
}

// Shutdown implements sdktrace.SpanExporter. The database is owned by the caller.
func (e *SQLiteSpanExporter) Shutdown(context.Context) error {
	return nil
}

// Trace returns the spans of one trace ordered by start time.
func (e *SQLiteSpanExporter) Trace(ctx context.Context, traceID string) ([]StoredSpan, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT span_id, trace_id, COALESCE(parent_span_id, ''), name,
		       start_time, end_time, status_code, COALESCE(status_message, ''), attributes
		FROM otel_spans
		WHERE trace_id = ?
		ORDER BY start_time ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []StoredSpan
	for rows.Next() {
		var (
			s          StoredSpan
			start, end int64
			attrs      string
		)
		if err := rows.Scan(&s.SpanID, &s.TraceID, &s.ParentSpanID, &s.Name,
			&start, &end, &s.StatusCode, &s.Status, &attrs); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		s.Start = time.Unix(0, start)
		s.End = time.Unix(0, end)
		if err := json.Unmarshal([]byte(attrs), &s.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	result := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		result[string(attr.Key)] = attr.Value.AsInterface()
	}
	return result
}
