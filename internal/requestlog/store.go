// Package requestlog persists one row per generate call so operators can see
// which provider answered, how many attempts it took and why calls failed.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry is one recorded generate call.
type Entry struct {
	TraceID      string    `json:"trace_id,omitempty"`
	Event        string    `json:"event"`
	Provider     string    `json:"provider,omitempty"`
	Cached       bool      `json:"cached"`
	Attempts     int       `json:"attempts"`
	LatencyMs    int64     `json:"latency_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// FromEvent builds an Entry from a gateway hook payload. Unknown or missing
// fields are left zero.
func FromEvent(subject string, data map[string]interface{}) Entry {
	e := Entry{Event: subject}
	e.TraceID, _ = data["trace_id"].(string)
	e.Provider, _ = data["provider"].(string)
	e.Cached, _ = data["cached"].(bool)
	e.Attempts, _ = data["attempts"].(int)
	e.LatencyMs, _ = data["latency_ms"].(int64)
	e.ErrorMessage, _ = data["error"].(string)
	if ts, ok := data["timestamp"].(time.Time); ok {
		e.CreatedAt = ts.UTC()
	}
	return e
}

// Open returns a writer for driver ("sqlite", "postgres"). An empty driver
// yields a NoopWriter and a nil closer.
func Open(driver, dsn string) (Writer, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none":
		return NoopWriter{}, func() error { return nil }, nil
	case "sqlite":
		w, err := NewSQLiteWriter(dsn)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	case "postgres", "postgresql":
		w, err := NewPostgresWriter(dsn)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported request log driver %q", driver)
	}
}

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (creating if needed) a SQLite request log.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "fallbackgw-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter connects to a Postgres request log.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS generate_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	event TEXT NOT NULL,
	provider TEXT,
	cached BOOLEAN NOT NULL,
	attempts INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS generate_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	event TEXT NOT NULL,
	provider TEXT,
	cached BOOLEAN NOT NULL,
	attempts INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

// Write inserts entry, stamping CreatedAt when unset.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO generate_logs(trace_id, event, provider, cached, attempts, latency_ms, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO generate_logs(trace_id, event, provider, cached, attempts, latency_ms, error_message, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Event,
		entry.Provider,
		entry.Cached,
		entry.Attempts,
		entry.LatencyMs,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (w *SQLWriter) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT trace_id, event, provider, cached, attempts, latency_ms, error_message, created_at
	FROM generate_logs ORDER BY created_at DESC, id DESC LIMIT ?`
	if w.dialect == "postgres" {
		query = `SELECT trace_id, event, provider, cached, attempts, latency_ms, error_message, created_at
		FROM generate_logs ORDER BY created_at DESC, id DESC LIMIT $1`
	}

	rows, err := w.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			traceID, prov sql.NullString
			errMsg        sql.NullString
		)
		if err := rows.Scan(&traceID, &e.Event, &prov, &e.Cached, &e.Attempts, &e.LatencyMs, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		e.TraceID = traceID.String
		e.Provider = prov.String
		e.ErrorMessage = errMsg.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request logs: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
