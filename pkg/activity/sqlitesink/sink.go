// Package sqlitesink persists launch events to a local SQLite database.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-arlaunch/pkg/activity"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS launch_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    verb        TEXT NOT NULL,
    object_type TEXT NOT NULL,
    object_id   TEXT NOT NULL,
    channel     TEXT NOT NULL DEFAULT '',
    actor_id    TEXT NOT NULL DEFAULT '',
    user_id     TEXT NOT NULL DEFAULT '',
    tenant_id   TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS launch_events_object ON launch_events (object_id);
`

// Sink is an activity.ActivityHook writing every event as one row of the
// launch_events table.
type Sink struct {
	db *sql.DB
}

var _ activity.ActivityHook = (*Sink)(nil)

// Open opens (or creates) the database at path, enables WAL mode and a busy
// timeout, and creates the schema if needed. Use ":memory:" for an
// ephemeral database.
func Open(ctx context.Context, path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open database: %w", err)
	}
	// single writer; also keeps a ":memory:" database on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitesink: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitesink: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitesink: create schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the database handle.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Notify implements activity.ActivityHook.
func (s *Sink) Notify(ctx context.Context, event activity.Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}

	metadata := []byte("{}")
	if len(normalized.Metadata) > 0 {
		encoded, err := json.Marshal(normalized.Metadata)
		if err != nil {
			return fmt.Errorf("sqlitesink: encode metadata for %s: %w", normalized.ObjectID, err)
		}
		metadata = encoded
	}

	const q = `
		INSERT INTO launch_events
		    (verb, object_type, object_id, channel, actor_id, user_id, tenant_id, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		normalized.Verb,
		normalized.ObjectType,
		normalized.ObjectID,
		normalized.Channel,
		normalized.ActorID,
		normalized.UserID,
		normalized.TenantID,
		string(metadata),
		normalized.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlitesink: insert %s %s: %w", normalized.Verb, normalized.ObjectID, err)
	}
	return nil
}

// Row is a stored launch event.
type Row struct {
	ID         int64
	Verb       string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Events returns the stored events for a launch id in insertion order. An
// empty objectID returns every event.
func (s *Sink) Events(ctx context.Context, objectID string) ([]Row, error) {
	query := "SELECT id, verb, object_id, channel, metadata, occurred_at FROM launch_events"
	var args []any
	if objectID != "" {
		query += " WHERE object_id = ?"
		args = append(args, objectID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: query events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row      Row
			metadata string
		)
		if err := rows.Scan(&row.ID, &row.Verb, &row.ObjectID, &row.Channel, &metadata, &row.OccurredAt); err != nil {
			return nil, fmt.Errorf("sqlitesink: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &row.Metadata); err != nil {
			return nil, fmt.Errorf("sqlitesink: decode metadata for event %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitesink: iterate events: %w", err)
	}
	return out, nil
}
