package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// EventsTable is the table the event recorder writes to.
const EventsTable = "socket_events"

// Schema creates the event table and its indexes. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS socket_events (
		id          UUID PRIMARY KEY,
		instance_id TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		event       TEXT NOT NULL,
		payload     JSONB,
		raw_frame   BYTEA,
		received_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS socket_events_event_received_idx
		ON socket_events (event, received_at)`,
	`CREATE INDEX IF NOT EXISTS socket_events_session_idx
		ON socket_events (session_id)`,
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
