// Package writer records relayed events to PostgreSQL.
//
// The EventWriter consumes a router subscription, accumulates rows, and
// flushes them to the socket_events table with pgx.Batch either when the
// batch is full or on a timer. Inserts are append-only: each row id is
// derived from the event itself, so a replayed batch is absorbed by
// ON CONFLICT DO NOTHING.
package writer
