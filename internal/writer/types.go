package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/wsrelay/internal/connection"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains writer counters.
type WriterMetrics struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Rejected  int64 // rows the database refused, skipped
	Errors    int64
	Flushes   int64
}

// Source yields events to record. *router.Subscription satisfies it.
type Source interface {
	Receive(ctx context.Context) (connection.Event, bool)
	Drain(max int) []connection.Event
}

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
