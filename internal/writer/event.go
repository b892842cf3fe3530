package writer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/wsrelay/internal/connection"
)

// eventNamespace scopes the name-based UUIDs of recorded events.
var eventNamespace = uuid.MustParse("6f1c3a52-7d0e-4b8a-9e21-3c5d4f8a2b10")

// errNoDatabase is returned by flush when the writer has no database.
var errNoDatabase = errors.New("no database configured")

// eventRow is a single socket_events row.
type eventRow struct {
	ID         uuid.UUID
	InstanceID string
	SessionID  string
	Event      string
	Payload    []byte // JSON, nil when RawFrame is set
	RawFrame   []byte // non-envelope frames and payloads jsonb would reject
	ReceivedAt int64  // microseconds
}

// EventWriter consumes events from a Source and writes them to socket_events.
type EventWriter struct {
	cfg        WriterConfig
	instanceID string
	logger     *slog.Logger

	// Input from the router
	input Source

	// Database
	db BatchSender

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewEventWriter creates a new EventWriter. With a nil db every batch is
// dropped and counted as an error.
func NewEventWriter(
	cfg WriterConfig,
	instanceID string,
	input Source,
	db BatchSender,
	logger *slog.Logger,
) *EventWriter {
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{
		cfg:        cfg,
		instanceID: instanceID,
		input:      input,
		db:         db,
		logger:     logger,
		batch:      make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer, drains what is still queued on the source and
// performs a final flush bounded by ctx.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
		return ctx.Err()
	}

	for _, ev := range w.input.Drain(0) {
		w.add(ev)
	}
	err := w.flush(ctx)
	if errors.Is(err, errNoDatabase) {
		err = nil
	}

	w.logger.Info("event writer stopped", "inserts", w.Stats().Inserts)
	return err
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the source and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch, flushing when full.
func (w *EventWriter) handleEvent(ev connection.Event) {
	if w.add(ev) {
		w.flush(w.ctx)
	}
}

func (w *EventWriter) add(ev connection.Event) (full bool) {
	row := w.transform(ev)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	w.metrics.Received++
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts an Event to an eventRow.
func (w *EventWriter) transform(ev connection.Event) eventRow {
	row := eventRow{
		ID:         eventID(ev),
		InstanceID: w.instanceID,
		SessionID:  ev.Session,
		Event:      textSafe(ev.Name),
		ReceivedAt: ev.ReceivedAt.UnixMicro(),
	}
	if ev.Raw || !jsonbSafe(ev.Data) {
		row.RawFrame = []byte(ev.Data)
	} else {
		row.Payload = []byte(ev.Data)
	}
	return row
}

// jsonbSafe reports whether Postgres accepts payload as jsonb. Valid JSON may
// still carry invalid UTF-8 or a \u0000 escape, which jsonb rejects.
func jsonbSafe(payload []byte) bool {
	return utf8.Valid(payload) && !bytes.Contains(payload, []byte(`\u0000`))
}

// textSafe strips what a TEXT column rejects.
func textSafe(s string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
}

// eventID derives a stable id from the session, receive time, name and payload.
func eventID(ev connection.Event) uuid.UUID {
	key := make([]byte, 0, len(ev.Session)+len(ev.Name)+len(ev.Data)+24)
	key = append(key, ev.Session...)
	key = append(key, 0)
	key = strconv.AppendInt(key, ev.ReceivedAt.UnixNano(), 10)
	key = append(key, 0)
	key = append(key, ev.Name...)
	key = append(key, 0)
	key = append(key, ev.Data...)
	return uuid.NewSHA1(eventNamespace, key)
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	rejected := 0
	conflicts, err := w.batchInsert(ctx, batch)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// The batch runs in one implicit transaction, so a single bad row
		// rolls back the rest. Retry row by row to isolate it.
		w.logger.Warn("batch rejected, retrying rows individually",
			"error", err,
			"count", len(batch),
		)
		conflicts, rejected, err = w.insertEach(ctx, batch)
	}
	if err != nil {
		if !errors.Is(err, errNoDatabase) {
			w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		}
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts - rejected)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Rejected += int64(rejected)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"rejected", rejected,
		"duration", time.Since(start),
	)
	return nil
}

// insertEach inserts rows one per batch. Rows the server refuses are logged
// and skipped; any other error aborts the remaining rows.
func (w *EventWriter) insertEach(ctx context.Context, rows []eventRow) (conflicts, rejected int, err error) {
	for _, r := range rows {
		c, err := w.batchInsert(ctx, []eventRow{r})
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr):
			rejected++
			w.logger.Warn("event rejected by database",
				"id", r.ID,
				"event", r.Event,
				"session", r.SessionID,
				"code", pgErr.Code,
				"error", pgErr.Message,
			)
		case err != nil:
			return conflicts, rejected, err
		default:
			conflicts += c
		}
	}
	return conflicts, rejected, nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	if w.db == nil {
		return 0, errNoDatabase
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO socket_events (id, instance_id, session_id, event, payload, raw_frame, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.InstanceID, r.SessionID, r.Event, r.Payload, r.RawFrame, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
