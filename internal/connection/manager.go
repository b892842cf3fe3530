package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager owns one WebSocket handle to a fixed endpoint and keeps it alive.
//
// Every handle belongs to a generation. Connect and a terminal Close bump the
// generation; reactions (open, frame, closure, retry timer) carry the
// generation they were started for and are dropped if it is no longer current.
type Manager struct {
	cfg    ManagerConfig
	dialer Dialer
	sink   Publisher
	logger *slog.Logger

	// FIFO ordering of outbound writes
	gate sendGate

	mu         sync.Mutex
	state      State
	gen        uint64
	session    string
	conn       Conn
	backoff    *backoff
	timer      *time.Timer
	cancelDial context.CancelFunc
	opened     chan struct{} // closed by the next open event; nil while open
	shutdown   chan struct{} // closed when the manager becomes inert

	// Stats
	opens           atomic.Int64
	reconnects      atomic.Int64
	framesReceived  atomic.Int64
	decodeFallbacks atomic.Int64
	sent            atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDialer replaces the default gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// NewManager creates a Connection Manager publishing decoded events to sink.
// Zero backoff and client fields fall back to DefaultManagerConfig.
func NewManager(cfg ManagerConfig, sink Publisher, opts ...Option) *Manager {
	def := DefaultManagerConfig()
	cfg.Client = cfg.Client.withDefaults()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = def.BackoffStep
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if sink == nil {
		sink = PublisherFunc(func(Event) {})
	}

	m := &Manager{
		cfg:      cfg,
		sink:     sink,
		logger:   slog.Default(),
		state:    StateUnconnected,
		backoff:  newBackoff(cfg.InitialBackoff, cfg.BackoffStep, cfg.MaxBackoff),
		opened:   make(chan struct{}),
		shutdown: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("endpoint", cfg.Endpoint)
	if m.dialer == nil {
		m.dialer = NewDialer(cfg.Client, m.logger)
	}

	return m
}

// Connect starts a new connection attempt, superseding any current handle,
// pending dial or scheduled retry. It does not wait for the handle to open;
// use Ready for that.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked()
}

// Ready returns once the current handle is open. If it is not, Ready waits
// for the next open event, across any number of failed attempts.
func (m *Manager) Ready(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateOpen:
		m.mu.Unlock()
		return nil
	case StateUnconnected:
		m.mu.Unlock()
		return ErrNotConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	opened, shutdown := m.opened, m.shutdown
	m.mu.Unlock()

	select {
	case <-opened:
		return nil
	case <-shutdown:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits msg once the connection is open. Strings, byte slices and
// json.RawMessage are sent verbatim; other values are JSON encoded.
// Concurrent sends are written in the order Send was called.
func (m *Manager) Send(ctx context.Context, msg any) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	switch m.State() {
	case StateUnconnected:
		return ErrNotConnected
	case StateClosed:
		return ErrClosed
	}

	if err := m.gate.acquire(ctx); err != nil {
		return err
	}
	defer m.gate.release()

	for {
		if err := m.Ready(ctx); err != nil {
			return err
		}

		m.mu.Lock()
		conn := m.conn
		open := m.state == StateOpen
		m.mu.Unlock()

		// Dropped again between the open event and now.
		if !open {
			continue
		}

		if err := conn.WriteMessage(data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		m.sent.Add(1)
		return nil
	}
}

// Emit sends an {"event": event, "data": data} envelope.
func (m *Manager) Emit(ctx context.Context, event string, data any) error {
	return m.Send(ctx, envelope{Event: event, Data: data})
}

// Close closes the current handle with code and reason. Code 0 means
// CloseNormalClosure. A normal closure makes the manager inert: scheduled
// retries are cancelled and waiting Ready/Send calls return ErrClosed. Any
// other code is treated like an abnormal closure and schedules a reconnect.
func (m *Manager) Close(code int, reason string) error {
	if code == CloseNoDetail {
		code = CloseNormalClosure
	}

	m.mu.Lock()
	if m.state == StateUnconnected || m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}

	conn := m.conn
	if code == CloseNormalClosure {
		// Closed below with the caller's code and reason.
		m.conn = nil
		m.supersedeLocked()
		m.terminateLocked()
		m.mu.Unlock()

		m.logger.Info("connection closed by caller", "code", code, "reason", reason)
		if conn != nil {
			return conn.Close(code, reason)
		}
		return nil
	}

	if conn == nil {
		// Connecting or waiting to retry: no handle to close.
		m.mu.Unlock()
		return nil
	}
	m.closedLocked(code)
	m.mu.Unlock()

	return conn.Close(code, reason)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backoff returns the delay the next retry will use.
func (m *Manager) Backoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Current()
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	st := Stats{
		State:      m.state,
		Generation: m.gen,
		Session:    m.session,
		Backoff:    m.backoff.Current(),
	}
	m.mu.Unlock()

	st.Opens = m.opens.Load()
	st.Reconnects = m.reconnects.Load()
	st.FramesReceived = m.framesReceived.Load()
	st.DecodeFallbacks = m.decodeFallbacks.Load()
	st.Sent = m.sent.Load()
	st.PendingSends = m.gate.pending()
	return st
}

// connectLocked starts generation gen+1. Must be called with m.mu held.
func (m *Manager) connectLocked() {
	if m.state == StateClosed {
		m.shutdown = make(chan struct{})
	}
	m.supersedeLocked()

	m.session = uuid.NewString()
	m.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	gen, session := m.gen, m.session
	logger := m.logger.With("session", session, "generation", gen)
	logger.Info("connecting")

	go m.dial(ctx, gen, session, logger)
}

// supersedeLocked invalidates everything belonging to the current generation
// and releases its handle. Must be called with m.mu held.
func (m *Manager) supersedeLocked() {
	m.gen++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		// The old read loop sees the closure but its generation is stale.
		go m.conn.Close(CloseNormalClosure, "superseded")
		m.conn = nil
	}
	if m.opened == nil {
		m.opened = make(chan struct{})
	}
}

// terminateLocked moves to the inert closed state. Must be called with m.mu held.
func (m *Manager) terminateLocked() {
	m.state = StateClosed
	close(m.shutdown)
}

// dial opens the handle for generation gen and then reads from it until it closes.
func (m *Manager) dial(ctx context.Context, gen uint64, session string, logger *slog.Logger) {
	conn, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		if !m.isCurrent(gen) {
			return
		}
		logger.Warn("connection error", "error", err)
		m.handleClose(gen, CloseAbnormalClosure)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		conn.Close(CloseNormalClosure, "superseded")
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.backoff.Reset()
	close(m.opened)
	m.opened = nil
	m.mu.Unlock()

	m.opens.Add(1)
	logger.Info("connection open")

	m.readLoop(gen, session, conn, logger)
}

// readLoop dispatches frames from conn until it fails, then hands the
// closure to handleClose.
func (m *Manager) readLoop(gen uint64, session string, conn Conn, logger *slog.Logger) {
	for {
		data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			var ce *CloseError
			if errors.As(err, &ce) {
				// Release the socket; no-op if it is already closed.
				conn.Close(CloseAbnormalClosure, "")
				m.handleClose(gen, ce.Code)
				return
			}

			if m.isCurrent(gen) {
				logger.Warn("transport error, closing connection", "error", err)
			}
			conn.Close(CloseAbnormalClosure, "")
			m.handleClose(gen, CloseAbnormalClosure)
			return
		}

		if !m.isCurrent(gen) {
			return
		}

		m.dispatch(data, session, receivedAt, logger)
	}
}

// dispatch decodes a frame and publishes it. Decode failures fall back to
// FallbackEvent and are never reported as errors.
func (m *Manager) dispatch(data []byte, session string, receivedAt time.Time, logger *slog.Logger) {
	ev := decodeFrame(data)
	ev.Session = session
	ev.ReceivedAt = receivedAt

	m.framesReceived.Add(1)
	if ev.Raw {
		m.decodeFallbacks.Add(1)
		logger.Debug("frame is not an event envelope", "bytes", len(data))
	}

	m.sink.Publish(ev)
}

// handleClose reacts to the closure of generation gen's handle.
func (m *Manager) handleClose(gen uint64, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	if m.state != StateOpen && m.state != StateConnecting {
		return
	}
	m.closedLocked(code)
}

// closedLocked records that the current handle is gone and decides whether to
// retry. Must be called with m.mu held.
func (m *Manager) closedLocked(code int) {
	m.conn = nil
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.opened == nil {
		m.opened = make(chan struct{})
	}

	logger := m.logger.With("session", m.session, "generation", m.gen)

	if code == CloseNormalClosure || code == CloseNoDetail {
		m.terminateLocked()
		logger.Info("connection closed", "code", code)
		return
	}

	delay := m.backoff.Current()
	m.state = StateBackoff

	gen := m.gen
	m.timer = time.AfterFunc(delay, func() { m.retry(gen) })

	logger.Warn("connection closed abnormally, scheduling reconnect",
		"code", code,
		"backoff", delay,
	)
}

// retry fires when the backoff timer for generation gen elapses.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateBackoff {
		return
	}
	m.timer = nil
	m.backoff.Advance()
	m.reconnects.Add(1)
	m.connectLocked()
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}
