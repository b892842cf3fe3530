package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens new WebSocket handles for the Manager.
type Dialer interface {
	// Dial establishes a connection to endpoint. It returns once the
	// handle is open.
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Conn is a single open WebSocket handle.
type Conn interface {
	// ReadMessage blocks for the next inbound frame. A closure is reported
	// as *CloseError; any other error is a transport fault.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Close sends a close frame with code and reason when the code may
	// appear on the wire, then tears down the socket.
	Close(code int, reason string) error
}

// wsDialer is the gorilla/websocket backed Dialer.
type wsDialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a Dialer backed by gorilla/websocket.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{cfg: cfg.withDefaults(), logger: logger}
}

// Dial connects to endpoint and starts the keepalive loop.
func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &client{
		cfg:        d.cfg,
		logger:     d.logger,
		conn:       conn,
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
	}

	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	// Server pings refresh liveness; reply with a pong.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		err := conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	if d.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	d.logger.Debug("websocket connected", "url", endpoint)

	return c, nil
}

// client implements Conn over a gorilla connection.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.Mutex
	lastPingAt time.Time
	closed     bool
	stale      bool
}

// ReadMessage returns the next data frame.
func (c *client) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		return data, nil
	}

	c.mu.Lock()
	stale := c.stale
	c.mu.Unlock()
	if stale {
		return nil, ErrStaleConnection
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
	}
	return nil, err
}

// WriteMessage writes a text frame under the write deadline.
func (c *client) WriteMessage(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrWriteTimeout, err)
	}
	return err
}

// Close sends a close frame (when the code is transmittable) and closes the socket.
// Calling Close more than once is a no-op.
func (c *client) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	if sendableCloseCode(code) {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
	}
	return c.conn.Close()
}

// sendableCloseCode reports whether code may appear in a close frame.
// 1005, 1006 and 1015 are reserved for local reporting only.
func sendableCloseCode(code int) bool {
	switch code {
	case CloseNoDetail, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return false
	}
	return true
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// heartbeatLoop pings the server and tears the socket down when it goes quiet.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			timeout := c.cfg.WriteTimeout
			if timeout <= 0 {
				timeout = time.Second
			}
			deadline := time.Now().Add(timeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if c.cfg.PingTimeout <= 0 {
				continue
			}

			c.mu.Lock()
			lastPing := c.lastPingAt
			c.mu.Unlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.mu.Unlock()
				// Unblocks ReadMessage, which reports ErrStaleConnection.
				c.conn.Close()
				return
			}
		}
	}
}
