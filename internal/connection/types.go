package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("connection manager closed")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrWriteTimeout    = errors.New("write timeout")
)

// Close codes (RFC 6455 section 7.4.1).
const (
	CloseNoDetail        = 0 // Closure without any code information
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
)

// FallbackEvent is the tag used for frames that are not {"event", "data"} envelopes.
const FallbackEvent = "message"

// CloseError reports a closure of the underlying connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: code %d (%s)", e.Code, e.Reason)
}

// State is the lifecycle state of the current handle.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a decoded inbound frame handed to the Publisher.
type Event struct {
	Name       string          // Tag from the envelope, or FallbackEvent
	Data       json.RawMessage // Envelope "data" value, or the whole frame when Raw
	Raw        bool            // True if the frame did not decode as an envelope
	Session    string          // Session ID of the handle that received the frame
	ReceivedAt time.Time       // Local timestamp when ReadMessage() returned
}

// MarshalJSON encodes the event with Data inline. Raw frames need not be
// JSON, so they are encoded as a JSON string instead.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if e.Raw || (len(data) > 0 && !json.Valid(data)) {
		quoted, err := json.Marshal(string(e.Data))
		if err != nil {
			return nil, err
		}
		data = quoted
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	return json.Marshal(struct {
		Name       string          `json:"name"`
		Data       json.RawMessage `json:"data"`
		Raw        bool            `json:"raw,omitempty"`
		Session    string          `json:"session,omitempty"`
		ReceivedAt time.Time       `json:"received_at"`
	}{
		Name:       e.Name,
		Data:       data,
		Raw:        e.Raw,
		Session:    e.Session,
		ReceivedAt: e.ReceivedAt,
	})
}

// Publisher receives decoded events. Implementations must not block for long:
// Publish runs on the handle's read goroutine.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ev Event)

// Publish calls f(ev).
func (f PublisherFunc) Publish(ev Event) { f(ev) }

// envelope is the outbound wire shape used by Emit.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ClientConfig configures a single WebSocket handle. Zero durations take
// the DefaultClientConfig values.
type ClientConfig struct {
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // How often a keepalive ping is sent (<0 = never)
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultClientConfig. A negative
// PingInterval is kept and disables keepalive.
func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout == 0 && c.PingInterval > 0 {
		c.PingTimeout = max(def.PingTimeout, 2*c.PingInterval)
	}
	return c
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Endpoint       string        // WebSocket URL (e.g., wss://example.com/socket)
	InitialBackoff time.Duration // Delay before the first retry; restored on every open
	BackoffStep    time.Duration // Added to the delay after each retry
	MaxBackoff     time.Duration // Ceiling for the delay
	Client         ClientConfig  // Used by the default gorilla dialer
}

// DefaultManagerConfig returns the default reconnect policy: 1s, +1s, capped at 3s.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitialBackoff: 1 * time.Second,
		BackoffStep:    1 * time.Second,
		MaxBackoff:     3 * time.Second,
		Client:         DefaultClientConfig(),
	}
}

// Stats provides statistics about the connection manager.
type Stats struct {
	State           State
	Generation      uint64
	Session         string
	Backoff         time.Duration
	Opens           int64
	Reconnects      int64
	FramesReceived  int64
	DecodeFallbacks int64
	Sent            int64
	PendingSends    int
}
