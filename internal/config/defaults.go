package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "relay"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultInitialDelay     = 1 * time.Second
	DefaultStep             = 1 * time.Second
	DefaultMaxDelay         = 3 * time.Second
	DefaultQueueSize        = 1024
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultHealthPort       = 8080
)

// ApplyDefaults fills every unset optional field. A negative ping_interval
// is kept as is and disables keepalive pings.
func (c *RelayConfig) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Endpoint defaults
	if c.Endpoint.HandshakeTimeout == 0 {
		c.Endpoint.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Endpoint.WriteTimeout == 0 {
		c.Endpoint.WriteTimeout = DefaultWriteTimeout
	}
	if c.Endpoint.PingInterval == 0 {
		c.Endpoint.PingInterval = DefaultPingInterval
	}
	if c.Endpoint.PingTimeout == 0 {
		c.Endpoint.PingTimeout = DefaultPingTimeout
	}

	// Reconnect defaults
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultInitialDelay
	}
	if c.Reconnect.Step == 0 {
		c.Reconnect.Step = DefaultStep
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}

	if c.Router.QueueSize == 0 {
		c.Router.QueueSize = DefaultQueueSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
