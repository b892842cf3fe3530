package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Endpoint.validate("endpoint"); err != nil {
		return err
	}
	if err := c.Reconnect.validate("reconnect"); err != nil {
		return err
	}

	if c.Router.QueueSize < 1 {
		return errors.New("router.queue_size must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Writer.BatchSize < 1 {
			return errors.New("writer.batch_size must be >= 1")
		}
		if c.Writer.FlushInterval <= 0 {
			return errors.New("writer.flush_interval must be > 0")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (e *EndpointConfig) validate(prefix string) error {
	if e.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("%s.url is invalid: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.url must use ws or wss, got %q", prefix, u.Scheme)
	}
	if e.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s.handshake_timeout must be > 0", prefix)
	}
	if e.WriteTimeout <= 0 {
		return fmt.Errorf("%s.write_timeout must be > 0", prefix)
	}
	if e.PingInterval > 0 && e.PingTimeout <= e.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) must exceed ping_interval (%s)", prefix, e.PingTimeout, e.PingInterval)
	}
	if e.ReadLimit < 0 {
		return fmt.Errorf("%s.read_limit must be >= 0", prefix)
	}
	return nil
}

func (r *ReconnectConfig) validate(prefix string) error {
	if r.InitialDelay <= 0 {
		return fmt.Errorf("%s.initial_delay must be > 0", prefix)
	}
	if r.Step < 0 {
		return fmt.Errorf("%s.step must be >= 0", prefix)
	}
	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("%s.max_delay (%s) cannot be less than initial_delay (%s)", prefix, r.MaxDelay, r.InitialDelay)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
