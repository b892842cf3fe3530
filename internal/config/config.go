// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
package config

import (
	"time"

	"github.com/rickgao/wsrelay/internal/connection"
	"github.com/rickgao/wsrelay/internal/database"
)

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Router    RouterConfig    `yaml:"router"`
	Database  DBConfig        `yaml:"database"`
	Writer    WriterConfig    `yaml:"writer"`
	Health    HealthConfig    `yaml:"health"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// EndpointConfig holds the WebSocket endpoint and transport settings.
type EndpointConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"` // 0 disables keepalive pings
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	ReadLimit        int64         `yaml:"read_limit"` // bytes, 0 = unlimited
}

// ReconnectConfig holds the stepped backoff settings.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Step         time.Duration `yaml:"step"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// RouterConfig holds router settings.
type RouterConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// DBConfig holds the optional event store connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds event writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig holds the health/stats HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// ManagerConfig converts the endpoint and reconnect sections into a
// connection.ManagerConfig.
func (c *RelayConfig) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		Endpoint:       c.Endpoint.URL,
		InitialBackoff: c.Reconnect.InitialDelay,
		BackoffStep:    c.Reconnect.Step,
		MaxBackoff:     c.Reconnect.MaxDelay,
		Client: connection.ClientConfig{
			HandshakeTimeout: c.Endpoint.HandshakeTimeout,
			WriteTimeout:     c.Endpoint.WriteTimeout,
			PingInterval:     c.Endpoint.PingInterval,
			PingTimeout:      c.Endpoint.PingTimeout,
			ReadLimit:        c.Endpoint.ReadLimit,
		},
	}
}

// PoolConfig converts the database section into a database.PoolConfig.
func (c *DBConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Name,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		MaxConns: int32(c.MaxConns),
		MinConns: int32(c.MinConns),
	}
}
