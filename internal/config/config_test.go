package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: relay-1
endpoint:
  url: wss://stream.example.com/socket
  ping_interval: 15s
  read_limit: 1048576
reconnect:
  initial_delay: 500ms
  max_delay: 2s
database:
  enabled: true
  host: localhost
  name: relay
  user: relay
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "relay-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "relay-1")
	}
	if cfg.Endpoint.URL != "wss://stream.example.com/socket" {
		t.Errorf("Endpoint.URL = %q", cfg.Endpoint.URL)
	}
	if cfg.Endpoint.PingInterval != 15*time.Second {
		t.Errorf("Endpoint.PingInterval = %v, want 15s", cfg.Endpoint.PingInterval)
	}
	if cfg.Endpoint.ReadLimit != 1048576 {
		t.Errorf("Endpoint.ReadLimit = %d, want 1048576", cfg.Endpoint.ReadLimit)
	}
	if cfg.Reconnect.InitialDelay != 500*time.Millisecond {
		t.Errorf("Reconnect.InitialDelay = %v, want 500ms", cfg.Reconnect.InitialDelay)
	}
	if !cfg.Database.Enabled || cfg.Database.Host != "localhost" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_WS_URL", "ws://127.0.0.1:9000/ws")

	yaml := `
endpoint:
  url: ${TEST_WS_URL}
database:
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
	if cfg.Endpoint.URL != "ws://127.0.0.1:9000/ws" {
		t.Errorf("Endpoint.URL = %q", cfg.Endpoint.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %v, want read config file", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "endpoint: [unclosed")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error = %v, want parse config yaml", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
endpoint:
  url: ws://localhost:9000
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Instance.ID != DefaultInstanceID {
		t.Errorf("Instance.ID = %q, want default %q", cfg.Instance.ID, DefaultInstanceID)
	}
	if cfg.Reconnect.InitialDelay != DefaultInitialDelay {
		t.Errorf("Reconnect.InitialDelay = %v, want default %v", cfg.Reconnect.InitialDelay, DefaultInitialDelay)
	}
	if cfg.Reconnect.Step != DefaultStep {
		t.Errorf("Reconnect.Step = %v, want default %v", cfg.Reconnect.Step, DefaultStep)
	}
	if cfg.Reconnect.MaxDelay != DefaultMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default %v", cfg.Reconnect.MaxDelay, DefaultMaxDelay)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Writer.BatchSize != DefaultBatchSize {
		t.Errorf("Writer.BatchSize = %d, want default %d", cfg.Writer.BatchSize, DefaultBatchSize)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: relay\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if err.Error() != "validate config: endpoint.url is required" {
		t.Errorf("error = %q", err.Error())
	}
}

func validConfig() RelayConfig {
	cfg := RelayConfig{
		Endpoint: EndpointConfig{URL: "wss://stream.example.com"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RelayConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *RelayConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *RelayConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing endpoint url",
			mutate:  func(c *RelayConfig) { c.Endpoint.URL = "" },
			wantErr: "endpoint.url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *RelayConfig) { c.Endpoint.URL = "https://stream.example.com" },
			wantErr: `endpoint.url must use ws or wss, got "https"`,
		},
		{
			name: "ping timeout not above interval",
			mutate: func(c *RelayConfig) {
				c.Endpoint.PingInterval = 10 * time.Second
				c.Endpoint.PingTimeout = 10 * time.Second
			},
			wantErr: "endpoint.ping_timeout (10s) must exceed ping_interval (10s)",
		},
		{
			name: "keepalive disabled",
			mutate: func(c *RelayConfig) {
				c.Endpoint.PingInterval = -1
				c.Endpoint.PingTimeout = time.Second
			},
			wantErr: "",
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *RelayConfig) { c.Reconnect.MaxDelay = 500 * time.Millisecond },
			wantErr: "reconnect.max_delay (500ms) cannot be less than initial_delay (1s)",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *RelayConfig) { c.Router.QueueSize = 0 },
			wantErr: "router.queue_size must be >= 1",
		},
		{
			name:    "database disabled skips db checks",
			mutate:  func(c *RelayConfig) { c.Database = DBConfig{} },
			wantErr: "",
		},
		{
			name: "database enabled without host",
			mutate: func(c *RelayConfig) {
				c.Database.Enabled = true
			},
			wantErr: "database.host is required",
		},
		{
			name: "database enabled without password",
			mutate: func(c *RelayConfig) {
				c.Database.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "relay"
				c.Database.User = "relay"
			},
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *RelayConfig) {
				c.Database = DBConfig{Enabled: true, Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "health port out of range",
			mutate:  func(c *RelayConfig) { c.Health.Port = 70000 },
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint.ReadLimit = 4096

	mc := cfg.ManagerConfig()
	if mc.Endpoint != "wss://stream.example.com" {
		t.Errorf("Endpoint = %q", mc.Endpoint)
	}
	if mc.InitialBackoff != DefaultInitialDelay || mc.BackoffStep != DefaultStep || mc.MaxBackoff != DefaultMaxDelay {
		t.Errorf("backoff = %v/%v/%v", mc.InitialBackoff, mc.BackoffStep, mc.MaxBackoff)
	}
	if mc.Client.ReadLimit != 4096 {
		t.Errorf("Client.ReadLimit = %d, want 4096", mc.Client.ReadLimit)
	}
	if mc.Client.PingInterval != DefaultPingInterval {
		t.Errorf("Client.PingInterval = %v, want %v", mc.Client.PingInterval, DefaultPingInterval)
	}
}

func TestPoolConfig(t *testing.T) {
	db := DBConfig{Host: "h", Port: 6543, Name: "n", User: "u", Password: "p", SSLMode: "disable", MaxConns: 8, MinConns: 2}

	pc := db.PoolConfig()
	if pc.Host != "h" || pc.Port != 6543 || pc.Database != "n" || pc.User != "u" || pc.Password != "p" {
		t.Errorf("PoolConfig() = %+v", pc)
	}
	if pc.MaxConns != 8 || pc.MinConns != 2 {
		t.Errorf("MaxConns/MinConns = %d/%d, want 8/2", pc.MaxConns, pc.MinConns)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
