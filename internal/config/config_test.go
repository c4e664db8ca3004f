package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/sdkerr"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  url: wss://im.example.com/ws
auth:
  uid: user-1
  token: tok
  device_id: dev-1
  device_flag: 2
timeouts:
  request: 5s
reconnect:
  max_attempts: 0
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "wss://im.example.com/ws" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Auth.UID != "user-1" || cfg.Auth.Token != "tok" || cfg.Auth.DeviceID != "dev-1" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Auth.DeviceFlag != protocol.DeviceWeb {
		t.Errorf("Auth.DeviceFlag = %v, want web", cfg.Auth.DeviceFlag)
	}
	if cfg.Timeouts.Request != 5*time.Second {
		t.Errorf("Timeouts.Request = %v, want 5s", cfg.Timeouts.Request)
	}
	if cfg.Timeouts.PingInterval != DefaultPingInterval {
		t.Errorf("Timeouts.PingInterval = %v, want default %v", cfg.Timeouts.PingInterval, DefaultPingInterval)
	}
	if cfg.Reconnect.MaxAttempts != 0 {
		t.Errorf("Reconnect.MaxAttempts = %d, explicit 0 must be preserved", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoadTOML(t *testing.T) {
	content := `
debug = true

[server]
url = "ws://localhost:5200"

[auth]
uid = "user-2"
token = "secret"

[timeouts]
pong_timeout = "3s"

[reconnect]
max_attempts = 7
initial_delay = "500ms"
`
	path := writeTempFile(t, "config.toml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.Server.URL != "ws://localhost:5200" || cfg.Auth.UID != "user-2" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeouts.PongTimeout != 3*time.Second {
		t.Errorf("Timeouts.PongTimeout = %v, want 3s", cfg.Timeouts.PongTimeout)
	}
	if cfg.Reconnect.MaxAttempts != 7 || cfg.Reconnect.InitialDelay != 500*time.Millisecond {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Reconnect.MaxDelay != DefaultMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default", cfg.Reconnect.MaxDelay)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_IM_TOKEN", "secret123")

	yaml := `
server:
  url: wss://im.example.com/ws
auth:
  uid: user-1
  token: ${TEST_IM_TOKEN}
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "secret123" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
server:
  url: wss://im.example.com/ws
auth:
  uid: user-1
  token: tok
metrics:
  path: ""
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if len(cfg.Auth.DeviceID) != 16 {
		t.Errorf("Auth.DeviceID = %q, want 16 generated hex chars", cfg.Auth.DeviceID)
	}
	if cfg.Auth.DeviceFlag != DefaultDeviceFlag {
		t.Errorf("Auth.DeviceFlag = %v, want default %v", cfg.Auth.DeviceFlag, DefaultDeviceFlag)
	}
	if cfg.Timeouts.Connection != DefaultConnectionTimeout {
		t.Errorf("Timeouts.Connection = %v, want default %v", cfg.Timeouts.Connection, DefaultConnectionTimeout)
	}
	if cfg.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Journal.BatchSize != DefaultBatchSize {
		t.Errorf("Journal.BatchSize = %d, want default %d", cfg.Journal.BatchSize, DefaultBatchSize)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeTempFile(t, "bad.yaml", "server: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeTempFile(t, "bad.toml", "server = ")); err == nil {
		t.Error("expected error for malformed toml")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "server:\n  url: http://wrong\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, sdkerr.ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
}

func TestNewDeviceID(t *testing.T) {
	a, b := NewDeviceID(), NewDeviceID()
	if len(a) != 16 || a == b {
		t.Errorf("NewDeviceID() = %q, %q", a, b)
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Server.URL = "wss://im.example.com/ws"
	cfg.Auth.UID = "user-1"
	cfg.Auth.Token = "tok"
	cfg.Auth.DeviceID = "dev"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "server.url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *Config) { c.Server.URL = "http://im.example.com" },
			wantErr: `server.url must use ws:// or wss://, got "http://im.example.com"`,
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Server.URL = "ws://" },
			wantErr: "server.url must include a host",
		},
		{
			name:    "blank uid",
			mutate:  func(c *Config) { c.Auth.UID = "   " },
			wantErr: "auth.uid is required",
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Auth.Token = "" },
			wantErr: "auth.token is required",
		},
		{
			name:    "bad device flag",
			mutate:  func(c *Config) { c.Auth.DeviceFlag = 9 },
			wantErr: "auth.device_flag must be between 1 and 4, got 9",
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Timeouts.Request = 0 },
			wantErr: "timeouts.request must be positive, got 0s",
		},
		{
			name:    "negative pong timeout",
			mutate:  func(c *Config) { c.Timeouts.PongTimeout = -time.Second },
			wantErr: "timeouts.pong_timeout must be positive, got -1s",
		},
		{
			name:    "zero initial delay",
			mutate:  func(c *Config) { c.Reconnect.InitialDelay = 0 },
			wantErr: "reconnect.initial_delay must be positive, got 0s",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Reconnect.MaxAttempts = -1 },
			wantErr: "reconnect.max_attempts cannot be negative, got -1",
		},
		{
			name:    "zero attempts disables reconnection",
			mutate:  func(c *Config) { c.Reconnect.MaxAttempts = 0 },
			wantErr: "",
		},
		{
			name: "max delay below initial",
			mutate: func(c *Config) {
				c.Reconnect.InitialDelay = 10 * time.Second
				c.Reconnect.MaxDelay = 5 * time.Second
			},
			wantErr: "reconnect.max_delay (5s) cannot be less than initial_delay (10s)",
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "metrics port ignored when disabled",
			mutate:  func(c *Config) { c.Metrics.Port = 0 },
			wantErr: "",
		},
		{
			name:    "journal missing host",
			mutate:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "im", User: "user", MaxConns: 2, MinConns: 5}
			},
			wantErr: "journal.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "valid journal",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database.Host = "localhost"
				c.Journal.Database.Name = "im"
				c.Journal.Database.User = "user"
			},
			wantErr: "",
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
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
			}
			if !errors.Is(err, sdkerr.ErrConfiguration) {
				t.Errorf("Validate() error should be a configuration error")
			}
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestApplyDefaults_MaxDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Reconnect.InitialDelay = 2 * time.Second
	cfg.Reconnect.MaxDelay = 0

	cfg.ApplyDefaults()

	if cfg.Reconnect.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", cfg.Reconnect.MaxDelay, DefaultMaxDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after ApplyDefaults error = %v", err)
	}

	cfg.Reconnect.MaxDelay = 5 * time.Second
	cfg.ApplyDefaults()
	if cfg.Reconnect.MaxDelay != 5*time.Second {
		t.Errorf("ApplyDefaults overwrote MaxDelay: %v", cfg.Reconnect.MaxDelay)
	}
}
