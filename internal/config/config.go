package config

import (
	"time"

	"github.com/rickgao/imlink/internal/protocol"
)

// Config is the root configuration of a session.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts" toml:"timeouts"`
	Reconnect ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	Debug     bool            `yaml:"debug" toml:"debug"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Journal   JournalConfig   `yaml:"journal" toml:"journal"`
}

// ServerConfig locates the messaging server.
type ServerConfig struct {
	URL string `yaml:"url" toml:"url"` // ws:// or wss://
}

// AuthConfig holds the credentials sent in the connect request.
type AuthConfig struct {
	UID        string              `yaml:"uid" toml:"uid"`
	Token      string              `yaml:"token" toml:"token"`
	DeviceID   string              `yaml:"device_id" toml:"device_id"` // generated when empty
	DeviceFlag protocol.DeviceFlag `yaml:"device_flag" toml:"device_flag"`
}

// TimeoutsConfig bounds every blocking step of the session.
type TimeoutsConfig struct {
	Connection   time.Duration `yaml:"connection" toml:"connection"` // transport open and authentication
	Request      time.Duration `yaml:"request" toml:"request"`
	PingInterval time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout" toml:"pong_timeout"`
}

// ReconnectConfig holds the backoff schedule.
type ReconnectConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts"` // 0 disables reconnection
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Port    int    `yaml:"port" toml:"port"`
	Path    string `yaml:"path" toml:"path"`
}

// JournalConfig holds the session lifecycle journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	Database      DBConfig      `yaml:"database" toml:"database"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}
