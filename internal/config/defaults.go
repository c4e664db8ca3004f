package config

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/imlink/internal/protocol"
)

// Default values for optional configuration fields.
const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultRequestTimeout    = 15 * time.Second
	DefaultPingInterval      = 25 * time.Second
	DefaultPongTimeout       = 10 * time.Second
	DefaultMaxAttempts       = 5
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultDeviceFlag        = protocol.DeviceApp
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultBatchSize         = 100
	DefaultFlushInterval     = 1 * time.Second
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// deviceIDLength is the number of hex characters in a generated device id.
const deviceIDLength = 16

// Default returns a Config populated with every documented default.
// Server URL and credentials are left empty.
func Default() Config {
	return Config{
		Auth: AuthConfig{
			DeviceFlag: DefaultDeviceFlag,
		},
		Timeouts: TimeoutsConfig{
			Connection:   DefaultConnectionTimeout,
			Request:      DefaultRequestTimeout,
			PingInterval: DefaultPingInterval,
			PongTimeout:  DefaultPongTimeout,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  DefaultMaxAttempts,
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
			Path: DefaultMetricsPath,
		},
		Journal: JournalConfig{
			Database: DBConfig{
				Port:     DefaultDBPort,
				SSLMode:  DefaultDBSSLMode,
				MaxConns: DefaultMaxConns,
				MinConns: DefaultMinConns,
			},
			BatchSize:     DefaultBatchSize,
			FlushInterval: DefaultFlushInterval,
		},
	}
}

// NewDeviceID returns a random 16 character hex device id.
func NewDeviceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:deviceIDLength]
}

// ApplyDefaults fills derived fields that have no static default.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Auth.DeviceID) == "" {
		c.Auth.DeviceID = NewDeviceID()
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Journal.Database.SSLMode == "" {
		c.Journal.Database.SSLMode = DefaultDBSSLMode
	}
}
