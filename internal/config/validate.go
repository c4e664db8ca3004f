package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/imlink/internal/sdkerr"
)

// Validate checks that all required fields are set and values are valid.
// Every failure is a configuration error naming the offending field.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Auth.UID) == "" {
		return invalid("auth.uid is required")
	}
	if strings.TrimSpace(c.Auth.Token) == "" {
		return invalid("auth.token is required")
	}
	if !c.Auth.DeviceFlag.Valid() {
		return invalid(fmt.Sprintf("auth.device_flag must be between 1 and 4, got %d", c.Auth.DeviceFlag))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"timeouts.connection", c.Timeouts.Connection},
		{"timeouts.request", c.Timeouts.Request},
		{"timeouts.ping_interval", c.Timeouts.PingInterval},
		{"timeouts.pong_timeout", c.Timeouts.PongTimeout},
		{"reconnect.initial_delay", c.Reconnect.InitialDelay},
	} {
		if d.value <= 0 {
			return invalid(fmt.Sprintf("%s must be positive, got %v", d.name, d.value))
		}
	}

	if c.Reconnect.MaxAttempts < 0 {
		return invalid(fmt.Sprintf("reconnect.max_attempts cannot be negative, got %d", c.Reconnect.MaxAttempts))
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return invalid(fmt.Sprintf("reconnect.max_delay (%v) cannot be less than initial_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay))
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid(fmt.Sprintf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return invalid("journal.batch_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return invalid("journal.flush_interval must be positive")
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return invalid("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return sdkerr.Configuration("server.url is invalid", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return invalid(fmt.Sprintf("server.url must use ws:// or wss://, got %q", c.Server.URL))
	}
	if u.Host == "" {
		return invalid("server.url must include a host")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return invalid(fmt.Sprintf("%s.host is required", prefix))
	}
	if db.Name == "" {
		return invalid(fmt.Sprintf("%s.name is required", prefix))
	}
	if db.User == "" {
		return invalid(fmt.Sprintf("%s.user is required", prefix))
	}
	if db.MaxConns < 1 {
		return invalid(fmt.Sprintf("%s.max_conns must be >= 1", prefix))
	}
	if db.MinConns < 0 {
		return invalid(fmt.Sprintf("%s.min_conns must be >= 0", prefix))
	}
	if db.MinConns > db.MaxConns {
		return invalid(fmt.Sprintf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns))
	}
	return nil
}

func invalid(msg string) error {
	return sdkerr.Configuration(msg, nil)
}
