// Package reconnect schedules backoff-governed reconnection attempts after
// an authenticated session is lost.
package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxDelay caps the exponential backoff.
const DefaultMaxDelay = 30 * time.Second

// Delay returns the wait before attempt n (1-based):
// min(initial*2^(n-1), max). A non-positive max means DefaultMaxDelay.
func Delay(initial, max time.Duration, attempt int) time.Duration {
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	d := initial
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// Config holds reconnection limits.
type Config struct {
	MaxAttempts  int // 0 disables reconnection
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Callbacks connect the controller to its owner. Reconnect is required.
type Callbacks struct {
	OnAttempt func(attempt int, delay time.Duration)
	OnSuccess func()
	OnFailed  func()

	// Reconnect performs one attempt. Its context is cancelled by Stop.
	Reconnect func(ctx context.Context) error
}

// State describes what the controller is doing.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateConnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateConnecting:
		return "connecting"
	default:
		return "unknown"
	}
}

// Controller runs the reconnection schedule.
type Controller struct {
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	mu           sync.Mutex
	attempts     int
	reconnecting bool
	manual       bool
	state        State
	gen          uint64 // bumped whenever the current schedule is invalidated
	cancel       context.CancelFunc
}

// New creates an idle Controller.
func New(cfg Config, cb Callbacks, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	return &Controller{
		cfg:    cfg,
		cb:     cb,
		logger: logger,
	}
}

// Start begins reconnecting. It does nothing and returns false when already
// reconnecting, after a manual disconnect, when the session never
// authenticated, or when reconnection is disabled.
func (c *Controller) Start(wasConnected bool) bool {
	c.mu.Lock()
	if c.reconnecting || c.manual || !wasConnected {
		c.mu.Unlock()
		return false
	}
	if c.cfg.MaxAttempts <= 0 {
		c.mu.Unlock()
		c.logger.Debug("reconnection disabled", "max_attempts", c.cfg.MaxAttempts)
		return false
	}
	c.reconnecting = true
	c.mu.Unlock()

	c.schedule()
	return true
}

// Stop cancels any in-flight wait or attempt. A manual stop also resets the
// attempt counter and blocks Start until the next successful connection.
func (c *Controller) Stop(manual bool) {
	c.mu.Lock()
	c.manual = manual
	c.reconnecting = false
	c.state = StateIdle
	c.invalidateLocked()
	if manual {
		c.attempts = 0
	}
	c.mu.Unlock()
}

// OnConnectionSuccess resets the controller after a session is established.
func (c *Controller) OnConnectionSuccess() {
	c.mu.Lock()
	c.attempts = 0
	c.reconnecting = false
	c.manual = false
	c.state = StateIdle
	c.invalidateLocked()
	c.mu.Unlock()

	if c.cb.OnSuccess != nil {
		c.cb.OnSuccess()
	}
}

// Attempts returns the attempt count of the current schedule.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Reconnecting reports whether a schedule is active.
func (c *Controller) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnecting
}

// ManualDisconnect reports whether a manual stop is in effect.
func (c *Controller) ManualDisconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) schedule() {
	c.mu.Lock()
	if !c.reconnecting {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.cfg.MaxAttempts {
		c.attempts = 0
		c.reconnecting = false
		c.state = StateIdle
		c.mu.Unlock()

		c.logger.Warn("max reconnect attempts reached", "max_attempts", c.cfg.MaxAttempts)
		if c.cb.OnFailed != nil {
			c.cb.OnFailed()
		}
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := Delay(c.cfg.InitialDelay, c.cfg.MaxDelay, attempt)

	c.invalidateLocked()
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateWaiting
	c.mu.Unlock()

	c.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
	if c.cb.OnAttempt != nil {
		c.cb.OnAttempt(attempt, delay)
	}

	go c.run(ctx, gen, attempt, delay)
}

func (c *Controller) run(ctx context.Context, gen uint64, attempt int, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !c.current(gen, StateConnecting) {
		c.logger.Debug("reconnect cancelled", "attempt", attempt)
		return
	}

	err := c.cb.Reconnect(ctx)

	if !c.current(gen, StateIdle) {
		// Stopped, or the owner already reported success.
		return
	}

	if err != nil {
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		c.schedule()
		return
	}

	c.OnConnectionSuccess()
}

// current reports whether gen is still the active schedule and, if so,
// moves to state.
func (c *Controller) current(gen uint64, state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reconnecting || c.gen != gen {
		return false
	}
	c.state = state
	return true
}

func (c *Controller) invalidateLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
