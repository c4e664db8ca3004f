// Package heartbeat detects liveness loss on an open session.
//
// A Monitor waits Interval, runs the probe and arms a pong timer of
// PongTimeout. The timer is disarmed by OnPongReceived or by a successful
// probe. If it expires, or the probe fails first, the timeout callback fires
// once for that cycle.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config holds heartbeat timing.
type Config struct {
	Interval    time.Duration
	PongTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    25 * time.Second,
		PongTimeout: 10 * time.Second,
	}
}

// Probe performs one liveness round trip. The context is cancelled by Stop.
type Probe func(ctx context.Context) error

// Monitor runs the probe cycle.
type Monitor struct {
	cfg       Config
	probe     Probe
	onTimeout func()
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	seq     uint64
	armed   uint64 // token of the armed pong timer, 0 when disarmed
	timer   *time.Timer
}

// New creates a stopped Monitor.
func New(cfg Config, probe Probe, onTimeout func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		probe:     probe,
		onTimeout: onTimeout,
		logger:    logger,
	}
}

// Start begins the probe cycle. No-op if already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel

	go m.loop(ctx)

	m.logger.Debug("heartbeat started", "interval", m.cfg.Interval, "pong_timeout", m.cfg.PongTimeout)
}

// Stop ends the cycle and disarms any pending pong timer. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.running = false
	m.cancel()
	m.disarmLocked()

	m.logger.Debug("heartbeat stopped")
}

// OnPongReceived disarms the current pong timer. Late or duplicate pongs
// are ignored.
func (m *Monitor) OnPongReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmLocked()
}

// Running reports whether the cycle is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context) {
	wait := time.NewTimer(m.cfg.Interval)
	defer wait.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}

		token, ok := m.arm(ctx)
		if !ok {
			return
		}
		err := m.probe(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			if m.claim(token) {
				m.logger.Warn("heartbeat probe failed", "error", err)
				m.onTimeout()
			}
		} else {
			m.OnPongReceived()
		}

		wait.Reset(m.cfg.Interval)
	}
}

func (m *Monitor) arm(ctx context.Context) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return 0, false
	}

	m.seq++
	token := m.seq
	m.armed = token
	m.timer = time.AfterFunc(m.cfg.PongTimeout, func() {
		if m.claim(token) {
			m.logger.Warn("pong timeout", "timeout", m.cfg.PongTimeout)
			m.onTimeout()
		}
	})
	return token, true
}

// claim disarms token if it is still the armed timer of a running monitor.
func (m *Monitor) claim(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.armed != token {
		return false
	}
	m.disarmLocked()
	return true
}

func (m *Monitor) disarmLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.armed = 0
}
