package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// blockingProbe never answers until the monitor stops.
func blockingProbe(probes *atomic.Int32) Probe {
	return func(ctx context.Context) error {
		probes.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestMonitor_TimeoutFiresOnce(t *testing.T) {
	var probes, timeouts atomic.Int32
	fired := make(chan time.Time, 4)

	m := New(Config{Interval: 50 * time.Millisecond, PongTimeout: 30 * time.Millisecond}, blockingProbe(&probes), func() {
		timeouts.Add(1)
		fired <- time.Now()
	}, nil)

	start := time.Now()
	m.Start()
	defer m.Stop()

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed < 80*time.Millisecond {
			t.Errorf("timeout fired after %v, want >= 80ms", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pong timeout never fired")
	}

	time.Sleep(150 * time.Millisecond)
	if n := timeouts.Load(); n != 1 {
		t.Errorf("timeouts = %d, want 1", n)
	}
	if !m.Running() {
		t.Error("monitor should keep running until Stop")
	}
}

func TestMonitor_PongSuppressesTimeout(t *testing.T) {
	var timeouts atomic.Int32
	var m *Monitor
	probed := make(chan struct{}, 1)

	m = New(Config{Interval: 20 * time.Millisecond, PongTimeout: 60 * time.Millisecond}, func(ctx context.Context) error {
		select {
		case probed <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}, func() { timeouts.Add(1) }, nil)

	m.Start()
	defer m.Stop()

	select {
	case <-probed:
	case <-time.After(time.Second):
		t.Fatal("probe never ran")
	}
	m.OnPongReceived()

	time.Sleep(150 * time.Millisecond)
	if n := timeouts.Load(); n != 0 {
		t.Errorf("timeouts = %d, want 0 after pong", n)
	}
}

func TestMonitor_SuccessfulProbeKeepsCycling(t *testing.T) {
	var probes, timeouts atomic.Int32

	m := New(Config{Interval: 10 * time.Millisecond, PongTimeout: 20 * time.Millisecond}, func(ctx context.Context) error {
		probes.Add(1)
		return nil
	}, func() { timeouts.Add(1) }, nil)

	m.Start()
	time.Sleep(120 * time.Millisecond)
	m.Stop()

	if n := probes.Load(); n < 3 {
		t.Errorf("probes = %d, want >= 3", n)
	}
	if n := timeouts.Load(); n != 0 {
		t.Errorf("timeouts = %d, want 0", n)
	}
}

func TestMonitor_ProbeFailureFiresImmediately(t *testing.T) {
	fired := make(chan time.Time, 4)
	var once atomic.Bool

	m := New(Config{Interval: 20 * time.Millisecond, PongTimeout: time.Second}, func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			return errors.New("transport not open")
		}
		<-ctx.Done()
		return ctx.Err()
	}, func() { fired <- time.Now() }, nil)

	start := time.Now()
	m.Start()
	defer m.Stop()

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed > 500*time.Millisecond {
			t.Errorf("probe failure reported after %v, want well before the pong timeout", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback never fired")
	}
}

func TestMonitor_StopPreventsTimeout(t *testing.T) {
	var probes, timeouts atomic.Int32

	m := New(Config{Interval: 10 * time.Millisecond, PongTimeout: 40 * time.Millisecond}, blockingProbe(&probes), func() {
		timeouts.Add(1)
	}, nil)

	m.Start()
	for probes.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	m.Stop()

	time.Sleep(100 * time.Millisecond)
	if n := timeouts.Load(); n != 0 {
		t.Errorf("timeouts = %d, want 0 after Stop", n)
	}
	if m.Running() {
		t.Error("Running() should be false after Stop")
	}
}

func TestMonitor_StartIsIdempotent(t *testing.T) {
	var probes atomic.Int32

	m := New(Config{Interval: 30 * time.Millisecond, PongTimeout: time.Second}, func(ctx context.Context) error {
		probes.Add(1)
		return nil
	}, func() {}, nil)

	m.Start()
	m.Start()
	time.Sleep(45 * time.Millisecond)
	m.Stop()

	if n := probes.Load(); n != 1 {
		t.Errorf("probes = %d, want 1 from a single loop", n)
	}
}

func TestMonitor_Restart(t *testing.T) {
	var probes atomic.Int32

	m := New(Config{Interval: 10 * time.Millisecond, PongTimeout: time.Second}, func(ctx context.Context) error {
		probes.Add(1)
		return nil
	}, func() {}, nil)

	m.Start()
	m.Stop()
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for probes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if probes.Load() == 0 {
		t.Error("restarted monitor never probed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != 25*time.Second || cfg.PongTimeout != 10*time.Second {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}
