package client

import (
	"log/slog"

	"github.com/rickgao/imlink/internal/event"
	"github.com/rickgao/imlink/internal/metrics"
	"github.com/rickgao/imlink/internal/transport"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	executor event.Executor
	factory  transport.Factory
	metrics  *metrics.Metrics
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithExecutor delivers events through exec instead of a private queue.
// An executor that runs jobs inline runs MESSAGE handlers on the transport
// read goroutine; such handlers must not call Disconnect or Close.
func WithExecutor(exec event.Executor) Option {
	return func(o *options) {
		o.executor = exec
	}
}

// WithTransportFactory replaces the WebSocket transport.
func WithTransportFactory(f transport.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithMetrics records session metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
