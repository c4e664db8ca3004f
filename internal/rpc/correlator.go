// Package rpc correlates requests with their responses over a single link.
//
// Every Call registers a pending entry keyed by a fresh UUID. The entry is
// resolved exactly once: by a matching response, by its timer, by the
// caller's context, or by CancelAll. Resolution is a claim-and-remove under
// one lock, so whichever path removes the entry is the only one that
// delivers an outcome.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/sdkerr"
)

// SendFunc writes one serialized frame to the link.
type SendFunc func(data []byte) error

// NotificationHandler receives frames that carry a method and no id.
type NotificationHandler func(method string, params json.RawMessage)

// Observer is told about every finished Call.
type Observer func(method string, elapsed time.Duration, err error)

type outcome struct {
	result json.RawMessage
	err    error
}

type pending struct {
	method string
	done   chan outcome // buffered, receives exactly one outcome
	timer  *time.Timer
}

// Correlator tracks in-flight requests.
type Correlator struct {
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[string]*pending
	observer Observer
}

// New creates a Correlator.
func New(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		logger:  logger,
		pending: make(map[string]*pending),
	}
}

// SetObserver installs a hook called after every Call completes.
func (c *Correlator) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// Call sends a request built from params and waits for its outcome.
func (c *Correlator) Call(ctx context.Context, params protocol.Params, timeout time.Duration, send SendFunc) (json.RawMessage, error) {
	method := params.Method()
	id := uuid.NewString()

	data, err := json.Marshal(protocol.Request{Method: method, Params: params, ID: id})
	if err != nil {
		return nil, sdkerr.Protocol("failed to encode "+method+" request", err)
	}

	start := time.Now()
	p := &pending{method: method, done: make(chan outcome, 1)}

	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		if c.claim(id, p) {
			p.done <- outcome{err: sdkerr.Timeout(fmt.Sprintf("request timeout for method %s (id: %s)", method, id))}
		}
	})
	c.mu.Unlock()

	c.logger.Debug("sending frame", "method", method, "id", id)

	if err := send(data); err != nil {
		if c.claim(id, p) {
			p.timer.Stop()
			err = sdkerr.Network("failed to send "+method+" request", err)
			c.observe(method, start, err)
			return nil, err
		}
		// Already resolved by another path; fall through and take it.
	}

	select {
	case o := <-p.done:
		c.observe(method, start, o.err)
		return o.result, o.err
	case <-ctx.Done():
		if c.claim(id, p) {
			p.timer.Stop()
			c.observe(method, start, ctx.Err())
			return nil, ctx.Err()
		}
		o := <-p.done
		c.observe(method, start, o.err)
		return o.result, o.err
	}
}

// Invoke is Call with the result decoded into R. An empty result decodes to
// the zero value.
func Invoke[R any](ctx context.Context, c *Correlator, params protocol.Params, timeout time.Duration, send SendFunc) (R, error) {
	var r R
	raw, err := c.Call(ctx, params, timeout, send)
	if err != nil {
		return r, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, sdkerr.Protocol("malformed "+params.Method()+" result", err)
	}
	return r, nil
}

// Notify sends a one-way frame with no id.
func (c *Correlator) Notify(params protocol.Params, send SendFunc) error {
	data, err := json.Marshal(protocol.Notification{Method: params.Method(), Params: params})
	if err != nil {
		return sdkerr.Protocol("failed to encode "+params.Method()+" notification", err)
	}
	c.logger.Debug("sending frame", "method", params.Method())
	if err := send(data); err != nil {
		return sdkerr.Network("failed to send "+params.Method()+" notification", err)
	}
	return nil
}

// HandleMessage routes one inbound frame. Responses resolve the matching
// request; a response for an unknown id is dropped. Notifications go to
// onNotification. A malformed frame is returned as a protocol error.
func (c *Correlator) HandleMessage(text string, onNotification NotificationHandler) error {
	f, err := protocol.DecodeFrame([]byte(text))
	if err != nil {
		return err
	}

	if !f.HasID() {
		c.logger.Debug("received frame", "method", f.Method)
		if onNotification != nil {
			onNotification(f.Method, f.Params)
		}
		return nil
	}

	id, err := f.RequestID()
	if err != nil {
		return err
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown request", "id", id)
		return nil
	}

	p.timer.Stop()
	c.logger.Debug("received frame", "method", p.method, "id", id)

	if f.Error != nil {
		p.done <- outcome{err: f.Error}
		return nil
	}
	p.done <- outcome{result: f.Result}
	return nil
}

// CancelAll rejects every pending request with a connection-closed error.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*pending)
	c.mu.Unlock()

	if len(drained) == 0 {
		return
	}

	c.logger.Debug("cancelling pending requests", "count", len(drained))
	for _, p := range drained {
		p.timer.Stop()
		p.done <- outcome{err: sdkerr.Network("connection closed", sdkerr.ErrConnectionClosed)}
	}
}

// Pending returns the number of requests awaiting an outcome.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// claim removes id if it still maps to p.
func (c *Correlator) claim(id string, p *pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[id] != p {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Correlator) observe(method string, start time.Time, err error) {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()
	if o != nil {
		o(method, time.Since(start), err)
	}
}
