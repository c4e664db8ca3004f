// Package client coordinates one persistent messaging session.
//
// A Client owns the transport, the request correlator, the heartbeat and
// the reconnection controller, and publishes session events on its bus.
// Every way a link can end (transport close, transport error, server
// disconnect notification, pong timeout) converges on a single link-lost
// path, which is the only place reconnection is started.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/imlink/internal/config"
	"github.com/rickgao/imlink/internal/event"
	"github.com/rickgao/imlink/internal/heartbeat"
	"github.com/rickgao/imlink/internal/metrics"
	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/reconnect"
	"github.com/rickgao/imlink/internal/rpc"
	"github.com/rickgao/imlink/internal/sdkerr"
	"github.com/rickgao/imlink/internal/transport"
	"github.com/rickgao/imlink/internal/version"
)

// SendRequest describes one outbound message.
type SendRequest struct {
	ChannelID   string
	ChannelType protocol.ChannelType
	Payload     json.RawMessage  // JSON object delivered to recipients as is
	Header      *protocol.Header // nil means protocol.DefaultHeader()
	Topic       string
}

// Client is a session coordinator. It is safe for concurrent use.
type Client struct {
	cfg     config.Config
	logger  *slog.Logger
	bus     *event.Bus
	queue   *event.Queue // owned delivery queue, nil with WithExecutor
	metrics *metrics.Metrics

	rpc       *rpc.Correlator
	transport transport.Channel
	heartbeat *heartbeat.Monitor
	reconnect *reconnect.Controller

	flight   singleflight.Group
	teardown sync.Mutex // held for the whole of Disconnect; connect waits on it

	mu      sync.Mutex
	state   State
	session *protocol.ConnectResult
	linkUp  bool   // current link opened by connect and not yet lost
	epoch   uint64 // bumped by Disconnect to abort in-flight connects
	closed  bool
}

// New validates cfg and builds a disconnected Client.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Client{
		cfg:     cfg,
		logger:  o.logger.With("component", "client"),
		metrics: o.metrics,
	}

	exec := o.executor
	if exec == nil {
		c.queue = event.NewQueue(64, o.logger.With("component", "events"))
		exec = c.queue
	}
	c.bus = event.NewBus(exec, o.logger.With("component", "events"))

	c.rpc = rpc.New(o.logger.With("component", "rpc"))
	c.rpc.SetObserver(c.metrics.ObserveRequest)

	factory := o.factory
	if factory == nil {
		factory = transport.WebSocketFactory(transport.Config{
			URL:              cfg.Server.URL,
			HandshakeTimeout: cfg.Timeouts.Connection,
			WriteTimeout:     transport.DefaultConfig().WriteTimeout,
			UserAgent:        version.UserAgent(),
		}, o.logger.With("component", "transport"))
	}
	c.transport = factory(linkHandler{c})

	c.heartbeat = heartbeat.New(heartbeat.Config{
		Interval:    cfg.Timeouts.PingInterval,
		PongTimeout: cfg.Timeouts.PongTimeout,
	}, c.ping, c.onPongTimeout, o.logger.With("component", "heartbeat"))

	c.reconnect = reconnect.New(reconnect.Config{
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
	}, reconnect.Callbacks{
		OnAttempt: c.onReconnectAttempt,
		OnSuccess: func() { c.logger.Debug("reconnection state reset") },
		OnFailed:  c.onReconnectFailed,
		Reconnect: c.Connect,
	}, o.logger.With("component", "reconnect"))

	c.metrics.SetSessionState(int(StateDisconnected))
	return c, nil
}

// Connect opens the transport and authenticates. It returns nil at once when
// the session is already connected or connecting. Concurrent callers share
// one attempt.
func (c *Client) Connect(ctx context.Context) error {
	_, err, _ := c.flight.Do("connect", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.teardown.Lock()
	c.teardown.Unlock()
	if err := ctx.Err(); err != nil {
		return sdkerr.Network("connect canceled", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return sdkerr.Configuration("client is closed", nil)
	}
	switch c.state {
	case StateConnected, StateConnecting, StateAuthenticating:
		c.mu.Unlock()
		c.logger.Debug("already connected or connecting", "state", c.state)
		return nil
	}
	epoch := c.epoch
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Info("connecting", "url", c.cfg.Server.URL)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Connection)
	err := c.transport.Connect(dialCtx)
	cancel()
	if err != nil {
		c.abandon(epoch)
		return sdkerr.Network("failed to connect to "+c.cfg.Server.URL, err)
	}

	if !c.linkOpened(epoch) {
		c.abandon(epoch)
		return sdkerr.Network("connect aborted", transport.ErrAborted)
	}

	params := protocol.ConnectParams{
		UID:             c.cfg.Auth.UID,
		Token:           c.cfg.Auth.Token,
		DeviceID:        c.cfg.Auth.DeviceID,
		DeviceFlag:      c.cfg.Auth.DeviceFlag,
		ClientTimestamp: time.Now().UnixMilli(),
	}
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Connection)
	res, err := rpc.Invoke[protocol.ConnectResult](authCtx, c.rpc, params, c.cfg.Timeouts.Connection, c.sendFrame)
	cancel()
	if err != nil {
		c.abandon(epoch)
		return sdkerr.Authentication("authentication failed", err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.closed || !c.linkUp {
		c.mu.Unlock()
		c.abandon(epoch)
		return sdkerr.Network("connection lost during authentication", sdkerr.ErrConnectionClosed)
	}
	c.session = &res
	c.setStateLocked(StateConnected)
	// Started under the lock so a concurrent link loss always observes
	// the connected state and stops them.
	c.heartbeat.Start()
	c.reconnect.OnConnectionSuccess()
	c.mu.Unlock()

	c.logger.Info("connected", "uid", c.cfg.Auth.UID, "device_id", c.cfg.Auth.DeviceID, "time_diff_ms", res.TimeDiff)
	c.publish(EventConnect, res)
	return nil
}

// linkOpened marks the freshly opened link as live and moves to
// authenticating, unless a Disconnect happened since epoch.
func (c *Client) linkOpened(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.closed {
		return false
	}
	c.linkUp = true
	c.setStateLocked(StateAuthenticating)
	return true
}

// abandon tears down a failed connect attempt.
func (c *Client) abandon(epoch uint64) {
	c.mu.Lock()
	current := c.epoch == epoch
	if current {
		c.linkUp = false
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if current {
		c.transport.Disconnect()
	}
}

// Send publishes a message and waits for the server to accept it.
func (c *Client) Send(ctx context.Context, req SendRequest) (protocol.SendResult, error) {
	var zero protocol.SendResult

	if !c.IsConnected() {
		return zero, sdkerr.NotConnected("")
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		return zero, invalidChannel("channel id is required")
	}
	if !req.ChannelType.Valid() {
		return zero, invalidChannel("unknown channel type " + req.ChannelType.String())
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return zero, sdkerr.Protocol("payload must be valid JSON", nil)
	}

	header := protocol.DefaultHeader()
	if req.Header != nil {
		header = *req.Header
	}

	params := protocol.SendParams{
		ClientMsgNo: newClientMsgNo(),
		ChannelID:   req.ChannelID,
		ChannelType: req.ChannelType,
		Payload:     req.Payload,
		Header:      header,
		Topic:       req.Topic,
	}

	res, err := rpc.Invoke[protocol.SendResult](ctx, c.rpc, params, c.cfg.Timeouts.Request, c.sendFrame)
	if err != nil {
		c.logger.Warn("send failed", "channel_id", req.ChannelID, "error", err)
		return zero, err
	}

	c.publish(EventSendAck, SendAck{
		ClientMsgNo: params.ClientMsgNo,
		ChannelID:   req.ChannelID,
		ChannelType: req.ChannelType,
		MessageID:   res.MessageID,
		MessageSeq:  res.MessageSeq,
	})
	return res, nil
}

// Disconnect ends the session and suppresses reconnection until the next
// successful Connect. Safe to call in any state. A Connect issued while it
// runs starts once the teardown is complete.
func (c *Client) Disconnect() {
	c.teardown.Lock()
	defer c.teardown.Unlock()

	c.reconnect.Stop(true)

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.linkUp = false
	c.session = nil
	c.setStateLocked(StateDisconnecting)
	c.mu.Unlock()

	c.heartbeat.Stop()
	c.transport.Disconnect()
	c.rpc.CancelAll()

	c.mu.Lock()
	if c.epoch == epoch && c.state == StateDisconnecting {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	c.logger.Info("disconnected")
}

// Close disconnects and shuts the client down. Queued events are still
// delivered. A closed client cannot reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	if c.queue != nil {
		c.queue.Close()
	}
	return nil
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the session is authenticated.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Session returns the result of the last successful authentication while
// the session is connected.
func (c *Client) Session() (protocol.ConnectResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return protocol.ConnectResult{}, false
	}
	return *c.session, true
}

// Config returns the effective configuration.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Bus exposes the event bus, for scoped subscriptions.
func (c *Client) Bus() *event.Bus {
	return c.bus
}

// Subscribe registers h for kind.
func (c *Client) Subscribe(kind event.Kind, h event.Handler) event.Token {
	return c.bus.Subscribe(kind, h)
}

// Unsubscribe removes a registration.
func (c *Client) Unsubscribe(kind event.Kind, token event.Token) bool {
	return c.bus.Unsubscribe(kind, token)
}

// UnsubscribeAll removes every registration for kinds, or all of them.
func (c *Client) UnsubscribeAll(kinds ...event.Kind) {
	c.bus.UnsubscribeAll(kinds...)
}

func (c *Client) sendFrame(data []byte) error {
	if !c.transport.Send(string(data)) {
		return transport.ErrNotOpen
	}
	return nil
}

func (c *Client) ping(ctx context.Context) error {
	_, err := rpc.Invoke[protocol.PingResult](ctx, c.rpc, protocol.PingParams{}, c.cfg.Timeouts.PongTimeout, c.sendFrame)
	return err
}

func (c *Client) publish(kind event.Kind, payload any) {
	c.metrics.IncEventsPublished(string(kind))
	c.bus.Publish(kind, payload)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", "from", c.state, "to", s)
	c.state = s
	c.metrics.SetSessionState(int(s))
}

func invalidChannel(msg string) error {
	return &sdkerr.Error{Kind: sdkerr.KindConfiguration, Code: sdkerr.CodeInvalidChannel, Message: msg}
}

func newClientMsgNo() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
