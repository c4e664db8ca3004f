package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// webSocket implements Channel over gorilla/websocket.
type webSocket struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu         sync.Mutex
	link       *link
	connecting bool
	gen        uint64 // bumped by Disconnect to cancel an in-flight dial
}

// link is one physical connection. Terminal callbacks are claimed through
// once, so close and error are mutually exclusive.
type link struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	once     sync.Once
	silenced atomic.Bool

	// dispatchMu is read-held while OnMessage runs. Disconnect takes it
	// exclusively to silence the link, so no message callback is running
	// or can start once Disconnect returns.
	dispatchMu sync.RWMutex
}

// NewWebSocket creates a WebSocket channel reporting to h.
func NewWebSocket(cfg Config, h Handler, logger *slog.Logger) Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	return &webSocket{
		cfg:     cfg,
		handler: h,
		logger:  logger,
	}
}

// WebSocketFactory returns a Factory producing WebSocket channels.
func WebSocketFactory(cfg Config, logger *slog.Logger) Factory {
	return func(h Handler) Channel {
		return NewWebSocket(cfg, h, logger)
	}
}

// Connect dials the server. Returns nil immediately if a link is already open.
func (w *webSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.link != nil {
		w.mu.Unlock()
		return nil
	}
	if w.connecting {
		w.mu.Unlock()
		return ErrAlreadyOpen
	}
	w.connecting = true
	gen := w.gen
	w.mu.Unlock()

	header := http.Header{}
	if w.cfg.UserAgent != "" {
		header.Set("User-Agent", w.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, header)

	w.mu.Lock()
	w.connecting = false
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if w.gen != gen {
		// Disconnect was called while dialing.
		w.mu.Unlock()
		conn.Close()
		return ErrAborted
	}
	l := &link{conn: conn}
	w.link = l
	w.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		w.logger.Debug("server ping")
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	w.logger.Debug("websocket connected", "url", w.cfg.URL)
	w.handler.OnOpen()

	go w.readLoop(l)

	return nil
}

// Disconnect closes the current link without reporting it. It waits for an
// in-flight OnMessage to return, so it must not be called from OnMessage;
// use Abort there.
func (w *webSocket) Disconnect() {
	w.mu.Lock()
	w.gen++
	l := w.link
	w.link = nil
	w.mu.Unlock()

	if l == nil {
		return
	}

	l.dispatchMu.Lock()
	l.silenced.Store(true)
	l.dispatchMu.Unlock()

	l.once.Do(func() {
		l.writeMu.Lock()
		l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnected"),
			time.Now().Add(time.Second),
		)
		l.writeMu.Unlock()
		l.conn.Close()
	})

	w.logger.Debug("websocket disconnected")
}

// Abort drops the current link and reports an abnormal closure.
func (w *webSocket) Abort(reason string) {
	w.mu.Lock()
	l := w.link
	w.link = nil
	w.mu.Unlock()

	if l == nil {
		return
	}

	w.logger.Debug("websocket aborted", "reason", reason)
	w.finish(l, func() {
		w.handler.OnClose(CloseInfo{Code: CloseAbnormal, Reason: reason})
	})
}

// Send writes one text frame.
func (w *webSocket) Send(text string) bool {
	w.mu.Lock()
	l := w.link
	w.mu.Unlock()

	if l == nil {
		return false
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		w.logger.Debug("write failed", "error", err)
		return false
	}
	return true
}

// IsOpen reports whether a link is open.
func (w *webSocket) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.link != nil
}

// readLoop delivers frames until the link fails, then reports the failure.
func (w *webSocket) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.link == l {
				w.link = nil
			}
			w.mu.Unlock()

			w.finish(l, func() {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					w.handler.OnClose(NewCloseInfo(ce.Code, ce.Text))
					return
				}
				w.handler.OnError(err)
			})
			return
		}

		if !w.dispatch(l, string(data)) {
			return
		}
	}
}

// dispatch delivers one message unless l was silenced.
func (w *webSocket) dispatch(l *link, text string) bool {
	l.dispatchMu.RLock()
	defer l.dispatchMu.RUnlock()
	if l.silenced.Load() {
		return false
	}
	w.handler.OnMessage(text)
	return true
}

// finish closes l and runs report unless the link was already finished or
// silenced.
func (w *webSocket) finish(l *link, report func()) {
	l.once.Do(func() {
		l.conn.Close()
		if !l.silenced.Load() {
			report()
		}
	})
}
