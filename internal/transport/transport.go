// Package transport owns the physical WebSocket link of a session.
//
// The Channel raises open, message, close and error callbacks on a Handler.
// Close and error are terminal: exactly one of them fires per link, and none
// fire once Disconnect has returned.
package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyOpen = errors.New("transport already open")
	ErrAborted     = errors.New("transport aborted")
	ErrNotOpen     = errors.New("transport not open")
)

// CloseNormal is the RFC 6455 normal closure code.
const CloseNormal = 1000

// CloseAbnormal is reported when the link ends without a close frame.
const CloseAbnormal = 1006

// CloseInfo describes how a link ended.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// NewCloseInfo builds a CloseInfo, deriving WasClean from the code.
func NewCloseInfo(code int, reason string) CloseInfo {
	return CloseInfo{Code: code, Reason: reason, WasClean: code == CloseNormal}
}

// Handler receives link events.
type Handler interface {
	OnOpen()
	OnMessage(text string)
	OnClose(info CloseInfo)
	OnError(err error)
}

// Channel is one logical transport that can be opened repeatedly.
type Channel interface {
	// Connect blocks until the link is open or fails.
	Connect(ctx context.Context) error

	// Send queues a text frame. It returns false when the link is not open
	// or the write fails.
	Send(text string) bool

	// Disconnect closes the link with a normal closure and silences every
	// later callback for it. No callback for the link runs after it
	// returns. Safe to call in any state, except from inside OnMessage.
	Disconnect()

	// Abort closes the link and reports it to OnClose as an abnormal
	// closure. It does not wait for callbacks and may be called from any
	// of them. No-op when no link is open.
	Abort(reason string)

	// IsOpen reports whether a link is currently open.
	IsOpen() bool
}

// Factory builds a Channel that reports to h.
type Factory func(h Handler) Channel

// Config configures the WebSocket channel.
type Config struct {
	URL              string        // ws:// or wss:// endpoint
	HandshakeTimeout time.Duration // upper bound for the opening handshake
	WriteTimeout     time.Duration // write deadline per frame
	UserAgent        string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}
