// Package sdkerr defines the error taxonomy shared by every imlink component.
//
// Errors carry a Kind used for handling decisions and a numeric Code that is
// surfaced to event observers. Kinds compare with errors.Is:
//
//	if errors.Is(err, sdkerr.ErrTimeout) { ... }
package sdkerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindNetwork        Kind = "network"
	KindAuthentication Kind = "authentication"
	KindTimeout        Kind = "timeout"
	KindNotConnected   Kind = "not_connected"
	KindProtocol       Kind = "protocol"
	KindServer         Kind = "server"
)

// Retryable reports whether an operation failing with this kind may succeed
// after a reconnect.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindNotConnected:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned by imlink.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNotConnected   = &Error{Kind: KindNotConnected}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrServer         = &Error{Kind: KindServer}
)

// ErrConnectionClosed is the cause attached to requests rejected because the
// link went away.
var ErrConnectionClosed = errors.New("connection closed")

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Configuration builds a configuration error. These are never retried.
func Configuration(msg string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeInvalidConfig, Message: msg, Err: cause}
}

// Network builds a transport-level error.
func Network(msg string, cause error) *Error {
	return &Error{Kind: KindNetwork, Code: CodeNetworkError, Message: msg, Err: cause}
}

// Authentication builds an authentication handshake error.
func Authentication(msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeAuthFailed, Message: msg, Err: cause}
}

// Timeout builds a request or pong timeout error.
func Timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Code: CodeConnectionTimeout, Message: msg}
}

// NotConnected builds the error returned by operations that need a session.
func NotConnected(msg string) *Error {
	if msg == "" {
		msg = "not connected to server"
	}
	return &Error{Kind: KindNotConnected, Code: CodeNotConnected, Message: msg}
}

// Protocol builds an error for a malformed or unexpected frame.
func Protocol(msg string, cause error) *Error {
	return &Error{Kind: KindProtocol, Code: CodeUnknown, Message: msg, Err: cause}
}

// CodeOf extracts the numeric code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	var c interface{ SDKCode() Code }
	if errors.As(err, &c) {
		return c.SDKCode()
	}
	return CodeUnknown
}

// KindOf extracts the kind from err, or "" when err is not an imlink error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
