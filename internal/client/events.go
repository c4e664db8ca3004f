package client

import (
	"time"

	"github.com/rickgao/imlink/internal/event"
	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/sdkerr"
)

// Session event kinds and their payload types.
const (
	EventConnect      event.Kind = "connect"      // protocol.ConnectResult
	EventDisconnect   event.Kind = "disconnect"   // DisconnectInfo
	EventMessage      event.Kind = "message"      // protocol.Message
	EventError        event.Kind = "error"        // ErrorInfo
	EventSendAck      event.Kind = "sendack"      // SendAck
	EventReconnecting event.Kind = "reconnecting" // ReconnectInfo
)

// Kinds lists every session event kind.
var Kinds = []event.Kind{
	EventConnect,
	EventDisconnect,
	EventMessage,
	EventError,
	EventSendAck,
	EventReconnecting,
}

// DisconnectInfo describes how a session ended.
type DisconnectInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// ErrorInfo is published for session-level failures.
type ErrorInfo struct {
	Code    sdkerr.Code
	Message string
	Err     error
}

// ReconnectInfo is published before each reconnection attempt.
type ReconnectInfo struct {
	Attempt int
	Delay   time.Duration
}

// SendAck is published when the server accepts a sent message.
type SendAck struct {
	ClientMsgNo string
	ChannelID   string
	ChannelType protocol.ChannelType
	MessageID   string
	MessageSeq  int64
}
