package client

import (
	"encoding/json"
	"time"

	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/sdkerr"
	"github.com/rickgao/imlink/internal/transport"
)

// linkHandler adapts transport callbacks onto the Client.
type linkHandler struct {
	c *Client
}

func (h linkHandler) OnOpen() {
	h.c.logger.Debug("link open")
}

func (h linkHandler) OnMessage(text string) {
	if err := h.c.rpc.HandleMessage(text, h.c.handleNotification); err != nil {
		h.c.logger.Warn("dropping inbound frame", "error", err)
	}
}

func (h linkHandler) OnClose(info transport.CloseInfo) {
	h.c.linkLost(&DisconnectInfo{Code: info.Code, Reason: info.Reason, WasClean: info.WasClean}, nil)
}

func (h linkHandler) OnError(err error) {
	h.c.linkLost(nil, err)
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	switch method {
	case protocol.MethodRecv:
		c.handleRecv(params)
	case protocol.MethodDisconnect:
		var p protocol.DisconnectParams
		if err := protocol.DecodeParams(params, &p); err != nil {
			c.logger.Warn("malformed disconnect notification", "error", err)
		}
		c.logger.Info("server requested disconnect", "code", p.Code, "reason", p.Reason)
		// linkLost claims the link first so the OnClose reported by Abort
		// is ignored. Disconnect cannot be used from inside OnMessage.
		c.linkLost(&DisconnectInfo{Code: p.Code, Reason: p.Reason, WasClean: p.Code == transport.CloseNormal}, nil)
		c.transport.Abort("server disconnect")
	default:
		c.logger.Debug("ignoring notification", "method", method)
	}
}

func (c *Client) handleRecv(params json.RawMessage) {
	var msg protocol.Message
	if err := protocol.DecodeParams(params, &msg); err != nil {
		c.logger.Warn("malformed recv notification", "error", err)
		return
	}

	c.metrics.IncMessagesReceived()
	c.publish(EventMessage, msg)

	ack := protocol.RecvAckParams{
		Header:     msg.Header,
		MessageID:  msg.MessageID,
		MessageSeq: msg.MessageSeq,
	}
	if err := c.rpc.Notify(ack, c.sendFrame); err != nil {
		c.logger.Warn("recvack failed", "message_id", msg.MessageID, "error", err)
	}
}

// linkLost handles the end of an open link exactly once. info is set for
// closures, err for transport failures.
func (c *Client) linkLost(info *DisconnectInfo, err error) {
	c.mu.Lock()
	if !c.linkUp {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.linkUp = false
	c.session = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.heartbeat.Stop()
	c.rpc.CancelAll()

	if err != nil {
		c.logger.Warn("link failed", "error", err)
		c.publish(EventError, ErrorInfo{Code: sdkerr.CodeNetworkError, Message: err.Error(), Err: err})
	} else {
		c.logger.Info("link closed", "code", info.Code, "reason", info.Reason, "clean", info.WasClean)
		c.publish(EventDisconnect, *info)
	}

	if wasConnected {
		c.reconnect.Start(true)
	}
}

func (c *Client) onPongTimeout() {
	c.logger.Warn("pong timeout, aborting link")
	c.publish(EventError, ErrorInfo{
		Code:    sdkerr.CodeConnectionTimeout,
		Message: "ping timeout",
		Err:     sdkerr.Timeout("ping timeout"),
	})
	c.transport.Abort("ping timeout")
}

func (c *Client) onReconnectAttempt(attempt int, delay time.Duration) {
	c.mu.Lock()
	if !c.closed && c.state == StateDisconnected {
		c.setStateLocked(StateReconnecting)
	}
	c.mu.Unlock()

	c.metrics.IncReconnectAttempts()
	c.publish(EventReconnecting, ReconnectInfo{Attempt: attempt, Delay: delay})
}

func (c *Client) onReconnectFailed() {
	c.mu.Lock()
	if c.state == StateReconnecting {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	c.publish(EventError, ErrorInfo{
		Code:    sdkerr.CodeNetworkError,
		Message: "reconnection attempts exhausted",
		Err:     sdkerr.Network("reconnection attempts exhausted", nil),
	})
}
