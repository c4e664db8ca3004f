package protocol

import "encoding/json"

// ConnectParams authenticates the session.
type ConnectParams struct {
	UID             string     `json:"uid"`
	Token           string     `json:"token"`
	DeviceID        string     `json:"device_id"`
	DeviceFlag      DeviceFlag `json:"device_flag"`
	ClientTimestamp int64      `json:"client_timestamp"` // Unix milliseconds
}

// PingParams is the empty liveness probe.
type PingParams struct{}

// SendParams publishes one message to a channel.
type SendParams struct {
	ClientMsgNo string          `json:"client_msg_no"`
	ChannelID   string          `json:"channel_id"`
	ChannelType ChannelType     `json:"channel_type"`
	Payload     json.RawMessage `json:"payload"`
	Header      Header          `json:"header"`
	Topic       string          `json:"topic,omitempty"`
}

// RecvAckParams acknowledges a received message.
type RecvAckParams struct {
	Header     Header `json:"header"`
	MessageID  string `json:"message_id"`
	MessageSeq int64  `json:"message_seq"`
}

func (ConnectParams) Method() string { return MethodConnect }
func (PingParams) Method() string    { return MethodPing }
func (SendParams) Method() string    { return MethodSend }
func (RecvAckParams) Method() string { return MethodRecvAck }

func (ConnectParams) params() {}
func (PingParams) params()    {}
func (SendParams) params()    {}
func (RecvAckParams) params() {}

// ConnectResult is the server's answer to a connect request.
type ConnectResult struct {
	ServerKey     string `json:"server_key"`
	Salt          string `json:"salt"`
	TimeDiff      int64  `json:"time_diff"` // server clock minus client clock, ms
	ReasonCode    int    `json:"reason_code"`
	ServerVersion *int   `json:"server_version,omitempty"`
	NodeID        *int   `json:"node_id,omitempty"`
}

// PingResult is the (empty) pong.
type PingResult struct{}

// SendResult carries the server-assigned identity of a sent message.
type SendResult struct {
	MessageID  string `json:"message_id"`
	MessageSeq int64  `json:"message_seq"`
}

// DisconnectParams is pushed by the server before it drops the session.
type DisconnectParams struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}
