package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rickgao/imlink/internal/sdkerr"
)

// Method names recognized on the wire.
const (
	MethodConnect    = "connect"
	MethodPing       = "ping"
	MethodSend       = "send"
	MethodRecv       = "recv"
	MethodRecvAck    = "recvack"
	MethodDisconnect = "disconnect"
)

// Params is implemented by every outbound parameter shape.
type Params interface {
	Method() string
	params()
}

// Request is a correlated client→server call.
type Request struct {
	Method string `json:"method"`
	Params Params `json:"params"`
	ID     string `json:"id"`
}

// Notification is a one-way frame with no id.
type Notification struct {
	Method string `json:"method"`
	Params Params `json:"params"`
}

// RPCError is the error object of a response frame.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is lets server errors match sdkerr.ErrServer.
func (e *RPCError) Is(target error) bool {
	return target == sdkerr.ErrServer
}

// SDKCode maps the server code onto the client code table.
func (e *RPCError) SDKCode() sdkerr.Code {
	if c := sdkerr.CodeFromInt(e.Code); c != sdkerr.CodeUnknown {
		return c
	}
	return sdkerr.CodeServerError
}

// Frame is any inbound frame before it is classified.
type Frame struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// HasID reports whether the frame carries a correlation id, making it a
// response.
func (f *Frame) HasID() bool {
	return len(f.ID) > 0
}

// RequestID returns the correlation id as a string. Numeric ids are returned
// in their decimal form.
func (f *Frame) RequestID() (string, error) {
	var s string
	if err := json.Unmarshal(f.ID, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(f.ID, &n); err == nil {
		return n.String(), nil
	}
	return "", sdkerr.Protocol("invalid response id "+strconv.Quote(string(f.ID)), nil)
}

// DecodeFrame parses one inbound text frame.
func DecodeFrame(data []byte) (*Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, sdkerr.Protocol("frame is not a JSON object", nil)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, sdkerr.Protocol("malformed frame", err)
	}
	if bytes.Equal(f.ID, []byte("null")) {
		f.ID = nil
	}
	if !f.HasID() && f.Method == "" {
		return nil, sdkerr.Protocol("frame has neither id nor method", nil)
	}
	return &f, nil
}

// DecodeParams unmarshals notification params into v. Absent params decode
// as an empty object.
func DecodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return sdkerr.Protocol("malformed params", err)
	}
	return nil
}
