package protocol

import "encoding/json"

// Header holds per-message delivery flags.
type Header struct {
	NoPersist bool `json:"no_persist"`
	RedDot    bool `json:"red_dot"`
	SyncOnce  bool `json:"sync_once"`
	Dup       bool `json:"dup"`
}

// DefaultHeader returns the header used when the caller supplies none.
func DefaultHeader() Header {
	return Header{RedDot: true}
}

// UnmarshalJSON accepts both snake_case and camelCase keys. Missing red_dot
// defaults to true.
func (h *Header) UnmarshalJSON(data []byte) error {
	var w struct {
		NoPersist  *bool `json:"no_persist"`
		NoPersistC *bool `json:"noPersist"`
		RedDot     *bool `json:"red_dot"`
		RedDotC    *bool `json:"redDot"`
		SyncOnce   *bool `json:"sync_once"`
		SyncOnceC  *bool `json:"syncOnce"`
		Dup        *bool `json:"dup"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*h = DefaultHeader()
	pickBool(&h.NoPersist, w.NoPersist, w.NoPersistC)
	pickBool(&h.RedDot, w.RedDot, w.RedDotC)
	pickBool(&h.SyncOnce, w.SyncOnce, w.SyncOnceC)
	pickBool(&h.Dup, w.Dup)
	return nil
}

// Message is the envelope delivered by a recv notification.
type Message struct {
	Header      Header          `json:"header"`
	MessageID   string          `json:"message_id"`
	MessageSeq  int64           `json:"message_seq"`
	Timestamp   int64           `json:"timestamp"`
	ChannelID   string          `json:"channel_id"`
	ChannelType ChannelType     `json:"channel_type"`
	FromUID     string          `json:"from_uid"`
	Payload     json.RawMessage `json:"payload"`
	ClientMsgNo string          `json:"client_msg_no,omitempty"`
	StreamNo    string          `json:"stream_no,omitempty"`
	StreamID    string          `json:"stream_id,omitempty"`
	StreamFlag  *int            `json:"stream_flag,omitempty"`
	Topic       string          `json:"topic,omitempty"`
}

// UnmarshalJSON accepts both snake_case and camelCase keys.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Header       *Header         `json:"header"`
		MessageID    *string         `json:"message_id"`
		MessageIDC   *string         `json:"messageId"`
		MessageSeq   *int64          `json:"message_seq"`
		MessageSeqC  *int64          `json:"messageSeq"`
		Timestamp    int64           `json:"timestamp"`
		ChannelID    *string         `json:"channel_id"`
		ChannelIDC   *string         `json:"channelId"`
		ChannelType  *ChannelType    `json:"channel_type"`
		ChannelTypeC *ChannelType    `json:"channelType"`
		FromUID      *string         `json:"from_uid"`
		FromUIDC     *string         `json:"fromUid"`
		Payload      json.RawMessage `json:"payload"`
		ClientMsgNo  *string         `json:"client_msg_no"`
		ClientMsgNoC *string         `json:"clientMsgNo"`
		StreamNo     *string         `json:"stream_no"`
		StreamNoC    *string         `json:"streamNo"`
		StreamID     *string         `json:"stream_id"`
		StreamIDC    *string         `json:"streamId"`
		StreamFlag   *int            `json:"stream_flag"`
		StreamFlagC  *int            `json:"streamFlag"`
		Topic        string          `json:"topic"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*m = Message{
		Header:    DefaultHeader(),
		Timestamp: w.Timestamp,
		Payload:   w.Payload,
		Topic:     w.Topic,
	}
	if w.Header != nil {
		m.Header = *w.Header
	}
	pickString(&m.MessageID, w.MessageID, w.MessageIDC)
	pickString(&m.ChannelID, w.ChannelID, w.ChannelIDC)
	pickString(&m.FromUID, w.FromUID, w.FromUIDC)
	pickString(&m.ClientMsgNo, w.ClientMsgNo, w.ClientMsgNoC)
	pickString(&m.StreamNo, w.StreamNo, w.StreamNoC)
	pickString(&m.StreamID, w.StreamID, w.StreamIDC)
	if v := first(w.MessageSeq, w.MessageSeqC); v != nil {
		m.MessageSeq = *v
	}
	if v := first(w.ChannelType, w.ChannelTypeC); v != nil {
		m.ChannelType = *v
	}
	m.StreamFlag = first(w.StreamFlag, w.StreamFlagC)
	return nil
}

func first[T any](vs ...*T) *T {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func pickString(dst *string, vs ...*string) {
	if v := first(vs...); v != nil {
		*dst = *v
	}
}

func pickBool(dst *bool, vs ...*bool) {
	if v := first(vs...); v != nil {
		*dst = *v
	}
}
