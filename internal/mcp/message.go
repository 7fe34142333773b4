package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reply statuses carried by StatusPayload.
const (
	StatusReady    = "ready"
	StatusStarted  = "started"
	StatusReceived = "received"
	StatusStopped  = "stopped"
)

// Payload is the typed body of a Message. Each kind owns its own variant:
//
//	init request   InitPayload
//	audio request  AudioPayload
//	replies        StatusPayload
//	error          Error
//	transcription  TranscriptionResult
type Payload interface {
	payload()
}

// InitPayload configures a new session. Nil members take their defaults.
type InitPayload struct {
	AudioFormat *AudioFormat         `json:"audio_format,omitempty"`
	Config      *TranscriptionConfig `json:"config,omitempty"`
}

// AudioPayload carries one raw audio chunk.
type AudioPayload struct {
	Data []byte `json:"data"`
}

// StatusPayload acknowledges a lifecycle request.
type StatusPayload struct {
	Status string `json:"status"`
}

func (InitPayload) payload()         {}
func (AudioPayload) payload()        {}
func (StatusPayload) payload()       {}
func (Error) payload()               {}
func (TranscriptionResult) payload() {}

// Message is the protocol envelope.
type Message struct {
	Kind      Kind
	SessionID string
	Sequence  int64
	Timestamp float64
	Payload   Payload
}

// Now returns the current wall clock as float seconds since the epoch.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewMessage builds a caller-side message stamped with the current time.
func NewMessage(kind Kind, sessionID string, sequence int64, payload Payload) Message {
	return Message{
		Kind:      kind,
		SessionID: sessionID,
		Sequence:  sequence,
		Timestamp: Now(),
		Payload:   payload,
	}
}

// Status returns the reply status, or "" when the payload is not a StatusPayload.
func (m Message) Status() string {
	if p, ok := m.Payload.(StatusPayload); ok {
		return p.Status
	}
	return ""
}

// Err returns the Error payload of an Error-kind message, or nil.
func (m Message) Err() error {
	if m.Kind != KindError {
		return nil
	}
	if p, ok := m.Payload.(Error); ok {
		return p
	}
	return Error{Code: ErrorCodeProtocol, Message: "error message without payload"}
}

type wireMessage struct {
	Type      Kind            `json:"type"`
	SessionID string          `json:"session_id"`
	Sequence  int64           `json:"sequence"`
	Timestamp float64         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the envelope with the payload nested under "payload".
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Type:      m.Kind,
		SessionID: m.SessionID,
		Sequence:  m.Sequence,
		Timestamp: m.Timestamp,
	}
	if m.Payload != nil {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Kind, err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the envelope and then the payload variant owned by its kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown message type %q", w.Type)
	}
	p, err := DecodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*m = Message{
		Kind:      w.Type,
		SessionID: w.SessionID,
		Sequence:  w.Sequence,
		Timestamp: w.Timestamp,
		Payload:   p,
	}
	return nil
}

// DecodePayload decodes raw into the variant for kind. Lifecycle replies
// carry a "status" member and decode to StatusPayload, unless the object also
// holds the members of the kind's request payload. Kinds without a request
// payload (start, stop, done) otherwise decode to nil.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var shape struct {
		Status      *string         `json:"status"`
		Data        json.RawMessage `json:"data"`
		AudioFormat json.RawMessage `json:"audio_format"`
		Config      json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if shape.Status != nil {
		var reply bool
		switch kind {
		case KindInit:
			reply = shape.AudioFormat == nil && shape.Config == nil
		case KindAudio:
			reply = shape.Data == nil
		case KindStart, KindStop, KindDone:
			reply = true
		}
		if reply {
			return StatusPayload{Status: *shape.Status}, nil
		}
	}

	var (
		p   Payload
		err error
	)
	switch kind {
	case KindInit:
		var v InitPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindAudio:
		var v AudioPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindTranscription:
		var v TranscriptionResult
		err = json.Unmarshal(raw, &v)
		p = v
	case KindError:
		var v Error
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
