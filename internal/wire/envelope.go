// ABOUTME: Gateway frame codec mapping the {s, d, sn} wire object to typed messages
// ABOUTME: Decodes the discriminant and sequence first, then the payload for that kind

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the frame discriminant carried in the "s" field.
type Kind int

const (
	KindEvent     Kind = 0
	KindHello     Kind = 1
	KindPing      Kind = 2
	KindPong      Kind = 3
	KindResume    Kind = 4
	KindReconnect Kind = 5
	KindResumeAck Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindHello:
		return "hello"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindResume:
		return "resume"
	case KindReconnect:
		return "reconnect"
	case KindResumeAck:
		return "resume_ack"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the seven known kinds.
func (k Kind) Valid() bool {
	return k >= KindEvent && k <= KindResumeAck
}

var (
	ErrMalformedFrame = errors.New("wire: malformed frame")
	ErrUnknownKind    = errors.New("wire: unknown frame kind")
	ErrShapeMismatch  = errors.New("wire: payload does not match frame kind")
)

// DecodeError describes why a frame could not be decoded.
// Err is always one of the package sentinels.
type DecodeError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v (s=%d)", e.Err, int(e.Kind))
	}
	return fmt.Sprintf("%v (s=%d): %s", e.Err, int(e.Kind), e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Message is one decoded gateway frame.
type Message interface {
	Kind() Kind
	isMessage()
}

// EventFrame delivers one platform event.
type EventFrame struct {
	Sequence uint64
	Event    Event
}

// Hello is the server's handshake verdict. Code 0 accepts the session.
type Hello struct {
	Code      int
	SessionID *string
}

// Ping is the client heartbeat; it carries the highest sequence seen.
type Ping struct {
	Sequence uint64
}

// Pong acknowledges a Ping.
type Pong struct{}

// Resume asks the server to replay from Sequence. Decoded but never sent by
// the session engine.
type Resume struct {
	Sequence uint64
}

// Reconnect tells the client to drop the connection and start over.
type Reconnect struct {
	Code int
	Err  string
}

// ResumeAck confirms a Resume.
type ResumeAck struct {
	SessionID string
}

func (*EventFrame) Kind() Kind { return KindEvent }
func (*Hello) Kind() Kind      { return KindHello }
func (*Ping) Kind() Kind       { return KindPing }
func (*Pong) Kind() Kind       { return KindPong }
func (*Resume) Kind() Kind     { return KindResume }
func (*Reconnect) Kind() Kind  { return KindReconnect }
func (*ResumeAck) Kind() Kind  { return KindResumeAck }

func (*EventFrame) isMessage() {}
func (*Hello) isMessage()      {}
func (*Ping) isMessage()       {}
func (*Pong) isMessage()       {}
func (*Resume) isMessage()     {}
func (*Reconnect) isMessage()  {}
func (*ResumeAck) isMessage()  {}

// frame is the top-level wire object. D stays raw until the kind is known.
type frame struct {
	S  *int            `json:"s"`
	D  json.RawMessage `json:"d,omitempty"`
	SN *uint64         `json:"sn,omitempty"`
}

type helloPayload struct {
	Code      *int    `json:"code"`
	SessionID *string `json:"session_id,omitempty"`
}

type reconnectPayload struct {
	Code *int    `json:"code"`
	Err  *string `json:"err"`
}

type resumeAckPayload struct {
	SessionID *string `json:"session_id"`
}

// Encode serializes m into its wire form.
func Encode(m Message) ([]byte, error) {
	var (
		kind    = m.Kind()
		payload any
		seq     *uint64
	)

	switch v := m.(type) {
	case *EventFrame:
		payload = &v.Event
		seq = &v.Sequence
	case *Hello:
		payload = helloPayload{Code: &v.Code, SessionID: v.SessionID}
	case *Ping:
		seq = &v.Sequence
	case *Pong:
	case *Resume:
		seq = &v.Sequence
	case *Reconnect:
		payload = reconnectPayload{Code: &v.Code, Err: &v.Err}
	case *ResumeAck:
		payload = resumeAckPayload{SessionID: &v.SessionID}
	default:
		return nil, fmt.Errorf("wire: cannot encode %T", m)
	}

	s := int(kind)
	f := frame{S: &s, SN: seq}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
		}
		f.D = raw
	}
	return json.Marshal(f)
}

// Decode parses one wire frame.
func Decode(data []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodeError{Kind: -1, Reason: err.Error(), Err: ErrMalformedFrame}
	}
	if f.S == nil {
		return nil, &DecodeError{Kind: -1, Reason: "missing field s", Err: ErrMalformedFrame}
	}

	kind := Kind(*f.S)
	switch kind {
	case KindEvent:
		return decodeEvent(f)
	case KindHello:
		var p helloPayload
		if err := decodePayload(kind, f.D, &p); err != nil {
			return nil, err
		}
		if p.Code == nil {
			return nil, shapeError(kind, "missing field code")
		}
		return &Hello{Code: *p.Code, SessionID: p.SessionID}, nil
	case KindPing:
		if f.SN == nil {
			return nil, shapeError(kind, "missing field sn")
		}
		return &Ping{Sequence: *f.SN}, nil
	case KindPong:
		return &Pong{}, nil
	case KindResume:
		if f.SN == nil {
			return nil, shapeError(kind, "missing field sn")
		}
		return &Resume{Sequence: *f.SN}, nil
	case KindReconnect:
		var p reconnectPayload
		if err := decodePayload(kind, f.D, &p); err != nil {
			return nil, err
		}
		if p.Code == nil || p.Err == nil {
			return nil, shapeError(kind, "reconnect requires code and err")
		}
		return &Reconnect{Code: *p.Code, Err: *p.Err}, nil
	case KindResumeAck:
		var p resumeAckPayload
		if err := decodePayload(kind, f.D, &p); err != nil {
			return nil, err
		}
		if p.SessionID == nil {
			return nil, shapeError(kind, "missing field session_id")
		}
		return &ResumeAck{SessionID: *p.SessionID}, nil
	default:
		return nil, &DecodeError{Kind: kind, Err: ErrUnknownKind}
	}
}

func decodeEvent(f frame) (Message, error) {
	var probe struct {
		AuthorID *string `json:"author_id"`
	}
	if err := decodePayload(KindEvent, f.D, &probe); err != nil {
		return nil, err
	}
	if probe.AuthorID == nil {
		return nil, shapeError(KindEvent, "missing field author_id")
	}
	if f.SN == nil {
		return nil, shapeError(KindEvent, "missing field sn")
	}

	var evt Event
	if err := json.Unmarshal(f.D, &evt); err != nil {
		return nil, shapeError(KindEvent, err.Error())
	}
	// Encode always writes extra compacted; match it so decoded events re-encode
	// to the same bytes.
	if len(evt.Extra) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, evt.Extra); err != nil {
			return nil, shapeError(KindEvent, err.Error())
		}
		evt.Extra = buf.Bytes()
	}
	return &EventFrame{Sequence: *f.SN, Event: evt}, nil
}

// decodePayload requires d to be present and to unmarshal into v.
func decodePayload(kind Kind, d json.RawMessage, v any) error {
	if !hasPayload(d) {
		return shapeError(kind, "missing field d")
	}
	if err := json.Unmarshal(d, v); err != nil {
		return shapeError(kind, err.Error())
	}
	return nil
}

func hasPayload(d json.RawMessage) bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func shapeError(kind Kind, reason string) error {
	return &DecodeError{Kind: kind, Reason: reason, Err: ErrShapeMismatch}
}
