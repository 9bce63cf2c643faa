// Package protocol implements the framed RPC message layer spoken between a
// worker and its controlling engine. Every message travels as a MessagePack
// array [type, [args...]]; the type ids follow the engine's rpc enumeration
// and must not be renumbered.
package protocol

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Type identifies an RPC message kind on the wire.
type Type uint64

const (
	TypeHandshake Type = iota
	TypeHeartbeat
	TypeTerminate
	TypeInvoke
	TypeChunk
	TypeError
	TypeChoke
)

func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "handshake"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeTerminate:
		return "terminate"
	case TypeInvoke:
		return "invoke"
	case TypeChunk:
		return "chunk"
	case TypeError:
		return "error"
	case TypeChoke:
		return "choke"
	}
	return fmt.Sprintf("type(%d)", uint64(t))
}

// Terminate reasons.
const (
	TerminateNormal   = 1
	TerminateAbnormal = 2
)

// Message is a decoded RPC frame.
type Message interface {
	Type() Type
	encodePayload(w *msgp.Writer) error
}

// Handshake announces the worker's identity to the engine.
type Handshake struct {
	UUID string
}

func (*Handshake) Type() Type { return TypeHandshake }

func (m *Handshake) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(1); err != nil {
		return err
	}
	return w.WriteString(m.UUID)
}

// Heartbeat is the liveness beacon, carried in both directions.
type Heartbeat struct{}

func (*Heartbeat) Type() Type { return TypeHeartbeat }

func (*Heartbeat) encodePayload(w *msgp.Writer) error {
	return w.WriteArrayHeader(0)
}

// Terminate orders (engine to worker) or signals (worker to engine) shutdown.
type Terminate struct {
	Reason  int
	Message string
}

func (*Terminate) Type() Type { return TypeTerminate }

func (m *Terminate) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteInt(m.Reason); err != nil {
		return err
	}
	return w.WriteString(m.Message)
}

// Invoke opens a session for the named event.
type Invoke struct {
	Session uint64
	Event   string
}

func (*Invoke) Type() Type { return TypeInvoke }

func (m *Invoke) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteUint64(m.Session); err != nil {
		return err
	}
	return w.WriteString(m.Event)
}

// Chunk carries one block of session data.
type Chunk struct {
	Session uint64
	Data    []byte
}

func (*Chunk) Type() Type { return TypeChunk }

func (m *Chunk) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteUint64(m.Session); err != nil {
		return err
	}
	// The engine packs chunk payloads with the raw/str family, not bin.
	return w.WriteStringFromBytes(m.Data)
}

// Error reports a session failure ahead of the closing choke.
type Error struct {
	Session uint64
	Code    int
	Message string
}

func (*Error) Type() Type { return TypeError }

func (m *Error) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := w.WriteUint64(m.Session); err != nil {
		return err
	}
	if err := w.WriteInt(m.Code); err != nil {
		return err
	}
	return w.WriteString(m.Message)
}

// Choke is the terminal frame of a session stream.
type Choke struct {
	Session uint64
}

func (*Choke) Type() Type { return TypeChoke }

func (m *Choke) encodePayload(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(1); err != nil {
		return err
	}
	return w.WriteUint64(m.Session)
}

// Unknown stands for a frame with a type id outside the enumeration. The
// payload has already been skipped, so the stream stays in sync and the
// dispatcher is free to drop it.
type Unknown struct {
	ID uint64
}

func (m *Unknown) Type() Type { return Type(m.ID) }

func (m *Unknown) encodePayload(w *msgp.Writer) error {
	return w.WriteArrayHeader(0)
}
