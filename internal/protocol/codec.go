package protocol

import (
	"io"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// Encoder writes messages to a byte stream. It buffers internally; call
// Flush after the last message of a batch.
type Encoder struct {
	w *msgp.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: msgp.NewWriter(w)}
}

func (e *Encoder) Encode(m Message) error {
	if err := e.w.WriteArrayHeader(2); err != nil {
		return errors.Wrap(err, "write message envelope")
	}
	if err := e.w.WriteUint64(uint64(m.Type())); err != nil {
		return errors.Wrap(err, "write message type")
	}
	if err := m.encodePayload(e.w); err != nil {
		return errors.Wrapf(err, "write %s payload", m.Type())
	}
	return nil
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Decoder reads messages from a byte stream. Decoding blocks until a whole
// frame is available; message boundaries are preserved. A frame with an
// unknown type id decodes to *Unknown with its payload skipped, so one bad
// type does not desynchronize the stream. Anything else malformed is a
// terminal error.
type Decoder struct {
	r *msgp.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: msgp.NewReader(r)}
}

func (d *Decoder) Decode() (Message, error) {
	sz, err := d.r.ReadArrayHeader()
	if err != nil {
		// A clean EOF lands here, between frames. Pass it through so the
		// channel can tell connection loss apart from garbage.
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read message envelope")
	}
	if sz != 2 {
		return nil, errors.Errorf("malformed message envelope: %d elements", sz)
	}
	id, err := d.r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "read message type")
	}

	var m Message
	switch Type(id) {
	case TypeHandshake:
		m, err = d.decodeHandshake()
	case TypeHeartbeat:
		m, err = d.decodeHeartbeat()
	case TypeTerminate:
		m, err = d.decodeTerminate()
	case TypeInvoke:
		m, err = d.decodeInvoke()
	case TypeChunk:
		m, err = d.decodeChunk()
	case TypeError:
		m, err = d.decodeError()
	case TypeChoke:
		m, err = d.decodeChoke()
	default:
		if err := d.r.Skip(); err != nil {
			return nil, errors.Wrapf(err, "skip type %d payload", id)
		}
		return &Unknown{ID: id}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", Type(id))
	}
	return m, nil
}

func (d *Decoder) payload(want uint32) error {
	sz, err := d.r.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != want {
		return errors.Errorf("payload has %d elements, want %d", sz, want)
	}
	return nil
}

func (d *Decoder) decodeHandshake() (Message, error) {
	if err := d.payload(1); err != nil {
		return nil, err
	}
	uuid, err := d.r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Handshake{UUID: uuid}, nil
}

func (d *Decoder) decodeHeartbeat() (Message, error) {
	if err := d.payload(0); err != nil {
		return nil, err
	}
	return &Heartbeat{}, nil
}

func (d *Decoder) decodeTerminate() (Message, error) {
	if err := d.payload(2); err != nil {
		return nil, err
	}
	reason, err := d.r.ReadInt()
	if err != nil {
		return nil, err
	}
	message, err := d.r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Terminate{Reason: reason, Message: message}, nil
}

func (d *Decoder) decodeInvoke() (Message, error) {
	if err := d.payload(2); err != nil {
		return nil, err
	}
	session, err := d.r.ReadUint64()
	if err != nil {
		return nil, err
	}
	event, err := d.r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Invoke{Session: session, Event: event}, nil
}

func (d *Decoder) decodeChunk() (Message, error) {
	if err := d.payload(2); err != nil {
		return nil, err
	}
	session, err := d.r.ReadUint64()
	if err != nil {
		return nil, err
	}
	data, err := d.r.ReadStringAsBytes(nil)
	if err != nil {
		return nil, err
	}
	return &Chunk{Session: session, Data: data}, nil
}

func (d *Decoder) decodeError() (Message, error) {
	if err := d.payload(3); err != nil {
		return nil, err
	}
	session, err := d.r.ReadUint64()
	if err != nil {
		return nil, err
	}
	code, err := d.r.ReadInt()
	if err != nil {
		return nil, err
	}
	message, err := d.r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Error{Session: session, Code: code, Message: message}, nil
}

func (d *Decoder) decodeChoke() (Message, error) {
	if err := d.payload(1); err != nil {
		return nil, err
	}
	session, err := d.r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &Choke{Session: session}, nil
}
