package worker

import (
	"github.com/cocaine-grape/worker/internal/channel"
	"github.com/cocaine-grape/worker/internal/protocol"
)

// upstream is the outbound half of one session. It is open until the first
// Error or Close; every operation afterwards fails with ErrCodeStreamClosed.
// The worker's dispatch goroutine is the only caller, so a plain flag is
// enough for the state machine.
type upstream struct {
	session  uint64
	ch       *channel.Channel
	observer Observer
	closed   bool
}

func newUpstream(session uint64, ch *channel.Channel, observer Observer) *upstream {
	return &upstream{session: session, ch: ch, observer: observer}
}

func (u *upstream) Write(data []byte) error {
	if u.closed {
		return u.streamClosed("write")
	}
	if err := u.ch.Send(&protocol.Chunk{Session: u.session, Data: data}); err != nil {
		return WrapError("write", ErrCodeTransport, err)
	}
	u.observer.ObserveChunkOut(len(data))
	return nil
}

func (u *upstream) Error(code int, message string) error {
	if u.closed {
		return u.streamClosed("error")
	}
	u.closed = true
	// One batch: nothing from another session may slot in between the
	// error frame and its choke.
	err := u.ch.Send(
		&protocol.Error{Session: u.session, Code: code, Message: message},
		&protocol.Choke{Session: u.session},
	)
	if err != nil {
		return WrapError("error", ErrCodeTransport, err)
	}
	return nil
}

func (u *upstream) Close() error {
	if u.closed {
		return u.streamClosed("close")
	}
	u.closed = true
	if err := u.ch.Send(&protocol.Choke{Session: u.session}); err != nil {
		return WrapError("close", ErrCodeTransport, err)
	}
	return nil
}

// drop closes the stream quietly if it is still open. Used when a session
// is torn down without the handler having closed its upstream, so the wire
// still sees the terminating choke. Best-effort: a dead channel is fine.
func (u *upstream) drop() {
	if u.closed {
		return
	}
	u.closed = true
	_ = u.ch.Send(&protocol.Choke{Session: u.session})
}

func (u *upstream) streamClosed(op string) error {
	return NewSessionError(op, u.session, ErrCodeStreamClosed,
		"the stream has been closed")
}

var _ Stream = (*upstream)(nil)
