// Package channel provides a full-duplex, buffered message channel over a
// single transport connection. The reader never blocks the writer; writes
// are FIFO and a batch passed to one Send call is never interleaved with
// frames from another batch.
package channel

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/cocaine-grape/worker/internal/protocol"
)

const inboxDepth = 128

var ErrClosed = errors.New("channel is closed")

// writeRequest carries one batch to the write loop; result reports the
// flush outcome, so a successful Send means the frames reached the
// transport before anything else could be enqueued.
type writeRequest struct {
	batch  []protocol.Message
	result chan error
}

// Channel owns the transport. Both halves terminate on the first transport
// or codec error; the error is reported once through Err.
type Channel struct {
	conn net.Conn

	inbox  chan protocol.Message
	outbox chan writeRequest

	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func New(conn net.Conn) *Channel {
	c := &Channel{
		conn:   conn,
		inbox:  make(chan protocol.Message, inboxDepth),
		outbox: make(chan writeRequest),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Recv returns the inbound message sequence in wire order. The channel is
// closed when the reader becomes terminal; consult Err afterwards.
func (c *Channel) Recv() <-chan protocol.Message {
	return c.inbox
}

// Send writes msgs as one contiguous batch and returns once they are
// flushed to the transport.
func (c *Channel) Send(msgs ...protocol.Message) error {
	req := writeRequest{batch: msgs, result: make(chan error, 1)}
	select {
	case c.outbox <- req:
		return <-req.result
	case <-c.done:
		return ErrClosed
	}
}

// Err reports the terminal error, if any. io.EOF means the engine closed
// the connection cleanly.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears down both halves and the underlying connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *Channel) readLoop() {
	defer close(c.inbox)

	dec := protocol.NewDecoder(c.conn)
	for {
		m, err := dec.Decode()
		if err != nil {
			c.fail(err)
			return
		}
		select {
		case c.inbox <- m:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writeLoop() {
	enc := protocol.NewEncoder(c.conn)
	for {
		select {
		case req := <-c.outbox:
			err := c.writeBatch(enc, req.batch)
			req.result <- err
			if err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writeBatch(enc *protocol.Encoder, batch []protocol.Message) error {
	for _, m := range batch {
		if err := enc.Encode(m); err != nil {
			return errors.Wrap(err, "channel write")
		}
	}
	if err := enc.Flush(); err != nil {
		return errors.Wrap(err, "channel flush")
	}
	return nil
}
