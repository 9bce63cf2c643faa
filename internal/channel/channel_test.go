package channel

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/cocaine-grape/worker/internal/protocol"
)

func newTestChannel(t *testing.T) (*Channel, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	c := New(local)
	t.Cleanup(func() {
		_ = c.Close()
		_ = remote.Close()
	})
	return c, remote
}

// drain decodes frames from the peer side until the stream dies.
func drain(conn net.Conn, out chan<- protocol.Message) {
	dec := protocol.NewDecoder(conn)
	for {
		m, err := dec.Decode()
		if err != nil {
			close(out)
			return
		}
		out <- m
	}
}

func TestSendOrder(t *testing.T) {
	c, remote := newTestChannel(t)

	frames := make(chan protocol.Message, 16)
	go drain(remote, frames)

	go func() {
		for i := uint64(1); i <= 3; i++ {
			if err := c.Send(&protocol.Chunk{Session: i, Data: []byte{byte(i)}}); err != nil {
				t.Errorf("Send failed: %v", err)
				return
			}
		}
	}()

	for i := uint64(1); i <= 3; i++ {
		m := recvFrame(t, frames)
		chunk, ok := m.(*protocol.Chunk)
		if !ok {
			t.Fatalf("frame %d: expected chunk, got %T", i, m)
		}
		if chunk.Session != i {
			t.Fatalf("frame %d arrived out of order: session %d", i, chunk.Session)
		}
	}
}

func TestBatchContiguity(t *testing.T) {
	c, remote := newTestChannel(t)

	const perSender = 16
	frames := make(chan protocol.Message, perSender*8)
	go drain(remote, frames)

	var wg sync.WaitGroup
	for base := uint64(0); base < 2; base++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < perSender; i++ {
				id := base*perSender + i
				if err := c.Send(
					&protocol.Error{Session: id, Code: 500, Message: "x"},
					&protocol.Choke{Session: id},
				); err != nil {
					t.Errorf("Send failed: %v", err)
					return
				}
			}
		}(base)
	}

	for i := 0; i < perSender*2; i++ {
		m := recvFrame(t, frames)
		errFrame, ok := m.(*protocol.Error)
		if !ok {
			t.Fatalf("expected error frame, got %T", m)
		}
		next := recvFrame(t, frames)
		choke, ok := next.(*protocol.Choke)
		if !ok {
			t.Fatalf("frame after error is %T, batch was interleaved", next)
		}
		if choke.Session != errFrame.Session {
			t.Fatalf("choke session %d does not match error session %d",
				choke.Session, errFrame.Session)
		}
	}
	wg.Wait()
}

func TestPeerEOFTerminatesReader(t *testing.T) {
	c, remote := newTestChannel(t)

	_ = remote.Close()

	select {
	case _, ok := <-c.Recv():
		if ok {
			t.Fatal("expected the inbox to close without a message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbox did not close after peer EOF")
	}

	if err := c.Err(); !errors.Is(err, io.EOF) {
		t.Fatalf("Err() = %v, want io.EOF", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	c, _ := newTestChannel(t)

	_ = c.Close()
	if err := c.Send(&protocol.Heartbeat{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestRecvDelivers(t *testing.T) {
	c, remote := newTestChannel(t)

	go func() {
		enc := protocol.NewEncoder(remote)
		if err := enc.Encode(&protocol.Invoke{Session: 7, Event: "event1"}); err != nil {
			t.Errorf("peer encode failed: %v", err)
			return
		}
		_ = enc.Flush()
	}()

	select {
	case m := <-c.Recv():
		invoke, ok := m.(*protocol.Invoke)
		if !ok {
			t.Fatalf("expected invoke, got %T", m)
		}
		if invoke.Session != 7 || invoke.Event != "event1" {
			t.Fatalf("invoke = %+v", invoke)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message did not arrive")
	}
}

func recvFrame(t *testing.T, frames <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m, ok := <-frames:
		if !ok {
			t.Fatal("peer stream ended early")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return nil
}
