package logging

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// DefaultServiceAddr is where the framework's logging service listens.
const DefaultServiceAddr = "127.0.0.1:12501"

// The logging service speaks the same framing as the engine channel:
// a MessagePack array [emit, [priority, source, message]].
const emitType = 0

// Remote delivers log lines to the logging service. Emission is
// best-effort: once the service connection breaks, further lines are
// dropped rather than failing the caller.
type Remote struct {
	conn net.Conn

	mu   sync.Mutex
	w    *msgp.Writer
	dead bool
}

func NewRemote(addr string) (*Remote, error) {
	if addr == "" {
		addr = DefaultServiceAddr
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial logging service at %s", addr)
	}
	return &Remote{conn: conn, w: msgp.NewWriter(conn)}, nil
}

func (r *Remote) Verbosity() Priority {
	return Debug
}

func (r *Remote) Emit(priority Priority, source, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return
	}
	if err := r.write(priority, source, message); err != nil {
		r.dead = true
	}
}

func (r *Remote) write(priority Priority, source, message string) error {
	if err := r.w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := r.w.WriteUint64(emitType); err != nil {
		return err
	}
	if err := r.w.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := r.w.WriteInt(int(priority)); err != nil {
		return err
	}
	if err := r.w.WriteString(source); err != nil {
		return err
	}
	if err := r.w.WriteString(message); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *Remote) Close() error {
	r.mu.Lock()
	r.dead = true
	r.mu.Unlock()
	return r.conn.Close()
}
