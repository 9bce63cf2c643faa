// Package worker implements the worker side of a cocaine-style application
// engine: a long-lived process that serves a named application over a
// framed RPC channel, multiplexing invocation sessions onto per-session
// handler streams and keeping a heartbeat/disown liveness protocol with
// the engine.
package worker

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/cocaine-grape/worker/internal/channel"
	"github.com/cocaine-grape/worker/internal/logging"
	"github.com/cocaine-grape/worker/internal/protocol"
)

// CodeInvocationError is the error code reported to the engine when an
// invocation fails inside the worker or its handlers.
const CodeInvocationError = 500

// session pairs the two halves of one live invocation.
type session struct {
	upstream   *upstream
	downstream Handler
}

// Worker owns the engine channel and the dispatch loop. Create one with
// Dial (production) or New (existing connection), register an application,
// then call Run.
type Worker struct {
	uuid    string
	appName string

	ch       *channel.Channel
	app      *App
	opts     Options
	log      *logging.Log
	backend  logging.Logger
	owned    io.Closer // remote log backend owned by the worker, if any
	observer Observer

	sessions map[uint64]*session

	heartbeatTimer *time.Timer
	disownTimer    *time.Timer
}

// Dial resolves the engine endpoint for appName under the runtime root,
// connects, and builds a worker on the connection.
func Dial(appName, uuid string, opts Options) (*Worker, error) {
	endpoint := EngineEndpoint(opts.RuntimeRoot, appName)
	conn, err := net.Dial("unix", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial engine at %s", endpoint)
	}
	return New(conn, appName, uuid, opts), nil
}

// New builds a worker on an existing engine connection. The worker takes
// ownership of conn.
func New(conn net.Conn, appName, uuid string, opts Options) *Worker {
	opts = opts.withDefaults()

	w := &Worker{
		uuid:     uuid,
		appName:  appName,
		ch:       channel.New(conn),
		opts:     opts,
		observer: opts.Observer,
		sessions: make(map[uint64]*session),
	}

	w.backend = opts.Logger
	if w.backend == nil {
		if remote, err := logging.NewRemote(opts.LogService); err == nil {
			w.backend = remote
			w.owned = remote
		} else {
			w.backend = logging.NewConsole(nil)
		}
	}
	w.log = logging.NewLog(w.backend, "worker/"+appName)

	return w
}

// Register installs app under name. Only the application matching the
// worker's startup app name becomes active; others are ignored.
func (w *Worker) Register(name string, app *App) {
	if name != w.appName {
		return
	}
	app.initialize(name, w.backend)
	w.app = app
}

// Run announces the worker to the engine and serves invocations until the
// engine orders termination (nil), the engine is lost (ErrCodeDisowned),
// or the channel dies (ErrCodeTransport / ErrCodeDecode).
func (w *Worker) Run() error {
	if w.app == nil {
		return NewError("run", ErrCodeNoApplication,
			fmt.Sprintf("no application is registered for %q", w.appName))
	}
	defer w.shutdown()

	if err := w.ch.Send(&protocol.Handshake{UUID: w.uuid}); err != nil {
		return WrapError("handshake", ErrCodeTransport, err)
	}

	// Both timers start stopped; the first onHeartbeat arms them.
	w.heartbeatTimer = newStoppedTimer()
	w.disownTimer = newStoppedTimer()

	w.onHeartbeat()

	for {
		select {
		case m, ok := <-w.ch.Recv():
			if !ok {
				return w.channelError()
			}
			if stop := w.dispatch(m); stop {
				return nil
			}

		case <-w.heartbeatTimer.C:
			w.onHeartbeat()

		case <-w.disownTimer.C:
			w.log.Errorf("worker %s has lost the controlling engine", w.uuid)
			return NewError("run", ErrCodeDisowned, "lost the controlling engine")
		}
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

// onHeartbeat sends the liveness beacon and arms the disown window. The
// window is disarmed only by an inbound engine heartbeat.
func (w *Worker) onHeartbeat() {
	if err := w.ch.Send(&protocol.Heartbeat{}); err != nil {
		// The channel is terminal; the recv path reports it.
		return
	}
	w.observer.ObserveHeartbeat()
	w.disownTimer.Reset(w.opts.DisownTimeout)
	w.heartbeatTimer.Reset(w.opts.HeartbeatInterval)
}

func (w *Worker) channelError() error {
	err := w.ch.Err()
	if errors.Is(err, io.EOF) {
		w.log.Errorf("worker %s: engine closed the connection", w.uuid)
		return &Error{Op: "recv", Code: ErrCodeTransport,
			Msg: "engine closed the connection", Inner: err}
	}
	w.log.Errorf("worker %s: channel failure: %v", w.uuid, err)
	return &Error{Op: "recv", Code: ErrCodeDecode,
		Msg: "engine channel failure", Inner: err}
}

// dispatch routes one inbound message. Returns true when the loop must
// exit (engine-ordered terminate).
func (w *Worker) dispatch(m protocol.Message) bool {
	w.log.Debugf("worker %s received %s message", w.uuid, m.Type())

	switch m := m.(type) {
	case *protocol.Heartbeat:
		w.disownTimer.Stop()

	case *protocol.Invoke:
		w.onInvoke(m)

	case *protocol.Chunk:
		w.onChunk(m)

	case *protocol.Choke:
		w.onChoke(m)

	case *protocol.Terminate:
		w.log.Infof("worker %s terminating: %s", w.uuid, m.Message)
		_ = w.ch.Send(&protocol.Terminate{
			Reason:  protocol.TerminateNormal,
			Message: "per request",
		})
		return true

	default:
		w.log.Warningf("worker %s dropping unknown type %d message",
			w.uuid, uint64(m.Type()))
	}
	return false
}

func (w *Worker) onInvoke(m *protocol.Invoke) {
	w.log.Debugf("worker %s invoking session %d with event %q",
		w.uuid, m.Session, m.Event)

	if _, exists := w.sessions[m.Session]; exists {
		w.log.Warningf("worker %s dropping invoke for live session %d",
			w.uuid, m.Session)
		return
	}

	up := newUpstream(m.Session, w.ch, w.observer)

	var handler Handler
	err := guard(func() error {
		var err error
		handler, err = w.app.Invoke(m.Event, up)
		return err
	})
	if err != nil {
		_ = up.Error(CodeInvocationError, errorMessage(err))
		w.observer.ObserveSessionEnd(true)
		return
	}

	w.sessions[m.Session] = &session{upstream: up, downstream: handler}
	w.observer.ObserveInvoke(m.Event)
	w.observer.ObserveSessions(len(w.sessions))
}

func (w *Worker) onChunk(m *protocol.Chunk) {
	s, ok := w.sessions[m.Session]
	if !ok {
		// This may be a chunk for a failed invocation; there is no
		// active stream, so drop the message.
		return
	}
	if err := guard(func() error { return s.downstream.Write(m.Data) }); err != nil {
		_ = s.upstream.Error(CodeInvocationError, errorMessage(err))
		w.evict(m.Session, true)
		return
	}
	w.observer.ObserveChunkIn(len(m.Data))
}

func (w *Worker) onChoke(m *protocol.Choke) {
	s, ok := w.sessions[m.Session]
	if !ok {
		// Same as chunks: a choke for a failed invocation is dropped.
		return
	}
	err := guard(func() error { return s.downstream.Close() })
	if err != nil {
		_ = s.upstream.Error(CodeInvocationError, errorMessage(err))
	}
	w.evict(m.Session, err != nil)
}

// evict removes the session and makes sure its outbound stream ended with
// a choke even if the handler never closed it.
func (w *Worker) evict(id uint64, failed bool) {
	s, ok := w.sessions[id]
	if !ok {
		return
	}
	delete(w.sessions, id)
	s.upstream.drop()
	w.observer.ObserveSessionEnd(failed)
	w.observer.ObserveSessions(len(w.sessions))
}

func (w *Worker) shutdown() {
	for id, s := range w.sessions {
		delete(w.sessions, id)
		s.upstream.drop()
	}
	w.observer.ObserveSessions(0)
	_ = w.ch.Close()
	if w.owned != nil {
		_ = w.owned.Close()
	}
}

// guard runs f and converts a panic into an invocation error, so a broken
// handler takes down its session, not the worker.
func guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError("dispatch", ErrCodeInvocation, fmt.Sprint(r))
		}
	}()
	return f()
}

// errorMessage extracts the message sent to the engine in an error frame.
// Structured worker errors report their bare message; anything else is
// formatted whole.
func errorMessage(err error) string {
	var werr *Error
	if errors.As(err, &werr) && werr.Msg != "" {
		return werr.Msg
	}
	return err.Error()
}
