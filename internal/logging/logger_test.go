package logging

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tinylib/msgp/msgp"
)

func TestPriorityOrdering(t *testing.T) {
	if !(Debug < Info && Info < Warning && Warning < Error) {
		t.Fatal("priorities are not ordered debug < info < warning < error")
	}
}

func TestConsoleEmit(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&Config{Verbosity: Debug, Output: &buf})
	log := NewLog(console, "worker/app1")

	log.Warningf("dropping unknown type %d message", 99)

	line := buf.String()
	if !strings.Contains(line, "[warning] worker/app1: dropping unknown type 99 message") {
		t.Fatalf("unexpected console line: %q", line)
	}
}

func TestConsoleVerbosityFilter(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&Config{Verbosity: Warning, Output: &buf})
	log := NewLog(console, "worker/app1")

	log.Debugf("not shown")
	log.Infof("not shown either")
	if buf.Len() != 0 {
		t.Fatalf("low-priority lines were emitted: %q", buf.String())
	}

	log.Errorf("shown")
	if !strings.Contains(buf.String(), "[error]") {
		t.Fatalf("error line missing: %q", buf.String())
	}
}

func TestNilLogIsSafe(t *testing.T) {
	var log *Log
	log.Errorf("must not panic")
}

func TestRemoteEmitFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	remote, err := NewRemote(ln.Addr().String())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	defer remote.Close()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	remote.Emit(Warning, "app/app1", "something happened")

	r := msgp.NewReader(conn)
	if sz, err := r.ReadArrayHeader(); err != nil || sz != 2 {
		t.Fatalf("envelope: sz=%d err=%v", sz, err)
	}
	id, err := r.ReadUint64()
	if err != nil || id != emitType {
		t.Fatalf("type: id=%d err=%v", id, err)
	}
	if sz, err := r.ReadArrayHeader(); err != nil || sz != 3 {
		t.Fatalf("payload: sz=%d err=%v", sz, err)
	}
	priority, err := r.ReadInt()
	if err != nil || Priority(priority) != Warning {
		t.Fatalf("priority: %d err=%v", priority, err)
	}
	source, err := r.ReadString()
	if err != nil || source != "app/app1" {
		t.Fatalf("source: %q err=%v", source, err)
	}
	message, err := r.ReadString()
	if err != nil || message != "something happened" {
		t.Fatalf("message: %q err=%v", message, err)
	}
}

func TestRemoteGoesQuietOnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	remote, err := NewRemote(ln.Addr().String())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = conn.Close()
	_ = ln.Close()

	// Once the service is gone, emission must not block or panic; a few
	// writes may be needed before the broken pipe surfaces.
	for i := 0; i < 64; i++ {
		remote.Emit(Info, "worker/app1", "line")
	}
}
