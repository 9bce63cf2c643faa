package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	var o Observer = NewMetricsObserver(m)

	o.ObserveInvoke("event1")
	o.ObserveInvoke("event2")
	o.ObserveChunkIn(4)
	o.ObserveChunkOut(16)
	o.ObserveChunkOut(8)
	o.ObserveHeartbeat()
	o.ObserveSessionEnd(false)
	o.ObserveSessionEnd(true)
	o.ObserveSessions(3)

	snap := m.Snapshot()
	if snap.Invocations != 2 {
		t.Errorf("Invocations = %d, want 2", snap.Invocations)
	}
	if snap.ChunksIn != 1 || snap.BytesIn != 4 {
		t.Errorf("inbound = %d chunks / %d bytes", snap.ChunksIn, snap.BytesIn)
	}
	if snap.ChunksOut != 2 || snap.BytesOut != 24 {
		t.Errorf("outbound = %d chunks / %d bytes", snap.ChunksOut, snap.BytesOut)
	}
	if snap.Heartbeats != 1 {
		t.Errorf("Heartbeats = %d, want 1", snap.Heartbeats)
	}
	if snap.SessionsEnded != 2 || snap.SessionErrors != 1 {
		t.Errorf("sessions ended = %d / errors = %d", snap.SessionsEnded, snap.SessionErrors)
	}
	if snap.ActiveSessions != 3 {
		t.Errorf("ActiveSessions = %d, want 3", snap.ActiveSessions)
	}
}

func TestPromObserver(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	o := NewPromObserver(reg)

	o.ObserveInvoke("event1")
	o.ObserveInvoke("event1")
	o.ObserveChunkIn(10)
	o.ObserveChunkOut(20)
	o.ObserveHeartbeat()
	o.ObserveSessionEnd(true)
	o.ObserveSessions(2)

	if got := testutil.ToFloat64(o.invocations.WithLabelValues("event1")); got != 2 {
		t.Errorf("invocations{event1} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.bytesIn); got != 10 {
		t.Errorf("bytes_in = %v, want 10", got)
	}
	if got := testutil.ToFloat64(o.bytesOut); got != 20 {
		t.Errorf("bytes_out = %v, want 20", got)
	}
	if got := testutil.ToFloat64(o.heartbeats); got != 1 {
		t.Errorf("heartbeats = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.sessionErrors); got != 1 {
		t.Errorf("session_errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.activeSessions); got != 2 {
		t.Errorf("active_sessions = %v, want 2", got)
	}
}
