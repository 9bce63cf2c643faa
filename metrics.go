package worker

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer allows pluggable metrics collection. All methods are called
// from the worker's dispatch goroutine; implementations that fan out to
// shared state must be safe for concurrent readers.
type Observer interface {
	// ObserveInvoke is called when a session opens for event.
	ObserveInvoke(event string)

	// ObserveChunkIn is called for each inbound chunk delivered to a
	// handler.
	ObserveChunkIn(bytes int)

	// ObserveChunkOut is called for each outbound chunk written upstream.
	ObserveChunkOut(bytes int)

	// ObserveSessionEnd is called when a session is evicted from the map or
	// its invocation is rejected before entering it; failed reports whether
	// it ended with an error frame. Sessions still live at shutdown are not
	// reported.
	ObserveSessionEnd(failed bool)

	// ObserveHeartbeat is called for each heartbeat sent to the engine.
	ObserveHeartbeat()

	// ObserveSessions is called with the live session count after it
	// changes.
	ObserveSessions(active int)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveInvoke(string)    {}
func (NoOpObserver) ObserveChunkIn(int)      {}
func (NoOpObserver) ObserveChunkOut(int)     {}
func (NoOpObserver) ObserveSessionEnd(bool)  {}
func (NoOpObserver) ObserveHeartbeat()       {}
func (NoOpObserver) ObserveSessions(int)     {}

// Metrics tracks dispatch statistics with atomic counters.
type Metrics struct {
	Invocations    atomic.Uint64
	ChunksIn       atomic.Uint64
	ChunksOut      atomic.Uint64
	BytesIn        atomic.Uint64
	BytesOut       atomic.Uint64
	Heartbeats     atomic.Uint64
	SessionsEnded  atomic.Uint64
	SessionErrors  atomic.Uint64
	ActiveSessions atomic.Int64

	StartTime atomic.Int64
}

func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Invocations    uint64
	ChunksIn       uint64
	ChunksOut      uint64
	BytesIn        uint64
	BytesOut       uint64
	Heartbeats     uint64
	SessionsEnded  uint64
	SessionErrors  uint64
	ActiveSessions int64
	Uptime         time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Invocations:    m.Invocations.Load(),
		ChunksIn:       m.ChunksIn.Load(),
		ChunksOut:      m.ChunksOut.Load(),
		BytesIn:        m.BytesIn.Load(),
		BytesOut:       m.BytesOut.Load(),
		Heartbeats:     m.Heartbeats.Load(),
		SessionsEnded:  m.SessionsEnded.Load(),
		SessionErrors:  m.SessionErrors.Load(),
		ActiveSessions: m.ActiveSessions.Load(),
		Uptime:         time.Duration(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// MetricsObserver implements Observer on top of the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveInvoke(string) {
	o.metrics.Invocations.Add(1)
}

func (o *MetricsObserver) ObserveChunkIn(bytes int) {
	o.metrics.ChunksIn.Add(1)
	o.metrics.BytesIn.Add(uint64(bytes))
}

func (o *MetricsObserver) ObserveChunkOut(bytes int) {
	o.metrics.ChunksOut.Add(1)
	o.metrics.BytesOut.Add(uint64(bytes))
}

func (o *MetricsObserver) ObserveSessionEnd(failed bool) {
	o.metrics.SessionsEnded.Add(1)
	if failed {
		o.metrics.SessionErrors.Add(1)
	}
}

func (o *MetricsObserver) ObserveHeartbeat() {
	o.metrics.Heartbeats.Add(1)
}

func (o *MetricsObserver) ObserveSessions(active int) {
	o.metrics.ActiveSessions.Store(int64(active))
}

// PromObserver exports dispatch metrics through a Prometheus registry.
type PromObserver struct {
	invocations    *prometheus.CounterVec
	chunksIn       prometheus.Counter
	chunksOut      prometheus.Counter
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
	heartbeats     prometheus.Counter
	sessionErrors  prometheus.Counter
	activeSessions prometheus.Gauge
}

func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	factory := promauto.With(reg)
	return &PromObserver{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_invocations_total",
			Help: "Total number of sessions opened, by event",
		}, []string{"event"}),
		chunksIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_chunks_in_total",
			Help: "Total inbound chunks delivered to handlers",
		}),
		chunksOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_chunks_out_total",
			Help: "Total outbound chunks written to the engine",
		}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_bytes_in_total",
			Help: "Total inbound chunk bytes",
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_bytes_out_total",
			Help: "Total outbound chunk bytes",
		}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_heartbeats_total",
			Help: "Total heartbeats sent to the engine",
		}),
		sessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_session_errors_total",
			Help: "Total sessions that ended with an error frame",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_active_sessions",
			Help: "Number of live sessions",
		}),
	}
}

func (o *PromObserver) ObserveInvoke(event string) {
	o.invocations.WithLabelValues(event).Inc()
}

func (o *PromObserver) ObserveChunkIn(bytes int) {
	o.chunksIn.Inc()
	o.bytesIn.Add(float64(bytes))
}

func (o *PromObserver) ObserveChunkOut(bytes int) {
	o.chunksOut.Inc()
	o.bytesOut.Add(float64(bytes))
}

func (o *PromObserver) ObserveSessionEnd(failed bool) {
	if failed {
		o.sessionErrors.Inc()
	}
}

func (o *PromObserver) ObserveHeartbeat() {
	o.heartbeats.Inc()
}

func (o *PromObserver) ObserveSessions(active int) {
	o.activeSessions.Set(float64(active))
}

// Compile-time interface checks
var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*PromObserver)(nil)
	_ Observer = NoOpObserver{}
)
