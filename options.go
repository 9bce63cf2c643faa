package worker

import (
	"path/filepath"
	"time"

	"github.com/cocaine-grape/worker/internal/logging"
)

const (
	// DefaultHeartbeatInterval is how often the worker beacons the engine.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultDisownTimeout is how long the worker waits for the engine's
	// heartbeat after sending its own. Deliberately shorter than the
	// heartbeat interval so a single missed engine heartbeat is detected.
	DefaultDisownTimeout = 2 * time.Second

	// DefaultRuntimeRoot is where the engine exposes per-application
	// endpoints.
	DefaultRuntimeRoot = "/var/run/cocaine/engines"
)

// Options configures a worker. The zero value picks the framework
// defaults.
type Options struct {
	// HeartbeatInterval overrides DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// DisownTimeout overrides DefaultDisownTimeout.
	DisownTimeout time.Duration

	// RuntimeRoot overrides DefaultRuntimeRoot for endpoint resolution.
	RuntimeRoot string

	// LogService is the logging service address; empty means
	// logging.DefaultServiceAddr.
	LogService string

	// Logger overrides the log backend. When nil the worker dials the
	// logging service and falls back to stderr if it is unreachable.
	Logger logging.Logger

	// Observer receives dispatch metrics; nil means no collection.
	Observer Observer
}

// DefaultOptions returns the framework defaults, spelled out.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: DefaultHeartbeatInterval,
		DisownTimeout:     DefaultDisownTimeout,
		RuntimeRoot:       DefaultRuntimeRoot,
		LogService:        logging.DefaultServiceAddr,
	}
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.DisownTimeout <= 0 {
		o.DisownTimeout = DefaultDisownTimeout
	}
	if o.RuntimeRoot == "" {
		o.RuntimeRoot = DefaultRuntimeRoot
	}
	if o.LogService == "" {
		o.LogService = logging.DefaultServiceAddr
	}
	if o.Observer == nil {
		o.Observer = NoOpObserver{}
	}
	return o
}

// EngineEndpoint resolves the UNIX socket path the engine listens on for
// the named application.
func EngineEndpoint(root, appName string) string {
	if root == "" {
		root = DefaultRuntimeRoot
	}
	return filepath.Join(root, appName)
}
