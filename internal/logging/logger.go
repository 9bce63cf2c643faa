// Package logging provides priority logging for the worker. Log lines are
// emitted through a backend: either the framework's remote logging service
// or a plain console writer.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Priority represents the available log priorities, ordered
// debug < info < warning < error.
type Priority int

const (
	Debug Priority = iota
	Info
	Warning
	Error
)

func (p Priority) String() string {
	switch p {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Logger is a log backend: something able to deliver a finished line
// together with its priority and source.
type Logger interface {
	Verbosity() Priority
	Emit(priority Priority, source, message string)
}

// Log is the front half handed to components: it carries the source name
// ("worker/<app>", "app/<app>") and formats into the backend.
type Log struct {
	backend Logger
	source  string
}

func NewLog(backend Logger, source string) *Log {
	return &Log{backend: backend, source: source}
}

func (l *Log) emit(p Priority, format string, args ...interface{}) {
	if l == nil || l.backend == nil || p < l.backend.Verbosity() {
		return
	}
	l.backend.Emit(p, l.source, fmt.Sprintf(format, args...))
}

func (l *Log) Debugf(format string, args ...interface{}) {
	l.emit(Debug, format, args...)
}

func (l *Log) Infof(format string, args ...interface{}) {
	l.emit(Info, format, args...)
}

func (l *Log) Warningf(format string, args ...interface{}) {
	l.emit(Warning, format, args...)
}

func (l *Log) Errorf(format string, args ...interface{}) {
	l.emit(Error, format, args...)
}

// Config holds console logger configuration.
type Config struct {
	Verbosity Priority
	Output    io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Verbosity: Info,
		Output:    os.Stderr,
	}
}

// Console is a Logger writing to a local stream. It is the fallback when
// the remote logging service is unreachable, and the workhorse in tests.
type Console struct {
	logger    *log.Logger
	verbosity Priority
	mu        sync.Mutex
}

func NewConsole(config *Config) *Console {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &Console{
		logger:    log.New(output, "", log.LstdFlags),
		verbosity: config.Verbosity,
	}
}

func (c *Console) Verbosity() Priority {
	return c.verbosity
}

func (c *Console) Emit(priority Priority, source, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Printf("[%s] %s: %s", priority, source, message)
}
