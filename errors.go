package worker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCode represents high-level error categories.
type ErrCode string

const (
	ErrCodeStreamClosed  ErrCode = "stream closed"
	ErrCodeNoSuchEvent   ErrCode = "no such event"
	ErrCodeBadFactory    ErrCode = "bad factory"
	ErrCodeInvocation    ErrCode = "invocation failed"
	ErrCodeNoApplication ErrCode = "no application"
	ErrCodeTransport     ErrCode = "transport failed"
	ErrCodeDecode        ErrCode = "decode failed"
	ErrCodeDisowned      ErrCode = "disowned"
)

// Error is a structured worker error with operation and session context.
type Error struct {
	Op      string  // Operation that failed (e.g. "invoke", "write")
	Session uint64  // Session id (0 if not applicable)
	Code    ErrCode // High-level error category
	Msg     string  // Human-readable message
	Inner   error   // Wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Session != 0 {
		parts = append(parts, fmt.Sprintf("session=%d", e.Session))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("worker: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("worker: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches two worker errors by category.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a new structured error.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSessionError creates a new session-scoped error.
func NewSessionError(op string, session uint64, code ErrCode, msg string) *Error {
	return &Error{Op: op, Session: session, Code: code, Msg: msg}
}

// WrapError wraps an existing error with worker context.
func WrapError(op string, code ErrCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode checks whether an error matches a specific error code.
func IsCode(err error, code ErrCode) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code == code
	}
	return false
}
