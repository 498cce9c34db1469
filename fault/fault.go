// Package fault defines the error taxonomy shared by the coordinator and the
// worker. Every failure that crosses a component boundary is tagged with a
// Kind so that callers can decide between an HTTP status code, a terminal job
// state, or a redelivery without parsing message strings.
//
// The split that matters operationally is transient versus deterministic:
// transient faults (bus, store, catalog connectivity) are safe to retry by
// redelivering the message, deterministic faults (bad input, missing table)
// are not and must terminate the job.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero value; treated as deterministic.
	KindUnknown Kind = iota

	// KindInvalidInput marks malformed requests, unsupported files and
	// malformed query specs. Never retried.
	KindInvalidInput

	// KindNotFound marks unknown job ids, missing tables and missing blobs.
	KindNotFound

	// KindStorage marks object store I/O failures. Transient.
	KindStorage

	// KindBus marks message bus failures. Transient.
	KindBus

	// KindCatalog marks catalog connectivity failures. Transient.
	KindCatalog

	// KindJobStore marks job store failures. Transient.
	KindJobStore

	// KindExecution marks deterministic engine failures during scan or
	// aggregation: schema mismatch, overflow, type incompatibility.
	KindExecution

	// KindTimeout marks a stage exceeding its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage_error"
	case KindBus:
		return "bus_error"
	case KindCatalog:
		return "catalog_error"
	case KindJobStore:
		return "jobstore_error"
	case KindExecution:
		return "execution_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown_error"
	}
}

// Error is a tagged error. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error. The cause remains reachable via errors.Is and
// errors.As.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err carries no tag.
// When errors are wrapped multiple times the outermost tag wins.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried by redelivering the
// message. Untagged errors are treated as deterministic: retrying an error we
// cannot classify risks a poison message loop.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindBus, KindCatalog, KindJobStore:
		return true
	default:
		return false
	}
}

// Message extracts a client-facing message from err, appending the immediate
// cause when it differs, truncated to maxLen runes. It mirrors what polling
// clients see in the job record's message field.
func Message(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var fe *Error
	if errors.As(err, &fe) && fe.Err != nil {
		cause := fe.Err.Error()
		if cause != fe.Msg && cause != msg {
			msg = fe.Msg + " - Cause: " + cause
		}
	}
	if maxLen > 0 {
		r := []rune(msg)
		if len(r) > maxLen {
			msg = string(r[:maxLen]) + "..."
		}
	}
	return msg
}
