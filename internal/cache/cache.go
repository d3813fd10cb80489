// Package cache implements the kvcache engine: a volatile key/value store
// with per-key expiration, glob-style key search and atomic batch writes.
// The engine is transport-agnostic; callers hand it already-parsed requests
// and receive structured results or one of the sentinel errors below.
package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("cache: invalid input")

	// ErrNotFound is returned when an operation targets a key that does not
	// exist or has expired.
	ErrNotFound = errors.New("cache: key not found")

	// ErrPreconditionFailed is returned when a destructive operation is
	// attempted without the required confirmation.
	ErrPreconditionFailed = errors.New("cache: precondition failed")

	// ErrInternal is returned when the store could not complete an operation.
	ErrInternal = errors.New("cache: internal fault")
)

// Kind classifies an engine error for the transport layer.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindNotFound
	KindPreconditionFailed
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	default:
		return "internal"
	}
}

// KindOf maps err onto the engine's error taxonomy. Errors that did not
// originate from the engine are reported as KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	default:
		return KindInternal
	}
}

var errConfirmationRequired = fmt.Errorf("%w: confirmation required", ErrPreconditionFailed)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(key string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, key)
}
