package catalog

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrParse marks malformed upstream values that abort an identifier.
	ErrParse = errors.New("parse failure")
	// ErrNotFound signals a missing stored object.
	ErrNotFound = errors.New("not found")
)

// TransientError wraps a network error, timeout, or non-2xx response.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
}

// Unwrap exposes the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Is matches ErrTransient.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// ParseError reports a value that could not be parsed.
type ParseError struct {
	Field string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Field, e.Input, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Field, e.Input)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// IsCancellation reports whether err stems from the run being cancelled.
// Deadlines internal to a single call are not cancellation.
func IsCancellation(ctx context.Context, err error) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
