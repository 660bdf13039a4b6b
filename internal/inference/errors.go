package inference

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation
type Kind int

const (
	// KindInternal is any unexpected failure during transform, predict or decode
	KindInternal Kind = iota
	// KindClientInput is a missing or malformed request field
	KindClientInput
	// KindUnavailable means the model pair needed for the request is not loaded
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the error type returned by Service operations
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors not produced by this package are
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func clientError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindClientInput, Message: fmt.Sprintf(format, args...)}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
