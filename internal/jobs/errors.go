package jobs

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure for the retry policy. Handlers return
// plain error values; wrapping with one of the constructors below is how a
// handler communicates retryability. Anything unwrapped defaults to
// transient.
type Kind int

const (
	KindTransient Kind = iota
	KindNonRetryable
)

// Error is a handler failure with enough structure for the retry policy to
// pattern-match on, instead of digging through exception types.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("status %d: %v", e.HTTPStatus, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NonRetryable marks a failure as permanently fatal: missing runtime
// dependency, permanent validation error, and the like.
func NonRetryable(err error) error {
	return &Error{Kind: KindNonRetryable, Err: err}
}

// WithStatus attaches an upstream HTTP status to a failure so the retry
// policy can treat auth errors as terminal and 429/5xx as transient.
func WithStatus(status int, err error) error {
	return &Error{Kind: KindTransient, HTTPStatus: status, Err: err}
}

// asJobError extracts the structured failure, if any.
func asJobError(err error) (*Error, bool) {
	var je *Error
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
