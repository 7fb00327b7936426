// Package extract defines the AI extraction adapter contract and the Gemini
// implementation used to pull structured voter records out of page-range
// segments.
package extract

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an extraction failure for the retry policy.
type ErrorKind string

const (
	// KindTransient covers network failures and retryable service errors.
	KindTransient ErrorKind = "transient"
	// KindRateLimited is a 429 from the service, possibly with a
	// retry-after hint.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout means the per-call deadline elapsed. Retryable.
	KindTimeout ErrorKind = "timeout"
	// KindPermanent covers invalid input and unrecoverable service errors.
	// Never retried.
	KindPermanent ErrorKind = "permanent"
)

// Retryable reports whether the retry policy may schedule another attempt.
func (k ErrorKind) Retryable() bool {
	return k != KindPermanent
}

// Error is a classified extraction failure.
type Error struct {
	Kind ErrorKind
	// RetryAfter is a service-provided backoff hint (rate limits only).
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// RateLimited wraps err as a rate-limit failure with an optional hint.
func RateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Timeout wraps err as a deadline failure.
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}

// Classify returns the error's kind, defaulting unknown errors to
// transient so the retry policy gets a chance to recover them.
func Classify(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindTransient
}

// RetryAfterHint extracts the service-provided backoff hint, if any.
func RetryAfterHint(err error) time.Duration {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.RetryAfter
	}
	return 0
}
