// Package ferrors implements the error taxonomy used across FORGE's
// core packages (spec.md §7): a small set of typed wrapper errors that
// every caller can test for with errors.As, independent of the message
// text or the underlying driver error.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind string

const (
	KindDatabaseFailure Kind = "database_failure"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindTimeout         Kind = "timeout"
	KindSerialization   Kind = "serialization"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error wraps an underlying cause with a Kind and an operator-facing
// message. Message is safe to surface to clients; Err (the cause) is
// not and should only ever reach logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// DatabaseFailure wraps a query/exec error. Per spec.md §7 these
// propagate to the caller, which logs and retries its outer loop on
// the next tick.
func DatabaseFailure(err error, format string, args ...any) *Error {
	return newf(KindDatabaseFailure, err, format, args...)
}

// Validation reports bad input at an API boundary (malformed UUID,
// missing field, over-limit string). Message is always safe to
// return verbatim to the client; callers must never embed raw user
// input that wasn't already validated as safe to echo back.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// NotFound reports a missing job/workflow/entity lookup. Not fatal to
// the node; surfaced to the client as-is.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// Timeout reports a handler that exceeded its configured deadline.
func Timeout(err error, format string, args ...any) *Error {
	return newf(KindTimeout, err, format, args...)
}

// Serialization reports a step payload encode/decode failure. Fails
// the owning workflow step.
func Serialization(err error, format string, args ...any) *Error {
	return newf(KindSerialization, err, format, args...)
}

// Conflict reports a unique-constraint race, e.g. two nodes claiming
// the same cron instant. Per spec.md §7 these are silently suppressed
// by the caller: another node owns the instant.
func Conflict(err error, format string, args ...any) *Error {
	return newf(KindConflict, err, format, args...)
}

// Internal reports a broken invariant (leader lock held but row
// missing, etc). Logged and swallowed: the next tick self-corrects.
func Internal(err error, format string, args ...any) *Error {
	return newf(KindInternal, err, format, args...)
}

// Is reports whether err (or any error it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == k
}

// KindOf extracts the Kind of err, if it (or a wrapped cause) is a
// *Error. The zero Kind is returned otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
