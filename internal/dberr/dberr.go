// Package dberr defines the tagged error kinds shared by ra and tm, per the
// error-handling design: component boundaries return ordinary Go errors
// that additionally carry a Kind so callers (notably the schedule
// executor) can switch on retry-vs-rollback-vs-fatal without string
// matching.
package dberr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	SchemaViolation    Kind = "schema-violation"
	MissingAttribute   Kind = "missing-attribute"
	MissingRow         Kind = "missing-row"
	LockAcquireFailed  Kind = "lock-acquire-failed"
	LockOrderViolation Kind = "lock-order-violation"
	ValidationFailure  Kind = "validation-failure"
	ReadAfterDelete    Kind = "read-after-delete"
	ParseError         Kind = "parse-error"
	AssertionFailure   Kind = "assertion-failure"
)

// Error is the tagged result type used across component boundaries.
type Error struct {
	Kind Kind
	Msg  string
}

func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Msg }

// Is enables errors.Is(err, dberr.Sentinel(dberr.LockAcquireFailed)) style
// checks: it matches a zero-message target of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// Sentinel returns a zero-message Error usable as an errors.Is target.
func Sentinel(k Kind) *Error { return &Error{Kind: k} }

// KindOf extracts the Kind from err, if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
