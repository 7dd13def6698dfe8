// Package common provides the runtime substrate shared by the soup and fix
// client sessions: the dispatchable message queue, heartbeat monitor, and
// the async session lifecycle built on top of them.
package common

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the error taxonomy an error belongs to.
type Kind int

const (
	// KindInvalidMessage marks wire bytes that are malformed or truncated
	// beyond recovery.
	KindInvalidMessage Kind = iota
	// KindDuplicateMessage marks two message classes claiming the same
	// (app, id) key in a registry.
	KindDuplicateMessage
	// KindUnknownMessage marks a well-framed message with no registered
	// class.
	KindUnknownMessage
	// KindTypeMismatch marks a value assigned to a typed field with the
	// wrong runtime type.
	KindTypeMismatch
	// KindMandatoryFieldMissing marks segment validation finding an unset
	// required tag.
	KindMandatoryFieldMissing
	// KindStateError marks an operation attempted in the wrong lifecycle
	// state.
	KindStateError
	// KindEndOfQueue marks a queue that was stopped while a reader was
	// blocked on it.
	KindEndOfQueue
	// KindConnectionRefused marks a peer rejecting login, or dropping the
	// connection before login completed.
	KindConnectionRefused
	// KindConnectionTimeout marks a connect deadline elapsing before the
	// transport established.
	KindConnectionTimeout
	// KindValueOverflow marks a value that does not fit in a fixed-width
	// field's (size, signed) range.
	KindValueOverflow
)

func (k Kind) String() string {
	switch k {
	case KindInvalidMessage:
		return "InvalidMessage"
	case KindDuplicateMessage:
		return "DuplicateMessage"
	case KindUnknownMessage:
		return "UnknownMessage"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindMandatoryFieldMissing:
		return "MandatoryFieldMissing"
	case KindStateError:
		return "StateError"
	case KindEndOfQueue:
		return "EndOfQueue"
	case KindConnectionRefused:
		return "ConnectionRefused"
	case KindConnectionTimeout:
		return "ConnectionTimeout"
	case KindValueOverflow:
		return "ValueOverflow"
	}
	return "Unknown"
}

// Error is the common error type raised across the codec, soup, and fix
// packages. Callers should match on Kind via errors.As, not string
// comparison.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrEndOfQueue) style sentinel checks against the
// Kind rather than the wrapped error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Msg == ""
	}
	return false
}

// New builds an *Error of the given kind.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// Sentinels usable with errors.Is for a bare kind check, e.g.
// errors.Is(err, common.ErrEndOfQueue).
var (
	ErrInvalidMessage        = &Error{Kind: KindInvalidMessage}
	ErrDuplicateMessage      = &Error{Kind: KindDuplicateMessage}
	ErrUnknownMessage        = &Error{Kind: KindUnknownMessage}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrMandatoryFieldMissing = &Error{Kind: KindMandatoryFieldMissing}
	ErrStateError            = &Error{Kind: KindStateError}
	ErrEndOfQueue            = &Error{Kind: KindEndOfQueue}
	ErrConnectionRefused     = &Error{Kind: KindConnectionRefused}
	ErrConnectionTimeout     = &Error{Kind: KindConnectionTimeout}
	ErrValueOverflow         = &Error{Kind: KindValueOverflow}
)
