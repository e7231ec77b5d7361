// Package apperr categorizes engine errors so callers (and the HTTP layer)
// can react without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Validation marks bad input shape or range, rejected before any mutation.
	Validation Kind = iota + 1
	// Conflict marks duplicate fingerprints and illegal status transitions.
	Conflict
	// NotFound marks missing referenced entities.
	NotFound
	// Integrity marks a violated invariant. It indicates a defect and must
	// abort the enclosing transaction.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Integrity:
		return "integrity"
	}
	return "unknown"
}

// Error is a categorized engine error.
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

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, or 0 if err is not categorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
