// Package fault defines the error taxonomy shared by every workflow
// operation. A business error carries a Kind the caller can act on; anything
// without a Kind is an infrastructure failure and aborts the enclosing
// transaction.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindInternal covers infrastructure failures surfaced as opaque errors.
	KindInternal Kind = iota
	// KindInvalidInput marks malformed or out-of-range command fields.
	KindInvalidInput
	// KindUnauthenticated marks a missing or unresolvable credential.
	KindUnauthenticated
	// KindForbidden marks a resolved credential lacking role or affiliation.
	KindForbidden
	// KindNotFound marks an absent referenced entity.
	KindNotFound
	// KindConflict marks a violated state precondition.
	KindConflict
	// KindExpired marks an elapsed time window (field session or quote).
	// Distinct from Conflict because it is time-derived, not action-derived.
	KindExpired
	// KindUnavailable marks an unconfigured external collaborator.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a business error with a caller-visible kind and message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is reports kind equality so sentinel errors built with New can be matched
// with errors.Is against any error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && (other.Msg == "" || other.Msg == e.Msg)
	}
	return false
}

// New builds a fault with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a fault with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an InvalidInput fault.
func InvalidInput(msg string) *Error { return New(KindInvalidInput, msg) }

// Unauthenticated builds an Unauthenticated fault.
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }

// Forbidden builds a Forbidden fault.
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

// NotFound builds a NotFound fault.
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// Conflict builds a Conflict fault.
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// Expired builds an Expired fault.
func Expired(msg string) *Error { return New(KindExpired, msg) }

// Unavailable builds an Unavailable fault.
func Unavailable(msg string) *Error { return New(KindUnavailable, msg) }

// KindOf extracts the kind from err, defaulting to KindInternal for plain
// infrastructure errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
