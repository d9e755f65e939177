package scheduling

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a scheduling failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindForbidden         ErrorKind = "forbidden"
)

// Error is returned by the service for every caller-facing failure. Storage
// errors are not wrapped in it and surface as internal errors.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

func NotFoundError(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func ConflictError(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

func InvalidTransitionError(from, to Status) error {
	return newError(KindInvalidTransition, "cannot move booking from %s to %s", from, to)
}

func ForbiddenError(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

// Storage sentinels. Repositories return these so the service can translate
// them into typed errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrSlotTaken = errors.New("slot already held by another booking")
	ErrStale     = errors.New("booking status changed concurrently")
)

// KindOf returns the kind of a scheduling error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a scheduling error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
