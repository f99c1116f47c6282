package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and logging.
type Kind int

const (
	// KindInternal is the default for unclassified failures.
	KindInternal Kind = iota
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindConflict means a uniqueness constraint was violated.
	KindConflict
	// KindValidation means the request failed a pre-mutation check.
	KindValidation
	// KindRollbackFailed means a compensating action after a partial
	// failure also failed, leaving stores inconsistent.
	KindRollbackFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindRollbackFailed:
		return "rollback_failed"
	default:
		return "internal"
	}
}

// Error is a classified error with a user-facing message. The wrapped
// cause carries internal detail for server-side logging only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NotFound creates a not-found error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a cause with a generic user-facing message.
func Internal(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// RollbackFailed marks an inconsistency left behind by a failed
// compensating action. Operators alert on this kind.
func RollbackFailed(msg string, cause error) error {
	return &Error{Kind: KindRollbackFailed, Message: msg, cause: cause}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// HTTPStatus maps an error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message safe to surface to API callers.
// Internal and rollback failures return a generic message; detail
// stays in the wrapped cause for logging.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInternal, KindRollbackFailed:
			return "internal error"
		default:
			return e.Message
		}
	}
	return "internal error"
}
