package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a privileged operation did not complete.
type ErrorKind string

const (
	ErrKindUnauthenticated        ErrorKind = "UNAUTHENTICATED"
	ErrKindForbidden              ErrorKind = "FORBIDDEN"
	ErrKindInvalidPIN             ErrorKind = "INVALID_PIN"
	ErrKindNotFound               ErrorKind = "NOT_FOUND"
	ErrKindValidation             ErrorKind = "VALIDATION"
	ErrKindConcurrentModification ErrorKind = "CONCURRENT_MODIFICATION"
	ErrKindUnknownSetting         ErrorKind = "UNKNOWN_SETTING"
	ErrKindInternal               ErrorKind = "INTERNAL"
)

var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrForbidden              = errors.New("insufficient permissions")
	ErrInvalidPIN             = errors.New("invalid PIN")
	ErrNotFound               = errors.New("entity not found")
	ErrValidation             = errors.New("validation failed")
	ErrConcurrentModification = errors.New("entity was modified concurrently, please retry")
	ErrUnknownSetting         = errors.New("unknown setting")
	ErrInternal               = errors.New("internal error")
)

// Error carries a kind and a caller-safe message. Err keeps the underlying cause for server-side logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if sentinel := sentinelFor(e.Kind); sentinel != nil {
		return sentinel.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelFor(e.Kind)
}

// Is lets errors.Is(err, domain.ErrNotFound) match any *Error of that kind.
func (e *Error) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}

// NewError builds a kinded error with a formatted caller-safe message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a missing target entity.
func NotFoundf(format string, args ...interface{}) *Error {
	return NewError(ErrKindNotFound, format, args...)
}

// Validationf reports malformed input.
func Validationf(format string, args ...interface{}) *Error {
	return NewError(ErrKindValidation, format, args...)
}

// KindOf resolves the taxonomy kind of err. Unclassified errors are INTERNAL.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded *Error
	if errors.As(err, &kinded) {
		return kinded.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ErrKindInternal
}

var sentinels = map[ErrorKind]error{
	ErrKindUnauthenticated:        ErrUnauthenticated,
	ErrKindForbidden:              ErrForbidden,
	ErrKindInvalidPIN:             ErrInvalidPIN,
	ErrKindNotFound:               ErrNotFound,
	ErrKindValidation:             ErrValidation,
	ErrKindConcurrentModification: ErrConcurrentModification,
	ErrKindUnknownSetting:         ErrUnknownSetting,
	ErrKindInternal:               ErrInternal,
}

func sentinelFor(kind ErrorKind) error {
	return sentinels[kind]
}
