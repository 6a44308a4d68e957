package core

import (
	"errors"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/messages"
)

// Error codes for domain errors crossing the wire.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeDenied        = "denied"
	ErrCodeConflict      = "conflict"
	ErrCodeInvalid       = "invalid"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotSubscribed = "not_subscribed"
	ErrCodeInternal      = "internal"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFor maps service-level errors onto wire codes. Denied is never
// conflated with "nothing to do".
func errorFor(err error) *CoreError {
	switch {
	case errors.Is(err, messages.ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, messages.ErrDenied):
		return coreError(ErrCodeDenied, err.Error())
	case errors.Is(err, messages.ErrConflict):
		return coreError(ErrCodeConflict, err.Error())
	case errors.Is(err, messages.ErrInvalid):
		return coreError(ErrCodeInvalid, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
