package generate

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a generation failure.
type Kind int

const (
	KindInternal   Kind = iota
	KindBadRequest      // missing or invalid input
	KindNotFound        // profile, report row or personnel record missing
	KindFormat          // template, table fragment or schedule unreadable
)

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindFormat:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type Generate returns. Message is safe to show
// to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KeyNotFoundError reports a lookup that found nothing. Kind is one of
// "profile", "report", "leader" or "worker".
type KeyNotFoundError struct {
	Kind string
	Key  string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func notFound(kind, key, message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: &KeyNotFoundError{Kind: kind, Key: key}}
}

func badRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// AsError converts any error into *Error, defaulting to KindInternal.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
