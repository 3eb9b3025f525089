package core

import (
	"errors"
	"net/http"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrAuth            = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrExtractionEmpty = errors.New("extraction empty")
	ErrDownload        = errors.New("download failed")
	ErrPersist         = errors.New("persist failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnavailable     = errors.New("service unavailable")
)

// Error carries a kind, a user-facing message and the underlying cause.
// Error() returns the message unchanged so it can be stored or shown verbatim.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func NewError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Validation(message string) *Error { return NewError(ErrValidation, message, nil) }
func NotFound(message string) *Error   { return NewError(ErrNotFound, message, nil) }

// MapHTTPStatus maps an error to the status code returned by the API.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
