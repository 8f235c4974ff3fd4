// Package errors defines the sentinel errors shared by the retrieval harness
// and an AppError wrapper that carries an HTTP status for the serve surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIndexCorruption marks missing or unreadable index statistics. It is
	// fatal for a whole run since every score depends on document length.
	ErrIndexCorruption = errors.New("index corruption")
	// ErrQuery marks a query that cannot be parsed. It is scoped to that query.
	ErrQuery = errors.New("query error")
	// ErrMalformedQuery marks an unusable entry in a query file.
	ErrMalformedQuery = errors.New("malformed query entry")
	// ErrInvalidConfig marks configuration that would produce undefined scores.
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsFatal reports whether err must abort a run instead of being scoped to a
// single query.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIndexCorruption) || errors.Is(err, ErrInvalidConfig)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuery), errors.Is(err, ErrMalformedQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexCorruption):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
