// Package errors defines the sentinel errors shared by the ranking engine and
// the service around it, plus an AppError wrapper that carries an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput is returned when a caller passes text, an index or a
	// request the engine cannot work with.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyCorpus is returned by fit when given zero documents.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrNotFitted is returned by score, search and persist before a fit.
	ErrNotFitted = errors.New("index not fitted")
	// ErrCorruptState is returned when persisted artifacts are missing or malformed.
	ErrCorruptState = errors.New("corrupt index state")
	// ErrArtifactNotFound is returned by snapshot stores for unknown artifact names.
	ErrArtifactNotFound = errors.New("artifact not found")
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

// Invalidf wraps ErrInvalidInput with a formatted message.
func Invalidf(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

// Corruptf wraps ErrCorruptState with a formatted message.
func Corruptf(format string, args ...any) *AppError {
	return Newf(ErrCorruptState, http.StatusInternalServerError, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyCorpus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFitted):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrArtifactNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
