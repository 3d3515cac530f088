// Package apperr defines the error kinds shared by the attendance services.
// Callers wrap them with context and test with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoActiveSession  = errors.New("no active session")
	ErrNoGallery        = errors.New("no gallery published")
	ErrNoFaceDetected   = errors.New("no face detected")
	ErrNoFacesExtracted = errors.New("no faces extracted")
	ErrValidation       = errors.New("validation failed")
	ErrStorage          = errors.New("storage failure")
)

// NotFound returns ErrNotFound annotated with the missing entity.
func NotFound(entity string, key any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, key)
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoGallery):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoFaceDetected):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, ErrNoFacesExtracted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
