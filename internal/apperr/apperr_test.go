package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersWrapKinds(t *testing.T) {
	assert.ErrorIs(t, NotFound("session", "abc"), ErrNotFound)
	assert.ErrorIs(t, Validation("semester %d out of range", 9), ErrValidation)

	cause := errors.New("disk full")
	err := Storage("upload", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage failure: upload: disk full", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NotFound("record", "x"), http.StatusNotFound},
		{fmt.Errorf("loading: %w", ErrNoGallery), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{ErrNoFaceDetected, http.StatusBadRequest},
		{ErrNoActiveSession, http.StatusConflict},
		{ErrNoFacesExtracted, http.StatusUnprocessableEntity},
		{Storage("put", errors.New("x")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "error: %v", tt.err)
	}
}
