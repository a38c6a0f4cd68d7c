package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorUnwrap(t *testing.T) {
	base := errors.New("row not found")
	err := NewAPIError(ErrNotFound, "Top-up with ID 'tpu_1' not found", base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "NOT_FOUND: Top-up with ID 'tpu_1' not found", err.Error())
}

func TestAPIErrorUnwrapNonError(t *testing.T) {
	err := NewAPIError(ErrInvalidInput, "bad payload", map[string]string{"field": "amount"})
	assert.Nil(t, err.Unwrap())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrNotFound:       http.StatusNotFound,
		ErrConflict:       http.StatusConflict,
		ErrBadRequest:     http.StatusBadRequest,
		ErrInvalidInput:   http.StatusBadRequest,
		ErrUnauthorized:   http.StatusUnauthorized,
		ErrInternalServer: http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, MapErrorToHTTPStatus(NewAPIError(code, "x", nil)))
	}

	// Wrapped APIErrors still map through errors.As.
	wrapped := fmt.Errorf("confirm failed: %w", NewAPIError(ErrConflict, "duplicate reference", nil))
	assert.Equal(t, http.StatusConflict, MapErrorToHTTPStatus(wrapped))

	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain")))
}
