package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("delete folder: %w", NotFound("Folder not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Folder not found", Message(err))
}

func TestUpstream_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("chat service unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "chat service unavailable: connection refused", err.Error())
	assert.Equal(t, "chat service unavailable", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("x"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{QuotaExceeded("x"), http.StatusRequestEntityTooLarge},
		{Forbidden("x"), http.StatusForbidden},
		{Upstream("x", nil), http.StatusBadGateway},
		{Conflict("x"), http.StatusConflict},
		{Unauthorized("x"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(KindOf(tt.err).String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessage_HidesInternal(t *testing.T) {
	assert.Equal(t, "Internal server error", Message(errors.New("pq: relation does not exist")))
}
