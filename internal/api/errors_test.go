package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestApiError(t *testing.T) {
	err := NewInternalServerError(errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "internal server error: db down", err.Error())

	assert.Equal(t, "not found", NewNotFoundError().Error())
	assert.Equal(t, http.StatusUnauthorized, NewUnauthorizedError().StatusCode)
}

func TestNewSessionError(t *testing.T) {
	tcases := []struct {
		err        error
		statusCode int
		message    string
	}{
		{session.ErrInvalidConfig, http.StatusBadRequest, "invalid session config"},
		{fmt.Errorf("%w: empty content", session.ErrInvalidMessage), http.StatusBadRequest, "invalid message"},
		{session.ErrInvalidCode, http.StatusNotFound, "invalid join code"},
		{session.ErrSessionNotFound, http.StatusNotFound, "session not found"},
		{session.ErrNotHost, http.StatusForbidden, "requester is not the host"},
		{session.ErrNotParticipant, http.StatusForbidden, "user is not a participant"},
		{session.ErrSessionFull, http.StatusConflict, "session is full"},
		{session.ErrAlreadyStarted, http.StatusConflict, "session already started"},
		{session.ErrNotStarted, http.StatusConflict, "session not started"},
		{session.ErrInsufficientParticipants, http.StatusConflict, "not enough participants to start"},
		{session.ErrSessionClosed, http.StatusConflict, "session is closed"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tcases {
		t.Run(tc.message, func(t *testing.T) {
			apiErr := NewSessionError(tc.err)
			assert.Equal(t, tc.statusCode, apiErr.StatusCode)
			assert.Equal(t, tc.message, apiErr.Message)
			assert.ErrorIs(t, apiErr, tc.err)
		})
	}
}
