package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-teamsession/internal/session"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

var sessionErrorCodes = []struct {
	err  error
	code int
}{
	{session.ErrInvalidConfig, http.StatusBadRequest},
	{session.ErrInvalidMessage, http.StatusBadRequest},
	{session.ErrInvalidCode, http.StatusNotFound},
	{session.ErrSessionNotFound, http.StatusNotFound},
	{session.ErrNotHost, http.StatusForbidden},
	{session.ErrNotParticipant, http.StatusForbidden},
	{session.ErrSessionFull, http.StatusConflict},
	{session.ErrAlreadyStarted, http.StatusConflict},
	{session.ErrNotStarted, http.StatusConflict},
	{session.ErrInsufficientParticipants, http.StatusConflict},
	{session.ErrSessionClosed, http.StatusConflict},
}

// NewSessionError maps a session operation failure onto an ApiError. The
// message is the session error text so clients can match on it.
func NewSessionError(err error) *ApiError {
	for _, se := range sessionErrorCodes {
		if errors.Is(err, se.err) {
			return &ApiError{
				StatusCode: se.code,
				Message:    se.err.Error(),
				Err:        err,
			}
		}
	}

	return NewInternalServerError(err)
}
