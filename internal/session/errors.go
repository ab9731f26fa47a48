package session

import "errors"

var (
	ErrInvalidConfig            = errors.New("invalid session config")
	ErrSessionFull              = errors.New("session is full")
	ErrAlreadyStarted           = errors.New("session already started")
	ErrNotStarted               = errors.New("session not started")
	ErrNotHost                  = errors.New("requester is not the host")
	ErrInsufficientParticipants = errors.New("not enough participants to start")
	ErrSessionClosed            = errors.New("session is closed")
	ErrInvalidCode              = errors.New("invalid join code")
	ErrNotParticipant           = errors.New("user is not a participant")
	ErrInvalidMessage           = errors.New("invalid message")
	ErrSessionNotFound          = errors.New("session not found")
)
