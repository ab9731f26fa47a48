package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-teamsession/internal/types"
)

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	Signal      *Signal      `json:"signal,omitempty"`
	UserId      int          `json:"-"`
	client      *Client      `json:"-"`
}

func (m *ClientMessage) GetUserId() int {
	return m.UserId
}

type Subscribe struct {
	SessionId string `json:"session_id"`
}

type Unsubscribe struct {
	SessionId string `json:"session_id"`
}

// Signal is a WebRTC offer, answer or ICE candidate addressed to one
// participant of a session.
type Signal struct {
	SessionId string `json:"session_id"`
	To        int    `json:"to"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
}

func (s *Signal) validType() bool {
	switch s.Type {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Session *types.Session `json:"session,omitempty"`
	Message *types.Message `json:"message,omitempty"`
	Signal  *types.Signal  `json:"signal,omitempty"`
	Media   *MediaNotice   `json:"media,omitempty"`
}

// MediaNotice tells clients to enable or tear down their media when a
// session starts or ends.
type MediaNotice struct {
	SessionId string `json:"session_id"`
	Enabled   bool   `json:"enabled"`
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "", nil)
}

func ErrSessionNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "session not found", nil)
}

func ErrNotParticipant(id int) *ServerMessage {
	return newResponse(id, http.StatusForbidden, "not a participant of this session", nil)
}

func ErrSessionNotActive(id int) *ServerMessage {
	return newResponse(id, http.StatusConflict, "session is not active", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newResponse(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
