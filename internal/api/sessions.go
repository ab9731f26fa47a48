package api

import (
	"context"
	"net/http"
	"time"

	"github.com/npezzotti/go-teamsession/internal/coordinator"
	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/types"
	"github.com/samber/lo"
)

type CreateSessionRequest struct {
	Topic           string `json:"topic" validate:"required,max=200"`
	MaxParticipants int    `json:"max_participants" validate:"min=2,max=10"`
	Avatar          string `json:"avatar" validate:"omitempty,max=64"`
}

type JoinSessionRequest struct {
	Code   string `json:"code" validate:"required,len=6,numeric"`
	Avatar string `json:"avatar" validate:"omitempty,max=64"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
	Type    string `json:"type" validate:"oneof=chat transcript"`
}

type ScoreRequest struct {
	UserId int `json:"user_id" validate:"required"`
	Delta  int `json:"delta"`
}

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
	Code      string `json:"code"`
}

type JoinSessionResponse struct {
	SessionId string `json:"session_id"`
}

type SendMessageResponse struct {
	MessageId string `json:"message_id"`
	SeqId     int    `json:"seq_id"`
}

// participant turns the caller's account into a session participant.
func participant(r *http.Request, avatar string) (session.Participant, *ApiError) {
	user, ok := Account(r.Context())
	if !ok {
		return session.Participant{}, NewUnauthorizedError()
	}

	return session.Participant{
		UserId: user.Id,
		Name:   user.Username,
		Avatar: avatar,
	}, nil
}

func (s *TeamSessionApp) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if decoded, err := decodeRequest(r, &req); err != nil {
		if decoded {
			s.writeError(w, NewSessionError(session.ErrInvalidConfig))
		} else {
			s.writeError(w, NewBadRequestError())
		}
		return
	}

	host, errResp := participant(r, req.Avatar)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	created, err := s.coord.Create(r.Context(), coordinator.CreateParams{
		Topic:           req.Topic,
		MaxParticipants: req.MaxParticipants,
		Host:            host,
	})
	if err != nil {
		s.writeError(w, NewSessionError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, CreateSessionResponse{
		SessionId: created.Id,
		Code:      created.Code,
	})
}

func (s *TeamSessionApp) joinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if decoded, err := decodeRequest(r, &req); err != nil {
		if decoded {
			s.writeError(w, NewSessionError(session.ErrInvalidCode))
		} else {
			s.writeError(w, NewBadRequestError())
		}
		return
	}

	p, errResp := participant(r, req.Avatar)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	joined, err := s.coord.Join(r.Context(), req.Code, p)
	if err != nil {
		s.writeError(w, NewSessionError(err))
		return
	}

	s.writeJson(w, http.StatusOK, JoinSessionResponse{SessionId: joined.Id})
}

type sessionOp func(ctx context.Context, id string, userId int) (*session.Session, error)

// sessionHandler adapts a coordinator call on the {id} path segment into a
// handler that responds with the updated session.
func (s *TeamSessionApp) sessionHandler(op sessionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		updated, err := op(r.Context(), r.PathValue("id"), userId)
		if err != nil {
			s.writeError(w, NewSessionError(err))
			return
		}

		s.writeJson(w, http.StatusOK, types.NewSession(updated))
	}
}

func (s *TeamSessionApp) awardScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if _, err := decodeRequest(r, &req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	s.sessionHandler(func(ctx context.Context, id string, requesterId int) (*session.Session, error) {
		return s.coord.AwardScore(ctx, id, requesterId, req.UserId, req.Delta)
	})(w, r)
}

func (s *TeamSessionApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if decoded, err := decodeRequest(r, &req); err != nil {
		if decoded {
			s.writeError(w, NewSessionError(session.ErrInvalidMessage))
		} else {
			s.writeError(w, NewBadRequestError())
		}
		return
	}

	sender, errResp := participant(r, "")
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	msg, err := s.coord.SendMessage(r.Context(), r.PathValue("id"), coordinator.MessageParams{
		UserId:   sender.UserId,
		UserName: sender.Name,
		Content:  req.Content,
		Type:     session.MessageType(req.Type),
	})
	if err != nil {
		s.writeError(w, NewSessionError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, SendMessageResponse{
		MessageId: msg.Id,
		SeqId:     msg.SeqId,
	})
}

func (s *TeamSessionApp) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	transcript, err := s.coord.ListMessages(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, NewSessionError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.NewMessages(transcript))
}

func (s *TeamSessionApp) exportTranscript(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	loc, err := time.LoadLocation(r.URL.Query().Get("tz"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	text, err := s.coord.ExportTranscript(r.Context(), r.PathValue("id"), userId, loc)
	if err != nil {
		s.writeError(w, NewSessionError(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func (s *TeamSessionApp) history(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	sessions, err := s.coord.History(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(sessions, func(ss *session.Session, _ int) types.Session {
		return types.NewSession(ss)
	}))
}

func (s *TeamSessionApp) userStats(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	st, err := s.coord.UserStats(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.Stats{
		Sessions:     st.Sessions,
		Minutes:      st.Minutes,
		Messages:     st.Messages,
		Score:        st.Score,
		LastRecorded: st.LastRecorded,
	})
}
