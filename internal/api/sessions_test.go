package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-teamsession/internal/database"
	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func expectAccount(db *database.MockSessionRepository, userId int) {
	db.On("GetAccountById", userId).Return(database.User{Id: userId, Username: fmt.Sprintf("user%d", userId)}, nil)
}

// storedSession returns a session hosted by user 1 with the given users
// joined.
func storedSession(t *testing.T, status session.Status, maxParticipants int, joiners ...int) *session.Session {
	t.Helper()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s, err := session.New(session.CreateParams{
		Id:              "sess1",
		Code:            "123456",
		Topic:           "Leadership",
		MaxParticipants: maxParticipants,
		Host:            session.Participant{UserId: 1, Name: "user1"},
	}, created)
	require.NoError(t, err)

	for _, id := range joiners {
		_, err := s.Join(session.Participant{UserId: id, Name: fmt.Sprintf("user%d", id)}, created)
		require.NoError(t, err)
	}
	s.Status = status
	return s
}

func Test_createSession(t *testing.T) {
	t.Run("returns id and join code", func(t *testing.T) {
		db := &database.MockSessionRepository{}
		defer db.AssertExpectations(t)
		expectAccount(db, 1)
		db.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *session.Session) bool {
			host, ok := s.Find(1)
			return ok && host.Name == "user1" && host.Avatar == "owl" &&
				s.Topic == "Leadership" && s.MaxParticipants == 4 && s.Status == session.StatusWaiting
		})).Return(nil).Once()

		rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions", CreateSessionRequest{
			Topic:           "Leadership",
			MaxParticipants: 4,
			Avatar:          "owl",
		}, 1)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		resp := decodeBody[CreateSessionResponse](t, rr)
		assert.NotEmpty(t, resp.SessionId)
		assert.True(t, session.ValidCode(resp.Code), "expected six digit code, got %q", resp.Code)
	})

	tcases := []struct {
		name string
		body any
	}{
		{name: "too many participants", body: CreateSessionRequest{Topic: "Leadership", MaxParticipants: 11}},
		{name: "too few participants", body: CreateSessionRequest{Topic: "Leadership", MaxParticipants: 1}},
		{name: "missing topic", body: CreateSessionRequest{MaxParticipants: 4}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockSessionRepository{}
			defer db.AssertExpectations(t)
			expectAccount(db, 1)

			rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions", tc.body, 1)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid session config", decodeBody[ApiError](t, rr).Message)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		db := &database.MockSessionRepository{}
		expectAccount(db, 1)

		rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions", "{", 1)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "bad request", decodeBody[ApiError](t, rr).Message)
	})

	t.Run("unknown account", func(t *testing.T) {
		db := &database.MockSessionRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(database.User{}, sql.ErrNoRows).Once()

		rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions", CreateSessionRequest{Topic: "Leadership", MaxParticipants: 4}, 1)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_joinSession(t *testing.T) {
	tcases := []struct {
		name       string
		code       string
		stored     *session.Session
		lookupErr  error
		statusCode int
		message    string
	}{
		{
			name:       "joins waiting session",
			code:       "123456",
			stored:     storedSession(t, session.StatusWaiting, 4),
			statusCode: http.StatusOK,
		},
		{
			name:       "malformed code",
			code:       "12ab",
			statusCode: http.StatusNotFound,
			message:    "invalid join code",
		},
		{
			name:       "unknown code",
			code:       "654321",
			lookupErr:  session.ErrSessionNotFound,
			statusCode: http.StatusNotFound,
			message:    "invalid join code",
		},
		{
			name:       "full session",
			code:       "123456",
			stored:     storedSession(t, session.StatusWaiting, 2, 3),
			statusCode: http.StatusConflict,
			message:    "session is full",
		},
		{
			name:       "already started",
			code:       "123456",
			stored:     storedSession(t, session.StatusActive, 4, 3),
			statusCode: http.StatusConflict,
			message:    "session already started",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockSessionRepository{}
			defer db.AssertExpectations(t)
			expectAccount(db, 2)
			if tc.stored != nil || tc.lookupErr != nil {
				db.On("GetOpenSessionByCode", mock.Anything, tc.code).Return(tc.stored, tc.lookupErr).Once()
			}
			if tc.stored != nil {
				db.On("MutateSession", mock.Anything, "sess1").Return(tc.stored, nil).Once()
			}

			rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions/join", JoinSessionRequest{Code: tc.code}, 2)
			require.Equal(t, tc.statusCode, rr.Code, rr.Body.String())

			if tc.statusCode == http.StatusOK {
				assert.Equal(t, "sess1", decodeBody[JoinSessionResponse](t, rr).SessionId)
				assert.True(t, tc.stored.IsJoined(2), "expected user 2 to be joined")
			} else {
				assert.Equal(t, tc.message, decodeBody[ApiError](t, rr).Message)
			}
		})
	}
}

func Test_sessionLifecycle(t *testing.T) {
	tcases := []struct {
		name       string
		path       string
		userId     int
		stored     *session.Session
		statusCode int
		status     string
		message    string
	}{
		{
			name:       "host starts",
			path:       "/api/sessions/sess1/start",
			userId:     1,
			stored:     storedSession(t, session.StatusWaiting, 4, 2),
			statusCode: http.StatusOK,
			status:     "active",
		},
		{
			name:       "guest cannot start",
			path:       "/api/sessions/sess1/start",
			userId:     2,
			stored:     storedSession(t, session.StatusWaiting, 4, 2),
			statusCode: http.StatusForbidden,
			message:    "requester is not the host",
		},
		{
			name:       "host alone cannot start",
			path:       "/api/sessions/sess1/start",
			userId:     1,
			stored:     storedSession(t, session.StatusWaiting, 4),
			statusCode: http.StatusConflict,
			message:    "not enough participants to start",
		},
		{
			name:       "host ends",
			path:       "/api/sessions/sess1/end",
			userId:     1,
			stored:     storedSession(t, session.StatusActive, 4, 2),
			statusCode: http.StatusOK,
			status:     "completed",
		},
		{
			name:       "guest cannot end",
			path:       "/api/sessions/sess1/end",
			userId:     2,
			stored:     storedSession(t, session.StatusActive, 4, 2),
			statusCode: http.StatusForbidden,
			message:    "requester is not the host",
		},
		{
			name:       "guest leaves waiting session",
			path:       "/api/sessions/sess1/leave",
			userId:     2,
			stored:     storedSession(t, session.StatusWaiting, 4, 2),
			statusCode: http.StatusOK,
			status:     "waiting",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockSessionRepository{}
			defer db.AssertExpectations(t)
			db.On("MutateSession", mock.Anything, "sess1").Return(tc.stored, nil).Once()
			if tc.status == "completed" {
				db.On("ListMessages", mock.Anything, "sess1").Return([]session.Message{}, nil).Once()
				db.On("RecordSummaries", mock.Anything, mock.Anything).Return(nil).Once()
			}

			rr := serve(t, newTestApp(t, db), http.MethodPost, tc.path, nil, tc.userId)
			require.Equal(t, tc.statusCode, rr.Code, rr.Body.String())

			if tc.statusCode == http.StatusOK {
				s := decodeBody[types.Session](t, rr)
				assert.Equal(t, tc.status, s.Status)
				assert.Equal(t, "sess1", s.Id)
			} else {
				assert.Equal(t, tc.message, decodeBody[ApiError](t, rr).Message)
			}
		})
	}

	t.Run("unknown session", func(t *testing.T) {
		db := &database.MockSessionRepository{}
		defer db.AssertExpectations(t)
		db.On("MutateSession", mock.Anything, "nope").Return(nil, session.ErrSessionNotFound).Once()

		rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions/nope/start", nil, 1)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "session not found", decodeBody[ApiError](t, rr).Message)
	})
}

func Test_getSession(t *testing.T) {
	db := &database.MockSessionRepository{}
	defer db.AssertExpectations(t)
	db.On("GetSession", mock.Anything, "sess1").Return(storedSession(t, session.StatusWaiting, 4, 2), nil).Twice()
	app := newTestApp(t, db)

	rr := serve(t, app, http.MethodGet, "/api/sessions/sess1", nil, 2)
	require.Equal(t, http.StatusOK, rr.Code)
	s := decodeBody[types.Session](t, rr)
	assert.Equal(t, 1, s.HostId)
	assert.Len(t, s.Participants, 2)
	assert.True(t, s.Participants[0].IsHost)

	rr = serve(t, app, http.MethodGet, "/api/sessions/sess1", nil, 9)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func Test_sendMessage(t *testing.T) {
	t.Run("appends chat message", func(t *testing.T) {
		db := &database.MockSessionRepository{}
		defer db.AssertExpectations(t)
		expectAccount(db, 2)
		stored := storedSession(t, session.StatusActive, 4, 2)
		db.On("MutateSession", mock.Anything, "sess1").Return(stored, nil).Once()

		rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions/sess1/messages", SendMessageRequest{
			Content: "hello",
			Type:    "chat",
		}, 2)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		resp := decodeBody[SendMessageResponse](t, rr)
		assert.NotEmpty(t, resp.MessageId)
		assert.Equal(t, stored.SeqId, resp.SeqId)
	})

	tcases := []struct {
		name       string
		body       SendMessageRequest
		stored     *session.Session
		statusCode int
		message    string
	}{
		{
			name:       "system messages are reserved",
			body:       SendMessageRequest{Content: "hello", Type: "system"},
			statusCode: http.StatusBadRequest,
			message:    "invalid message",
		},
		{
			name:       "empty content",
			body:       SendMessageRequest{Type: "chat"},
			statusCode: http.StatusBadRequest,
			message:    "invalid message",
		},
		{
			name:       "closed session",
			body:       SendMessageRequest{Content: "hello", Type: "chat"},
			stored:     storedSession(t, session.StatusCompleted, 4, 2),
			statusCode: http.StatusConflict,
			message:    "session is closed",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockSessionRepository{}
			defer db.AssertExpectations(t)
			expectAccount(db, 2)
			if tc.stored != nil {
				db.On("MutateSession", mock.Anything, "sess1").Return(tc.stored, nil).Once()
			}

			rr := serve(t, newTestApp(t, db), http.MethodPost, "/api/sessions/sess1/messages", tc.body, 2)
			assert.Equal(t, tc.statusCode, rr.Code)
			assert.Equal(t, tc.message, decodeBody[ApiError](t, rr).Message)
		})
	}
}

func Test_listMessages(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []session.Message{
		{Id: "m2", SessionId: "sess1", SeqId: 2, UserId: 2, UserName: "user2", Content: "second", Type: session.MessageChat, Timestamp: ts.Add(time.Second)},
		{Id: "m1", SessionId: "sess1", SeqId: 1, UserId: 2, UserName: "user2", Content: "hello", Type: session.MessageChat, Timestamp: ts},
	}

	db := &database.MockSessionRepository{}
	defer db.AssertExpectations(t)
	db.On("GetSession", mock.Anything, "sess1").Return(storedSession(t, session.StatusActive, 4, 2), nil)
	db.On("ListMessages", mock.Anything, "sess1").Return(msgs, nil)
	app := newTestApp(t, db)

	t.Run("returns messages in order", func(t *testing.T) {
		rr := serve(t, app, http.MethodGet, "/api/sessions/sess1/messages", nil, 2)
		require.Equal(t, http.StatusOK, rr.Code)

		got := decodeBody[[]types.Message](t, rr)
		require.Len(t, got, 2)
		assert.Equal(t, "hello", got[0].Content)
		assert.Equal(t, "second", got[1].Content)
	})

	t.Run("exports text transcript", func(t *testing.T) {
		rr := serve(t, app, http.MethodGet, "/api/sessions/sess1/transcript?tz=UTC", nil, 2)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rr.Body.String(), "[10:00:00] user2 (chat): hello"), rr.Body.String())
	})

	t.Run("rejects unknown time zone", func(t *testing.T) {
		rr := serve(t, app, http.MethodGet, "/api/sessions/sess1/transcript?tz=Mars/Olympus", nil, 2)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects outsiders", func(t *testing.T) {
		rr := serve(t, app, http.MethodGet, "/api/sessions/sess1/messages", nil, 9)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "user is not a participant", decodeBody[ApiError](t, rr).Message)
	})
}

func Test_awardScore(t *testing.T) {
	db := &database.MockSessionRepository{}
	defer db.AssertExpectations(t)
	stored := storedSession(t, session.StatusActive, 4, 2)
	db.On("MutateSession", mock.Anything, "sess1").Return(stored, nil).Twice()
	app := newTestApp(t, db)

	rr := serve(t, app, http.MethodPost, "/api/sessions/sess1/score", ScoreRequest{UserId: 2, Delta: 5}, 1)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	s := decodeBody[types.Session](t, rr)
	assert.Equal(t, 5, s.Participants[1].Score)

	rr = serve(t, app, http.MethodPost, "/api/sessions/sess1/score", ScoreRequest{UserId: 1, Delta: 5}, 2)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, app, http.MethodPost, "/api/sessions/sess1/score", ScoreRequest{Delta: 5}, 1)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func Test_history(t *testing.T) {
	db := &database.MockSessionRepository{}
	defer db.AssertExpectations(t)
	db.On("ListSessionsForUser", mock.Anything, 2, 10).Return([]*session.Session{
		storedSession(t, session.StatusCompleted, 4, 2),
	}, nil).Once()
	db.On("ListSessionsForUser", mock.Anything, 3, 10).Return([]*session.Session(nil), errors.New("db error")).Once()
	app := newTestApp(t, db)

	rr := serve(t, app, http.MethodGet, "/api/history", nil, 2)
	require.Equal(t, http.StatusOK, rr.Code)
	sessions := decodeBody[[]types.Session](t, rr)
	require.Len(t, sessions, 1)
	assert.Equal(t, "completed", sessions[0].Status)

	rr = serve(t, app, http.MethodGet, "/api/history", nil, 3)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func Test_userStats(t *testing.T) {
	db := &database.MockSessionRepository{}
	defer db.AssertExpectations(t)
	db.On("GetUserStats", mock.Anything, 2).Return(database.UserStats{
		AccountId: 2,
		Sessions:  3,
		Minutes:   42,
		Messages:  17,
		Score:     8,
	}, nil).Once()

	rr := serve(t, newTestApp(t, db), http.MethodGet, "/api/stats", nil, 2)
	require.Equal(t, http.StatusOK, rr.Code)

	st := decodeBody[types.Stats](t, rr)
	assert.Equal(t, 3, st.Sessions)
	assert.Equal(t, 42, st.Minutes)
	assert.Equal(t, 17, st.Messages)
	assert.Equal(t, 8, st.Score)
}
