package database

import (
	"context"
	"errors"

	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/stretchr/testify/mock"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSessionRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	args := m.Called(accountParams)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSessionRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSessionRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSessionRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSessionRepository) CreateSession(ctx context.Context, s *session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}
func (m *MockSessionRepository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if s, ok := args.Get(0).(*session.Session); ok {
		return s.Clone(), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockSessionRepository) GetOpenSessionByCode(ctx context.Context, code string) (*session.Session, error) {
	args := m.Called(ctx, code)
	if s, ok := args.Get(0).(*session.Session); ok {
		return s.Clone(), args.Error(1)
	}
	return nil, args.Error(1)
}

// MutateSession applies fn to a copy of the session returned by the
// expectation, so tests exercise the real mutation logic. An error from fn
// leaves the stored session untouched, like a rolled back transaction.
func (m *MockSessionRepository) MutateSession(ctx context.Context, id string, fn Mutation) (*session.Session, []session.Message, bool, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return nil, nil, false, err
	}

	stored := args.Get(0).(*session.Session)
	s := stored.Clone()
	msgs, err := fn(s)
	if errors.Is(err, ErrUnchanged) {
		return stored.Clone(), nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}

	s.Revision = stored.Revision + 1
	*stored = *s.Clone()
	return s, msgs, true, nil
}

func (m *MockSessionRepository) ListMessages(ctx context.Context, sessionId string) ([]session.Message, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).([]session.Message), args.Error(1)
}
func (m *MockSessionRepository) ListSessionsForUser(ctx context.Context, accountId, limit int) ([]*session.Session, error) {
	args := m.Called(ctx, accountId, limit)
	return args.Get(0).([]*session.Session), args.Error(1)
}
func (m *MockSessionRepository) RecordSummaries(ctx context.Context, summaries []session.Summary) error {
	args := m.Called(ctx, summaries)
	return args.Error(0)
}
func (m *MockSessionRepository) GetUserStats(ctx context.Context, accountId int) (UserStats, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(UserStats), args.Error(1)
}
