package database

import (
	"context"

	"github.com/npezzotti/go-teamsession/internal/session"
)

// Mutation changes a locked session in place and may return new messages to
// persist with it. Returning an error rolls back the whole transaction.
// Returning ErrUnchanged skips the write.
type Mutation func(s *session.Session) ([]session.Message, error)

type SessionRepository interface {
	Ping() error
	CreateAccount(accountParams CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	GetOpenSessionByCode(ctx context.Context, code string) (*session.Session, error)
	MutateSession(ctx context.Context, id string, fn Mutation) (s *session.Session, msgs []session.Message, changed bool, err error)
	ListMessages(ctx context.Context, sessionId string) ([]session.Message, error)
	ListSessionsForUser(ctx context.Context, accountId, limit int) ([]*session.Session, error)
	RecordSummaries(ctx context.Context, summaries []session.Summary) error
	GetUserStats(ctx context.Context, accountId int) (UserStats, error)
}
