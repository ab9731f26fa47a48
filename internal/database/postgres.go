package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

var ErrCodeTaken = errors.New("join code already in use")

// ErrUnchanged is returned by a Mutation that left the session as it was.
// MutateSession then rolls back and reports the current session without an
// error.
var ErrUnchanged = errors.New("session unchanged")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PgSessionRepository struct {
	conn *sql.DB
}

func NewPgSessionRepository(dsn string) (*PgSessionRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgSessionRepository{conn: db}, nil
}

func (db *PgSessionRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgSessionRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return string(pqErr.Code) == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
