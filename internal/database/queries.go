package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-teamsession/internal/session"
)

const (
	sessionColumns = "id, topic, code, host_id, status, max_participants, seq_id, revision, created_at, updated_at"

	openCodeConstraint = "team_sessions_open_code_idx"

	upsertParticipantQuery = "INSERT INTO session_participants " +
		"(session_id, account_id, position, name, avatar, score, status, joined_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) " +
		"ON CONFLICT (session_id, account_id) DO UPDATE SET " +
		"name = EXCLUDED.name, avatar = EXCLUDED.avatar, score = EXCLUDED.score, " +
		"status = EXCLUDED.status, joined_at = EXCLUDED.joined_at"

	insertMessageQuery = "INSERT INTO session_messages " +
		"(id, session_id, seq_id, account_id, user_name, content, type, created_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"
)

func (db *PgSessionRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, email, created_at, updated_at",
		accountParams.Username,
		accountParams.EmailAddress,
		accountParams.PasswordHash,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgSessionRepository) UpdateAccount(accountParams UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, created_at, updated_at",
		accountParams.UserId,
		accountParams.Username,
		accountParams.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgSessionRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgSessionRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

// CreateSession inserts a session together with its initial participants.
// It returns ErrCodeTaken when the join code collides with an open session.
func (db *PgSessionRepository) CreateSession(ctx context.Context, s *session.Session) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO team_sessions ("+sessionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		s.Id,
		s.Topic,
		s.Code,
		s.HostId,
		string(s.Status),
		s.MaxParticipants,
		s.SeqId,
		s.Revision,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, openCodeConstraint) {
			err = ErrCodeTaken
		}
		return err
	}

	if err = saveParticipants(ctx, tx, s); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgSessionRepository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM team_sessions WHERE id = $1",
		id,
	)

	return loadSession(ctx, db.conn, row)
}

// GetOpenSessionByCode finds the session that currently owns a join code.
// Completed sessions release their code.
func (db *PgSessionRepository) GetOpenSessionByCode(ctx context.Context, code string) (*session.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM team_sessions WHERE code = $1 AND status <> $2 LIMIT 1",
		code,
		string(session.StatusCompleted),
	)

	return loadSession(ctx, db.conn, row)
}

// MutateSession runs fn against the current state of a session while holding
// its row lock, then persists the session and any messages fn produced in
// the same transaction. Concurrent mutations of one session are serialized.
// Every persisted change bumps the session revision.
func (db *PgSessionRepository) MutateSession(ctx context.Context, id string, fn Mutation) (*session.Session, []session.Message, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM team_sessions WHERE id = $1 FOR UPDATE",
		id,
	)

	s, err := loadSession(ctx, tx, row)
	if err != nil {
		return nil, nil, false, err
	}

	before := s.Clone()
	msgs, err := fn(s)
	if errors.Is(err, ErrUnchanged) {
		if err = tx.Rollback(); err != nil {
			return nil, nil, false, err
		}
		return before, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}

	s.Revision = before.Revision + 1
	_, err = tx.ExecContext(ctx,
		"UPDATE team_sessions SET status = $2, seq_id = $3, revision = $4, updated_at = $5 WHERE id = $1",
		s.Id,
		string(s.Status),
		s.SeqId,
		s.Revision,
		s.UpdatedAt,
	)
	if err != nil {
		return nil, nil, false, fmt.Errorf("update session: %w", err)
	}

	if err = saveParticipants(ctx, tx, s); err != nil {
		return nil, nil, false, err
	}

	for _, m := range msgs {
		_, err = tx.ExecContext(ctx, insertMessageQuery,
			m.Id,
			m.SessionId,
			m.SeqId,
			m.UserId,
			m.UserName,
			m.Content,
			string(m.Type),
			m.Timestamp,
		)
		if err != nil {
			return nil, nil, false, fmt.Errorf("insert message: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, false, err
	}

	return s, msgs, true, nil
}

func (db *PgSessionRepository) ListMessages(ctx context.Context, sessionId string) ([]session.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, session_id, seq_id, account_id, user_name, content, type, created_at "+
			"FROM session_messages WHERE session_id = $1 ORDER BY seq_id ASC",
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]session.Message, 0)
	for rows.Next() {
		var (
			msg     session.Message
			msgType string
		)
		if err := rows.Scan(&msg.Id, &msg.SessionId, &msg.SeqId, &msg.UserId, &msg.UserName, &msg.Content, &msgType, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.Type = session.MessageType(msgType)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ListSessionsForUser returns the most recent active or completed sessions
// the account took part in, newest first.
func (db *PgSessionRepository) ListSessionsForUser(ctx context.Context, accountId, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT s.id FROM team_sessions s "+
			"JOIN session_participants p ON p.session_id = s.id "+
			"WHERE p.account_id = $1 AND s.status IN ($2, $3) "+
			"ORDER BY s.created_at DESC LIMIT $4",
		accountId,
		string(session.StatusActive),
		string(session.StatusCompleted),
		limit,
	)
	if err != nil {
		return nil, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		s, err := db.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get session %q: %w", id, err)
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// RecordSummaries stores per-user session stats. A later summary for the
// same session and account replaces the earlier one.
func (db *PgSessionRepository) RecordSummaries(ctx context.Context, summaries []session.Summary) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, sum := range summaries {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO session_stats "+
				"(session_id, account_id, mode, topic, duration_minutes, message_count, score, recorded_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) "+
				"ON CONFLICT (session_id, account_id) DO UPDATE SET "+
				"duration_minutes = EXCLUDED.duration_minutes, message_count = EXCLUDED.message_count, "+
				"score = EXCLUDED.score, recorded_at = EXCLUDED.recorded_at",
			sum.SessionId,
			sum.UserId,
			sum.Mode,
			sum.Topic,
			sum.DurationMinutes,
			sum.MessageCount,
			sum.Score,
			sum.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert session stats: %w", err)
		}
	}

	return tx.Commit()
}

func (db *PgSessionRepository) GetUserStats(ctx context.Context, accountId int) (UserStats, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0), COALESCE(SUM(message_count), 0), "+
			"COALESCE(SUM(score), 0), MAX(recorded_at) FROM session_stats WHERE account_id = $1",
		accountId,
	)

	stats := UserStats{AccountId: accountId}
	var last sql.NullTime
	if err := row.Scan(&stats.Sessions, &stats.Minutes, &stats.Messages, &stats.Score, &last); err != nil {
		return UserStats{}, err
	}

	if last.Valid {
		stats.LastRecorded = last.Time.UTC()
	}

	return stats, nil
}

func loadSession(ctx context.Context, q querier, row *sql.Row) (*session.Session, error) {
	var (
		s      session.Session
		status string
	)
	err := row.Scan(
		&s.Id,
		&s.Topic,
		&s.Code,
		&s.HostId,
		&status,
		&s.MaxParticipants,
		&s.SeqId,
		&s.Revision,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	s.Status = session.Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx,
		"SELECT account_id, name, avatar, score, status, joined_at FROM session_participants "+
			"WHERE session_id = $1 ORDER BY position ASC",
		s.Id,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p       session.Participant
			pStatus string
		)
		if err := rows.Scan(&p.UserId, &p.Name, &p.Avatar, &p.Score, &pStatus, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}

		p.Status = session.ParticipantStatus(pStatus)
		p.JoinedAt = p.JoinedAt.UTC()
		s.Participants = append(s.Participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &s, nil
}

func saveParticipants(ctx context.Context, q querier, s *session.Session) error {
	for i, p := range s.Participants {
		_, err := q.ExecContext(ctx, upsertParticipantQuery,
			s.Id,
			p.UserId,
			i,
			p.Name,
			p.Avatar,
			p.Score,
			string(p.Status),
			p.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("save participant %d: %w", p.UserId, err)
		}
	}

	return nil
}
