package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-teamsession/internal/database"
	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/stats"
	"github.com/npezzotti/go-teamsession/internal/types"
	"github.com/teris-io/shortid"
)

const (
	maxCodeAttempts = 5
	historyLimit    = 10
	systemUserName  = "system"
)

// Notifier receives committed session changes so subscribers can observe
// them. Implementations must not block.
type Notifier interface {
	SessionChanged(s types.Session)
	MessagesAppended(sessionId string, msgs []types.Message)
	MediaChanged(sessionId string, enabled bool)
}

type nopNotifier struct{}

func (nopNotifier) SessionChanged(types.Session)              {}
func (nopNotifier) MessagesAppended(string, []types.Message) {}
func (nopNotifier) MediaChanged(string, bool)                 {}

// Coordinator is the entry point for every team session operation. Each
// operation is applied to the session inside a single store transaction and
// published to subscribers only after it commits.
type Coordinator struct {
	log             *log.Logger
	db              database.SessionRepository
	notifier        Notifier
	stats           stats.StatsProvider
	now             func() time.Time
	generateShortId func() (string, error)
	generateCode    func() (string, error)
	newMessageId    func() string
}

func New(logger *log.Logger, db database.SessionRepository, su stats.StatsProvider) *Coordinator {
	su.RegisterMetric(stats.SessionsCreated)
	su.RegisterMetric(stats.ActiveSessions)
	su.RegisterMetric(stats.MessagesSent)

	return &Coordinator{
		log:             logger,
		db:              db,
		notifier:        nopNotifier{},
		stats:           su,
		now:             session.Now,
		generateShortId: shortid.Generate,
		generateCode:    func() (string, error) { return session.GenerateCode(nil) },
		newMessageId:    uuid.NewString,
	}
}

// SetNotifier attaches the realtime hub once it has been constructed.
func (c *Coordinator) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	c.notifier = n
}

type CreateParams struct {
	Topic           string
	MaxParticipants int
	Host            session.Participant
}

func (c *Coordinator) Create(ctx context.Context, params CreateParams) (*session.Session, error) {
	id, err := c.generateShortId()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := c.generateCode()
		if err != nil {
			return nil, err
		}

		s, err := session.New(session.CreateParams{
			Id:              id,
			Code:            code,
			Topic:           params.Topic,
			MaxParticipants: params.MaxParticipants,
			Host:            params.Host,
		}, c.now())
		if err != nil {
			return nil, err
		}

		err = c.db.CreateSession(ctx, s)
		if errors.Is(err, database.ErrCodeTaken) {
			c.log.Printf("join code collision for session %q, retrying", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}

		c.stats.Incr(stats.SessionsCreated)
		c.log.Printf("session %q created by user %d", s.Id, s.HostId)
		c.notifier.SessionChanged(types.NewSession(s))
		return s, nil
	}

	return nil, fmt.Errorf("create session: no free join code after %d attempts", maxCodeAttempts)
}

// Join adds a participant to the waiting session that owns code. A former
// participant of an active session is reconnected instead.
func (c *Coordinator) Join(ctx context.Context, code string, p session.Participant) (*session.Session, error) {
	if !session.ValidCode(code) {
		return nil, session.ErrInvalidCode
	}

	found, err := c.db.GetOpenSessionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, session.ErrInvalidCode
		}
		return nil, err
	}

	return c.mutate(ctx, found.Id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		if s.IsJoined(p.UserId) {
			return nil, database.ErrUnchanged
		}

		if s.CanRejoin(p.UserId) {
			if err := s.Rejoin(p.UserId, now); err != nil {
				return nil, err
			}
			return c.systemMessage(s, now, fmt.Sprintf("%s rejoined", p.Name))
		}

		changed, err := s.Join(p, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, database.ErrUnchanged
		}
		return c.systemMessage(s, now, fmt.Sprintf("%s joined", p.Name))
	})
}

func (c *Coordinator) Start(ctx context.Context, id string, requesterId int) (*session.Session, error) {
	s, err := c.mutate(ctx, id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		if err := s.Start(requesterId, now); err != nil {
			return nil, err
		}
		return c.systemMessage(s, now, "session started")
	})
	if err != nil {
		return nil, err
	}

	c.stats.Incr(stats.ActiveSessions)
	c.notifier.MediaChanged(s.Id, true)
	return s, nil
}

// Leave marks userId as left. Leaving twice is a no-op. A participant
// leaving an active session has their stats recorded.
func (c *Coordinator) Leave(ctx context.Context, id string, userId int) (*session.Session, error) {
	var changed bool
	s, err := c.mutate(ctx, id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		var err error
		changed, err = s.Leave(userId, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, database.ErrUnchanged
		}

		p, _ := s.Find(userId)
		return c.systemMessage(s, now, fmt.Sprintf("%s left", p.Name))
	})
	if err != nil {
		return nil, err
	}

	if changed && s.Status == session.StatusActive {
		c.recordSummaries(ctx, s, userId)
	}
	return s, nil
}

func (c *Coordinator) End(ctx context.Context, id string, requesterId int) (*session.Session, error) {
	var joined []int
	s, err := c.mutate(ctx, id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		if !s.IsHost(requesterId) || s.Status != session.StatusActive {
			// let End report the precise error
			return nil, s.End(requesterId, now)
		}

		msgs, err := c.systemMessage(s, now, "session ended")
		if err != nil {
			return nil, err
		}

		if err := s.End(requesterId, now); err != nil {
			return nil, err
		}

		for _, p := range s.Joined() {
			joined = append(joined, p.UserId)
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}

	c.stats.Decr(stats.ActiveSessions)
	c.notifier.MediaChanged(s.Id, false)
	c.recordSummaries(ctx, s, joined...)
	return s, nil
}

type MessageParams struct {
	UserId   int
	UserName string
	Content  string
	Type     session.MessageType
}

// SendMessage appends a chat or transcript message. System messages are
// reserved for the server.
func (c *Coordinator) SendMessage(ctx context.Context, id string, params MessageParams) (session.Message, error) {
	if params.Type == session.MessageSystem {
		return session.Message{}, fmt.Errorf("%w: system messages are reserved", session.ErrInvalidMessage)
	}

	var msg session.Message
	_, err := c.mutate(ctx, id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		var err error
		msg, err = s.Append(session.AppendParams{
			Id:       c.newMessageId(),
			UserId:   params.UserId,
			UserName: params.UserName,
			Content:  params.Content,
			Type:     params.Type,
		}, now)
		if err != nil {
			return nil, err
		}
		return []session.Message{msg}, nil
	})
	if err != nil {
		return session.Message{}, err
	}

	c.stats.Incr(stats.MessagesSent)
	return msg, nil
}

// Get returns a session to one of its participants, past or present.
func (c *Coordinator) Get(ctx context.Context, id string, userId int) (*session.Session, error) {
	s, err := c.db.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, ok := s.Find(userId); !ok {
		return nil, session.ErrNotParticipant
	}
	return s, nil
}

func (c *Coordinator) ListMessages(ctx context.Context, id string, userId int) (session.Transcript, error) {
	if _, err := c.Get(ctx, id, userId); err != nil {
		return nil, err
	}

	msgs, err := c.db.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return session.NewTranscript(msgs), nil
}

// ExportTranscript renders the session log as plain text for archival.
func (c *Coordinator) ExportTranscript(ctx context.Context, id string, userId int, loc *time.Location) (string, error) {
	t, err := c.ListMessages(ctx, id, userId)
	if err != nil {
		return "", err
	}

	return t.ExportText(loc), nil
}

// History returns the latest active and completed sessions userId took
// part in.
func (c *Coordinator) History(ctx context.Context, userId int) ([]*session.Session, error) {
	return c.db.ListSessionsForUser(ctx, userId, historyLimit)
}

func (c *Coordinator) AwardScore(ctx context.Context, id string, requesterId, userId, delta int) (*session.Session, error) {
	return c.mutate(ctx, id, func(s *session.Session, now time.Time) ([]session.Message, error) {
		return nil, s.AddScore(requesterId, userId, delta, now)
	})
}

func (c *Coordinator) UserStats(ctx context.Context, userId int) (database.UserStats, error) {
	return c.db.GetUserStats(ctx, userId)
}

// mutate runs fn inside a store transaction and publishes the result once it
// has been committed. fn returns database.ErrUnchanged for a no-op, which is
// neither persisted nor published.
func (c *Coordinator) mutate(ctx context.Context, id string, fn func(*session.Session, time.Time) ([]session.Message, error)) (*session.Session, error) {
	s, msgs, changed, err := c.db.MutateSession(ctx, id, func(s *session.Session) ([]session.Message, error) {
		return fn(s, c.now())
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return s, nil
	}

	c.notifier.SessionChanged(types.NewSession(s))
	if len(msgs) > 0 {
		c.notifier.MessagesAppended(s.Id, types.NewMessages(msgs))
	}
	return s, nil
}

func (c *Coordinator) systemMessage(s *session.Session, now time.Time, content string) ([]session.Message, error) {
	msg, err := s.Append(session.AppendParams{
		Id:       c.newMessageId(),
		UserName: systemUserName,
		Content:  content,
		Type:     session.MessageSystem,
	}, now)
	if err != nil {
		return nil, err
	}
	return []session.Message{msg}, nil
}

// recordSummaries stores stats for the given users. The session change has
// already been committed, so failures are logged rather than returned.
func (c *Coordinator) recordSummaries(ctx context.Context, s *session.Session, userIds ...int) {
	if len(userIds) == 0 {
		return
	}

	msgs, err := c.db.ListMessages(ctx, s.Id)
	if err != nil {
		c.log.Printf("list messages for stats of session %q: %v", s.Id, err)
		return
	}

	t := session.NewTranscript(msgs)
	now := c.now()
	summaries := make([]session.Summary, 0, len(userIds))
	for _, id := range userIds {
		summaries = append(summaries, session.Summarize(s, t, id, now))
	}

	if err := c.db.RecordSummaries(ctx, summaries); err != nil {
		c.log.Printf("record stats for session %q: %v", s.Id, err)
	}
}
