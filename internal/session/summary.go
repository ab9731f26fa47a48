package session

import (
	"math"
	"time"
)

const SummaryMode = "Team Session"

// Summary is what a participant takes away from a session for their stats.
type Summary struct {
	SessionId       string
	UserId          int
	Mode            string
	Topic           string
	DurationMinutes int
	MessageCount    int
	Score           int
	RecordedAt      time.Time
}

// Summarize aggregates the stats of userId for s. Duration is measured from
// session creation and rounds to whole minutes, never below one.
func Summarize(s *Session, t Transcript, userId int, now time.Time) Summary {
	minutes := int(math.Round(now.Sub(s.CreatedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	var score int
	if p, ok := s.Find(userId); ok {
		score = p.Score
	}

	return Summary{
		SessionId:       s.Id,
		UserId:          userId,
		Mode:            SummaryMode,
		Topic:           s.Topic,
		DurationMinutes: minutes,
		MessageCount:    t.CountBy(userId),
		Score:           score,
		RecordedAt:      now,
	}
}
