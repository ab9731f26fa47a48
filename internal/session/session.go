package session

import (
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
)

const (
	MinParticipants = 2
	MaxParticipants = 10
)

// Session is the server-authoritative state of a team session. Every
// mutation goes through the lifecycle methods so the status stays monotonic
// and the participant list never exceeds capacity.
type Session struct {
	Id              string
	Topic           string
	Code            string
	HostId          int
	Status          Status
	MaxParticipants int
	Participants    []Participant
	SeqId           int
	Revision        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Participant struct {
	UserId   int
	Name     string
	Avatar   string
	Score    int
	Status   ParticipantStatus
	JoinedAt time.Time
}

// Clone returns a deep copy so callers can mutate a session without
// touching a snapshot held elsewhere.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	c.Participants = slices.Clone(s.Participants)
	return &c
}

// Now returns the server clock truncated to the precision stored in the
// database.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
