package session

import "github.com/samber/lo"

// Joined returns the participants currently in the session, in join order.
func (s *Session) Joined() []Participant {
	return lo.Filter(s.Participants, func(p Participant, _ int) bool {
		return p.Status == ParticipantJoined
	})
}

// CountActive returns the number of participants with status joined.
func (s *Session) CountActive() int {
	return lo.CountBy(s.Participants, func(p Participant) bool {
		return p.Status == ParticipantJoined
	})
}

func (s *Session) IsHost(userId int) bool {
	return userId == s.HostId
}

// Find returns the participant record for userId, including participants
// that have left.
func (s *Session) Find(userId int) (Participant, bool) {
	return lo.Find(s.Participants, func(p Participant) bool {
		return p.UserId == userId
	})
}

func (s *Session) IsJoined(userId int) bool {
	p, ok := s.Find(userId)
	return ok && p.Status == ParticipantJoined
}

// CanRejoin reports whether userId dropped out of an active session and may
// reconnect. It is distinct from a first join, which is only allowed while
// the session is waiting.
func (s *Session) CanRejoin(userId int) bool {
	if s.Status != StatusActive {
		return false
	}

	p, ok := s.Find(userId)
	return ok && p.Status == ParticipantLeft
}

func (s *Session) hasCapacity() bool {
	return s.CountActive() < s.MaxParticipants
}

func (s *Session) indexOf(userId int) int {
	_, idx, ok := lo.FindIndexOf(s.Participants, func(p Participant) bool {
		return p.UserId == userId
	})
	if !ok {
		return -1
	}
	return idx
}
