package session

import (
	"fmt"
	"strings"
	"time"
)

type CreateParams struct {
	Id              string
	Code            string
	Topic           string
	MaxParticipants int
	Host            Participant
}

// New builds a waiting session with the host as its only participant.
func New(params CreateParams, now time.Time) (*Session, error) {
	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}

	if params.MaxParticipants < MinParticipants || params.MaxParticipants > MaxParticipants {
		return nil, fmt.Errorf("%w: max participants must be between %d and %d",
			ErrInvalidConfig, MinParticipants, MaxParticipants)
	}

	if params.Host.UserId == 0 {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}

	host := params.Host
	host.Score = 0
	host.Status = ParticipantJoined
	host.JoinedAt = now

	return &Session{
		Id:              params.Id,
		Topic:           topic,
		Code:            params.Code,
		HostId:          host.UserId,
		Status:          StatusWaiting,
		MaxParticipants: params.MaxParticipants,
		Participants:    []Participant{host},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Join adds p to a waiting session. It returns false when p was already
// joined and nothing changed.
func (s *Session) Join(p Participant, now time.Time) (bool, error) {
	if s.Status != StatusWaiting {
		return false, ErrAlreadyStarted
	}

	idx := s.indexOf(p.UserId)
	if idx >= 0 && s.Participants[idx].Status == ParticipantJoined {
		return false, nil
	}

	if !s.hasCapacity() {
		return false, ErrSessionFull
	}

	if idx >= 0 {
		s.Participants[idx].Status = ParticipantJoined
		s.Participants[idx].JoinedAt = now
		if p.Name != "" {
			s.Participants[idx].Name = p.Name
		}
		if p.Avatar != "" {
			s.Participants[idx].Avatar = p.Avatar
		}
	} else {
		s.Participants = append(s.Participants, Participant{
			UserId:   p.UserId,
			Name:     p.Name,
			Avatar:   p.Avatar,
			Status:   ParticipantJoined,
			JoinedAt: now,
		})
	}

	s.UpdatedAt = now
	return true, nil
}

// Rejoin reconnects a participant who dropped out of an active session.
func (s *Session) Rejoin(userId int, now time.Time) error {
	if !s.CanRejoin(userId) {
		if s.Status == StatusCompleted {
			return ErrSessionClosed
		}
		return ErrAlreadyStarted
	}

	if !s.hasCapacity() {
		return ErrSessionFull
	}

	idx := s.indexOf(userId)
	s.Participants[idx].Status = ParticipantJoined
	s.Participants[idx].JoinedAt = now
	s.UpdatedAt = now
	return nil
}

// Start moves a waiting session to active.
func (s *Session) Start(requesterId int, now time.Time) error {
	if !s.IsHost(requesterId) {
		return ErrNotHost
	}

	switch s.Status {
	case StatusActive:
		return ErrAlreadyStarted
	case StatusCompleted:
		return ErrSessionClosed
	}

	if s.CountActive() < MinParticipants {
		return ErrInsufficientParticipants
	}

	s.Status = StatusActive
	s.UpdatedAt = now
	return nil
}

// Leave marks userId as left. Participants are never removed so scores and
// history stay attributed. Host authority is not reassigned. Leave returns
// false when the participant had already left.
func (s *Session) Leave(userId int, now time.Time) (bool, error) {
	if s.Status == StatusCompleted {
		return false, ErrSessionClosed
	}

	idx := s.indexOf(userId)
	if idx < 0 {
		return false, ErrNotParticipant
	}

	if s.Participants[idx].Status == ParticipantLeft {
		return false, nil
	}

	s.Participants[idx].Status = ParticipantLeft
	s.UpdatedAt = now
	return true, nil
}

// End moves an active session to completed. Completed is terminal.
func (s *Session) End(requesterId int, now time.Time) error {
	if !s.IsHost(requesterId) {
		return ErrNotHost
	}

	switch s.Status {
	case StatusWaiting:
		return ErrNotStarted
	case StatusCompleted:
		return ErrSessionClosed
	}

	s.Status = StatusCompleted
	s.UpdatedAt = now
	return nil
}

// AddScore adjusts a participant's score. Only the host can award points and
// only while the session is active.
func (s *Session) AddScore(requesterId, userId, delta int, now time.Time) error {
	if !s.IsHost(requesterId) {
		return ErrNotHost
	}

	switch s.Status {
	case StatusWaiting:
		return ErrNotStarted
	case StatusCompleted:
		return ErrSessionClosed
	}

	idx := s.indexOf(userId)
	if idx < 0 {
		return ErrNotParticipant
	}

	s.Participants[idx].Score += delta
	s.UpdatedAt = now
	return nil
}
