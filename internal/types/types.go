package types

import (
	"time"

	"github.com/npezzotti/go-teamsession/internal/session"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	UserId   int       `json:"user_id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	Score    int       `json:"score"`
	Status   string    `json:"status"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

type Session struct {
	Id              string        `json:"id"`
	Topic           string        `json:"topic"`
	Code            string        `json:"code"`
	HostId          int           `json:"host_id"`
	Status          string        `json:"status"`
	MaxParticipants int           `json:"max_participants"`
	Participants    []Participant `json:"participants"`
	SeqId           int           `json:"seq_id"`
	Revision        int           `json:"revision"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Message struct {
	Id        string    `json:"id"`
	SessionId string    `json:"session_id"`
	SeqId     int       `json:"seq_id"`
	UserId    int       `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal carries a WebRTC offer, answer or ICE candidate between two
// participants. The payload is opaque to the server.
type Signal struct {
	SessionId string `json:"session_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
}

type Stats struct {
	Sessions     int       `json:"sessions"`
	Minutes      int       `json:"minutes"`
	Messages     int       `json:"messages"`
	Score        int       `json:"score"`
	LastRecorded time.Time `json:"last_recorded,omitempty"`
}

func NewSession(s *session.Session) Session {
	participants := make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		participants[i] = Participant{
			UserId:   p.UserId,
			Name:     p.Name,
			Avatar:   p.Avatar,
			Score:    p.Score,
			Status:   string(p.Status),
			IsHost:   s.IsHost(p.UserId),
			JoinedAt: p.JoinedAt,
		}
	}

	return Session{
		Id:              s.Id,
		Topic:           s.Topic,
		Code:            s.Code,
		HostId:          s.HostId,
		Status:          string(s.Status),
		MaxParticipants: s.MaxParticipants,
		Participants:    participants,
		SeqId:           s.SeqId,
		Revision:        s.Revision,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func NewMessage(m session.Message) Message {
	return Message{
		Id:        m.Id,
		SessionId: m.SessionId,
		SeqId:     m.SeqId,
		UserId:    m.UserId,
		UserName:  m.UserName,
		Content:   m.Content,
		Type:      string(m.Type),
		Timestamp: m.Timestamp,
	}
}

func NewMessages(msgs []session.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = NewMessage(m)
	}
	return out
}
