package session

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
)

type MessageType string

const (
	MessageChat       MessageType = "chat"
	MessageTranscript MessageType = "transcript"
	MessageSystem     MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageChat, MessageTranscript, MessageSystem:
		return true
	}
	return false
}

// Message is immutable once appended.
type Message struct {
	Id        string
	SessionId string
	SeqId     int
	UserId    int
	UserName  string
	Content   string
	Type      MessageType
	Timestamp time.Time
}

type AppendParams struct {
	Id       string
	UserId   int
	UserName string
	Content  string
	Type     MessageType
}

// Append assigns the next sequence number and the server receipt time to a
// new message. It must run under the same per-session lock that persists the
// message, which is what gives the log its total order.
func (s *Session) Append(params AppendParams, now time.Time) (Message, error) {
	if s.Status == StatusCompleted {
		return Message{}, ErrSessionClosed
	}

	if !params.Type.Valid() {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, params.Type)
	}

	if strings.TrimSpace(params.Content) == "" {
		return Message{}, fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}

	if params.Type != MessageSystem && !s.IsJoined(params.UserId) {
		return Message{}, ErrNotParticipant
	}

	s.SeqId++
	s.UpdatedAt = now

	return Message{
		Id:        params.Id,
		SessionId: s.Id,
		SeqId:     s.SeqId,
		UserId:    params.UserId,
		UserName:  params.UserName,
		Content:   params.Content,
		Type:      params.Type,
		Timestamp: now,
	}, nil
}

// Transcript is the ordered message log of one session.
type Transcript []Message

// NewTranscript copies msgs into log order.
func NewTranscript(msgs []Message) Transcript {
	t := slices.Clone(msgs)
	slices.SortStableFunc(t, func(a, b Message) int {
		if a.SeqId != b.SeqId {
			return a.SeqId - b.SeqId
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
	return t
}

// All yields the messages in order. It can be ranged over any number of
// times.
func (t Transcript) All() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for _, m := range t {
			if !yield(m) {
				return
			}
		}
	}
}

// CountBy returns the number of messages sent by userId.
func (t Transcript) CountBy(userId int) int {
	n := 0
	for m := range t.All() {
		if m.UserId == userId && m.Type != MessageSystem {
			n++
		}
	}
	return n
}

// ExportText flattens the transcript to one line per message:
//
//	[HH:MM:SS] name (type): content
func (t Transcript) ExportText(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	for m := range t.All() {
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n",
			m.Timestamp.In(loc).Format(time.TimeOnly), m.UserName, m.Type, m.Content)
	}
	return b.String()
}
