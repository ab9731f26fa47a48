package media

import (
	"context"
	"errors"
)

const MaxLevel = 255

var ErrNoLocalStream = errors.New("local stream not available")

// Stream is one participant's audio/video feed.
type Stream interface {
	ParticipantId() int
	// Level is the current audio energy, 0..255.
	Level() int
}

// MediaCoordinator is the peer-media layer of a client. Implementations wrap
// a platform WebRTC stack.
type MediaCoordinator interface {
	LocalStream() (Stream, error)
	RemoteStreams() []Stream
	ToggleAudio(enabled bool) error
	ToggleVideo(enabled bool) error
	// Stop releases every local capture track.
	Stop() error
}

// Utterance is a piece of recognized speech. Only final utterances are
// committed; interim ones are display only.
type Utterance struct {
	Text  string
	Final bool
}

// TranscriptionSource is a continuous speech recognizer.
type TranscriptionSource interface {
	Start(ctx context.Context) error
	Stop() error
	OnUtterance(fn func(Utterance))
}

func clampLevel(l int) int {
	return min(max(l, 0), MaxLevel)
}
