package session

import "strings"

// ChatMode selects how finalized utterances are committed.
type ChatMode string

const (
	ChatModeSpeech ChatMode = "speech"
	ChatModeText   ChatMode = "text"
)

// SpeechThreshold is the audio energy (0-255) above which a participant is
// considered to be speaking.
const SpeechThreshold = 10

const WarnRemoteSpeaking = "someone else is speaking"

type GateInput struct {
	Mode        ChatMode
	Text        string
	LocalLevel  int
	RemoteLevel int
}

type GateDecision struct {
	Commit  bool
	Type    MessageType
	Warning string
}

// EvaluateUtterance decides whether a finalized utterance goes into the
// message log. In speech mode it is committed as chat only while the local
// participant is speaking and every remote peer is quiet, so overlapping
// speech does not interleave in the log. Text mode commits every utterance
// as a transcript.
func EvaluateUtterance(in GateInput) GateDecision {
	if strings.TrimSpace(in.Text) == "" {
		return GateDecision{}
	}

	switch in.Mode {
	case ChatModeText:
		return GateDecision{Commit: true, Type: MessageTranscript}
	case ChatModeSpeech:
		if in.LocalLevel <= SpeechThreshold {
			return GateDecision{}
		}
		if in.RemoteLevel >= SpeechThreshold {
			return GateDecision{Warning: WarnRemoteSpeaking}
		}
		return GateDecision{Commit: true, Type: MessageChat}
	}

	return GateDecision{}
}
