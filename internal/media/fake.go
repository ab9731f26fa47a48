package media

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeStream is a stream with a settable level, for tests and local runs
// without a media stack.
type FakeStream struct {
	Id    int
	level atomic.Int64
}

func NewFakeStream(id, level int) *FakeStream {
	s := &FakeStream{Id: id}
	s.SetLevel(level)
	return s
}

func (s *FakeStream) ParticipantId() int { return s.Id }
func (s *FakeStream) Level() int         { return int(s.level.Load()) }
func (s *FakeStream) SetLevel(l int)     { s.level.Store(int64(l)) }

type FakeCoordinator struct {
	mu           sync.Mutex
	Local        *FakeStream
	Remote       []*FakeStream
	AudioEnabled bool
	VideoEnabled bool
	Stopped      bool
	// OnStop runs when Stop is called.
	OnStop func()
}

func (f *FakeCoordinator) LocalStream() (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Local == nil || f.Stopped {
		return nil, ErrNoLocalStream
	}
	return f.Local, nil
}

func (f *FakeCoordinator) RemoteStreams() []Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Stream, len(f.Remote))
	for i, s := range f.Remote {
		out[i] = s
	}
	return out
}

func (f *FakeCoordinator) ToggleAudio(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AudioEnabled = enabled
	return nil
}

func (f *FakeCoordinator) ToggleVideo(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VideoEnabled = enabled
	return nil
}

func (f *FakeCoordinator) Stop() error {
	f.mu.Lock()
	f.Stopped = true
	onStop := f.OnStop
	f.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return nil
}

func (f *FakeCoordinator) IsStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stopped
}

// FakeTranscription delivers utterances pushed with Emit.
type FakeTranscription struct {
	mu      sync.Mutex
	fn      func(Utterance)
	running bool
	// OnStop runs when Stop is called.
	OnStop func()
}

func (f *FakeTranscription) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *FakeTranscription) Stop() error {
	f.mu.Lock()
	f.running = false
	onStop := f.OnStop
	f.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return nil
}

func (f *FakeTranscription) OnUtterance(fn func(Utterance)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func (f *FakeTranscription) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Emit delivers u if the source is running.
func (f *FakeTranscription) Emit(u Utterance) {
	f.mu.Lock()
	fn, running := f.fn, f.running
	f.mu.Unlock()

	if running && fn != nil {
		fn(u)
	}
}
