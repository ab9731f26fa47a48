package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/npezzotti/go-teamsession/internal/media"
	"github.com/npezzotti/go-teamsession/internal/session"
)

// SessionAPI is the part of the server API a participant needs.
type SessionAPI interface {
	SendMessage(ctx context.Context, id, content string, t session.MessageType) (string, error)
	Leave(ctx context.Context, id string) error
}

type ParticipantConfig struct {
	SessionId     string
	Mode          session.ChatMode
	Media         media.MediaCoordinator
	Transcription media.TranscriptionSource
	// Monitor defaults to a LevelMonitor over Media.
	Monitor interface{ Levels() media.Levels }
	// OnWarning receives user facing warnings such as overlapping speech.
	OnWarning func(string)
	Logger    *log.Logger
}

// Participant is the local side of an active session. It feeds finalized
// utterances through the speech gate and owns the media teardown order.
type Participant struct {
	api           SessionAPI
	sessionId     string
	media         media.MediaCoordinator
	transcription media.TranscriptionSource
	monitor       interface{ Levels() media.Levels }
	levelMonitor  *media.LevelMonitor
	onWarning     func(string)
	log           *log.Logger

	mu     sync.Mutex
	mode   session.ChatMode
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewParticipant(api SessionAPI, cfg ParticipantConfig) *Participant {
	p := &Participant{
		api:           api,
		sessionId:     cfg.SessionId,
		media:         cfg.Media,
		transcription: cfg.Transcription,
		monitor:       cfg.Monitor,
		onWarning:     cfg.OnWarning,
		log:           cfg.Logger,
		mode:          cfg.Mode,
	}

	if p.mode == "" {
		p.mode = session.ChatModeSpeech
	}
	if p.onWarning == nil {
		p.onWarning = func(string) {}
	}
	if p.log == nil {
		p.log = log.Default()
	}
	if p.monitor == nil {
		p.levelMonitor = media.NewLevelMonitor(cfg.Media, media.DefaultSampleInterval)
		p.monitor = p.levelMonitor
	}
	return p
}

// Activate enables audio, starts level sampling and begins routing
// utterances into the session.
func (p *Participant) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil
	}

	if err := p.media.ToggleAudio(true); err != nil {
		return fmt.Errorf("enable audio: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	if p.levelMonitor != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.levelMonitor.Run(p.ctx)
		}()
	}

	p.transcription.OnUtterance(p.handleUtterance)
	if err := p.transcription.Start(p.ctx); err != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
		return fmt.Errorf("start transcription: %w", err)
	}
	return nil
}

func (p *Participant) SetMode(mode session.ChatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

func (p *Participant) handleUtterance(u media.Utterance) {
	if !u.Final {
		return
	}

	p.mu.Lock()
	mode, ctx := p.mode, p.ctx
	p.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	levels := p.monitor.Levels()
	decision := session.EvaluateUtterance(session.GateInput{
		Mode:        mode,
		Text:        u.Text,
		LocalLevel:  levels.Local,
		RemoteLevel: levels.Remote,
	})

	if decision.Warning != "" {
		p.onWarning(decision.Warning)
	}
	if !decision.Commit {
		return
	}

	if _, err := p.api.SendMessage(ctx, p.sessionId, u.Text, decision.Type); err != nil {
		p.log.Printf("send %s message to session %q: %v", decision.Type, p.sessionId, err)
	}
}

// Leave stops transcription and every local media track, and only then
// tells the server the participant has left. The server is notified even
// if a local teardown step fails.
func (p *Participant) Leave(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	var errs []error
	if err := p.transcription.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop transcription: %w", err))
	}

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}

	if err := p.media.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop media: %w", err))
	}

	if err := p.api.Leave(ctx, p.sessionId); err != nil {
		errs = append(errs, fmt.Errorf("leave session: %w", err))
	}
	return errors.Join(errs...)
}
