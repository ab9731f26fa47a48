package media

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
)

const DefaultSampleInterval = 16 * time.Millisecond

type Levels struct {
	Local  int
	Remote int
}

// LevelMonitor samples the local level and the loudest remote level on a
// fixed cadence.
type LevelMonitor struct {
	media    MediaCoordinator
	interval time.Duration

	mu     sync.RWMutex
	levels Levels
}

func NewLevelMonitor(mc MediaCoordinator, interval time.Duration) *LevelMonitor {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &LevelMonitor{media: mc, interval: interval}
}

// Run samples until ctx is cancelled.
func (m *LevelMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *LevelMonitor) Levels() Levels {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levels
}

func (m *LevelMonitor) sample() {
	var l Levels
	if local, err := m.media.LocalStream(); err == nil && local != nil {
		l.Local = clampLevel(local.Level())
	}

	remote := lo.Map(m.media.RemoteStreams(), func(s Stream, _ int) int {
		return clampLevel(s.Level())
	})
	l.Remote = lo.Max(remote)

	m.mu.Lock()
	m.levels = l
	m.mu.Unlock()
}
