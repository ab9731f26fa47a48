package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	SessionsCreated  = "sessions_created"
	ActiveSessions   = "sessions_active"
	MessagesSent     = "messages_sent"
	ConnectedClients = "connected_clients"
	LoadedRooms      = "loaded_rooms"
	SignalsRelayed   = "signals_relayed"

	uptimeKey = "uptime_ms"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater keeps service counters in an expvar map. Updates are applied
// by a single goroutine started with Run.
type StatsUpdater struct {
	vars      *expvar.Map
	startTime time.Time
	updates   chan counterDelta
	done      chan struct{}
	stopOnce  sync.Once
}

type counterDelta struct {
	name  string
	delta int64
}

// NewStatsUpdater mounts the counters on GET /debug/vars. The expvar map is
// process global, so only one updater may be created per process.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := newStatsUpdater(expvar.NewMap("teamsession"))
	mux.HandleFunc("GET /debug/vars", su.serveVars)
	return su
}

func newStatsUpdater(vars *expvar.Map) *StatsUpdater {
	su := &StatsUpdater{
		vars:      vars,
		startTime: time.Now(),
		updates:   make(chan counterDelta, 512),
		done:      make(chan struct{}),
	}
	su.vars.Set(uptimeKey, expvar.Func(func() any {
		return time.Since(su.startTime).Milliseconds()
	}))
	return su
}

// Snapshot returns the current value of every registered counter.
func (su *StatsUpdater) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	su.vars.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, _ *http.Request) {
	body := make(map[string]any)
	for k, v := range su.Snapshot() {
		body[k] = v
	}
	body[uptimeKey] = time.Since(su.startTime).Milliseconds()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(body)
}

func (su *StatsUpdater) apply() {
	for {
		select {
		case u := <-su.updates:
			// unregistered names are ignored
			if counter, ok := su.vars.Get(u.name).(*expvar.Int); ok {
				counter.Add(u.delta)
			}
		case <-su.done:
			return
		}
	}
}

func (su *StatsUpdater) add(name string, delta int64) {
	select {
	case su.updates <- counterDelta{name: name, delta: delta}:
	case <-su.done:
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.add(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.add(name, -1)
}

// RegisterMetric creates a counter. Registering an existing name is a no-op
// so several components can declare the metrics they use.
func (su *StatsUpdater) RegisterMetric(name string) {
	if su.vars.Get(name) != nil {
		return
	}
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

// Stop ends the update loop. Later updates are discarded.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		close(su.done)
	})
}
