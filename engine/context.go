package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vsariola/beatbox"
)

type (
	// Context is everything a Session needs from its surroundings. It is
	// built explicitly by the application and handed to every session; there
	// is no global state in the engine.
	Context struct {
		// Bus receives the commands published by the session. nil disables
		// publishing.
		Bus *Bus
		// Instruments resolves Player.Instrument ids.
		Instruments *Registry
		Logger      *slog.Logger
		// Schedule runs f after d, from any goroutine. nil uses time.AfterFunc.
		Schedule func(d time.Duration, f func())
		// Seed makes the humanization draws reproducible. Sessions with the
		// same seed and id draw the same numbers. 0 seeds randomly.
		Seed uint64
		// StopTimeout bounds how long Stop waits for the clock goroutine.
		// Defaults to 3 seconds.
		StopTimeout time.Duration
	}

	// Registry maps instrument ids to instruments. It is safe for concurrent
	// use, so instruments can be swapped while sessions are playing.
	Registry struct {
		mu          sync.RWMutex
		instruments map[int64]beatbox.Instrument
	}
)

const defaultStopTimeout = 3 * time.Second

func NewRegistry() *Registry {
	return &Registry{instruments: make(map[int64]beatbox.Instrument)}
}

func (r *Registry) Register(id int64, instrument beatbox.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[id] = instrument
}

func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instruments, id)
}

func (r *Registry) Lookup(id int64) (beatbox.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.instruments[id]
	return i, ok
}

func (c Context) withDefaults() Context {
	if c.Instruments == nil {
		c.Instruments = NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Schedule == nil {
		c.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
	return c
}
