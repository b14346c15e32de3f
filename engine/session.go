package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsariola/beatbox"
)

type (
	// Session is the clock of one timing hierarchy and the players attached to
	// it. A session is created stopped; Play starts its clock goroutine, Pause
	// halts the ticks but keeps the goroutine, and Stop ends the goroutine and
	// resets the position.
	//
	// All methods are safe for concurrent use.
	Session struct {
		ctx    Context
		logger *slog.Logger

		mu       sync.Mutex // serializes transport changes and modifications
		revision int64      // counts committed modifications, guarded by mu
		state    atomic.Int32
		config   atomic.Pointer[beatbox.SessionConfig]
		players  atomic.Pointer[[]beatbox.Player]
		position atomic.Pointer[beatbox.Position]
		cancel   context.CancelFunc
		done     chan struct{} // closed when the clock goroutine exits
		wake     chan struct{} // resumes a paused clock
		resetReq atomic.Bool
		notes    heldNotes

		// owned by the clock goroutine while it runs, by mu otherwise
		tickCycler, beatCycler, barCycler, partCycler *beatbox.Cycler
		applied                                       *beatbox.SessionConfig
		voices                                        map[int64]*voice
		voicesFor                                     *[]beatbox.Player
		rand                                          *rand.Rand
	}
)

var (
	ErrStopTimeout = errors.New("clock goroutine did not stop before the timeout")
	ErrStopping    = errors.New("session is still stopping")
)

// NewSession returns a stopped session with no players.
func NewSession(ctx Context, config beatbox.SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctx = ctx.withDefaults()
	s := &Session{
		ctx:    ctx,
		logger: ctx.Logger.With("session", config.ID),
		wake:   make(chan struct{}, 1),
		voices: make(map[int64]*voice),
	}
	var err error
	if s.tickCycler, err = beatbox.NewCycler(config.TicksPerBeat); err != nil {
		return nil, err
	}
	s.beatCycler, _ = beatbox.NewCycler(config.BeatsPerBar)
	s.barCycler, _ = beatbox.NewCycler(config.Bars)
	s.partCycler, _ = beatbox.NewCycler(config.Parts)
	s.connectCyclers()
	seed1, seed2 := ctx.Seed, uint64(config.ID)
	if seed1 == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}
	s.rand = rand.New(rand.NewPCG(seed1, seed2))
	s.config.Store(&config)
	s.applied = &config
	s.players.Store(&[]beatbox.Player{})
	s.position.Store(&beatbox.Position{})
	return s, nil
}

func (s *Session) ID() int64 { return s.config.Load().ID }

func (s *Session) State() beatbox.TransportState {
	return beatbox.TransportState(s.state.Load())
}

func (s *Session) Config() beatbox.SessionConfig { return *s.config.Load() }

// TickInterval is the current interval between two ticks.
func (s *Session) TickInterval() time.Duration {
	return s.config.Load().TickInterval()
}

// Position returns the position after the latest tick.
func (s *Session) Position() beatbox.Position { return *s.position.Load() }

// Play starts the clock, or resumes it if paused. Playing an already playing
// session does nothing.
func (s *Session) Play() error {
	s.mu.Lock()
	switch s.State() {
	case beatbox.Playing:
		s.mu.Unlock()
		return nil
	case beatbox.Paused:
		s.state.Store(int32(beatbox.Playing))
		TrySend(s.wake, struct{}{})
		s.mu.Unlock()
		s.publishTransport(beatbox.CommandTransportStarted, beatbox.Playing)
		return nil
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			s.mu.Unlock()
			return ErrStopping
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.sendPresets()
	s.state.Store(int32(beatbox.Playing))
	go s.run(ctx, s.done)
	s.mu.Unlock()
	s.publishTransport(beatbox.CommandTransportStarted, beatbox.Playing)
	return nil
}

// Pause halts the ticks without ending the clock goroutine. Only a playing
// session can be paused.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.State() != beatbox.Playing {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(beatbox.Paused))
	s.mu.Unlock()
	s.publishTransport(beatbox.CommandTransportPaused, beatbox.Paused)
}

// Stop ends the clock goroutine, switches off the sounding notes and resets
// all cyclers and counters. It waits for the goroutine at most
// Context.StopTimeout; if the goroutine is stuck (e.g. in a slow synchronous
// listener) ErrStopTimeout is returned and the goroutine finishes on its own.
// Stopping a stopped session does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.State() == beatbox.Stopped {
		s.mu.Unlock()
		return nil
	}
	s.state.Store(int32(beatbox.Stopped))
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	var err error
	select {
	case <-done:
	case <-time.After(s.ctx.StopTimeout):
		err = ErrStopTimeout
		s.logger.Warn("clock did not stop in time", "timeout", s.ctx.StopTimeout)
	}
	s.releaseNotes()
	s.publishTransport(beatbox.CommandTransportStopped, beatbox.Stopped)
	return err
}

// Reset moves the session back to the very beginning, zeroing every cycler
// and counter.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.running() {
		s.resetReq.Store(true)
	} else {
		s.clear()
	}
	s.mu.Unlock()
	s.publish(beatbox.CommandTransportReset, beatbox.TransportEvent{State: s.State()})
}

// Update applies f to a copy of the config and, if the result is valid,
// makes it the session config. Nothing changes if f leaves the config
// invalid. The session id cannot be changed.
func (s *Session) Update(f func(c *beatbox.SessionConfig)) error {
	s.mu.Lock()
	current := s.config.Load()
	next := *current
	f(&next)
	next.ID = current.ID
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if n := len(*s.players.Load()); next.MaxTracks > 0 && n > next.MaxTracks {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d players attached, max tracks %d", beatbox.ErrInvalidConfig, n, next.MaxTracks)
	}
	s.config.Store(&next)
	if !s.running() {
		s.apply(&next)
	}
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.publish(beatbox.CommandSessionUpdated, beatbox.SessionEvent{Revision: rev, Config: next})
	return nil
}

// SetBPM changes the tempo. The clock picks up the new interval on its next
// tick.
func (s *Session) SetBPM(bpm float64) error {
	return s.Update(func(c *beatbox.SessionConfig) { c.BPM = bpm })
}

// Players returns copies of the attached players.
func (s *Session) Players() []beatbox.Player {
	players := *s.players.Load()
	ret := make([]beatbox.Player, len(players))
	for i := range players {
		ret[i] = players[i].Copy()
	}
	return ret
}

func (s *Session) Player(id int64) (beatbox.Player, bool) {
	players := *s.players.Load()
	i := indexOfPlayer(players, id)
	if i < 0 {
		return beatbox.Player{}, false
	}
	return players[i].Copy(), true
}

// AddPlayer attaches a player. A player with id 0 gets a new id; rules with
// id 0 get ids unique within the player. The attached player is returned.
func (s *Session) AddPlayer(p beatbox.Player) (beatbox.Player, error) {
	p = p.Copy()
	assignRuleIDs(&p)
	if err := p.Validate(); err != nil {
		return beatbox.Player{}, err
	}
	s.mu.Lock()
	players := *s.players.Load()
	if p.ID == 0 {
		for _, o := range players {
			p.ID = max(p.ID, o.ID)
		}
		p.ID++
	} else if indexOfPlayer(players, p.ID) >= 0 {
		s.mu.Unlock()
		return beatbox.Player{}, fmt.Errorf("%w: %d", beatbox.ErrDuplicatePlayer, p.ID)
	}
	if m := s.config.Load().MaxTracks; m > 0 && len(players) >= m {
		s.mu.Unlock()
		return beatbox.Player{}, fmt.Errorf("%w: max tracks %d", beatbox.ErrTooManyTracks, m)
	}
	next := append(slices.Clone(players), p)
	s.players.Store(&next)
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.publishPlayer(beatbox.CommandPlayerAdded, rev, p)
	return p.Copy(), nil
}

// RemovePlayer detaches a player; its rules go with it.
func (s *Session) RemovePlayer(id int64) error {
	s.mu.Lock()
	players := *s.players.Load()
	i := indexOfPlayer(players, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", beatbox.ErrUnknownPlayer, id)
	}
	removed := players[i]
	next := slices.Delete(slices.Clone(players), i, i+1)
	s.players.Store(&next)
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.publishPlayer(beatbox.CommandPlayerRemoved, rev, removed)
	return nil
}

// UpdatePlayer replaces the attached player with the same id.
func (s *Session) UpdatePlayer(p beatbox.Player) error {
	p = p.Copy()
	assignRuleIDs(&p)
	if err := p.Validate(); err != nil {
		return err
	}
	return s.editPlayer(p.ID, func(old *beatbox.Player) error {
		*old = p
		return nil
	})
}

// AddRule adds a rule to an attached player. A rule with id 0 gets a new id.
func (s *Session) AddRule(playerID int64, r beatbox.Rule) (beatbox.Rule, error) {
	if err := r.Validate(); err != nil {
		return beatbox.Rule{}, err
	}
	player, rev, err := s.modifyPlayer(playerID, func(p *beatbox.Player) error {
		if r.ID == 0 {
			r.ID = p.NextRuleID()
		} else if p.RuleIndex(r.ID) >= 0 {
			return fmt.Errorf("%w: duplicate rule id %d", beatbox.ErrInvalidRule, r.ID)
		}
		p.Rules = append(p.Rules, r)
		return nil
	})
	if err != nil {
		return beatbox.Rule{}, err
	}
	s.publishRule(beatbox.CommandRuleAdded, rev, player, r)
	return r, nil
}

// RemoveRule removes a rule from an attached player.
func (s *Session) RemoveRule(playerID, ruleID int64) error {
	var removed beatbox.Rule
	player, rev, err := s.modifyPlayer(playerID, func(p *beatbox.Player) error {
		i := p.RuleIndex(ruleID)
		if i < 0 {
			return fmt.Errorf("%w: %d", beatbox.ErrUnknownRule, ruleID)
		}
		removed = p.Rules[i]
		p.Rules = slices.Delete(p.Rules, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishRule(beatbox.CommandRuleRemoved, rev, player, removed)
	return nil
}

// UpdateRule replaces the rule with the same id. The change takes effect on
// the next tick.
func (s *Session) UpdateRule(playerID int64, r beatbox.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.editPlayer(playerID, func(p *beatbox.Player) error {
		i := p.RuleIndex(r.ID)
		if i < 0 {
			return fmt.Errorf("%w: %d", beatbox.ErrUnknownRule, r.ID)
		}
		p.Rules[i] = r
		return nil
	})
}

// SetMuted and SetSolo are shorthands for the most common live changes.
func (s *Session) SetMuted(playerID int64, muted bool) error {
	return s.editPlayer(playerID, func(p *beatbox.Player) error {
		p.Muted = muted
		return nil
	})
}

func (s *Session) SetSolo(playerID int64, solo bool) error {
	return s.editPlayer(playerID, func(p *beatbox.Player) error {
		p.Solo = solo
		return nil
	})
}

// editPlayer modifies an attached player and publishes the result as a
// player update.
func (s *Session) editPlayer(id int64, f func(p *beatbox.Player) error) error {
	p, rev, err := s.modifyPlayer(id, f)
	if err != nil {
		return err
	}
	s.publishPlayer(beatbox.CommandPlayerUpdated, rev, p)
	return nil
}

// modifyPlayer applies f to a copy of an attached player and commits the copy
// if f succeeds and the result is valid. The committed player and the
// revision of the change are returned; nothing is published.
func (s *Session) modifyPlayer(id int64, f func(p *beatbox.Player) error) (beatbox.Player, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := *s.players.Load()
	i := indexOfPlayer(players, id)
	if i < 0 {
		return beatbox.Player{}, 0, fmt.Errorf("%w: %d", beatbox.ErrUnknownPlayer, id)
	}
	p := players[i].Copy()
	if err := f(&p); err != nil {
		return beatbox.Player{}, 0, err
	}
	p.ID = id
	if err := p.Validate(); err != nil {
		return beatbox.Player{}, 0, err
	}
	next := slices.Clone(players)
	next[i] = p
	s.players.Store(&next)
	s.revision++
	return p, s.revision, nil
}

// running reports whether the clock goroutine is alive. Must hold mu.
func (s *Session) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) sendPresets() {
	for _, p := range *s.players.Load() {
		if p.Preset == nil {
			continue
		}
		instrument, ok := s.ctx.Instruments.Lookup(p.Instrument)
		if !ok {
			continue
		}
		if err := instrument.ProgramChange(p.Channel, *p.Preset); err != nil {
			s.logger.Error("program change failed", "player", p.ID, "channel", p.Channel, "preset", *p.Preset, "err", err)
		}
	}
}

func (s *Session) publish(kind beatbox.CommandKind, data beatbox.Payload) {
	if s.ctx.Bus == nil {
		return
	}
	if err := s.ctx.Bus.Publish(kind, nil, data); err != nil {
		s.logger.Error("publish failed", "command", kind, "err", err)
	}
}

func (s *Session) publishTransport(kind beatbox.CommandKind, state beatbox.TransportState) {
	s.publish(kind, beatbox.TransportEvent{State: state, Position: s.Position()})
}

func (s *Session) publishPlayer(kind beatbox.CommandKind, rev int64, p beatbox.Player) {
	s.publish(kind, beatbox.PlayerEvent{SessionID: s.ID(), Revision: rev, Player: p.Copy()})
}

func (s *Session) publishRule(kind beatbox.CommandKind, rev int64, p beatbox.Player, r beatbox.Rule) {
	s.publish(kind, beatbox.RuleEvent{SessionID: s.ID(), Revision: rev, PlayerID: p.ID, Rule: r, Player: p.Copy()})
}

func indexOfPlayer(players []beatbox.Player, id int64) int {
	return slices.IndexFunc(players, func(p beatbox.Player) bool { return p.ID == id })
}

func assignRuleIDs(p *beatbox.Player) {
	for i := range p.Rules {
		if p.Rules[i].ID == 0 {
			p.Rules[i].ID = p.NextRuleID()
		}
	}
}
