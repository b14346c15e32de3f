package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vsariola/beatbox"
)

// connectCyclers chains the cyclers so that a wrapping tick advances the beat,
// a wrapping beat the bar and a wrapping bar the part, and publishes an update
// for every level that advanced.
func (s *Session) connectCyclers() {
	s.tickCycler.OnAdvance(func(int64) {
		s.publish(beatbox.CommandTickAdvanced, s.currentPosition().TickUpdate())
	})
	s.beatCycler.OnAdvance(func(int64) {
		s.publish(beatbox.CommandBeatAdvanced, s.currentPosition().BeatUpdate())
		for _, v := range s.voices {
			v.advanceBeat()
		}
	})
	s.barCycler.OnAdvance(func(int64) {
		s.publish(beatbox.CommandBarAdvanced, s.currentPosition().BarUpdate())
	})
	s.partCycler.OnAdvance(func(int64) {
		s.publish(beatbox.CommandPartAdvanced, s.currentPosition().PartUpdate())
	})
	s.tickCycler.OnCycle(func() { s.beatCycler.Advance() })
	s.beatCycler.OnCycle(func() { s.barCycler.Advance() })
	s.barCycler.OnCycle(func() { s.partCycler.Advance() })
	s.partCycler.OnCycle(func() {
		for _, v := range s.voices {
			v.rewind()
		}
	})
}

// run is the clock goroutine. Ticks are scheduled on an absolute timeline
// (next += interval) rather than by sleeping a fixed interval after each tick,
// so the time spent in a tick does not accumulate as drift. The interval is
// recomputed from the current config on every iteration, so tempo changes
// take effect on the next tick.
func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.finish()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	next := time.Now()
	for {
		if s.State() == beatbox.Paused {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			next = time.Now()
			continue
		}
		if wait := time.Until(next); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		if s.State() != beatbox.Playing {
			continue
		}
		s.safeStep()
		var late time.Duration
		if next, late = nextTick(next, time.Now(), s.config.Load().TickInterval()); late > 0 {
			s.logger.Debug("clock fell behind", "late", late)
		}
	}
}

// nextTick returns the time of the tick following the one due at prev. If
// that is more than a tick interval behind now, the timeline is rebased to
// now instead of bursting the missed ticks, and the lag is returned.
func nextTick(prev, now time.Time, interval time.Duration) (time.Time, time.Duration) {
	next := prev.Add(interval)
	if late := now.Sub(next); late > interval {
		return now, late
	}
	return next, 0
}

// safeStep runs one tick, recovering from panics so that a single bad tick
// cannot stop the clock.
func (s *Session) safeStep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick failed", "tick", s.tickCycler.Count(), "panic", fmt.Sprint(r))
		}
	}()
	s.step()
}

// step performs one logical tick: the players are evaluated at the current
// position, then the cyclers are advanced.
func (s *Session) step() {
	if cfg := s.config.Load(); cfg != s.applied {
		s.apply(cfg)
	}
	if s.resetReq.Swap(false) {
		s.clear()
	}
	cfg := s.applied
	players := s.players.Load()
	if players != s.voicesFor {
		s.syncVoices(players, cfg)
	}
	pos := s.currentPosition()
	solo := slices.ContainsFunc(*players, func(p beatbox.Player) bool { return p.Solo })
	interval := cfg.TickInterval()
	for i := range *players {
		s.playTick(&(*players)[i], cfg, pos, solo, interval)
	}
	s.tickCycler.Advance()
	p := s.currentPosition()
	s.position.Store(&p)
}

// apply shapes the cyclers for a new config. A change in beats per bar
// restarts the bar from its first beat.
func (s *Session) apply(cfg *beatbox.SessionConfig) {
	prev := s.applied
	s.tickCycler.SetLength(cfg.TicksPerBeat)
	s.beatCycler.SetLength(cfg.BeatsPerBar)
	s.barCycler.SetLength(cfg.Bars)
	s.partCycler.SetLength(cfg.Parts)
	if prev != nil && prev.BeatsPerBar != cfg.BeatsPerBar {
		s.beatCycler.Reset()
	}
	for _, v := range s.voices {
		v.shape(cfg)
	}
	s.applied = cfg
}

// clear zeroes every cycler and counter, including the players' own.
func (s *Session) clear() {
	s.tickCycler.Clear()
	s.beatCycler.Clear()
	s.barCycler.Clear()
	s.partCycler.Clear()
	for _, v := range s.voices {
		v.clear()
	}
	s.position.Store(&beatbox.Position{})
}

// finish runs in the clock goroutine as it exits.
func (s *Session) finish() {
	s.resetReq.Store(false)
	s.clear()
	s.releaseNotes()
}

func (s *Session) currentPosition() beatbox.Position {
	return beatbox.Position{
		Tick:      s.tickCycler.Get(),
		Beat:      s.beatCycler.Get(),
		Bar:       s.barCycler.Get(),
		Part:      s.partCycler.Get(),
		TickCount: s.tickCycler.Count(),
		BeatCount: s.beatCycler.Count(),
		BarCount:  s.barCycler.Count(),
		PartCount: s.partCycler.Count(),
	}
}
