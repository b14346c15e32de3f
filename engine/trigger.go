package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/vsariola/beatbox"
)

type (
	// voice is the runtime bookkeeping of one attached player, touched only by
	// the clock goroutine. skip counts eligible ticks for Player.Skip, sub
	// indexes the ratchet sub-triggers of a tick, and beat and bar count the
	// player's own beats and bars since it was attached or the part wrapped.
	voice struct {
		skip, sub, beat, bar *beatbox.Cycler
		armed                bool // one-shot players play only when armed
	}

	heldNote struct {
		instrument    beatbox.Instrument
		channel, note int
	}

	// heldNotes tracks the notes that have been switched on and not yet off.
	// Releasing all of them starts a new generation; notes scheduled in an
	// older generation are then never played.
	heldNotes struct {
		mu   sync.Mutex
		gen  uint64
		held map[*heldNote]struct{}
	}
)

func (h *heldNotes) generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *heldNotes) current(gen uint64) bool { return h.generation() == gen }

// hold starts tracking n, unless gen has been released meanwhile.
func (h *heldNotes) hold(gen uint64, n *heldNote) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return false
	}
	if h.held == nil {
		h.held = make(map[*heldNote]struct{})
	}
	h.held[n] = struct{}{}
	return true
}

// release stops tracking n and reports whether it was still held.
func (h *heldNotes) release(n *heldNote) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.held[n]
	delete(h.held, n)
	return ok
}

func (h *heldNotes) releaseAll() []*heldNote {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	ret := make([]*heldNote, 0, len(h.held))
	for n := range h.held {
		ret = append(ret, n)
	}
	clear(h.held)
	return ret
}

func newVoice(p *beatbox.Player, cfg *beatbox.SessionConfig) *voice {
	v := &voice{armed: true}
	v.skip, _ = beatbox.NewCycler(p.Skip + 1)
	v.sub, _ = beatbox.NewCycler(p.RatchetCount + 1)
	v.beat, _ = beatbox.NewCycler(cfg.BeatsPerBar)
	v.bar, _ = beatbox.NewCycler(cfg.Bars)
	v.beat.OnCycle(func() { v.bar.Advance() })
	v.bar.OnCycle(func() { v.armed = true })
	return v
}

func (v *voice) shape(cfg *beatbox.SessionConfig) {
	v.beat.SetLength(cfg.BeatsPerBar)
	v.bar.SetLength(cfg.Bars)
}

func (v *voice) fit(p *beatbox.Player) {
	v.skip.SetLength(p.Skip + 1)
	v.sub.SetLength(p.RatchetCount + 1)
}

func (v *voice) advanceBeat() { v.beat.Advance() }

// rewind happens when the part wraps: the player's own position starts over
// and one-shot players are armed again.
func (v *voice) rewind() {
	v.skip.Reset()
	v.beat.Reset()
	v.bar.Reset()
	v.armed = true
}

func (v *voice) clear() {
	v.skip.Clear()
	v.sub.Clear()
	v.beat.Clear()
	v.bar.Clear()
	v.armed = true
}

// syncVoices creates the voices of newly attached players, drops the voices of
// detached ones and refits the rest to their possibly updated parameters.
func (s *Session) syncVoices(players *[]beatbox.Player, cfg *beatbox.SessionConfig) {
	seen := make(map[int64]bool, len(*players))
	for i := range *players {
		p := &(*players)[i]
		seen[p.ID] = true
		if v, ok := s.voices[p.ID]; ok {
			v.fit(p)
			continue
		}
		s.voices[p.ID] = newVoice(p, cfg)
	}
	for id := range s.voices {
		if !seen[id] {
			delete(s.voices, id)
		}
	}
	s.voicesFor = players
}

// playTick decides whether the player plays at pos and, if it does, triggers
// its notes. The checks are, in order: rules, mute and solo, one-shot arming,
// skip, and the probability and sparse draws.
func (s *Session) playTick(p *beatbox.Player, cfg *beatbox.SessionConfig, pos beatbox.Position, solo bool, interval time.Duration) {
	if !p.Eligible(pos) {
		return
	}
	if p.Muted || (solo && !p.Solo) {
		return
	}
	v := s.voices[p.ID]
	if v == nil {
		return
	}
	if p.OneShot && !v.armed {
		return
	}
	play := v.skip.Get() == 0
	v.skip.Advance()
	if !play || !s.draw(p) {
		return
	}
	v.armed = false
	instrument, ok := s.ctx.Instruments.Lookup(p.Instrument)
	if !ok {
		s.logger.Warn("player has no instrument", "player", p.ID, "instrument", p.Instrument, "tick", pos.TickCount)
		return
	}
	delay := swingDelay(p, cfg, pos, interval)
	spacing := ratchetSpacing(p, interval)
	gate := gateLength(p, interval)
	note := min(max(p.Note+cfg.NoteOffset, 0), 127)
	v.sub.Reset()
	for {
		k := v.sub.Get()
		if k == 0 || cfg.DrawMode != beatbox.DrawPerTrigger || s.draw(p) {
			s.trigger(instrument, p, pos, note, s.velocity(p), delay+time.Duration(k)*spacing, gate)
		}
		if v.sub.Advance() {
			break
		}
	}
}

// draw makes the probability and sparse draws. A probability of 0 never
// plays; otherwise the probability is jittered by up to ±RandomDegree and
// clamped to 0..100.
func (s *Session) draw(p *beatbox.Player) bool {
	if p.Probability <= 0 {
		return false
	}
	prob := p.Probability
	if p.RandomDegree > 0 {
		prob = min(max(prob+(s.rand.Float64()*2-1)*p.RandomDegree, 0), 100)
	}
	if s.rand.Float64()*100 >= prob {
		return false
	}
	if p.Sparse > 0 && s.rand.Float64() < p.Sparse {
		return false
	}
	return true
}

func (s *Session) velocity(p *beatbox.Player) int {
	return p.MinVelocity + s.rand.IntN(p.MaxVelocity-p.MinVelocity+1)
}

// trigger sends a note on after delay and the matching note off gate later.
// Notes released by releaseNotes in between are not played, or are cut short.
// Instrument failures are logged and do not affect the clock.
func (s *Session) trigger(instrument beatbox.Instrument, p *beatbox.Player, pos beatbox.Position, note, velocity int, delay, gate time.Duration) {
	id, channel, tick := p.ID, p.Channel, pos.TickCount
	gen := s.notes.generation()
	off := func() {
		if err := instrument.NoteOff(channel, note, 0); err != nil {
			s.logger.Error("note off failed", "player", id, "channel", channel, "note", note, "tick", tick, "err", err)
		}
	}
	s.schedule(delay, func() {
		if !s.notes.current(gen) {
			return
		}
		if err := instrument.NoteOn(channel, note, velocity); err != nil {
			s.logger.Error("note on failed", "player", id, "channel", channel, "note", note, "tick", tick, "err", err)
			return
		}
		n := &heldNote{instrument: instrument, channel: channel, note: note}
		if !s.notes.hold(gen, n) {
			off()
			return
		}
		s.schedule(gate, func() {
			if s.notes.release(n) {
				off()
			}
		})
	})
}

// releaseNotes switches off every sounding note at once and cancels the
// notes still waiting for their delay.
func (s *Session) releaseNotes() {
	for _, n := range s.notes.releaseAll() {
		if err := n.instrument.NoteOff(n.channel, n.note, 0); err != nil {
			s.logger.Error("note off failed", "channel", n.channel, "note", n.note, "err", err)
		}
	}
}

// schedule runs f now if d is not positive, otherwise after d through the
// context scheduler. Panics in f are logged.
func (s *Session) schedule(d time.Duration, f func()) {
	guarded := func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled note panicked", "panic", fmt.Sprint(r))
			}
		}()
		f()
	}
	if d <= 0 {
		guarded()
		return
	}
	s.ctx.Schedule(d, guarded)
}

// swingDelay delays notes on off subdivisions by the swing percentage of one
// tick. With ticks per beat divisible by four, the off subdivisions are the
// first ticks of the odd sixteenths; otherwise every odd tick is off.
func swingDelay(p *beatbox.Player, cfg *beatbox.SessionConfig, pos beatbox.Position, interval time.Duration) time.Duration {
	swing := cfg.Swing
	if p.Swing != nil {
		swing = *p.Swing
	}
	if swing <= 0 || !offSubdivision(pos.Tick, cfg.TicksPerBeat) {
		return 0
	}
	return time.Duration(swing / 100 * float64(interval))
}

func offSubdivision(tick, ticksPerBeat int) bool {
	if ticksPerBeat >= 4 && ticksPerBeat%4 == 0 {
		sixteenth := ticksPerBeat / 4
		return tick%sixteenth == 0 && (tick/sixteenth)%2 == 1
	}
	return tick%2 == 1
}

func ratchetSpacing(p *beatbox.Player, interval time.Duration) time.Duration {
	scale := p.RatchetInterval
	if scale <= 0 {
		scale = 1
	}
	return time.Duration(float64(interval) / float64(p.RatchetCount+1) * scale)
}

func gateLength(p *beatbox.Player, interval time.Duration) time.Duration {
	g := p.Gate
	if g <= 0 {
		g = 1
	}
	return time.Duration(g * float64(interval))
}
