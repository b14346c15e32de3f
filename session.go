package beatbox

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type (
	// SessionConfig holds the tempo and the shape of the timing hierarchy of a
	// session: how many ticks make a beat, beats a bar, bars a part and parts a
	// song.
	SessionConfig struct {
		ID           int64   `yaml:"id,omitempty" json:"id,omitempty"`
		Name         string  `yaml:"name,omitempty" json:"name,omitempty"`
		BPM          float64 `yaml:"bpm" json:"bpm"`
		TicksPerBeat int     `yaml:"ticksPerBeat" json:"ticksPerBeat"`
		BeatsPerBar  int     `yaml:"beatsPerBar" json:"beatsPerBar"`
		Bars         int     `yaml:"bars" json:"bars"`   // bars per part
		Parts        int     `yaml:"parts" json:"parts"` // parts per song
		// MaxTracks limits the number of attached players; 0 is unlimited.
		MaxTracks  int      `yaml:"maxTracks,omitempty" json:"maxTracks,omitempty"`
		Swing      float64  `yaml:"swing,omitempty" json:"swing,omitempty"` // 0-100
		NoteOffset int      `yaml:"noteOffset,omitempty" json:"noteOffset,omitempty"`
		DrawMode   DrawMode `yaml:"drawMode,omitempty" json:"drawMode,omitempty"`
	}

	// DrawMode decides whether the probability and sparse draws are made once
	// per tick or separately for every ratchet sub-trigger.
	DrawMode int
)

const (
	DrawOncePerTick DrawMode = iota
	DrawPerTrigger
)

// DefaultSessionConfig returns a 120 BPM, 4/4 configuration with 24 ticks per
// beat, 4 bars per part and a single part.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BPM:          120,
		TicksPerBeat: 24,
		BeatsPerBar:  4,
		Bars:         4,
		Parts:        1,
	}
}

func (c *SessionConfig) Validate() error {
	switch {
	case math.IsNaN(c.BPM) || math.IsInf(c.BPM, 0) || c.BPM <= 0:
		return fmt.Errorf("%w: bpm %v", ErrInvalidConfig, c.BPM)
	case c.TicksPerBeat <= 0:
		return fmt.Errorf("%w: ticks per beat %d", ErrInvalidConfig, c.TicksPerBeat)
	case c.BeatsPerBar <= 0:
		return fmt.Errorf("%w: beats per bar %d", ErrInvalidConfig, c.BeatsPerBar)
	case c.Bars <= 0:
		return fmt.Errorf("%w: bars %d", ErrInvalidConfig, c.Bars)
	case c.Parts <= 0:
		return fmt.Errorf("%w: parts %d", ErrInvalidConfig, c.Parts)
	case c.MaxTracks < 0:
		return fmt.Errorf("%w: max tracks %d", ErrInvalidConfig, c.MaxTracks)
	case !inRange(c.Swing, 0, 100):
		return fmt.Errorf("%w: swing %v", ErrInvalidConfig, c.Swing)
	case c.NoteOffset < -127 || c.NoteOffset > 127:
		return fmt.Errorf("%w: note offset %d", ErrInvalidConfig, c.NoteOffset)
	case c.DrawMode != DrawOncePerTick && c.DrawMode != DrawPerTrigger:
		return fmt.Errorf("%w: draw mode %d", ErrInvalidConfig, c.DrawMode)
	}
	return nil
}

// TickIntervalMillis is the length of one tick in milliseconds:
// 60000 / bpm / ticksPerBeat / beatsPerBar.
func (c *SessionConfig) TickIntervalMillis() float64 {
	return 60000 / c.BPM / float64(c.TicksPerBeat) / float64(c.BeatsPerBar)
}

// TickInterval is TickIntervalMillis as a time.Duration.
func (c *SessionConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMillis() * float64(time.Millisecond))
}

func (m DrawMode) String() string {
	switch m {
	case DrawOncePerTick:
		return "once"
	case DrawPerTrigger:
		return "per-trigger"
	}
	return fmt.Sprintf("DrawMode(%d)", int(m))
}

func (m DrawMode) MarshalText() ([]byte, error) {
	if m != DrawOncePerTick && m != DrawPerTrigger {
		return nil, fmt.Errorf("unknown draw mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *DrawMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "once":
		*m = DrawOncePerTick
	case "per-trigger":
		*m = DrawPerTrigger
	default:
		return fmt.Errorf("unknown draw mode %q", string(text))
	}
	return nil
}
