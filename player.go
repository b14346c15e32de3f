package beatbox

import (
	"fmt"
	"math"
	"slices"
)

type (
	// Player is one sequenced voice: which note it plays on which instrument
	// and channel, the rules deciding when it is eligible to play, and the
	// humanization parameters deciding whether an eligible tick actually
	// plays.
	Player struct {
		ID         int64  `yaml:"id,omitempty" json:"id,omitempty"`
		Name       string `yaml:"name,omitempty" json:"name,omitempty"`
		Instrument int64  `yaml:"instrument" json:"instrument"` // id in the instrument registry

		Channel     int `yaml:"channel" json:"channel"`
		Note        int `yaml:"note" json:"note"`
		MinVelocity int `yaml:"minVelocity" json:"minVelocity"`
		MaxVelocity int `yaml:"maxVelocity" json:"maxVelocity"`
		// Preset, when set, is sent as a program change when playback starts.
		Preset *int `yaml:"preset,omitempty" json:"preset,omitempty"`

		Probability  float64 `yaml:"probability" json:"probability"`                       // 0-100
		RandomDegree float64 `yaml:"randomDegree,omitempty" json:"randomDegree,omitempty"` // 0-100, jitter on Probability
		Sparse       float64 `yaml:"sparse,omitempty" json:"sparse,omitempty"`             // 0-1, fraction of plays suppressed
		Skip         int     `yaml:"skip,omitempty" json:"skip,omitempty"`                 // play every Skip+1th eligible tick

		RatchetCount    int     `yaml:"ratchetCount,omitempty" json:"ratchetCount,omitempty"`
		RatchetInterval float64 `yaml:"ratchetInterval,omitempty" json:"ratchetInterval,omitempty"`
		// Swing overrides the session swing (0-100) when set.
		Swing *float64 `yaml:"swing,omitempty" json:"swing,omitempty"`
		// Gate is the note length in ticks; 0 means one tick.
		Gate float64 `yaml:"gate,omitempty" json:"gate,omitempty"`

		OneShot bool `yaml:"oneShot,omitempty" json:"oneShot,omitempty"`
		Solo    bool `yaml:"solo,omitempty" json:"solo,omitempty"`
		Muted   bool `yaml:"muted,omitempty" json:"muted,omitempty"`

		Rules []Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
	}
)

// Validate checks the player parameters and all of its rules.
func (p *Player) Validate() error {
	switch {
	case p.Channel < 0 || p.Channel > 15:
		return fmt.Errorf("%w: channel %d", ErrInvalidPlayer, p.Channel)
	case p.Note < 0 || p.Note > 127:
		return fmt.Errorf("%w: note %d", ErrInvalidPlayer, p.Note)
	case p.MinVelocity < 0 || p.MaxVelocity > 127 || p.MinVelocity > p.MaxVelocity:
		return fmt.Errorf("%w: velocity range %d..%d", ErrInvalidPlayer, p.MinVelocity, p.MaxVelocity)
	case p.Preset != nil && (*p.Preset < 0 || *p.Preset > 127):
		return fmt.Errorf("%w: preset %d", ErrInvalidPlayer, *p.Preset)
	case !inRange(p.Probability, 0, 100):
		return fmt.Errorf("%w: probability %v", ErrInvalidPlayer, p.Probability)
	case !inRange(p.RandomDegree, 0, 100):
		return fmt.Errorf("%w: random degree %v", ErrInvalidPlayer, p.RandomDegree)
	case !inRange(p.Sparse, 0, 1):
		return fmt.Errorf("%w: sparse %v", ErrInvalidPlayer, p.Sparse)
	case p.Skip < 0:
		return fmt.Errorf("%w: skip %d", ErrInvalidPlayer, p.Skip)
	case p.RatchetCount < 0:
		return fmt.Errorf("%w: ratchet count %d", ErrInvalidPlayer, p.RatchetCount)
	case !inRange(p.RatchetInterval, 0, math.MaxFloat64):
		return fmt.Errorf("%w: ratchet interval %v", ErrInvalidPlayer, p.RatchetInterval)
	case p.Swing != nil && !inRange(*p.Swing, 0, 100):
		return fmt.Errorf("%w: swing %v", ErrInvalidPlayer, *p.Swing)
	case !inRange(p.Gate, 0, math.MaxFloat64):
		return fmt.Errorf("%w: gate %v", ErrInvalidPlayer, p.Gate)
	}
	for i, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		for _, o := range p.Rules[:i] {
			if r.ID != 0 && o.ID == r.ID {
				return fmt.Errorf("%w: duplicate rule id %d", ErrInvalidRule, r.ID)
			}
		}
	}
	return nil
}

// Eligible reports whether at least one of the rules matches the position. A
// player without rules is never eligible.
func (p *Player) Eligible(pos Position) bool {
	for _, r := range p.Rules {
		if r.Matches(pos) {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the player, so that the copy can be modified
// without affecting the original.
func (p *Player) Copy() Player {
	ret := *p
	ret.Rules = slices.Clone(p.Rules)
	if p.Preset != nil {
		v := *p.Preset
		ret.Preset = &v
	}
	if p.Swing != nil {
		v := *p.Swing
		ret.Swing = &v
	}
	return ret
}

// RuleIndex returns the index of the rule with the given id, or -1.
func (p *Player) RuleIndex(id int64) int {
	return slices.IndexFunc(p.Rules, func(r Rule) bool { return r.ID == id })
}

// NextRuleID returns an id not used by any of the rules of the player.
func (p *Player) NextRuleID() int64 {
	var id int64
	for _, r := range p.Rules {
		id = max(id, r.ID)
	}
	return id + 1
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
