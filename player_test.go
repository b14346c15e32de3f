package beatbox_test

import (
	"errors"
	"testing"

	"github.com/vsariola/beatbox"
)

func validPlayer() beatbox.Player {
	return beatbox.Player{
		Channel:     9,
		Note:        36,
		MinVelocity: 90,
		MaxVelocity: 110,
		Probability: 100,
		Rules:       []beatbox.Rule{{ID: 1, Operator: beatbox.OperatorTick, Comparison: beatbox.Modulo, Value: 24}},
	}
}

func TestPlayerValidate(t *testing.T) {
	p := validPlayer()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate of a valid player failed: %v", err)
	}
	swing := 101.0
	tests := []struct {
		name   string
		modify func(p *beatbox.Player)
	}{
		{"channel", func(p *beatbox.Player) { p.Channel = 16 }},
		{"note", func(p *beatbox.Player) { p.Note = 128 }},
		{"velocity order", func(p *beatbox.Player) { p.MinVelocity, p.MaxVelocity = 100, 99 }},
		{"probability", func(p *beatbox.Player) { p.Probability = 100.5 }},
		{"sparse", func(p *beatbox.Player) { p.Sparse = 1.5 }},
		{"ratchet", func(p *beatbox.Player) { p.RatchetCount = -1 }},
		{"swing", func(p *beatbox.Player) { p.Swing = &swing }},
	}
	for _, tt := range tests {
		p := validPlayer()
		tt.modify(&p)
		if err := p.Validate(); !errors.Is(err, beatbox.ErrInvalidPlayer) {
			t.Errorf("%s: Validate returned %v, expected ErrInvalidPlayer", tt.name, err)
		}
	}
	p = validPlayer()
	p.Rules = append(p.Rules, beatbox.Rule{ID: 1, Comparison: beatbox.Equals})
	if err := p.Validate(); !errors.Is(err, beatbox.ErrInvalidRule) {
		t.Errorf("duplicate rule ids: Validate returned %v, expected ErrInvalidRule", err)
	}
}

func TestPlayerEligibleIsOrOverRules(t *testing.T) {
	p := validPlayer()
	p.Rules = []beatbox.Rule{
		{Operator: beatbox.OperatorBeat, Comparison: beatbox.Equals, Value: 1},
		{Operator: beatbox.OperatorBeat, Comparison: beatbox.Equals, Value: 3},
	}
	for beat, want := range map[int64]bool{0: false, 1: true, 2: false, 3: true} {
		if got := p.Eligible(beatbox.Position{BeatCount: beat}); got != want {
			t.Errorf("beat %d: Eligible = %v, expected %v", beat, got, want)
		}
	}
	p.Rules = nil
	if p.Eligible(beatbox.Position{}) {
		t.Errorf("a player without rules should never be eligible")
	}
}

func TestPlayerCopyIsDeep(t *testing.T) {
	p := validPlayer()
	preset := 5
	p.Preset = &preset
	c := p.Copy()
	c.Rules[0].Value = 3
	*c.Preset = 6
	if p.Rules[0].Value != 24 || *p.Preset != 5 {
		t.Errorf("modifying the copy changed the original")
	}
	if id := p.NextRuleID(); id != 2 {
		t.Errorf("NextRuleID = %d, expected 2", id)
	}
	if i := p.RuleIndex(1); i != 0 {
		t.Errorf("RuleIndex(1) = %d, expected 0", i)
	}
}
