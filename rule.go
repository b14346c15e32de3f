package beatbox

import (
	"fmt"
	"math"
	"strings"
)

type (
	// Rule is a single condition tested against the timing position on every
	// tick. Operator selects which absolute counter is tested, Comparison and
	// Value define the test, and Part limits the rule to one part of the song.
	Rule struct {
		ID         int64      `yaml:"id,omitempty" json:"id,omitempty"`
		Operator   Operator   `yaml:"operator" json:"operator"`
		Comparison Comparison `yaml:"comparison" json:"comparison"`
		Value      float64    `yaml:"value" json:"value"`
		// Part is 1-based; AllParts (0) makes the rule apply in every part.
		Part int `yaml:"part,omitempty" json:"part,omitempty"`
	}

	Operator   int
	Comparison int
)

const (
	OperatorTick Operator = iota
	OperatorBeat
	OperatorBar
	OperatorPart
)

const (
	Equals Comparison = iota
	Modulo
	GreaterThan
	LessThan
)

// AllParts is the Rule.Part value for rules that are not scoped to a part.
const AllParts = 0

var operatorNames = [...]string{"tick", "beat", "bar", "part"}
var comparisonNames = [...]string{"equals", "modulo", "greater-than", "less-than"}

// Validate checks that the rule can be evaluated.
func (r Rule) Validate() error {
	if r.Operator < OperatorTick || r.Operator > OperatorPart {
		return fmt.Errorf("%w: operator %d", ErrInvalidRule, r.Operator)
	}
	if r.Comparison < Equals || r.Comparison > LessThan {
		return fmt.Errorf("%w: comparison %d", ErrInvalidRule, r.Comparison)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: value %v", ErrInvalidRule, r.Value)
	}
	if r.Comparison == Modulo && r.Value < 1 {
		return fmt.Errorf("%w: modulo by %v", ErrInvalidRule, r.Value)
	}
	if r.Part < 0 {
		return fmt.Errorf("%w: part %d", ErrInvalidRule, r.Part)
	}
	return nil
}

// Matches reports whether the rule holds at the given position. The counters
// tested are the monotonic ones (TickCount, BeatCount, ...), so that equality
// and modulo tests are well defined over the whole timeline; the part scope is
// tested against the wrapping part position.
func (r Rule) Matches(pos Position) bool {
	if r.Part != AllParts && r.Part != pos.Part+1 {
		return false
	}
	var counter int64
	switch r.Operator {
	case OperatorTick:
		counter = pos.TickCount
	case OperatorBeat:
		counter = pos.BeatCount
	case OperatorBar:
		counter = pos.BarCount
	case OperatorPart:
		counter = pos.PartCount
	default:
		return false
	}
	v := float64(counter)
	switch r.Comparison {
	case Equals:
		return v == r.Value
	case Modulo:
		if r.Value < 1 {
			return false
		}
		return math.Mod(v, r.Value) == 0
	case GreaterThan:
		return v > r.Value
	case LessThan:
		return v < r.Value
	}
	return false
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

func (o Operator) MarshalText() ([]byte, error) {
	if o < 0 || int(o) >= len(operatorNames) {
		return nil, fmt.Errorf("unknown operator %d", int(o))
	}
	return []byte(operatorNames[o]), nil
}

func (o *Operator) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range operatorNames {
		if n == s {
			*o = Operator(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operator %q", string(text))
}

func (c Comparison) String() string {
	if c < 0 || int(c) >= len(comparisonNames) {
		return fmt.Sprintf("Comparison(%d)", int(c))
	}
	return comparisonNames[c]
}

func (c Comparison) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(comparisonNames) {
		return nil, fmt.Errorf("unknown comparison %d", int(c))
	}
	return []byte(comparisonNames[c]), nil
}

// UnmarshalText accepts the names used by MarshalText and the short forms
// "eq", "mod", "gt", "lt" as well as the symbols "==", "%", ">" and "<".
func (c *Comparison) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "equals", "eq", "==", "=":
		*c = Equals
	case "modulo", "mod", "%":
		*c = Modulo
	case "greater-than", "gt", ">":
		*c = GreaterThan
	case "less-than", "lt", "<":
		*c = LessThan
	default:
		return fmt.Errorf("unknown comparison %q", string(text))
	}
	return nil
}
