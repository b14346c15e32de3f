package beatbox

import (
	"fmt"
	"strings"

	"github.com/vsariola/beatbox/types"
)

type (
	// Position is the complete timing position of a session: the wrapping
	// positions within each level of the hierarchy, and the monotonic counts of
	// how many ticks, beats, bars and parts have elapsed since the last reset.
	Position struct {
		Tick, Beat, Bar, Part                     int
		TickCount, BeatCount, BarCount, PartCount int64
	}

	// TimingUpdate is an immutable snapshot of a Position where some fields
	// may be absent. High frequency tick updates carry only the tick fields,
	// a bar update only the bar fields and so on; transport changes carry
	// everything.
	TimingUpdate struct {
		Tick, Beat, Bar, Part                     types.Optional[int]
		TickCount, BeatCount, BarCount, PartCount types.Optional[int64]
	}
)

// Update returns a TimingUpdate with every field present.
func (p Position) Update() TimingUpdate {
	return TimingUpdate{
		Tick:      types.Some(p.Tick),
		Beat:      types.Some(p.Beat),
		Bar:       types.Some(p.Bar),
		Part:      types.Some(p.Part),
		TickCount: types.Some(p.TickCount),
		BeatCount: types.Some(p.BeatCount),
		BarCount:  types.Some(p.BarCount),
		PartCount: types.Some(p.PartCount),
	}
}

func (p Position) TickUpdate() TimingUpdate {
	return TimingUpdate{Tick: types.Some(p.Tick), TickCount: types.Some(p.TickCount)}
}

func (p Position) BeatUpdate() TimingUpdate {
	return TimingUpdate{Beat: types.Some(p.Beat), BeatCount: types.Some(p.BeatCount)}
}

func (p Position) BarUpdate() TimingUpdate {
	return TimingUpdate{Bar: types.Some(p.Bar), BarCount: types.Some(p.BarCount)}
}

func (p Position) PartUpdate() TimingUpdate {
	return TimingUpdate{Part: types.Some(p.Part), PartCount: types.Some(p.PartCount)}
}

// Apply returns p with every field present in u overwritten.
func (u TimingUpdate) Apply(p Position) Position {
	p.Tick = u.Tick.Or(p.Tick)
	p.Beat = u.Beat.Or(p.Beat)
	p.Bar = u.Bar.Or(p.Bar)
	p.Part = u.Part.Or(p.Part)
	p.TickCount = u.TickCount.Or(p.TickCount)
	p.BeatCount = u.BeatCount.Or(p.BeatCount)
	p.BarCount = u.BarCount.Or(p.BarCount)
	p.PartCount = u.PartCount.Or(p.PartCount)
	return p
}

func (u TimingUpdate) String() string {
	var b strings.Builder
	field := func(name string, v int64, ok bool) {
		if !ok {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", name, v)
	}
	v, ok := u.Part.Unpack()
	field("part", int64(v), ok)
	v, ok = u.Bar.Unpack()
	field("bar", int64(v), ok)
	v, ok = u.Beat.Unpack()
	field("beat", int64(v), ok)
	v, ok = u.Tick.Unpack()
	field("tick", int64(v), ok)
	c, ok := u.PartCount.Unpack()
	field("parts", c, ok)
	c, ok = u.BarCount.Unpack()
	field("bars", c, ok)
	c, ok = u.BeatCount.Unpack()
	field("beats", c, ok)
	c, ok = u.TickCount.Unpack()
	field("ticks", c, ok)
	return b.String()
}
