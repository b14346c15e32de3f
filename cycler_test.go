package beatbox_test

import (
	"errors"
	"testing"

	"github.com/vsariola/beatbox"
)

func TestCyclerWrapsAtLength(t *testing.T) {
	for _, length := range []int{1, 2, 3, 4, 7, 24} {
		c, err := beatbox.NewCycler(length)
		if err != nil {
			t.Fatalf("NewCycler(%d) failed: %v", length, err)
		}
		for n := 1; n <= 5*length+3; n++ {
			wrapped := c.Advance()
			if got, want := c.Get(), n%length; got != want {
				t.Fatalf("length %d: after %d advances position was %d, expected %d", length, n, got, want)
			}
			if want := n%length == 0; wrapped != want {
				t.Fatalf("length %d: advance %d reported wrap %v, expected %v", length, n, wrapped, want)
			}
			if c.Count() != int64(n) {
				t.Fatalf("length %d: count was %d, expected %d", length, c.Count(), n)
			}
		}
	}
}

func TestCyclerListeners(t *testing.T) {
	c, _ := beatbox.NewCycler(3)
	var log []string
	var counts []int64
	c.OnAdvance(func(count int64) {
		log = append(log, "advance")
		counts = append(counts, count)
	})
	c.OnAdvance(func(int64) { log = append(log, "advance2") })
	c.OnCycle(func() { log = append(log, "cycle") })
	for i := 0; i < 3; i++ {
		c.Advance()
	}
	want := []string{"advance", "advance2", "advance", "advance2", "advance", "advance2", "cycle"}
	if len(log) != len(want) {
		t.Fatalf("listener calls were %v, expected %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("listener calls were %v, expected %v", log, want)
		}
	}
	if counts[2] != 3 {
		t.Errorf("advance listener got count %d, expected 3", counts[2])
	}
	c.Advance()
	c.Reset()
	if c.Get() != 0 || c.Count() != 4 {
		t.Errorf("reset left position %d count %d, expected 0 and 4", c.Get(), c.Count())
	}
	if len(log) != len(want)+2 {
		t.Errorf("reset should not notify listeners")
	}
	c.Clear()
	if c.Get() != 0 || c.Count() != 0 {
		t.Errorf("clear left position %d count %d", c.Get(), c.Count())
	}
}

func TestCyclerSetLength(t *testing.T) {
	if _, err := beatbox.NewCycler(0); !errors.Is(err, beatbox.ErrInvalidLength) {
		t.Fatalf("NewCycler(0) returned %v, expected ErrInvalidLength", err)
	}
	c, _ := beatbox.NewCycler(8)
	for i := 0; i < 6; i++ {
		c.Advance()
	}
	if err := c.SetLength(-1); !errors.Is(err, beatbox.ErrInvalidLength) {
		t.Fatalf("SetLength(-1) returned %v, expected ErrInvalidLength", err)
	}
	if c.Length() != 8 || c.Get() != 6 {
		t.Fatalf("rejected SetLength changed the cycler: length %d position %d", c.Length(), c.Get())
	}
	if err := c.SetLength(4); err != nil {
		t.Fatalf("SetLength(4) failed: %v", err)
	}
	if c.Get() != 3 {
		t.Errorf("position was %d after shrinking, expected it clamped to 3", c.Get())
	}
	if !c.Advance() || c.Get() != 0 {
		t.Errorf("advance after clamp should wrap to 0, position %d", c.Get())
	}
}
