package beatbox

type (
	// Cycler is a wrapping counter: Advance moves the position forward by one
	// and wraps it back to 0 when it reaches Length. Cyclers count the ticks
	// within a beat, the beats within a bar, the bars within a part and the
	// parts within a song. Besides the wrapping position, the cycler keeps a
	// monotonic count of how many times it has been advanced since the last
	// Clear.
	//
	// A Cycler is not safe for concurrent use; it is owned by whichever
	// goroutine drives its timing level.
	Cycler struct {
		position int
		length   int
		count    int64

		advanceListeners []func(count int64)
		cycleListeners   []func()
	}
)

// NewCycler returns a cycler of the given length, positioned at 0.
func NewCycler(length int) (*Cycler, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	return &Cycler{length: length}, nil
}

// Advance moves the cycler one step forward and reports whether the step
// wrapped the position back to 0. Advance listeners are called with the new
// count, then, on wrap, the cycle listeners, both in registration order.
func (c *Cycler) Advance() (wrapped bool) {
	c.count++
	c.position++
	if c.position >= c.length {
		c.position = 0
		wrapped = true
	}
	for _, f := range c.advanceListeners {
		f(c.count)
	}
	if wrapped {
		for _, f := range c.cycleListeners {
			f()
		}
	}
	return wrapped
}

func (c *Cycler) Get() int     { return c.position }
func (c *Cycler) Length() int  { return c.length }
func (c *Cycler) Count() int64 { return c.count }

// SetLength changes the wrap point. If the current position is outside the new
// range, it is clamped to the last valid position. Non-positive lengths are
// rejected and leave the cycler unchanged.
func (c *Cycler) SetLength(n int) error {
	if n <= 0 {
		return ErrInvalidLength
	}
	c.length = n
	if c.position >= n {
		c.position = n - 1
	}
	return nil
}

// Reset moves the position back to 0 without notifying the cycle listeners.
// The count is kept.
func (c *Cycler) Reset() {
	c.position = 0
}

// Clear resets both the position and the count.
func (c *Cycler) Clear() {
	c.position = 0
	c.count = 0
}

// OnAdvance registers a function called after every Advance with the new
// count.
func (c *Cycler) OnAdvance(f func(count int64)) {
	c.advanceListeners = append(c.advanceListeners, f)
}

// OnCycle registers a function called every time the position wraps to 0.
func (c *Cycler) OnCycle(f func()) {
	c.cycleListeners = append(c.cycleListeners, f)
}
