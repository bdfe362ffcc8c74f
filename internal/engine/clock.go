package engine

// Clock is the logical clock that stamps unit runs and drains.
//
// Every run gets a strictly increasing seq, so journal order and golden
// traces never depend on wall time. The engine is single-threaded, so the
// counter is a plain integer.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number. Used to
// continue numbering after runs already stored in a journal.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
