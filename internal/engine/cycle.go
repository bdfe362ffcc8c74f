package engine

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// DefaultMaxRefires is the default number of times one reactor may fire on
// the same trigger key within a drain.
const DefaultMaxRefires = 256

// RefireDetector counts how often each (reactor, trigger key) pair fires in
// the current drain.
//
// A reactor that re-triggers itself through a resource it writes is legal and
// terminates on its own when guarded; an unguarded one loops forever. The
// detector bounds the second case without forbidding the first: a pair may
// fire up to the limit, after which the drain is aborted.
//
// Keys are xxhash digests of the reactor id and the mutation's kind, name and
// entity. The payload is deliberately excluded so a counter that changes its
// value every run is still caught.
type RefireDetector struct {
	limit  int
	counts map[uint64]int
}

// NewRefireDetector creates a detector. A limit of zero or less disables it.
func NewRefireDetector(limit int) *RefireDetector {
	return &RefireDetector{
		limit:  limit,
		counts: make(map[uint64]int),
	}
}

// Fire records one firing and returns the new count and whether the limit
// is exceeded.
func (d *RefireDetector) Fire(reactor ir.Entity, m world.Mutation) (int, bool) {
	if d.limit <= 0 {
		return 0, false
	}
	key := refireKey(reactor, m)
	d.counts[key]++
	n := d.counts[key]
	return n, n > d.limit
}

// Reset forgets all counts. Called at the start of each drain.
func (d *RefireDetector) Reset() {
	clear(d.counts)
}

// Len returns the number of distinct pairs seen this drain.
func (d *RefireDetector) Len() int {
	return len(d.counts)
}

// Limit returns the configured limit.
func (d *RefireDetector) Limit() int {
	return d.limit
}

func refireKey(reactor ir.Entity, m world.Mutation) uint64 {
	h := xxhash.New()
	var buf [20]byte
	h.Write(strconv.AppendUint(buf[:0], uint64(reactor), 10))
	h.Write([]byte{0})
	h.Write(strconv.AppendUint(buf[:0], uint64(m.Kind), 10))
	h.Write([]byte{0})
	h.WriteString(m.Name)
	h.Write([]byte{0})
	h.Write(strconv.AppendUint(buf[:0], uint64(m.Entity), 10))
	return h.Sum64()
}
