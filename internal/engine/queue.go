package engine

import (
	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// deque is an unbounded FIFO with the bulk take/append operations the
// telescoping swaps are built from.
type deque[T any] struct {
	items []T
}

func (q *deque[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *deque[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	// Nil out the slot so popped entries' pointers can be collected.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// take removes and returns every entry.
func (q *deque[T]) take() []T {
	items := q.items
	q.items = nil
	return items
}

// appendAll adds items behind the current entries.
func (q *deque[T]) appendAll(items []T) {
	q.items = append(q.items, items...)
}

// prependAll places items, in order, ahead of the current entries.
func (q *deque[T]) prependAll(items []T) {
	if len(items) == 0 {
		return
	}
	q.items = append(items, q.items...)
}

func (q *deque[T]) len() int {
	return len(q.items)
}

// invocation is one queued run of a unit.
type invocation struct {
	unit    ir.Entity
	tier    ir.Tier
	data    ir.Value        // Delivered to the one-shot payload slot
	trigger *world.Mutation // Provenance for reaction runs
	pinned  bool            // Holds the reactor alive until run
}

// reaction is one queued mutation awaiting resolution. Reactions produced by
// a despawn are matched when fired, because the entity's triggers are gone by
// the time they are popped; all others are matched when popped.
type reaction struct {
	mutation world.Mutation
	pinned   []ir.Entity
}

// queueSet holds the four deferred tiers and the resolving flag.
//
// Events and reactions are pushed onto an intake queue and moved to the front
// of the pending queue each time the driver pops one, so work produced while
// resolving an entry runs ahead of older entries.
type queueSet struct {
	batch     *Commands // Mutations recorded outside any running unit
	units     deque[invocation]
	events    deque[invocation]
	reactions deque[reaction]
	resolving bool

	pendingEvents    deque[invocation]
	pendingReactions deque[reaction]
}

func newQueueSet(e *Engine) *queueSet {
	return &queueSet{batch: newCommands(e)}
}

func (q *queueSet) popEvent() (invocation, bool) {
	q.pendingEvents.prependAll(q.events.take())
	return q.pendingEvents.pop()
}

func (q *queueSet) popReaction() (reaction, bool) {
	q.pendingReactions.prependAll(q.reactions.take())
	return q.pendingReactions.pop()
}

func (q *queueSet) eventLen() int {
	return q.events.len() + q.pendingEvents.len()
}

func (q *queueSet) reactionLen() int {
	return q.reactions.len() + q.pendingReactions.len()
}

func (q *queueSet) empty() bool {
	return q.batch.Len() == 0 && q.units.len() == 0 && q.eventLen() == 0 && q.reactionLen() == 0
}
