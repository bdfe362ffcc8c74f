package engine

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// lifecycle is the pending-destroy set. Entities are destroyed in the order
// they were scheduled.
type lifecycle struct {
	pending mapset.Set[ir.Entity]
	order   []ir.Entity
}

func newLifecycle() *lifecycle {
	return &lifecycle{pending: mapset.NewThreadUnsafeSet[ir.Entity]()}
}

// schedule queues e for destruction. Scheduling twice is a no-op.
func (l *lifecycle) schedule(e ir.Entity) {
	if l.pending.Add(e) {
		l.order = append(l.order, e)
	}
}

func (l *lifecycle) take() []ir.Entity {
	order := l.order
	l.order = nil
	l.pending.Clear()
	return order
}

func (l *lifecycle) len() int {
	return len(l.order)
}

// collectGarbage runs at every mutation-batch point: it destroys reactors
// whose trigger sets emptied and then every pending entity, repeating until
// neither produces more work.
func (e *Engine) collectGarbage() {
	for {
		e.reapReactors()
		pending := e.life.take()
		if len(pending) == 0 {
			return
		}
		for _, ent := range pending {
			e.destroy(ent)
		}
	}
}

// reapReactors removes emptied reactors from the registry and schedules their
// units for removal.
func (e *Engine) reapReactors() {
	for _, id := range e.reg.reap() {
		e.logger.Debug("reactor destroyed", "reactor", id.String(), "drain_id", e.drainID)
		e.life.schedule(id)
	}
}

// destroy fires the despawn reaction for ent, a removal reaction for every
// component it holds, strips all triggers scoped to it, and releases it.
func (e *Engine) destroy(ent ir.Entity) {
	if !e.world.Alive(ent) {
		return
	}
	e.pin(world.Mutation{Kind: ir.KindDespawned, Entity: ent})
	for _, name := range e.world.Components(ent) {
		v, _ := e.world.Component(ent, name)
		e.pin(world.Mutation{Kind: ir.KindRemoved, Name: name, Entity: ent, Payload: v})
	}
	e.reg.dropTarget(ent)
	e.reg.remove(ent)
	e.world.Release(ent)
	e.logger.Debug("entity despawned", "entity", ent.String(), "drain_id", e.drainID)
}

// pin queues a reaction matched now rather than when popped. Every matched
// reactor is held until its run, so stripping the entity's triggers cannot
// destroy it first.
func (e *Engine) pin(m world.Mutation) {
	ids := e.reg.Match(m)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		e.reg.hold(id)
	}
	e.q.reactions.push(reaction{mutation: m, pinned: ids})
}
