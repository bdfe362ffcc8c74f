package engine

import (
	"github.com/roach88/ripple/internal/ir"
)

// Commands is a mutation batch. A running unit records into its own batch,
// which the engine applies after the unit's cleanup hook has run; top-level
// calls record into a batch that is applied before the drain starts.
//
// Recording never touches the world, so a unit cannot observe its own writes
// until a later run.
type Commands struct {
	eng *Engine
	ops []func(*Engine)
}

func newCommands(e *Engine) *Commands {
	return &Commands{eng: e}
}

// Len returns the number of recorded operations.
func (c *Commands) Len() int {
	return len(c.ops)
}

func (c *Commands) push(op func(*Engine)) {
	c.ops = append(c.ops, op)
}

func (c *Commands) take() []func(*Engine) {
	ops := c.ops
	c.ops = nil
	return ops
}

// restore puts previously taken ops back ahead of anything recorded since.
func (c *Commands) restore(ops []func(*Engine)) {
	if len(ops) == 0 {
		return
	}
	c.ops = append(ops, c.ops...)
}

// Spawn allocates an entity immediately and returns its id. Spawning fires
// no triggers, so it is safe mid-run; components are added through Insert.
func (c *Commands) Spawn() ir.Entity {
	return c.eng.world.Spawn()
}

// Despawn queues e for destruction at the next mutation-batch point.
func (c *Commands) Despawn(e ir.Entity) {
	c.push(func(eng *Engine) {
		eng.life.schedule(e)
	})
}

// Insert sets a component.
func (c *Commands) Insert(e ir.Entity, name string, v ir.Value) {
	c.push(func(eng *Engine) {
		eng.world.Insert(e, name, v)
	})
}

// Mutate overwrites an existing component.
func (c *Commands) Mutate(e ir.Entity, name string, v ir.Value) {
	c.push(func(eng *Engine) {
		eng.world.Mutate(e, name, v)
	})
}

// Update rewrites an existing component from its current value.
func (c *Commands) Update(e ir.Entity, name string, fn func(ir.Value) ir.Value) {
	c.push(func(eng *Engine) {
		if v, ok := eng.world.Component(e, name); ok {
			eng.world.Mutate(e, name, fn(v))
		}
	})
}

// Remove deletes a component.
func (c *Commands) Remove(e ir.Entity, name string) {
	c.push(func(eng *Engine) {
		eng.world.Remove(e, name)
	})
}

// SetResource writes a resource.
func (c *Commands) SetResource(name string, v ir.Value) {
	c.push(func(eng *Engine) {
		eng.world.SetResource(name, v)
	})
}

// UpdateResource rewrites a resource from its current value, which is nil
// when the resource does not exist yet.
func (c *Commands) UpdateResource(name string, fn func(ir.Value) ir.Value) {
	c.push(func(eng *Engine) {
		v, _ := eng.world.Resource(name)
		eng.world.SetResource(name, fn(v))
	})
}

// TouchResource fires a resource mutation without changing the value.
func (c *Commands) TouchResource(name string) {
	c.push(func(eng *Engine) {
		eng.world.TouchResource(name)
	})
}

// Broadcast sends an event to every broadcast reactor for name.
func (c *Commands) Broadcast(name string, payload ir.Value) {
	c.push(func(eng *Engine) {
		eng.world.Broadcast(name, payload)
	})
}

// SendEntityEvent sends an event aimed at e.
func (c *Commands) SendEntityEvent(e ir.Entity, name string, payload ir.Value) {
	c.push(func(eng *Engine) {
		eng.world.SendEntityEvent(e, name, payload)
	})
}

// Schedule queues a run of the unit stored on id.
func (c *Commands) Schedule(id ir.Entity) {
	c.push(func(eng *Engine) {
		eng.q.units.push(invocation{unit: id, tier: ir.TierUnit})
	})
}

// Send queues delivery of data to the unit stored on id. The unit reads it
// with Context.Event during that run only.
func (c *Commands) Send(id ir.Entity, data ir.Value) {
	c.push(func(eng *Engine) {
		eng.q.events.push(invocation{unit: id, tier: ir.TierEvent, data: data})
	})
}
