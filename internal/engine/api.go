package engine

import (
	"context"
	"slices"

	"github.com/roach88/ripple/internal/ir"
)

// Registration is the result of registering a reactor.
type Registration struct {
	Unit  ir.Entity   // The reactor's unit id
	Token RevokeToken // Zero unless the reactor is Revokable
}

// SpawnUnit stores a new unit on a fresh entity. The unit only runs when
// scheduled, sent data, or attached to triggers.
func (e *Engine) SpawnUnit(name string, fn Callable, opts ...UnitOption) (ir.Entity, error) {
	if err := e.check(); err != nil {
		return ir.Any, err
	}
	id := e.world.Spawn()
	e.world.PutUnit(id, e.newUnit(name, fn, opts))
	e.logger.Debug("unit spawned", "unit", id.String(), "name", name)
	return id, nil
}

func (e *Engine) newUnit(name string, fn Callable, opts []UnitOption) *unit {
	u := &unit{name: name, fn: fn, policy: e.policy}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Register spawns a unit and registers it as a reactor on triggers.
//
// Cleanup and Revokable reactors need at least one trigger. Entity-scoped
// triggers naming an entity that is already gone are dropped; if that
// empties a self-cleaning reactor it is destroyed at the next drain without
// ever running.
func (e *Engine) Register(name string, triggers []Trigger, mode Mode, fn Callable, opts ...UnitOption) (Registration, error) {
	if err := e.check(); err != nil {
		return Registration{}, err
	}
	id := e.world.Spawn()
	token, err := e.attach(id, triggers, mode)
	if err != nil {
		e.world.Release(id)
		return Registration{}, err
	}
	e.world.PutUnit(id, e.newUnit(name, fn, opts))
	e.logger.Debug("reactor registered",
		"reactor", id.String(),
		"name", name,
		"mode", mode.String(),
		"triggers", len(triggers),
	)
	return Registration{Unit: id, Token: token}, nil
}

// Attach registers an existing unit as a reactor.
func (e *Engine) Attach(id ir.Entity, triggers []Trigger, mode Mode) (Registration, error) {
	if err := e.check(); err != nil {
		return Registration{}, err
	}
	if !e.world.HasUnit(id) && !e.inFlight.Contains(id) {
		return Registration{}, configErr(ErrCodeUnknownUnit, id, "no unit stored on entity")
	}
	token, err := e.attach(id, triggers, mode)
	if err != nil {
		return Registration{}, err
	}
	return Registration{Unit: id, Token: token}, nil
}

func (e *Engine) attach(id ir.Entity, triggers []Trigger, mode Mode) (RevokeToken, error) {
	token, err := e.reg.register(id, triggers, mode)
	if err != nil {
		return RevokeToken{}, err
	}
	if stale := e.staleTriggers(triggers); len(stale) > 0 {
		e.reg.removeTriggers(id, stale...)
		e.reapReactors()
	}
	return token, nil
}

// staleTriggers returns the triggers scoped to entities that no longer exist.
func (e *Engine) staleTriggers(triggers []Trigger) []Trigger {
	var stale []Trigger
	for _, t := range triggers {
		if t.Target != ir.Any && !e.world.Alive(t.Target) {
			e.logger.Debug("trigger target gone, dropping trigger", "trigger", t.String())
			stale = append(stale, t)
		}
	}
	return stale
}

// OnPersistent registers a reactor that lives until explicitly revoked or
// its entity is despawned.
func (e *Engine) OnPersistent(name string, triggers []Trigger, fn Callable, opts ...UnitOption) (ir.Entity, error) {
	reg, err := e.Register(name, triggers, Persistent, fn, opts...)
	return reg.Unit, err
}

// OnRevokable registers a reactor destroyed by its token or once its trigger
// set empties.
func (e *Engine) OnRevokable(name string, triggers []Trigger, fn Callable, opts ...UnitOption) (Registration, error) {
	return e.Register(name, triggers, Revokable, fn, opts...)
}

// Once registers a one-off handler: it runs on the first matching mutation
// and is then destroyed.
func (e *Engine) Once(name string, triggers []Trigger, fn Callable, opts ...UnitOption) (Registration, error) {
	var token RevokeToken
	reg, err := e.Register(name, triggers, Revokable, func(c *Context) error {
		err := fn(c)
		c.Engine().Revoke(token)
		return err
	}, opts...)
	if err != nil {
		return Registration{}, err
	}
	token = reg.Token
	return reg, nil
}

// Revoke destroys the reactor owning token. The reactor never runs again,
// including for reactions already queued, and its unit is removed at the next
// mutation-batch point. Returns false for an unknown or spent token.
func (e *Engine) Revoke(token RevokeToken) bool {
	if e.check() != nil || token.IsZero() {
		return false
	}
	id, ok := e.reg.revoke(token)
	if !ok {
		return false
	}
	e.life.schedule(id)
	e.logger.Debug("reactor revoked", "reactor", id.String(), "token", token.String())
	return true
}

// AddTriggers extends a reactor's trigger set. Adding triggers never runs the
// reactor.
func (e *Engine) AddTriggers(id ir.Entity, triggers ...Trigger) error {
	if err := e.check(); err != nil {
		return err
	}
	for _, t := range triggers {
		if err := t.validate(); err != nil {
			return err
		}
	}
	stale := e.staleTriggers(triggers)
	live := slices.DeleteFunc(slices.Clone(triggers), func(t Trigger) bool {
		return slices.Contains(stale, t)
	})
	return e.reg.addTriggers(id, live...)
}

// RemoveTriggers shrinks a reactor's trigger set. A self-cleaning reactor
// left with no triggers is destroyed, unless a despawn reaction still owes it
// a run.
func (e *Engine) RemoveTriggers(id ir.Entity, triggers ...Trigger) error {
	if err := e.check(); err != nil {
		return err
	}
	empty, err := e.reg.removeTriggers(id, triggers...)
	if err != nil {
		return err
	}
	if empty {
		e.reapReactors()
	}
	return nil
}

// Do records a batch and drains it. Called while a drain is in progress, the
// batch is appended to the running unit's batch (or the drain's top-level
// batch) and Do returns nil at once.
func (e *Engine) Do(ctx context.Context, fn func(*Commands)) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.q.resolving {
		if e.active != nil {
			fn(e.active)
		} else {
			fn(e.q.batch)
		}
		return nil
	}
	fn(e.q.batch)
	return e.drain(ctx)
}

// Flush drains whatever is queued, including writes made on the world
// directly.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.drain(ctx)
}

// Schedule runs the unit stored on id.
func (e *Engine) Schedule(ctx context.Context, id ir.Entity) error {
	return e.Do(ctx, func(c *Commands) { c.Schedule(id) })
}

// Send delivers data to the unit stored on id.
func (e *Engine) Send(ctx context.Context, id ir.Entity, data ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.Send(id, data) })
}

// Spawn allocates an entity. Nothing fires until components are inserted.
func (e *Engine) Spawn() (ir.Entity, error) {
	if err := e.check(); err != nil {
		return ir.Any, err
	}
	return e.world.Spawn(), nil
}

// Despawn destroys an entity, firing its despawn and removal reactions.
func (e *Engine) Despawn(ctx context.Context, ent ir.Entity) error {
	return e.Do(ctx, func(c *Commands) { c.Despawn(ent) })
}

// Insert sets a component.
func (e *Engine) Insert(ctx context.Context, ent ir.Entity, name string, v ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.Insert(ent, name, v) })
}

// Mutate overwrites an existing component.
func (e *Engine) Mutate(ctx context.Context, ent ir.Entity, name string, v ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.Mutate(ent, name, v) })
}

// Remove deletes a component.
func (e *Engine) Remove(ctx context.Context, ent ir.Entity, name string) error {
	return e.Do(ctx, func(c *Commands) { c.Remove(ent, name) })
}

// SetResource writes a resource.
func (e *Engine) SetResource(ctx context.Context, name string, v ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.SetResource(name, v) })
}

// TouchResource fires a resource mutation without changing the value.
func (e *Engine) TouchResource(ctx context.Context, name string) error {
	return e.Do(ctx, func(c *Commands) { c.TouchResource(name) })
}

// Broadcast sends a broadcast event.
func (e *Engine) Broadcast(ctx context.Context, name string, payload ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.Broadcast(name, payload) })
}

// SendEntityEvent sends an event aimed at ent.
func (e *Engine) SendEntityEvent(ctx context.Context, ent ir.Entity, name string, payload ir.Value) error {
	return e.Do(ctx, func(c *Commands) { c.SendEntityEvent(ent, name, payload) })
}
