package program

import (
	"errors"
	"fmt"

	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// scope is what reference tokens resolve against during one run.
type scope struct {
	self    ir.Entity       // Any outside a unit run
	trigger *world.Mutation // nil unless the run is a reaction
	event   ir.Value        // nil when nothing was delivered
	view    world.View
}

func (p *Program) callable(spec ir.ReactorSpec) engine.Callable {
	return func(c *engine.Context) error {
		s := scope{self: c.Unit(), view: c.World()}
		if ev, ok := c.Event(); ok {
			s.event = ev
		}
		if m, ok := c.Trigger(); ok {
			s.trigger = &m
		}

		if spec.When != nil {
			pass, err := p.guard(s, spec.When)
			if err != nil {
				return fmt.Errorf("guard: %w", err)
			}
			if !pass {
				c.Logger().Debug("guard failed, skipping actions", "reactor", spec.ID)
				return nil
			}
		}

		var runErr error
		for i, a := range spec.Actions {
			if err := p.apply(s, c.Commands(), a); err != nil {
				runErr = fmt.Errorf("action %d (%s): %w", i, a.Op, err)
				break
			}
		}
		if spec.Once {
			if _, err := p.Revoke(spec.ID); err != nil && !errors.Is(err, ErrNotRevokable) {
				runErr = errors.Join(runErr, err)
			}
		}
		return runErr
	}
}

// apply records one action into cmds. Engine-level ops (triggers, revoke)
// take effect immediately.
func (p *Program) apply(s scope, cmds *engine.Commands, a ir.ActionSpec) error {
	switch a.Op {
	case ir.OpSetResource:
		v, err := p.value(s, a.Value)
		if err != nil {
			return err
		}
		cmds.SetResource(a.Name, v)

	case ir.OpAddResource:
		delta, err := p.delta(s, a.Value)
		if err != nil {
			return err
		}
		if s.view != nil {
			if cur, ok := s.view.Resource(a.Name); ok {
				if _, isInt := cur.(ir.Int); !isInt {
					return fmt.Errorf("resource %s is not an integer", a.Name)
				}
			}
		}
		cmds.UpdateResource(a.Name, func(cur ir.Value) ir.Value {
			n, _ := ir.AsInt(cur)
			return ir.Int(n + delta)
		})

	case ir.OpTouchResource:
		cmds.TouchResource(a.Name)

	case ir.OpInsert, ir.OpMutate:
		e, err := p.entity(s, a.Target)
		if err != nil {
			return err
		}
		v, err := p.value(s, a.Value)
		if err != nil {
			return err
		}
		if a.Op == ir.OpInsert {
			cmds.Insert(e, a.Name, v)
		} else {
			cmds.Mutate(e, a.Name, v)
		}

	case ir.OpAddComponent:
		e, err := p.entity(s, a.Target)
		if err != nil {
			return err
		}
		delta, err := p.delta(s, a.Value)
		if err != nil {
			return err
		}
		cmds.Update(e, a.Name, func(cur ir.Value) ir.Value {
			n, ok := ir.AsInt(cur)
			if !ok {
				return cur
			}
			return ir.Int(n + delta)
		})

	case ir.OpRemove:
		e, err := p.entity(s, a.Target)
		if err != nil {
			return err
		}
		cmds.Remove(e, a.Name)

	case ir.OpSpawn:
		e := cmds.Spawn()
		p.Bind(a.Name, e)
		if obj, ok := a.Value.(ir.Object); ok {
			for _, name := range obj.SortedKeys() {
				v, err := p.value(s, obj[name])
				if err != nil {
					return err
				}
				cmds.Insert(e, name, v)
			}
		}

	case ir.OpDespawn:
		e, err := p.entity(s, a.Target)
		if err != nil {
			return err
		}
		cmds.Despawn(e)

	case ir.OpBroadcast:
		v, err := p.value(s, a.Value)
		if err != nil {
			return err
		}
		cmds.Broadcast(a.Name, v)

	case ir.OpSendEntityEvent:
		e, err := p.entity(s, a.Target)
		if err != nil {
			return err
		}
		v, err := p.value(s, a.Value)
		if err != nil {
			return err
		}
		cmds.SendEntityEvent(e, a.Name, v)

	case ir.OpRun:
		u, err := p.unit(s, a.Unit)
		if err != nil {
			return err
		}
		cmds.Schedule(u)

	case ir.OpSend:
		u, err := p.unit(s, a.Unit)
		if err != nil {
			return err
		}
		v, err := p.value(s, a.Value)
		if err != nil {
			return err
		}
		cmds.Send(u, v)

	case ir.OpAddTriggers, ir.OpRemoveTriggers:
		u, err := p.unit(s, a.Unit)
		if err != nil {
			return err
		}
		triggers, err := p.triggers(s.self, a.Triggers)
		if err != nil {
			return err
		}
		if a.Op == ir.OpAddTriggers {
			return p.eng.AddTriggers(u, triggers...)
		}
		return p.eng.RemoveTriggers(u, triggers...)

	case ir.OpRevoke:
		id := a.Unit
		if id == "" || id == ir.RefSelf {
			if s.self == ir.Any {
				return fmt.Errorf("%w: %s", ErrNoUnit, ir.RefSelf)
			}
			id = p.Label(s.self)
		}
		_, err := p.Revoke(id)
		return err

	case ir.OpFail:
		msg := "fail action"
		if v, err := p.value(s, a.Value); err == nil {
			if str, ok := v.(ir.String); ok {
				msg = string(str)
			} else if v != nil {
				msg = ir.Format(v)
			}
		}
		return errors.New(msg)

	default:
		return fmt.Errorf("unknown action op %q", a.Op)
	}
	return nil
}

// entity resolves a target reference.
func (p *Program) entity(s scope, ref string) (ir.Entity, error) {
	switch ref {
	case ir.RefSelf:
		if s.self == ir.Any {
			return ir.Any, fmt.Errorf("%w: %s", ErrNoUnit, ref)
		}
		return s.self, nil
	case ir.RefTarget:
		if s.trigger == nil || s.trigger.Entity == ir.Any {
			return ir.Any, fmt.Errorf("%w: %s", ErrNoUnit, ref)
		}
		return s.trigger.Entity, nil
	}
	e, ok := p.labels[ref]
	if !ok {
		return ir.Any, fmt.Errorf("%w: %s", ErrUnknownLabel, ref)
	}
	return e, nil
}

// unit resolves a unit reference. Empty means $self.
func (p *Program) unit(s scope, ref string) (ir.Entity, error) {
	if ref == "" || ref == ir.RefSelf {
		return p.entity(s, ir.RefSelf)
	}
	u, ok := p.units[ref]
	if !ok {
		return ir.Any, fmt.Errorf("%w: %s", ErrUnknownUnit, ref)
	}
	return u, nil
}

// value substitutes $event; every other value is used as written.
func (p *Program) value(s scope, v ir.Value) (ir.Value, error) {
	str, ok := v.(ir.String)
	if !ok || string(str) != ir.RefEvent {
		return v, nil
	}
	if s.event == nil {
		return ir.Null{}, nil
	}
	return s.event, nil
}

func (p *Program) delta(s scope, v ir.Value) (int64, error) {
	resolved, err := p.value(s, v)
	if err != nil {
		return 0, err
	}
	n, ok := resolved.(ir.Int)
	if !ok {
		return 0, fmt.Errorf("delta %s is not an integer", ir.Format(resolved))
	}
	return int64(n), nil
}
