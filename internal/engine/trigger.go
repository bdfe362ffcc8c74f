package engine

import (
	"fmt"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// Trigger is a predicate over fired mutations. It is a closed variant keyed
// by Kind; Target ir.Any means "any entity" for entity-scoped kinds.
//
// Triggers are comparable and used directly as registry index keys.
type Trigger struct {
	Kind   ir.Kind
	Name   string
	Target ir.Entity
}

// ResourceMutated fires when the named resource is written.
func ResourceMutated(name string) Trigger {
	return Trigger{Kind: ir.KindResourceMutated, Name: name}
}

// Inserted fires when the component is inserted on any entity.
func Inserted(component string) Trigger {
	return Trigger{Kind: ir.KindInserted, Name: component}
}

// Mutated fires when the component is mutated on any entity.
func Mutated(component string) Trigger {
	return Trigger{Kind: ir.KindMutated, Name: component}
}

// Removed fires when the component is removed from any entity, including by
// despawn.
func Removed(component string) Trigger {
	return Trigger{Kind: ir.KindRemoved, Name: component}
}

// EntityInserted fires when the component is inserted on e.
func EntityInserted(e ir.Entity, component string) Trigger {
	return Trigger{Kind: ir.KindInserted, Name: component, Target: e}
}

// EntityMutated fires when the component is mutated on e.
func EntityMutated(e ir.Entity, component string) Trigger {
	return Trigger{Kind: ir.KindMutated, Name: component, Target: e}
}

// EntityRemoved fires when the component is removed from e.
func EntityRemoved(e ir.Entity, component string) Trigger {
	return Trigger{Kind: ir.KindRemoved, Name: component, Target: e}
}

// Despawned fires once when e is destroyed.
func Despawned(e ir.Entity) Trigger {
	return Trigger{Kind: ir.KindDespawned, Target: e}
}

// BroadcastEvent fires on every broadcast of the named event.
func BroadcastEvent(name string) Trigger {
	return Trigger{Kind: ir.KindBroadcast, Name: name}
}

// EntityEvent fires when the named event is sent to e.
func EntityEvent(e ir.Entity, name string) Trigger {
	return Trigger{Kind: ir.KindEntityEvent, Name: name, Target: e}
}

// AnyEntityEvent fires when the named event is sent to any entity.
func AnyEntityEvent(name string) Trigger {
	return Trigger{Kind: ir.KindEntityEvent, Name: name}
}

// String renders the trigger for logs and errors, e.g. "mutated(hp@e3)".
func (t Trigger) String() string {
	switch {
	case !t.Kind.Named():
		return fmt.Sprintf("%s(%s)", t.Kind, t.Target)
	case t.Kind.EntityScoped():
		return fmt.Sprintf("%s(%s@%s)", t.Kind, t.Name, t.Target)
	default:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Name)
	}
}

func (t Trigger) validate() error {
	invalid := func(msg string) error {
		return &ConfigError{Code: ErrCodeInvalidTrigger, Message: msg, Trigger: t.String()}
	}
	switch t.Kind {
	case ir.KindResourceMutated, ir.KindBroadcast:
		if t.Target != ir.Any {
			return invalid("trigger kind takes no target")
		}
	case ir.KindInserted, ir.KindMutated, ir.KindRemoved, ir.KindEntityEvent:
	case ir.KindDespawned:
		if t.Target == ir.Any {
			return invalid("despawn trigger requires a target")
		}
		if t.Name != "" {
			return invalid("despawn trigger takes no name")
		}
		return nil
	default:
		return invalid("unknown trigger kind")
	}
	if t.Name == "" {
		return invalid("trigger requires a name")
	}
	return nil
}

// matchKeys returns the index keys a fired mutation is looked up under: the
// exact trigger plus, for entity-scoped kinds, the any-entity trigger that
// subsumes it.
func matchKeys(m world.Mutation) []Trigger {
	switch m.Kind {
	case ir.KindResourceMutated, ir.KindBroadcast:
		return []Trigger{{Kind: m.Kind, Name: m.Name}}
	case ir.KindInserted, ir.KindMutated, ir.KindRemoved, ir.KindEntityEvent:
		return []Trigger{
			{Kind: m.Kind, Name: m.Name, Target: m.Entity},
			{Kind: m.Kind, Name: m.Name, Target: ir.Any},
		}
	case ir.KindDespawned:
		return []Trigger{{Kind: ir.KindDespawned, Target: m.Entity}}
	}
	return nil
}

func describe(m world.Mutation) string {
	return Trigger{Kind: m.Kind, Name: m.Name, Target: m.Entity}.String()
}
