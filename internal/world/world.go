package world

import (
	"slices"

	"github.com/roach88/ripple/internal/ir"
)

// Unit is an opaque handler stored against an entity.
type Unit interface {
	UnitName() string
}

// Mutation is one fired change recorded in the feed.
type Mutation struct {
	Kind    ir.Kind
	Name    string    // component, resource or event name
	Entity  ir.Entity // ir.Any for resource and broadcast mutations
	Payload ir.Value  // event data or the written value
}

// View is read-only access to the world, handed to running units.
type View interface {
	Alive(e ir.Entity) bool
	Entities() []ir.Entity
	Component(e ir.Entity, name string) (ir.Value, bool)
	Components(e ir.Entity) []string
	Resource(name string) (ir.Value, bool)
	Resources() []string
}

type entity struct {
	components map[string]ir.Value
	order      []string
}

// World stores entities, resources, units and payloads.
type World struct {
	next      ir.Entity
	entities  map[ir.Entity]*entity
	resources map[string]ir.Value
	units     map[ir.Entity]Unit
	payloads  map[ir.Entity]*Payload
	feed      []Mutation
}

var _ View = (*World)(nil)

// New creates an empty world.
func New() *World {
	return &World{
		entities:  make(map[ir.Entity]*entity),
		resources: make(map[string]ir.Value),
		units:     make(map[ir.Entity]Unit),
		payloads:  make(map[ir.Entity]*Payload),
	}
}

// Spawn allocates a new live entity. Ids are never reused.
func (w *World) Spawn() ir.Entity {
	w.next++
	w.entities[w.next] = &entity{components: make(map[string]ir.Value)}
	return w.next
}

// Alive reports whether e names a live entity.
func (w *World) Alive(e ir.Entity) bool {
	_, ok := w.entities[e]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.entities)
}

// Entities returns live entity ids in ascending order.
func (w *World) Entities() []ir.Entity {
	ids := make([]ir.Entity, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Release removes e together with its components, unit and payload. It fires
// nothing; despawn and removal reactions are the engine's job.
func (w *World) Release(e ir.Entity) bool {
	if _, ok := w.entities[e]; !ok {
		return false
	}
	delete(w.entities, e)
	delete(w.units, e)
	delete(w.payloads, e)
	return true
}

// Insert sets a component on e and fires an insertion. It is a no-op on a
// dead entity.
func (w *World) Insert(e ir.Entity, name string, v ir.Value) bool {
	ent, ok := w.entities[e]
	if !ok {
		return false
	}
	if _, exists := ent.components[name]; !exists {
		ent.order = append(ent.order, name)
	}
	ent.components[name] = v
	w.fire(Mutation{Kind: ir.KindInserted, Name: name, Entity: e, Payload: v})
	return true
}

// Mutate overwrites an existing component and fires a mutation. It is a no-op
// when the component is absent.
func (w *World) Mutate(e ir.Entity, name string, v ir.Value) bool {
	ent, ok := w.entities[e]
	if !ok {
		return false
	}
	if _, exists := ent.components[name]; !exists {
		return false
	}
	ent.components[name] = v
	w.fire(Mutation{Kind: ir.KindMutated, Name: name, Entity: e, Payload: v})
	return true
}

// Remove deletes a component and fires a removal.
func (w *World) Remove(e ir.Entity, name string) (ir.Value, bool) {
	ent, ok := w.entities[e]
	if !ok {
		return nil, false
	}
	v, exists := ent.components[name]
	if !exists {
		return nil, false
	}
	delete(ent.components, name)
	ent.order = slices.DeleteFunc(ent.order, func(n string) bool { return n == name })
	w.fire(Mutation{Kind: ir.KindRemoved, Name: name, Entity: e, Payload: v})
	return v, true
}

// Component reads one component.
func (w *World) Component(e ir.Entity, name string) (ir.Value, bool) {
	ent, ok := w.entities[e]
	if !ok {
		return nil, false
	}
	v, ok := ent.components[name]
	return v, ok
}

// Components lists e's component names in insertion order.
func (w *World) Components(e ir.Entity) []string {
	ent, ok := w.entities[e]
	if !ok {
		return nil
	}
	return slices.Clone(ent.order)
}

// InitResource sets a resource without firing a mutation.
func (w *World) InitResource(name string, v ir.Value) {
	w.resources[name] = v
}

// SetResource writes a resource and fires a resource mutation.
func (w *World) SetResource(name string, v ir.Value) {
	w.resources[name] = v
	w.fire(Mutation{Kind: ir.KindResourceMutated, Name: name, Payload: v})
}

// TouchResource fires a mutation for an existing resource without changing
// it.
func (w *World) TouchResource(name string) bool {
	v, ok := w.resources[name]
	if !ok {
		return false
	}
	w.fire(Mutation{Kind: ir.KindResourceMutated, Name: name, Payload: v})
	return true
}

// Resource reads a resource.
func (w *World) Resource(name string) (ir.Value, bool) {
	v, ok := w.resources[name]
	return v, ok
}

// Resources lists resource names in sorted order.
func (w *World) Resources() []string {
	names := make([]string, 0, len(w.resources))
	for name := range w.resources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Broadcast fires a broadcast event.
func (w *World) Broadcast(name string, payload ir.Value) {
	w.fire(Mutation{Kind: ir.KindBroadcast, Name: name, Payload: payload})
}

// SendEntityEvent fires an event aimed at e. It is a no-op on a dead entity.
func (w *World) SendEntityEvent(e ir.Entity, name string, payload ir.Value) bool {
	if !w.Alive(e) {
		return false
	}
	w.fire(Mutation{Kind: ir.KindEntityEvent, Name: name, Entity: e, Payload: payload})
	return true
}

func (w *World) fire(m Mutation) {
	w.feed = append(w.feed, m)
}

// DrainFeed returns and clears the fired mutations in firing order.
func (w *World) DrainFeed() []Mutation {
	feed := w.feed
	w.feed = nil
	return feed
}

// FeedLen returns the number of undrained mutations.
func (w *World) FeedLen() int {
	return len(w.feed)
}
