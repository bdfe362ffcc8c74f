package engine

import (
	"cmp"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// Mode is a reactor's lifecycle mode.
type Mode uint8

const (
	// Persistent reactors are never destroyed automatically.
	Persistent Mode = iota
	// Cleanup reactors are destroyed once their trigger set is empty.
	Cleanup
	// Revokable reactors behave like Cleanup and also own a RevokeToken.
	Revokable
)

// String returns the mode's spec name.
func (m Mode) String() string {
	switch m {
	case Persistent:
		return ir.ModePersistent
	case Cleanup:
		return ir.ModeCleanup
	case Revokable:
		return ir.ModeRevokable
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case ir.ModePersistent:
		return Persistent, nil
	case ir.ModeCleanup:
		return Cleanup, nil
	case ir.ModeRevokable:
		return Revokable, nil
	}
	return 0, fmt.Errorf("unknown reactor mode %q", s)
}

// RevokeToken authorizes destroying one revokable reactor. Tokens are random
// and cannot be constructed outside this package; the zero token revokes
// nothing.
type RevokeToken struct {
	id uuid.UUID
}

// IsZero reports whether t is the zero token.
func (t RevokeToken) IsZero() bool {
	return t.id == uuid.Nil
}

// String returns a short prefix of the token for logs.
func (t RevokeToken) String() string {
	return t.id.String()[:8]
}

type reactor struct {
	id       ir.Entity
	seq      uint64 // Registration order
	mode     Mode
	triggers []Trigger
	token    uuid.UUID
	holds    int // Pinned reactions not yet run
}

// Registry maps triggers to reactors and tracks each reactor's trigger set.
//
// Lookups go through a per-trigger index whose entries are ordered by reactor
// registration; Match merges the exact and any-entity entries and returns ids
// in registration order.
type Registry struct {
	reactors map[ir.Entity]*reactor
	index    map[Trigger][]ir.Entity
	byTarget map[ir.Entity]mapset.Set[ir.Entity] // target entity → reactors listening on it
	tokens   map[uuid.UUID]ir.Entity
	emptied  mapset.Set[ir.Entity]
	seq      uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reactors: make(map[ir.Entity]*reactor),
		index:    make(map[Trigger][]ir.Entity),
		byTarget: make(map[ir.Entity]mapset.Set[ir.Entity]),
		tokens:   make(map[uuid.UUID]ir.Entity),
		emptied:  mapset.NewThreadUnsafeSet[ir.Entity](),
	}
}

// register creates a reactor for the unit stored on id.
func (r *Registry) register(id ir.Entity, triggers []Trigger, mode Mode) (RevokeToken, error) {
	if _, exists := r.reactors[id]; exists {
		return RevokeToken{}, configErr(ErrCodeDuplicateReactor, id, "unit already has a reactor")
	}
	if mode != Persistent && len(triggers) == 0 {
		return RevokeToken{}, configErr(ErrCodeEmptyTriggers, id, "%s reactor requires at least one trigger", mode)
	}
	if err := checkTriggers(id, nil, triggers); err != nil {
		return RevokeToken{}, err
	}

	r.seq++
	re := &reactor{id: id, seq: r.seq, mode: mode}
	r.reactors[id] = re
	for _, t := range triggers {
		r.attach(re, t)
	}

	var token RevokeToken
	if mode == Revokable {
		token = RevokeToken{id: uuid.New()}
		re.token = token.id
		r.tokens[token.id] = id
	}
	return token, nil
}

// checkTriggers validates triggers and rejects duplicates, both within the
// new set and against the reactor's existing set.
func checkTriggers(id ir.Entity, existing, triggers []Trigger) error {
	seen := mapset.NewThreadUnsafeSet(existing...)
	for _, t := range triggers {
		if err := t.validate(); err != nil {
			if ce, ok := err.(*ConfigError); ok {
				ce.Reactor = id
			}
			return err
		}
		if !seen.Add(t) {
			return &ConfigError{
				Code:    ErrCodeDuplicateTrigger,
				Message: "trigger registered twice on the same reactor",
				Reactor: id,
				Trigger: t.String(),
			}
		}
	}
	return nil
}

func (r *Registry) attach(re *reactor, t Trigger) {
	re.triggers = append(re.triggers, t)
	ids := append(r.index[t], re.id)
	slices.SortFunc(ids, r.byRegistration)
	r.index[t] = ids
	if t.Target != ir.Any {
		set, ok := r.byTarget[t.Target]
		if !ok {
			set = mapset.NewThreadUnsafeSet[ir.Entity]()
			r.byTarget[t.Target] = set
		}
		set.Add(re.id)
	}
}

func (r *Registry) detach(re *reactor, t Trigger) {
	re.triggers = slices.DeleteFunc(re.triggers, func(x Trigger) bool { return x == t })
	ids := slices.DeleteFunc(r.index[t], func(id ir.Entity) bool { return id == re.id })
	if len(ids) == 0 {
		delete(r.index, t)
	} else {
		r.index[t] = ids
	}
	if len(re.triggers) == 0 {
		r.emptied.Add(re.id)
	}
	if t.Target == ir.Any {
		return
	}
	for _, other := range re.triggers {
		if other.Target == t.Target {
			return
		}
	}
	if set, ok := r.byTarget[t.Target]; ok {
		set.Remove(re.id)
		if set.Cardinality() == 0 {
			delete(r.byTarget, t.Target)
		}
	}
}

func (r *Registry) byRegistration(a, b ir.Entity) int {
	return cmp.Compare(r.reactors[a].seq, r.reactors[b].seq)
}

// Match returns every reactor with a trigger subsuming m, each once, in
// registration order.
func (r *Registry) Match(m world.Mutation) []ir.Entity {
	seen := mapset.NewThreadUnsafeSet[ir.Entity]()
	var out []ir.Entity
	for _, key := range matchKeys(m) {
		for _, id := range r.index[key] {
			if seen.Add(id) {
				out = append(out, id)
			}
		}
	}
	slices.SortFunc(out, r.byRegistration)
	return out
}

// listens reports whether the reactor still holds a trigger matching m.
func (r *Registry) listens(id ir.Entity, m world.Mutation) bool {
	re, ok := r.reactors[id]
	if !ok {
		return false
	}
	for _, key := range matchKeys(m) {
		if slices.Contains(re.triggers, key) {
			return true
		}
	}
	return false
}

// addTriggers extends a reactor's trigger set. The whole call is rejected if
// any trigger is invalid or already present.
func (r *Registry) addTriggers(id ir.Entity, triggers ...Trigger) error {
	re, ok := r.reactors[id]
	if !ok {
		return configErr(ErrCodeUnknownReactor, id, "no reactor registered for unit")
	}
	if err := checkTriggers(id, re.triggers, triggers); err != nil {
		return err
	}
	for _, t := range triggers {
		r.attach(re, t)
	}
	if len(re.triggers) > 0 {
		r.emptied.Remove(id)
	}
	return nil
}

// removeTriggers shrinks a reactor's trigger set. Triggers not in the set are
// ignored. Returns true if the set is now empty.
func (r *Registry) removeTriggers(id ir.Entity, triggers ...Trigger) (bool, error) {
	re, ok := r.reactors[id]
	if !ok {
		return false, configErr(ErrCodeUnknownReactor, id, "no reactor registered for unit")
	}
	for _, t := range triggers {
		if slices.Contains(re.triggers, t) {
			r.detach(re, t)
		}
	}
	return len(re.triggers) == 0, nil
}

// revoke destroys the reactor owning token. It reports the reactor's unit id,
// or false if the token is unknown or already spent.
func (r *Registry) revoke(token RevokeToken) (ir.Entity, bool) {
	id, ok := r.tokens[token.id]
	if !ok {
		return ir.Any, false
	}
	r.remove(id)
	return id, true
}

// remove drops a reactor and all of its bookkeeping.
func (r *Registry) remove(id ir.Entity) {
	re, ok := r.reactors[id]
	if !ok {
		return
	}
	for _, t := range slices.Clone(re.triggers) {
		r.detach(re, t)
	}
	if re.token != uuid.Nil {
		delete(r.tokens, re.token)
	}
	delete(r.reactors, id)
	r.emptied.Remove(id)
}

// dropTarget strips every trigger scoped to e from every reactor.
func (r *Registry) dropTarget(e ir.Entity) {
	set, ok := r.byTarget[e]
	if !ok {
		return
	}
	ids := set.ToSlice()
	slices.Sort(ids)
	for _, id := range ids {
		re := r.reactors[id]
		for _, t := range slices.Clone(re.triggers) {
			if t.Target == e {
				r.detach(re, t)
			}
		}
	}
}

func (r *Registry) hold(id ir.Entity) {
	if re, ok := r.reactors[id]; ok {
		re.holds++
	}
}

func (r *Registry) release(id ir.Entity) {
	if re, ok := r.reactors[id]; ok && re.holds > 0 {
		re.holds--
	}
}

// reap removes and returns reactors whose trigger set is empty, whose mode
// is not Persistent and that have no pinned reactions outstanding. Reactors
// still held stay queued for a later pass.
func (r *Registry) reap() []ir.Entity {
	if r.emptied.Cardinality() == 0 {
		return nil
	}
	var dead []ir.Entity
	for _, id := range r.emptied.ToSlice() {
		re, ok := r.reactors[id]
		if !ok || len(re.triggers) > 0 || re.mode == Persistent {
			r.emptied.Remove(id)
			continue
		}
		if re.holds > 0 {
			continue
		}
		dead = append(dead, id)
	}
	slices.SortFunc(dead, r.byRegistration)
	for _, id := range dead {
		r.remove(id)
	}
	return dead
}

// Has reports whether id has a live reactor.
func (r *Registry) Has(id ir.Entity) bool {
	_, ok := r.reactors[id]
	return ok
}

// Triggers returns a copy of the reactor's trigger set in insertion order.
func (r *Registry) Triggers(id ir.Entity) []Trigger {
	re, ok := r.reactors[id]
	if !ok {
		return nil
	}
	return slices.Clone(re.triggers)
}

// ModeOf returns the reactor's lifecycle mode.
func (r *Registry) ModeOf(id ir.Entity) (Mode, bool) {
	re, ok := r.reactors[id]
	if !ok {
		return 0, false
	}
	return re.mode, true
}

// Len returns the number of live reactors.
func (r *Registry) Len() int {
	return len(r.reactors)
}

// TriggerCount returns the number of registered (reactor, trigger) pairs.
func (r *Registry) TriggerCount() int {
	n := 0
	for _, re := range r.reactors {
		n += len(re.triggers)
	}
	return n
}
