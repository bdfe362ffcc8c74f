// Package program binds compiled reactor specs to an engine.
//
// Labels name entities across specs and scenarios. Reactor ids are unit
// labels; entity labels come from Bind or from spawn actions at run time.
// Reactors are registered in declaration order, which fixes their firing
// order for shared triggers.
package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/ripple/internal/compiler"
	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/ir"
)

var (
	// ErrUnknownLabel is returned when a target names no bound entity.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrUnknownUnit is returned when a unit reference names no reactor.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrNoUnit is returned when $self or $target has nothing to refer to.
	ErrNoUnit = errors.New("reference has no entity in this context")
	// ErrNotRevokable is returned when revoking a reactor that owns no token.
	ErrNotRevokable = errors.New("reactor is not revokable")
)

// Program is a reactor set bound to one engine.
type Program struct {
	eng    *engine.Engine
	specs  []ir.ReactorSpec
	labels map[string]ir.Entity
	names  map[ir.Entity]string
	units  map[string]ir.Entity
	tokens map[string]engine.RevokeToken
	loaded bool
	logger *slog.Logger
}

// Option configures a Program.
type Option func(*Program)

// WithLogger sets the program's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Program) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates an unloaded program.
func New(eng *engine.Engine, specs []ir.ReactorSpec, opts ...Option) *Program {
	p := &Program{
		eng:    eng,
		specs:  slices.Clone(specs),
		labels: make(map[string]ir.Entity),
		names:  make(map[ir.Entity]string),
		units:  make(map[string]ir.Entity),
		tokens: make(map[string]engine.RevokeToken),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind names an entity. Rebinding a label points it at the new entity.
func (p *Program) Bind(label string, e ir.Entity) {
	if old, ok := p.labels[label]; ok {
		delete(p.names, old)
	}
	p.labels[label] = e
	p.names[e] = label
}

// Entity resolves an entity label.
func (p *Program) Entity(label string) (ir.Entity, bool) {
	e, ok := p.labels[label]
	return e, ok
}

// Unit resolves a reactor id to its unit.
func (p *Program) Unit(id string) (ir.Entity, bool) {
	e, ok := p.units[id]
	return e, ok
}

// Label returns the label bound to e, or e's id string.
func (p *Program) Label(e ir.Entity) string {
	if name, ok := p.names[e]; ok {
		return name
	}
	return e.String()
}

// Labels returns every bound label, sorted.
func (p *Program) Labels() []string {
	labels := make([]string, 0, len(p.labels))
	for label := range p.labels {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// Specs returns the program's reactor specs in declaration order.
func (p *Program) Specs() []ir.ReactorSpec {
	return slices.Clone(p.specs)
}

// Engine returns the engine the program is bound to.
func (p *Program) Engine() *engine.Engine {
	return p.eng
}

// Load validates the specs and registers every reactor in declaration order.
// Entity labels used by trigger targets must be bound first.
func (p *Program) Load() error {
	if p.loaded {
		return fmt.Errorf("program already loaded")
	}
	if verrs := compiler.Validate(p.specs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return fmt.Errorf("invalid reactor specs: %w", errors.Join(errs...))
	}

	for _, spec := range p.specs {
		if err := p.register(spec); err != nil {
			return fmt.Errorf("reactor %s: %w", spec.ID, err)
		}
	}
	p.loaded = true
	p.logger.Debug("program loaded", "reactors", len(p.specs))
	return nil
}

func (p *Program) register(spec ir.ReactorSpec) error {
	mode, err := engine.ParseMode(spec.Mode)
	if err != nil {
		return err
	}
	var opts []engine.UnitOption
	if spec.Policy != "" {
		policy, err := engine.ParsePolicy(spec.Policy)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithPolicy(policy))
	}

	id, err := p.eng.SpawnUnit(spec.ID, p.callable(spec), opts...)
	if err != nil {
		return err
	}
	p.units[spec.ID] = id
	p.Bind(spec.ID, id)

	triggers, err := p.triggers(id, spec.Triggers)
	if err != nil {
		return err
	}
	reg, err := p.eng.Attach(id, triggers, mode)
	if err != nil {
		return err
	}
	if !reg.Token.IsZero() {
		p.tokens[spec.ID] = reg.Token
	}
	p.logger.Debug("reactor bound",
		"reactor", spec.ID,
		"unit", id.String(),
		"mode", mode.String(),
		"triggers", len(triggers),
	)
	return nil
}

// triggers resolves trigger specs; self is the entity $self refers to.
func (p *Program) triggers(self ir.Entity, specs []ir.TriggerSpec) ([]engine.Trigger, error) {
	out := make([]engine.Trigger, 0, len(specs))
	for _, ts := range specs {
		kind, err := ir.ParseKind(ts.Kind)
		if err != nil {
			return nil, err
		}
		t := engine.Trigger{Kind: kind, Name: ts.Name}
		if ts.Target != "" {
			t.Target, err = p.entity(scope{self: self}, ts.Target)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// Revoke spends the revoke token of a reactor.
func (p *Program) Revoke(id string) (bool, error) {
	token, ok := p.tokens[id]
	if !ok {
		if _, known := p.units[id]; !known {
			return false, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
		}
		return false, fmt.Errorf("%w: %s", ErrNotRevokable, id)
	}
	delete(p.tokens, id)
	return p.eng.Revoke(token), nil
}

// Exec applies actions outside any unit run, as one batch, and drains it.
// $self, $target and $event are unavailable here.
func (p *Program) Exec(ctx context.Context, actions []ir.ActionSpec) error {
	var execErr error
	err := p.eng.Do(ctx, func(cmds *engine.Commands) {
		for i, a := range actions {
			if execErr = p.apply(scope{view: p.eng.World()}, cmds, a); execErr != nil {
				execErr = fmt.Errorf("action %d (%s): %w", i, a.Op, execErr)
				return
			}
		}
	})
	return errors.Join(execErr, err)
}
