package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/ripple/internal/ir"
)

// CompileReactors compiles every field of the top-level "reactor" struct, in
// declaration order. A value without a "reactor" field yields no specs.
func CompileReactors(v cue.Value) ([]ir.ReactorSpec, error) {
	if err := v.Err(); err != nil {
		return nil, FormatCUEError(err)
	}

	reactorsVal := v.LookupPath(cue.ParsePath("reactor"))
	if !reactorsVal.Exists() {
		return nil, nil
	}

	iter, err := reactorsVal.Fields()
	if err != nil {
		return nil, FormatCUEError(err)
	}

	var specs []ir.ReactorSpec
	for iter.Next() {
		spec, err := CompileReactor(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileReactor parses a CUE value into a ReactorSpec.
//
// The CUE value should be the reactor struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`reactor: countdown: { ... }`)
//	spec, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.countdown")))
func CompileReactor(v cue.Value) (*ir.ReactorSpec, error) {
	if err := v.Err(); err != nil {
		return nil, FormatCUEError(err)
	}

	spec := &ir.ReactorSpec{}

	// Reactor id is the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.ID = labels[len(labels)-1].String()
	}

	var err error
	if spec.Mode, err = optionalString(v, "mode"); err != nil {
		return nil, err
	}
	if spec.Policy, err = optionalString(v, "policy"); err != nil {
		return nil, err
	}

	onceVal := v.LookupPath(cue.ParsePath("once"))
	if onceVal.Exists() {
		once, err := onceVal.Bool()
		if err != nil {
			return nil, FormatCUEError(err)
		}
		spec.Once = once
	}

	triggersVal := v.LookupPath(cue.ParsePath("triggers"))
	if triggersVal.Exists() {
		spec.Triggers, err = parseTriggers(triggersVal)
		if err != nil {
			return nil, err
		}
	}

	// Mode defaults to cleanup when the reactor listens for anything, and to
	// persistent for manual-only reactors.
	if spec.Mode == "" {
		switch {
		case spec.Once:
			spec.Mode = ir.ModeRevokable
		case len(spec.Triggers) > 0:
			spec.Mode = ir.ModeCleanup
		default:
			spec.Mode = ir.ModePersistent
		}
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if whenVal.Exists() {
		guard, err := parseGuard(whenVal)
		if err != nil {
			return nil, err
		}
		spec.When = guard
	}

	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return nil, &CompileError{
			Field:   "actions",
			Message: "actions are required",
			Pos:     v.Pos(),
		}
	}
	spec.Actions, err = parseActions(actionsVal)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

func parseTriggers(v cue.Value) ([]ir.TriggerSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, FormatCUEError(err)
	}

	var triggers []ir.TriggerSpec
	for iter.Next() {
		tv := iter.Value()
		kind, err := requiredString(tv, "kind")
		if err != nil {
			return nil, err
		}
		t := ir.TriggerSpec{Kind: kind}
		if t.Name, err = optionalString(tv, "name"); err != nil {
			return nil, err
		}
		if t.Target, err = optionalString(tv, "target"); err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

func parseGuard(v cue.Value) (*ir.GuardSpec, error) {
	op, err := requiredString(v, "op")
	if err != nil {
		return nil, err
	}
	g := &ir.GuardSpec{Op: op}
	if g.Resource, err = optionalString(v, "resource"); err != nil {
		return nil, err
	}
	if g.Component, err = optionalString(v, "component"); err != nil {
		return nil, err
	}
	if g.Target, err = optionalString(v, "target"); err != nil {
		return nil, err
	}
	if g.Value, err = optionalValue(v, "value"); err != nil {
		return nil, err
	}
	return g, nil
}

func parseActions(v cue.Value) ([]ir.ActionSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, FormatCUEError(err)
	}

	var actions []ir.ActionSpec
	for iter.Next() {
		av := iter.Value()
		op, err := requiredString(av, "op")
		if err != nil {
			return nil, err
		}
		a := ir.ActionSpec{Op: op}
		if a.Name, err = optionalString(av, "name"); err != nil {
			return nil, err
		}
		if a.Target, err = optionalString(av, "target"); err != nil {
			return nil, err
		}
		if a.Unit, err = optionalString(av, "unit"); err != nil {
			return nil, err
		}
		if a.Value, err = optionalValue(av, "value"); err != nil {
			return nil, err
		}
		triggersVal := av.LookupPath(cue.ParsePath("triggers"))
		if triggersVal.Exists() {
			if a.Triggers, err = parseTriggers(triggersVal); err != nil {
				return nil, err
			}
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", FormatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", FormatCUEError(err)
	}
	return s, nil
}

// optionalValue decodes a concrete CUE value into an ir.Value. Floats are
// forbidden; use int instead.
func optionalValue(v cue.Value, field string) (ir.Value, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	if err := fv.Validate(cue.Concrete(true)); err != nil {
		return nil, FormatCUEError(err)
	}
	var raw any
	if err := fv.Decode(&raw); err != nil {
		return nil, FormatCUEError(err)
	}
	val, err := ir.FromAny(raw)
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: err.Error(),
			Pos:     fv.Pos(),
		}
	}
	return val, nil
}
