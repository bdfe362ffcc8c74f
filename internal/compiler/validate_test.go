package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/ir"
)

func validCountdown() ir.ReactorSpec {
	return ir.ReactorSpec{
		ID:       "countdown",
		Mode:     ir.ModeCleanup,
		Triggers: []ir.TriggerSpec{{Kind: "resource_mutated", Name: "n"}},
		When:     &ir.GuardSpec{Resource: "n", Op: "gt", Value: ir.Int(0)},
		Actions:  []ir.ActionSpec{{Op: ir.OpAddResource, Name: "n", Value: ir.Int(-1)}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateReactorValid(t *testing.T) {
	spec := validCountdown()
	assert.Empty(t, Validate(&spec))
	assert.Empty(t, Validate(spec))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidateReactorHeader(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.ReactorSpec)
		code   string
	}{
		{"bad id", func(s *ir.ReactorSpec) { s.ID = "has space" }, ErrInvalidReactorID},
		{"empty id", func(s *ir.ReactorSpec) { s.ID = "" }, ErrInvalidReactorID},
		{"bad mode", func(s *ir.ReactorSpec) { s.Mode = "forever" }, ErrInvalidMode},
		{"bad policy", func(s *ir.ReactorSpec) { s.Policy = "panic" }, ErrInvalidPolicy},
		{"once needs revokable", func(s *ir.ReactorSpec) { s.Once = true }, ErrOnceMode},
		{"cleanup needs triggers", func(s *ir.ReactorSpec) { s.Triggers = nil }, ErrEmptyTriggers},
		{"no actions", func(s *ir.ReactorSpec) { s.Actions = nil }, ErrNoActions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validCountdown()
			tt.mutate(&spec)
			assert.Contains(t, codes(Validate(&spec)), tt.code)
		})
	}
}

func TestValidatePersistentMayHaveNoTriggers(t *testing.T) {
	spec := ir.ReactorSpec{
		ID:      "manual",
		Mode:    ir.ModePersistent,
		Actions: []ir.ActionSpec{{Op: ir.OpTouchResource, Name: "x"}},
	}
	assert.Empty(t, Validate(&spec))
}

func TestValidateTriggers(t *testing.T) {
	tests := []struct {
		name    string
		trigger ir.TriggerSpec
		code    string
	}{
		{"unknown kind", ir.TriggerSpec{Kind: "exploded", Name: "x"}, ErrInvalidTriggerKind},
		{"named kind without name", ir.TriggerSpec{Kind: "inserted"}, ErrTriggerName},
		{"despawned with name", ir.TriggerSpec{Kind: "despawned", Name: "x", Target: "hero"}, ErrTriggerName},
		{"despawned without target", ir.TriggerSpec{Kind: "despawned"}, ErrTriggerTarget},
		{"resource with target", ir.TriggerSpec{Kind: "resource_mutated", Name: "x", Target: "hero"}, ErrTriggerTarget},
		{"broadcast with target", ir.TriggerSpec{Kind: "broadcast", Name: "x", Target: "hero"}, ErrTriggerTarget},
		{"$target is not a trigger target", ir.TriggerSpec{Kind: "mutated", Name: "hp", Target: ir.RefTarget}, ErrUndefinedRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validCountdown()
			spec.Triggers = []ir.TriggerSpec{tt.trigger}
			assert.Contains(t, codes(Validate(&spec)), tt.code)
		})
	}
}

func TestValidateTriggerTargets(t *testing.T) {
	spec := validCountdown()
	spec.Triggers = []ir.TriggerSpec{
		{Kind: "despawned", Target: "hero"},
		{Kind: "entity_event", Name: "hit", Target: ir.RefSelf},
		{Kind: "entity_event", Name: "hit"},
		{Kind: "removed", Name: "hp", Target: "hero"},
	}
	assert.Empty(t, Validate(&spec))
}

func TestValidateDuplicateTrigger(t *testing.T) {
	spec := validCountdown()
	spec.Triggers = append(spec.Triggers, spec.Triggers[0])

	errs := Validate(&spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateTrigger, errs[0].Code)
	assert.Equal(t, "triggers[1]", errs[0].Field)
}

func TestValidateGuard(t *testing.T) {
	tests := []struct {
		name  string
		guard ir.GuardSpec
		code  string
	}{
		{"unknown op", ir.GuardSpec{Resource: "n", Op: "approx", Value: ir.Int(1)}, ErrInvalidGuardOp},
		{"no subject", ir.GuardSpec{Op: "eq", Value: ir.Int(1)}, ErrGuardSubject},
		{"two subjects", ir.GuardSpec{Resource: "n", Component: "hp", Target: "hero", Op: "eq", Value: ir.Int(1)}, ErrGuardSubject},
		{"resource with target", ir.GuardSpec{Resource: "n", Target: "hero", Op: "eq", Value: ir.Int(1)}, ErrUnexpectedArg},
		{"component without target", ir.GuardSpec{Component: "hp", Op: "eq", Value: ir.Int(1)}, ErrMissingActionArg},
		{"exists with value", ir.GuardSpec{Resource: "n", Op: "exists", Value: ir.Int(1)}, ErrGuardValue},
		{"eq without value", ir.GuardSpec{Resource: "n", Op: "eq"}, ErrGuardValue},
		{"gt on string", ir.GuardSpec{Resource: "n", Op: "gt", Value: ir.String("x")}, ErrGuardComparison},
		{"$target without scoped trigger", ir.GuardSpec{Component: "hp", Target: ir.RefTarget, Op: "exists"}, ErrUndefinedRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validCountdown()
			spec.When = &tt.guard
			assert.Contains(t, codes(Validate(&spec)), tt.code)
		})
	}
}

func TestValidateGuardOnTriggerTarget(t *testing.T) {
	spec := validCountdown()
	spec.Triggers = []ir.TriggerSpec{{Kind: "mutated", Name: "hp"}}
	spec.When = &ir.GuardSpec{Component: "hp", Target: ir.RefTarget, Op: "le", Value: ir.Int(0)}
	assert.Empty(t, Validate(&spec))
}

func TestValidateActions(t *testing.T) {
	tests := []struct {
		name   string
		action ir.ActionSpec
		code   string
	}{
		{"unknown op", ir.ActionSpec{Op: "explode"}, ErrInvalidActionOp},
		{"set_resource without value", ir.ActionSpec{Op: ir.OpSetResource, Name: "x"}, ErrMissingActionArg},
		{"insert without target", ir.ActionSpec{Op: ir.OpInsert, Name: "hp", Value: ir.Int(1)}, ErrMissingActionArg},
		{"despawn with name", ir.ActionSpec{Op: ir.OpDespawn, Target: "hero", Name: "x"}, ErrUnexpectedArg},
		{"run without unit", ir.ActionSpec{Op: ir.OpRun}, ErrMissingActionArg},
		{"touch with value", ir.ActionSpec{Op: ir.OpTouchResource, Name: "x", Value: ir.Int(1)}, ErrUnexpectedArg},
		{"$target without scoped trigger", ir.ActionSpec{Op: ir.OpDespawn, Target: ir.RefTarget}, ErrUndefinedRef},
		{"add_resource with string", ir.ActionSpec{Op: ir.OpAddResource, Name: "n", Value: ir.String("1")}, ErrIntegerValue},
		{"spawn with scalar", ir.ActionSpec{Op: ir.OpSpawn, Name: "e", Value: ir.Int(1)}, ErrSpawnValue},
		{"spawn with bad label", ir.ActionSpec{Op: ir.OpSpawn, Name: "$self"}, ErrUndefinedRef},
		{"add_triggers without triggers", ir.ActionSpec{Op: ir.OpAddTriggers}, ErrMissingActionArg},
		{"add_triggers with bad trigger", ir.ActionSpec{Op: ir.OpAddTriggers, Triggers: []ir.TriggerSpec{{Kind: "despawned"}}}, ErrTriggerTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validCountdown()
			spec.Actions = []ir.ActionSpec{tt.action}
			assert.Contains(t, codes(Validate(&spec)), tt.code)
		})
	}
}

func TestValidateActionsAccepted(t *testing.T) {
	spec := validCountdown()
	spec.Triggers = []ir.TriggerSpec{{Kind: "entity_event", Name: "hit"}}
	spec.Actions = []ir.ActionSpec{
		{Op: ir.OpAddComponent, Name: "hp", Target: ir.RefTarget, Value: ir.String(ir.RefEvent)},
		{Op: ir.OpSpawn, Name: "spark", Value: ir.Object{"ttl": ir.Int(3)}},
		{Op: ir.OpSend, Unit: ir.RefSelf, Value: ir.Int(1)},
		{Op: ir.OpBroadcast, Name: "done"},
		{Op: ir.OpRevoke},
		{Op: ir.OpFail, Value: ir.String("boom")},
	}
	assert.Empty(t, Validate(&spec))
}

func TestValidateReactorSet(t *testing.T) {
	a := validCountdown()
	b := validCountdown()
	c := ir.ReactorSpec{
		ID:      "kicker",
		Mode:    ir.ModePersistent,
		Actions: []ir.ActionSpec{{Op: ir.OpRun, Unit: "ghost"}, {Op: ir.OpRun, Unit: "countdown"}},
	}

	errs := Validate([]ir.ReactorSpec{a, b, c})
	require.Len(t, errs, 2)
	assert.Equal(t, ErrDuplicateReactor, errs[0].Code)
	assert.Equal(t, "reactor[1].id", errs[0].Field)
	assert.Equal(t, ErrUnknownUnitRef, errs[1].Code)
	assert.Equal(t, "reactor[2].actions[0].unit", errs[1].Field)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "mode", Message: "bad", Code: ErrInvalidMode}
	assert.Equal(t, "[E103] mode: bad", err.Error())

	err.Line = 4
	assert.Equal(t, "[E103] line 4: mode: bad", err.Error())
}
