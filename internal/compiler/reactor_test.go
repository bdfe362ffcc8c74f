package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/ir"
)

func TestCompileReactorBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		reactor: countdown: {
			mode: "cleanup"
			policy: "fatal"
			triggers: [{kind: "resource_mutated", name: "n"}]
			when: {resource: "n", op: "gt", value: 0}
			actions: [{op: "add_resource", name: "n", value: -1}]
		}
	`)

	require.NoError(t, v.Err())
	spec, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.countdown")))
	require.NoError(t, err)

	assert.Equal(t, "countdown", spec.ID)
	assert.Equal(t, ir.ModeCleanup, spec.Mode)
	assert.Equal(t, ir.PolicyFatal, spec.Policy)
	assert.False(t, spec.Once)
	assert.Equal(t, []ir.TriggerSpec{{Kind: "resource_mutated", Name: "n"}}, spec.Triggers)
	require.NotNil(t, spec.When)
	assert.Equal(t, "n", spec.When.Resource)
	assert.Equal(t, "gt", spec.When.Op)
	assert.Equal(t, ir.Int(0), spec.When.Value)
	require.Len(t, spec.Actions, 1)
	assert.Equal(t, ir.ActionSpec{Op: "add_resource", Name: "n", Value: ir.Int(-1)}, spec.Actions[0])
}

func TestCompileReactorModeDefaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "triggers default to cleanup",
			body: `triggers: [{kind: "broadcast", name: "go"}], actions: [{op: "touch_resource", name: "x"}]`,
			want: ir.ModeCleanup,
		},
		{
			name: "no triggers default to persistent",
			body: `actions: [{op: "touch_resource", name: "x"}]`,
			want: ir.ModePersistent,
		},
		{
			name: "once defaults to revokable",
			body: `once: true, triggers: [{kind: "broadcast", name: "go"}], actions: [{op: "touch_resource", name: "x"}]`,
			want: ir.ModeRevokable,
		},
		{
			name: "explicit mode wins",
			body: `mode: "persistent", triggers: [{kind: "broadcast", name: "go"}], actions: [{op: "touch_resource", name: "x"}]`,
			want: ir.ModePersistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString("reactor: r: {" + tt.body + "}")
			require.NoError(t, v.Err())
			spec, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.r")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Mode)
		})
	}
}

func TestCompileReactorStructuredValues(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: spawner: {
			actions: [
				{op: "spawn", name: "enemy", value: {hp: 10, tags: ["a", "b"], boss: false}},
				{op: "send", unit: "$self", value: "$event"},
				{op: "set_resource", name: "nothing", value: null},
			]
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.spawner")))
	require.NoError(t, err)
	require.Len(t, spec.Actions, 3)

	assert.Equal(t, ir.Object{
		"hp":   ir.Int(10),
		"tags": ir.Array{ir.String("a"), ir.String("b")},
		"boss": ir.Bool(false),
	}, spec.Actions[0].Value)
	assert.Equal(t, ir.String(ir.RefEvent), spec.Actions[1].Value)
	assert.Equal(t, ir.Null{}, spec.Actions[2].Value)
}

func TestCompileReactorActionTriggers(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: watcher: {
			mode: "persistent"
			actions: [{
				op: "add_triggers"
				triggers: [{kind: "despawned", target: "hero"}, {kind: "mutated", name: "hp", target: "hero"}]
			}]
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.watcher")))
	require.NoError(t, err)
	assert.Equal(t, []ir.TriggerSpec{
		{Kind: "despawned", Target: "hero"},
		{Kind: "mutated", Name: "hp", Target: "hero"},
	}, spec.Actions[0].Triggers)
}

func TestCompileReactorFloatForbidden(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: bad: {
			actions: [{op: "set_resource", name: "x", value: 1.5}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")
}

func TestCompileReactorMissingActions(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: empty: {
			mode: "persistent"
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.empty")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "actions", ce.Field)
	assert.Contains(t, err.Error(), "required")
}

func TestCompileReactorMissingOp(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: r: {
			actions: [{name: "x"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.r")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op is required")
}

func TestCompileReactorWrongType(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: r: {
			mode: 3
			actions: [{op: "fail"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileReactor(v.LookupPath(cue.ParsePath("reactor.r")))
	require.Error(t, err)
}

func TestCompileReactorsDeclarationOrder(t *testing.T) {
	v := cuecontext.New().CompileString(`
		reactor: zeta: {actions: [{op: "fail"}]}
		reactor: alpha: {actions: [{op: "fail"}]}
		reactor: mid: {actions: [{op: "fail"}]}
	`)
	require.NoError(t, v.Err())

	specs, err := CompileReactors(v)
	require.NoError(t, err)

	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
}

func TestCompileReactorsNoReactorField(t *testing.T) {
	v := cuecontext.New().CompileString(`other: 1`)
	require.NoError(t, v.Err())

	specs, err := CompileReactors(v)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestCompileReactorsSyntaxError(t *testing.T) {
	v := cuecontext.New().CompileString(`reactor: { bad`, cue.Filename("broken.cue"))

	_, err := CompileReactors(v)
	require.Error(t, err)

	var ce *CompileError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, "cue", ce.Field)
		assert.True(t, ce.Pos.IsValid())
		assert.Contains(t, err.Error(), "broken.cue")
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "mode", Message: "bad"}
	assert.Equal(t, "mode: bad", err.Error())
}
