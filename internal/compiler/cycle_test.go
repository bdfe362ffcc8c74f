package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/ir"
)

func reactor(id string, triggers []ir.TriggerSpec, actions ...ir.ActionSpec) ir.ReactorSpec {
	return ir.ReactorSpec{ID: id, Mode: ir.ModeCleanup, Triggers: triggers, Actions: actions}
}

func on(kind, name string) []ir.TriggerSpec {
	return []ir.TriggerSpec{{Kind: kind, Name: name}}
}

// TestAnalyzeCycles_Empty tests that empty input produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

// TestAnalyzeCycles_DAG tests that a chain of reactors produces no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("a", on("broadcast", "start"), ir.ActionSpec{Op: ir.OpSetResource, Name: "x", Value: ir.Int(1)}),
		reactor("b", on("resource_mutated", "x"), ir.ActionSpec{Op: ir.OpInsert, Name: "hp", Target: "hero", Value: ir.Int(1)}),
		reactor("c", on("inserted", "hp"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "done"}),
	}
	assert.Empty(t, AnalyzeCycles(specs))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("countdown", on("resource_mutated", "n"),
			ir.ActionSpec{Op: ir.OpAddResource, Name: "n", Value: ir.Int(-1)}),
	}

	warnings := AnalyzeCycles(specs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"countdown", "countdown"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Self-triggering")
}

func TestAnalyzeCycles_GuardedSelfLoopIsInfo(t *testing.T) {
	spec := reactor("countdown", on("resource_mutated", "n"),
		ir.ActionSpec{Op: ir.OpAddResource, Name: "n", Value: ir.Int(-1)})
	spec.When = &ir.GuardSpec{Resource: "n", Op: "gt", Value: ir.Int(0)}

	warnings := AnalyzeCycles([]ir.ReactorSpec{spec})
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
}

func TestAnalyzeCycles_SelfSchedule(t *testing.T) {
	specs := []ir.ReactorSpec{
		{ID: "loop", Mode: ir.ModePersistent, Actions: []ir.ActionSpec{{Op: ir.OpRun, Unit: ir.RefSelf}}},
	}

	warnings := AnalyzeCycles(specs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"loop", "loop"}, warnings[0].Path)
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("ping", on("broadcast", "ping"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "pong"}),
		reactor("pong", on("broadcast", "pong"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "ping"}),
	}

	warnings := AnalyzeCycles(specs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ping", "pong", "ping"}, warnings[0].Path)
	assert.Equal(t, "Potential cycle detected: ping → pong → ping", warnings[0].Message)
}

func TestAnalyzeCycles_ThreeNodeCycleStartsAtFirstDeclared(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("c", on("mutated", "hp"), ir.ActionSpec{Op: ir.OpRun, Unit: "a"}),
		reactor("a", on("broadcast", "go"), ir.ActionSpec{Op: ir.OpRemove, Name: "shield", Target: "hero"}),
		reactor("b", on("removed", "shield"), ir.ActionSpec{Op: ir.OpMutate, Name: "hp", Target: "hero", Value: ir.Int(0)}),
	}

	warnings := AnalyzeCycles(specs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"c", "a", "b", "c"}, warnings[0].Path)
}

func TestAnalyzeCycles_SpawnEmitsInsertions(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("breeder", on("inserted", "egg"),
			ir.ActionSpec{Op: ir.OpSpawn, Name: "child", Value: ir.Object{"egg": ir.Bool(true)}}),
	}

	warnings := AnalyzeCycles(specs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"breeder", "breeder"}, warnings[0].Path)
}

func TestAnalyzeCycles_DeclarationOrderAcrossSCCs(t *testing.T) {
	specs := []ir.ReactorSpec{
		reactor("x", on("broadcast", "x"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "x"}),
		reactor("y", on("broadcast", "y"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "y"}),
		reactor("z", on("broadcast", "z"), ir.ActionSpec{Op: ir.OpBroadcast, Name: "z"}),
	}

	for range 10 {
		warnings := AnalyzeCycles(specs)
		require.Len(t, warnings, 3)
		assert.Equal(t, "x", warnings[0].Path[0])
		assert.Equal(t, "y", warnings[1].Path[0])
		assert.Equal(t, "z", warnings[2].Path[0])
	}
}

func TestAnalyzeCycles_UnknownUnitIgnored(t *testing.T) {
	specs := []ir.ReactorSpec{
		{ID: "a", Mode: ir.ModePersistent, Actions: []ir.ActionSpec{{Op: ir.OpRun, Unit: "missing"}}},
	}
	assert.Empty(t, AnalyzeCycles(specs))
}
