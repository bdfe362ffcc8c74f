package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/ir"
)

// Golden files live in testdata/golden. To regenerate them, run:
//
//	go test ./internal/harness -run Golden -update

func TestRunWithGolden_Countdown(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/countdown.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_Mourner(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/mourner.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/countdown.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario, result))
}

func TestTraceSnapshot_CanonicalJSON(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{{
			Step:          0,
			Seq:           1,
			DrainID:       "drain-1",
			Name:          "r",
			Tier:          "reaction",
			TriggerKind:   "despawned",
			TriggerTarget: "hero",
			Outcome:       "error",
			Error:         "boom",
		}},
		Steps:     []StepResult{{DrainIDs: []string{"drain-1"}, Error: "UNIT_FAILED"}},
		Resources: ir.Object{"b": ir.Int(2), "a": ir.String("x")},
		Entities:  map[string]ir.Object{"hero": {}},
	}

	got, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"entities":{"hero":{}},"resources":{"a":"x","b":2},"scenario_name":"s",`+
			`"steps":[{"drain_ids":["drain-1"],"error":"UNIT_FAILED"}],`+
			`"trace":[{"drain_id":"drain-1","error":"boom","name":"r","outcome":"error","seq":1,"step":0,`+
			`"tier":"reaction","trigger_kind":"despawned","trigger_target":"hero"}]}`,
		string(got))
}

func TestTraceSnapshot_EmptyTrace(t *testing.T) {
	snapshot := TraceSnapshot{ScenarioName: "quiet", FlowToken: "q", Trace: []TraceEvent{}, Steps: []StepResult{}}
	got, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"flow_token":"q","scenario_name":"quiet","steps":[],"trace":[]}`, string(got))
}
