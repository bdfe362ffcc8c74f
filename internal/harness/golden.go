package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ripple/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string               `json:"scenario_name"`
	FlowToken    string               `json:"flow_token,omitempty"`
	Trace        []TraceEvent         `json:"trace"`
	Steps        []StepResult         `json:"steps"`
	Resources    ir.Object            `json:"resources,omitempty"`
	Entities     map[string]ir.Object `json:"entities,omitempty"`
}

// NewSnapshot builds the snapshot of a scenario's result.
func NewSnapshot(scenario *Scenario, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: scenario.Name,
		FlowToken:    scenario.FlowToken,
		Trace:        result.Trace,
		Steps:        result.Steps,
		Resources:    result.Resources,
		Entities:     result.Entities,
	}
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step":     event.Step,
			"seq":      event.Seq,
			"drain_id": event.DrainID,
			"name":     event.Name,
			"tier":     event.Tier,
			"outcome":  event.Outcome,
		}
		if event.TriggerKind != "" {
			eventMap["trigger_kind"] = event.TriggerKind
		}
		if event.TriggerName != "" {
			eventMap["trigger_name"] = event.TriggerName
		}
		if event.TriggerTarget != "" {
			eventMap["trigger_target"] = event.TriggerTarget
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	stepList := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		drains := make([]any, len(step.DrainIDs))
		for j, id := range step.DrainIDs {
			drains[j] = id
		}
		stepMap := map[string]any{"drain_ids": drains}
		if step.Error != "" {
			stepMap["error"] = step.Error
		}
		stepList[i] = stepMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"steps":         stepList,
	}
	if s.FlowToken != "" {
		result["flow_token"] = s.FlowToken
	}
	if len(s.Resources) > 0 {
		result["resources"] = s.Resources
	}
	if len(s.Entities) > 0 {
		entities := make(map[string]any, len(s.Entities))
		for label, components := range s.Entities {
			entities[label] = components
		}
		result["entities"] = entities
	}
	return result
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}

	snapshot := NewSnapshot(scenario, result)
	if err := assertSnapshot(t, scenario.Name, &snapshot); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenario, result)
	return assertSnapshot(t, scenario.Name, &snapshot)
}

func assertSnapshot(t *testing.T, name string, snapshot *TraceSnapshot) error {
	t.Helper()

	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
