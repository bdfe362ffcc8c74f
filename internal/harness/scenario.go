package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ripple/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario seeds a world, loads reactors, executes steps (each its own
// drain) and asserts on the resulting run trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files declaring the scenario's reactors.
	// Relative paths resolve against the scenario file's directory, or the
	// base path given to LoadScenarioWithBasePath. Optional when the caller
	// supplies reactors with WithSpecs.
	Specs []string `yaml:"specs,omitempty"`

	// World is the initial state, seeded without firing any trigger.
	World WorldSetup `yaml:"world,omitempty"`

	// Steps run in order. Each step's actions form one batch and one drain.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// FlowToken prefixes drain ids ("<token>-1", "<token>-2", ...).
	// Defaults to "drain".
	FlowToken string `yaml:"flow_token,omitempty"`
}

// WorldSetup lists the resources and labelled entities present before the
// first step.
type WorldSetup struct {
	Resources map[string]any `yaml:"resources,omitempty"`
	Entities  []EntitySetup  `yaml:"entities,omitempty"`
}

// EntitySetup is one labelled entity and its components.
type EntitySetup struct {
	Label      string         `yaml:"label"`
	Components map[string]any `yaml:"components,omitempty"`
}

// Step is one top-level batch of actions.
type Step struct {
	// Name is shown in failure messages. Optional.
	Name string `yaml:"name,omitempty"`

	// Actions are applied in order as one batch, then drained.
	Actions []ActionStep `yaml:"actions"`

	// ExpectError is an engine error code (e.g. "QUOTA_EXCEEDED") or a
	// message fragment the step's error must carry. Empty means the step
	// must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ActionStep is the YAML form of ir.ActionSpec.
type ActionStep struct {
	Op       string        `yaml:"op"`
	Name     string        `yaml:"name,omitempty"`
	Target   string        `yaml:"target,omitempty"`
	Unit     string        `yaml:"unit,omitempty"`
	Value    any           `yaml:"value,omitempty"`
	Triggers []TriggerStep `yaml:"triggers,omitempty"`
}

// TriggerStep is the YAML form of ir.TriggerSpec.
type TriggerStep struct {
	Kind   string `yaml:"kind"`
	Name   string `yaml:"name,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "run_sequence": the non-skipped runs are exactly Names
	// - "run_order": Names appear in this relative order
	// - "run_count": Unit ran exactly Count times
	// - "resource": resource Name equals Value (or is Absent)
	// - "component": component Name of Entity equals Value (or is Absent)
	// - "unit_present": reactor Unit is still registered
	// - "unit_absent": reactor Unit has been destroyed
	// - "entity_absent": Entity has been despawned
	Type string `yaml:"type"`

	// Names are unit names (run_sequence, run_order).
	Names []string `yaml:"names,omitempty"`

	// Step restricts run_sequence to one step's drain (0-indexed).
	Step *int `yaml:"step,omitempty"`

	// Unit is a reactor id (run_count, unit_present, unit_absent).
	Unit string `yaml:"unit,omitempty"`

	// Count is the expected number of runs (run_count).
	Count int `yaml:"count,omitempty"`

	// Name is a resource or component name (resource, component).
	Name string `yaml:"name,omitempty"`

	// Entity is an entity label (component, entity_absent).
	Entity string `yaml:"entity,omitempty"`

	// Value is the expected value (resource, component).
	Value any `yaml:"value,omitempty"`

	// Absent expects the resource or component not to exist.
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertRunSequence  = "run_sequence"
	AssertRunOrder     = "run_order"
	AssertRunCount     = "run_count"
	AssertResource     = "resource"
	AssertComponent    = "component"
	AssertUnitPresent  = "unit_present"
	AssertUnitAbsent   = "unit_absent"
	AssertEntityAbsent = "entity_absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Relative spec paths resolve against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}
	for _, specPath := range scenario.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: spec file not found: %s", specPath)
		}
	}

	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. Spec paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.World.resources(); err != nil {
		return fmt.Errorf("world.resources: %w", err)
	}
	seen := make(map[string]bool)
	for i, ent := range s.World.Entities {
		if ent.Label == "" {
			return fmt.Errorf("world.entities[%d]: label is required", i)
		}
		if seen[ent.Label] {
			return fmt.Errorf("world.entities[%d]: duplicate label %q", i, ent.Label)
		}
		seen[ent.Label] = true
		if _, err := ent.components(); err != nil {
			return fmt.Errorf("world.entities[%d].components: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if len(step.Actions) == 0 {
			return fmt.Errorf("steps[%d]: actions list is required and must be non-empty", i)
		}
		for j, a := range step.Actions {
			if a.Op == "" {
				return fmt.Errorf("steps[%d].actions[%d]: op is required", i, j)
			}
			if !ir.ValidOps[a.Op] {
				return fmt.Errorf("steps[%d].actions[%d]: unknown op %q", i, j, a.Op)
			}
		}
		if _, err := step.actions(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRunSequence:
		if a.Names == nil {
			return fmt.Errorf("assertions[%d]: names list is required for run_sequence", index)
		}
		if a.Step != nil && (*a.Step < 0 || *a.Step >= steps) {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
		}
	case AssertRunOrder:
		if len(a.Names) < 2 {
			return fmt.Errorf("assertions[%d]: at least two names are required for run_order", index)
		}
	case AssertRunCount:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for run_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for run_count", index)
		}
	case AssertResource:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for resource", index)
		}
		if err := a.checkValue(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertComponent:
		if a.Entity == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: entity and name are required for component", index)
		}
		if err := a.checkValue(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertUnitPresent, AssertUnitAbsent:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for %s", index, a.Type)
		}
	case AssertEntityAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for entity_absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func (a *Assertion) checkValue() error {
	if a.Absent {
		if a.Value != nil {
			return fmt.Errorf("value and absent are mutually exclusive")
		}
		return nil
	}
	if a.Value == nil {
		return fmt.Errorf("value or absent is required for %s", a.Type)
	}
	_, err := ir.FromAny(a.Value)
	return err
}

func (w WorldSetup) resources() (ir.Object, error) {
	return toObject(w.Resources)
}

func (e EntitySetup) components() (ir.Object, error) {
	return toObject(e.Components)
}

func toObject(m map[string]any) (ir.Object, error) {
	obj := make(ir.Object, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := ir.FromAny(m[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}

// actions converts the step's YAML actions to action specs.
func (s Step) actions() ([]ir.ActionSpec, error) {
	out := make([]ir.ActionSpec, len(s.Actions))
	for i, a := range s.Actions {
		spec := ir.ActionSpec{
			Op:     a.Op,
			Name:   a.Name,
			Target: a.Target,
			Unit:   a.Unit,
		}
		if a.Value != nil {
			v, err := ir.FromAny(a.Value)
			if err != nil {
				return nil, fmt.Errorf("actions[%d].value: %w", i, err)
			}
			spec.Value = v
		}
		for _, t := range a.Triggers {
			spec.Triggers = append(spec.Triggers, ir.TriggerSpec{
				Kind:   t.Kind,
				Name:   t.Name,
				Target: t.Target,
			})
		}
		out[i] = spec
	}
	return out, nil
}
