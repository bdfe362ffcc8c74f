// Package harness provides conformance testing for ripple reactor sets.
//
// The harness compiles CUE reactors, seeds a world, executes test scenarios
// on a fresh engine and validates the run trace and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: countdown
//	description: "A countdown reactor decrements n until it reaches zero"
//	specs:
//	  - ../specs/countdown.cue
//	flow_token: cd
//	world:
//	  resources: { n: 0 }
//	  entities:
//	    - label: hero
//	      components: { hp: 10 }
//	steps:
//	  - name: start
//	    actions:
//	      - { op: set_resource, name: n, value: 3 }
//	  - actions:
//	      - { op: broadcast, name: explode }
//	    expect_error: QUOTA_EXCEEDED
//	assertions:
//	  - type: run_sequence
//	    names: [countdown, countdown, countdown, countdown]
//	  - type: resource
//	    name: n
//	    value: 0
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - run_sequence: The non-skipped runs are exactly the listed unit names
//   - run_order: Units first ran in the listed relative order
//   - run_count: A unit ran exactly N times
//   - resource: A resource has a value, or is absent
//   - component: A labelled entity's component has a value, or is absent
//   - unit_present / unit_absent: A reactor's unit is still registered, or was destroyed
//   - entity_absent: A labelled entity was despawned
//
// # Deterministic Testing
//
// Every scenario runs on a fresh engine whose drain ids come from a sequence
// generator prefixed with flow_token, and whose logical clock starts at zero.
// Identical scenarios therefore produce byte-identical canonical JSON
// traces, which are compared against goldie golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/countdown.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
