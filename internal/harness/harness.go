package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/ripple/internal/compiler"
	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/program"
)

// Harness is the test execution engine.
// It runs one scenario against a fresh engine with deterministic drain ids.
type Harness struct {
	prog   *program.Program
	eng    *engine.Engine
	rec    *engine.MemoryRecorder
	logger *slog.Logger
}

type options struct {
	specs      []ir.ReactorSpec
	hasSpecs   bool
	recorders  []engine.Recorder
	engineOpts []engine.Option
	drainIDs   engine.DrainIDGenerator
	logger     *slog.Logger
}

// Option configures a scenario run.
type Option func(*options)

// WithSpecs supplies the reactors directly instead of compiling the
// scenario's spec files.
func WithSpecs(specs []ir.ReactorSpec) Option {
	return func(o *options) {
		o.specs = specs
		o.hasSpecs = true
	}
}

// WithRecorder adds a recorder that receives every run and drain alongside
// the harness's own trace. Used to journal scenario runs.
func WithRecorder(r engine.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// WithEngineOptions passes extra options to the scenario's engine, e.g.
// quota limits from configuration.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithDrainIDs replaces the flow_token sequence generator. The CLI uses it
// to give journaled runs unique drain ids.
func WithDrainIDs(g engine.DrainIDGenerator) Option {
	return func(o *options) {
		o.drainIDs = g
	}
}

// WithLogger sets the logger for the engine and program. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs on a fresh engine for isolation.
//
// Execution flow:
// 1. Compile reactor specs (unless supplied with WithSpecs)
// 2. Seed the world and bind entity labels
// 3. Load the program (reactors register in declaration order)
// 4. Execute each step as one drain, checking expect_error
// 5. Snapshot final state and evaluate assertions
//
// An error is returned only when the scenario cannot be set up; step and
// assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	specs := o.specs
	if !o.hasSpecs {
		if len(scenario.Specs) == 0 {
			return nil, fmt.Errorf("scenario %s: no reactor specs", scenario.Name)
		}
		var err error
		specs, err = compiler.CompileFiles(scenario.Specs...)
		if err != nil {
			return nil, fmt.Errorf("failed to compile specs: %w", err)
		}
	}

	rec := &engine.MemoryRecorder{}
	var recorder engine.Recorder = rec
	if len(o.recorders) > 0 {
		recorder = teeRecorder(append([]engine.Recorder{rec}, o.recorders...))
	}

	drainIDs := o.drainIDs
	if drainIDs == nil {
		drainIDs = engine.NewSequenceGenerator(scenario.FlowToken)
	}

	engineOpts := append([]engine.Option{engine.WithLogger(o.logger)}, o.engineOpts...)
	engineOpts = append(engineOpts,
		engine.WithRecorder(recorder),
		engine.WithDrainIDs(drainIDs),
		engine.WithClock(engine.NewClock()),
	)
	eng := engine.New(engineOpts...)
	defer eng.Close()

	h := &Harness{
		prog:   program.New(eng, specs, program.WithLogger(o.logger)),
		eng:    eng,
		rec:    rec,
		logger: o.logger,
	}

	if err := h.seed(scenario.World); err != nil {
		return nil, fmt.Errorf("failed to seed world: %w", err)
	}
	if err := h.prog.Load(); err != nil {
		return nil, fmt.Errorf("failed to load reactors: %w", err)
	}

	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)
	h.snapshot(result)

	actx := &AssertionContext{
		Program: h.prog,
		Ctx:     ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// seed writes the initial world directly, without firing any trigger.
func (h *Harness) seed(ws WorldSetup) error {
	w := h.eng.World()

	resources, err := ws.resources()
	if err != nil {
		return err
	}
	for _, name := range resources.SortedKeys() {
		w.InitResource(name, resources[name])
	}

	for _, ent := range ws.Entities {
		components, err := ent.components()
		if err != nil {
			return fmt.Errorf("%s: %w", ent.Label, err)
		}
		e := w.Spawn()
		for _, name := range components.SortedKeys() {
			w.Insert(e, name, components[name])
		}
		h.prog.Bind(ent.Label, e)
	}
	w.DrainFeed()
	return nil
}

// executeSteps runs every step as its own drain.
//
// A step whose outcome contradicts its expect_error fails the scenario and
// stops execution; the state after it is not meaningful to later steps.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		actions, err := step.actions()
		if err != nil {
			result.AddError(fmt.Sprintf("%s: %v", stepName(i, step), err))
			return
		}

		runsBefore := len(h.rec.Runs)
		drainsBefore := len(h.rec.Drains)
		execErr := h.prog.Exec(ctx, actions)

		sr := StepResult{DrainIDs: []string{}}
		for _, d := range h.rec.Drains[drainsBefore:] {
			sr.DrainIDs = append(sr.DrainIDs, d.ID)
		}
		if execErr != nil {
			sr.Error = execErr.Error()
		}
		result.Steps = append(result.Steps, sr)
		for _, r := range h.rec.Runs[runsBefore:] {
			result.Trace = append(result.Trace, h.traceEvent(i, r))
		}

		h.logger.Debug("step executed",
			"step", i,
			"actions", len(actions),
			"runs", len(h.rec.Runs)-runsBefore,
			"error", sr.Error,
		)

		if msg := checkStepError(step, execErr); msg != "" {
			result.AddError(fmt.Sprintf("%s: %s", stepName(i, step), msg))
			return
		}
	}
}

// checkStepError compares a step's error against its expect_error. Returns
// an empty string when they agree.
func checkStepError(step Step, err error) string {
	switch {
	case step.ExpectError == "" && err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case step.ExpectError != "" && err == nil:
		return fmt.Sprintf("expected error %s, got none", step.ExpectError)
	case step.ExpectError != "":
		if string(engine.CodeOf(err)) == step.ExpectError || strings.Contains(err.Error(), step.ExpectError) {
			return ""
		}
		code := engine.CodeOf(err)
		if code == "" {
			code = "none"
		}
		return fmt.Sprintf("expected error %s, got %v (code %s)", step.ExpectError, err, code)
	}
	return ""
}

func stepName(i int, step Step) string {
	if step.Name != "" {
		return fmt.Sprintf("steps[%d] (%s)", i, step.Name)
	}
	return fmt.Sprintf("steps[%d]", i)
}

func (h *Harness) traceEvent(step int, r ir.RunRecord) TraceEvent {
	e := TraceEvent{
		Step:        step,
		Seq:         r.Seq,
		DrainID:     r.DrainID,
		Name:        r.Name,
		Tier:        string(r.Tier),
		TriggerKind: r.TriggerKind,
		TriggerName: r.TriggerName,
		Outcome:     string(r.Outcome),
		Error:       r.Error,
	}
	if r.TriggerTarget != ir.Any {
		e.TriggerTarget = h.prog.Label(r.TriggerTarget)
	}
	return e
}

// snapshot copies the final resources and labelled entity components into
// the result. Null values are left out.
func (h *Harness) snapshot(result *Result) {
	w := h.eng.World()
	for _, name := range w.Resources() {
		if v, ok := w.Resource(name); ok && !isNull(v) {
			result.Resources[name] = v
		}
	}
	for _, label := range h.prog.Labels() {
		e, _ := h.prog.Entity(label)
		if !w.Alive(e) || w.HasUnit(e) {
			continue
		}
		if _, isReactor := h.prog.Unit(label); isReactor {
			continue
		}
		components := ir.Object{}
		for _, name := range w.Components(e) {
			if v, ok := w.Component(e, name); ok && !isNull(v) {
				components[name] = v
			}
		}
		result.Entities[label] = components
	}
}

func isNull(v ir.Value) bool {
	_, null := v.(ir.Null)
	return v == nil || null
}

// teeRecorder fans records out to several recorders.
type teeRecorder []engine.Recorder

func (t teeRecorder) RecordRun(ctx context.Context, rec ir.RunRecord) error {
	var errs []error
	for _, r := range t {
		errs = append(errs, r.RecordRun(ctx, rec))
	}
	return errors.Join(errs...)
}

func (t teeRecorder) RecordDrain(ctx context.Context, rec ir.DrainRecord) error {
	var errs []error
	for _, r := range t {
		errs = append(errs, r.RecordDrain(ctx, rec))
	}
	return errors.Join(errs...)
}
