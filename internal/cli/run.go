package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/ripple/internal/compiler"
	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/harness"
	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/journal"
	"github.com/roach88/ripple/internal/tracing"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string `json:"scenario"`
	*harness.Result
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir> <scenario>",
		Short: "Run one scenario and print its trace",
		Long: `Run one scenario against the reactors in a specs directory.

Seeds the scenario's world, executes each step as its own drain and prints
every unit run with its trigger and outcome, followed by the final state.
Spec paths listed by the scenario resolve relative to the specs directory;
a scenario without a specs list runs every reactor in the directory.

With --db (or journal.path in the config) each run and drain is also
appended to a SQLite journal that 'ripple trace' can read back. Journaled
scenarios without a flow_token get unique drain ids.

Example:
  ripple run ./specs ./scenarios/combat.yaml
  ripple run ./specs ./scenarios/combat.yaml --db ./ripple.db --verbose`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: journal.path from config)")

	return cmd
}

func runScenarioCommand(opts *RunOptions, specsDir, scenarioFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	runner, err := newScenarioRunner(opts.RootOptions, specsDir, cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.Config.Journal.Path
	}
	if dbPath != "" {
		j, err := journal.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				runner.logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runner.recorder = j
		runner.logger.Info("journaling runs", "db", dbPath)
	}

	scenario, result, err := runner.Run(commandContext(cmd), scenarioFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(RunResult{Scenario: scenario.Name, Result: result}); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, scenario, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// scenarioRunner carries what every scenario run of one command shares: the
// compiled specs directory, logging, tracing and an optional journal.
type scenarioRunner struct {
	opts     *RootOptions
	specsDir string
	specs    []ir.ReactorSpec
	logger   *slog.Logger
	provider *tracing.Provider
	recorder engine.Recorder
}

// newScenarioRunner compiles and validates specsDir once.
func newScenarioRunner(opts *RootOptions, specsDir string, cmd *cobra.Command) (*scenarioRunner, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to compile specs", loadErrors[0])
	}
	if verrs := compiler.Validate(loadResult.Reactors); len(verrs) > 0 {
		return nil, WrapExitError(ExitCommandError, "invalid specs", verrs[0])
	}

	provider, err := opts.tracer(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
	}

	logger := opts.Logger(cmd.ErrOrStderr())
	logger.Debug("specs compiled", "dir", specsDir, "reactors", len(loadResult.Reactors))

	return &scenarioRunner{
		opts:     opts,
		specsDir: specsDir,
		specs:    loadResult.Reactors,
		logger:   logger,
		provider: provider,
	}, nil
}

// Run loads and executes one scenario file.
func (r *scenarioRunner) Run(ctx context.Context, file string) (*harness.Scenario, *harness.Result, error) {
	scenario, err := harness.LoadScenarioWithBasePath(file, r.specsDir)
	if err != nil {
		return nil, nil, err
	}

	result, err := harness.Run(ctx, scenario, r.options(scenario)...)
	if err != nil {
		return scenario, nil, err
	}
	r.logger.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass, "runs", len(result.Trace))
	return scenario, result, nil
}

func (r *scenarioRunner) options(scenario *harness.Scenario) []harness.Option {
	engineOpts := append(r.opts.Config.EngineOptions(), engine.WithTracer(r.tracer()))
	hopts := []harness.Option{
		harness.WithLogger(r.logger),
		harness.WithEngineOptions(engineOpts...),
	}
	if len(scenario.Specs) == 0 {
		hopts = append(hopts, harness.WithSpecs(r.specs))
	}
	if r.recorder != nil {
		hopts = append(hopts, harness.WithRecorder(r.recorder))
		if scenario.FlowToken == "" {
			hopts = append(hopts, harness.WithDrainIDs(engine.UUIDv7Generator{}))
		}
	}
	return hopts
}

func (r *scenarioRunner) tracer() trace.Tracer {
	return r.provider.Tracer()
}

// Close flushes pending spans.
func (r *scenarioRunner) Close() {
	if err := r.provider.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("error shutting down tracing", "error", err)
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one (as in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// outputRunText prints a scenario's trace table, final state and verdict.
func outputRunText(formatter *OutputFormatter, scenario *harness.Scenario, result *harness.Result) {
	w := formatter.Writer
	fmt.Fprintf(w, "Scenario: %s\n", scenario.Name)
	for i, step := range result.Steps {
		line := fmt.Sprintf("  step %d: %d drain(s) %v", i, len(step.DrainIDs), step.DrainIDs)
		if step.Error != "" {
			line += " error: " + step.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	if len(result.Trace) > 0 {
		t := formatter.Table("STEP", "SEQ", "DRAIN", "UNIT", "TIER", "TRIGGER", "OUTCOME")
		for _, e := range result.Trace {
			t.AppendRow([]any{e.Step, e.Seq, e.DrainID, e.Name, e.Tier, describeTrigger(e.TriggerKind, e.TriggerName, e.TriggerTarget), outcomeText(e.Outcome, e.Error)})
		}
		t.Render()
		fmt.Fprintln(w)
	}

	if len(result.Resources) > 0 {
		fmt.Fprintln(w, "Resources:")
		for _, name := range result.Resources.SortedKeys() {
			fmt.Fprintf(w, "  %s = %s\n", name, ir.Format(result.Resources[name]))
		}
	}
	if len(result.Entities) > 0 {
		fmt.Fprintln(w, "Entities:")
		labels := make([]string, 0, len(result.Entities))
		for label := range result.Entities {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(w, "  %s %s\n", label, ir.Format(result.Entities[label]))
		}
	}

	if result.Pass {
		fmt.Fprintf(w, "✓ %s passed\n", scenario.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s failed\n", scenario.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// describeTrigger renders "kind name @target", omitting empty parts.
func describeTrigger(kind, name, target string) string {
	if kind == "" {
		return "-"
	}
	s := kind
	if name != "" {
		s += " " + name
	}
	if target != "" {
		s += " @" + target
	}
	return s
}

func outcomeText(outcome, errText string) string {
	if errText == "" {
		return outcome
	}
	return outcome + ": " + errText
}
