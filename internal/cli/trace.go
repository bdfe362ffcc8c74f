package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Drain    string // drain id, or "latest"
}

// DrainSummary is one drain in the journal listing.
type DrainSummary struct {
	ir.DrainRecord
	Outcomes map[ir.Outcome]int `json:"outcomes"`
}

// DrainListResult is the JSON payload of trace without --drain.
type DrainListResult struct {
	Drains     []DrainSummary `json:"drains"`
	Unfinished []string       `json:"unfinished,omitempty"`
}

// DrainTraceResult is the JSON payload of trace --drain.
type DrainTraceResult struct {
	Drain ir.DrainRecord `json:"drain"`
	Runs  []ir.RunRecord `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a run journal",
		Long: `Inspect the SQLite journal written by 'ripple run --db'.

Without --drain, lists every recorded drain with its step count and run
outcomes, plus drains that recorded runs but never finished. With --drain,
shows the unit runs of one drain in dispatch order; "latest" selects the
most recent drain.

Examples:
  ripple trace --db ./ripple.db
  ripple trace --db ./ripple.db --drain latest
  ripple trace --db ./ripple.db --drain combat-2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: journal.path from config)")
	cmd.Flags().StringVar(&opts.Drain, "drain", "", `drain id to show, or "latest"`)

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.Config.Journal.Path
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	// Opening would create an empty journal; a missing file is a usage error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath))
	}

	j, err := journal.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Drain == "" {
		return listDrains(formatter, j, cmd)
	}
	return showDrain(formatter, j, opts.Drain, cmd)
}

func listDrains(formatter *OutputFormatter, j *journal.Journal, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	drains, err := j.ReadDrains(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read drains", err)
	}
	unfinished, err := j.UnfinishedDrains(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read drains", err)
	}

	result := DrainListResult{Drains: make([]DrainSummary, 0, len(drains)), Unfinished: unfinished}
	for _, d := range drains {
		counts, err := j.OutcomeCounts(ctx, d.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count runs", err)
		}
		result.Drains = append(result.Drains, DrainSummary{DrainRecord: d, Outcomes: counts})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Drains) == 0 && len(unfinished) == 0 {
		fmt.Fprintln(w, "No drains recorded.")
		return nil
	}

	t := formatter.Table("SEQ", "DRAIN", "STEPS", "OK", "ERROR", "SKIPPED", "RESULT")
	for _, d := range result.Drains {
		status := "ok"
		if d.Error != "" {
			status = d.Error
		}
		t.AppendRow([]any{
			d.Seq,
			d.ID,
			humanize.Comma(int64(d.Steps)),
			d.Outcomes[ir.OutcomeOK],
			d.Outcomes[ir.OutcomeError],
			d.Outcomes[ir.OutcomeSkipped],
			status,
		})
	}
	t.Render()

	fmt.Fprintf(w, "\n%s drain(s)\n", humanize.Comma(int64(len(result.Drains))))
	for _, id := range unfinished {
		fmt.Fprintf(w, "! %s has runs but never finished\n", id)
	}
	return nil
}

func showDrain(formatter *OutputFormatter, j *journal.Journal, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	var (
		drain ir.DrainRecord
		err   error
	)
	if id == "latest" {
		drain, err = j.LatestDrain(ctx)
	} else {
		drain, err = j.ReadDrain(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("drain not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read drain", err)
	}

	runs, err := j.ReadRuns(ctx, drain.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(DrainTraceResult{Drain: drain, Runs: runs})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Drain %s (seq %d, %s step(s))\n", drain.ID, drain.Seq, humanize.Comma(int64(drain.Steps)))
	if drain.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", drain.Error)
	}
	fmt.Fprintln(w)

	t := formatter.Table("SEQ", "UNIT", "NAME", "TIER", "TRIGGER", "OUTCOME")
	for _, r := range runs {
		target := ""
		if r.TriggerTarget != ir.Any {
			target = r.TriggerTarget.String()
		}
		t.AppendRow([]any{
			r.Seq,
			r.Unit.String(),
			r.Name,
			r.Tier,
			describeTrigger(r.TriggerKind, r.TriggerName, target),
			outcomeText(string(r.Outcome), r.Error),
		})
	}
	t.Render()
	return nil
}
