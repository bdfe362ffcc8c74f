package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/spf13/cobra"

	"github.com/roach88/ripple/internal/engine"
	"github.com/roach88/ripple/internal/ir"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Widths []int
	Depths []int
	Iters  int
}

// BenchRow is the measurement of one width x depth shape.
type BenchRow struct {
	Width      int           `json:"width"`
	Depth      int           `json:"depth"`
	Iterations int           `json:"iterations"`
	Steps      int64         `json:"steps"` // unit runs across all iterations
	Avg        time.Duration `json:"avg_ns"`
	Min        time.Duration `json:"min_ns"`
	P75        time.Duration `json:"p75_ns"`
	P99        time.Duration `json:"p99_ns"`
	Max        time.Duration `json:"max_ns"`
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure drain latency over reactor chains",
		Long: `Measure how long a drain takes to propagate one resource write.

For every width x depth shape, registers width chains of depth reactors.
Each reactor listens to its own resource and copies the value into the
next one in its chain; every chain starts from the same source resource.
One iteration writes the source and times the drain that follows.

Example:
  ripple bench --width 1,10 --depth 1,10,100 --iters 500`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	cmd.Flags().IntSliceVar(&opts.Widths, "width", []int{1, 10}, "number of parallel chains")
	cmd.Flags().IntSliceVar(&opts.Depths, "depth", []int{1, 10, 100}, "reactors per chain")
	cmd.Flags().IntVar(&opts.Iters, "iters", 1000, "drains measured per shape")

	return cmd
}

func runBench(opts *BenchOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Iters < 1 {
		return NewExitError(ExitCommandError, "--iters must be at least 1")
	}
	for _, n := range append(append([]int{}, opts.Widths...), opts.Depths...) {
		if n < 1 {
			return NewExitError(ExitCommandError, "--width and --depth values must be at least 1")
		}
	}

	ctx := commandContext(cmd)
	rows := make([]BenchRow, 0, len(opts.Widths)*len(opts.Depths))
	for _, w := range opts.Widths {
		for _, d := range opts.Depths {
			formatter.VerboseLog("propagate: %d * %d", w, d)
			row, err := benchShape(ctx, opts.RootOptions, w, d, opts.Iters)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("bench %d * %d", w, d), err)
			}
			rows = append(rows, row)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(rows)
	}

	t := formatter.Table("benchmark", "steps", "avg", "min", "p75", "p99", "max")
	t.SetTitle("Ripple Drains")
	for _, r := range rows {
		t.AppendRow([]any{
			fmt.Sprintf("propagate: %d * %d", r.Width, r.Depth),
			humanize.Comma(r.Steps),
			r.Avg,
			r.Min,
			r.P75,
			r.P99,
			r.Max,
		})
	}
	t.Render()
	return nil
}

// benchShape builds a fresh engine with width chains of depth reactors and
// times iters drains.
func benchShape(ctx context.Context, opts *RootOptions, width, depth, iters int) (BenchRow, error) {
	counter := &stepCounter{}
	engineOpts := append(opts.Config.EngineOptions(),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
		engine.WithRecorder(counter),
		engine.WithDrainIDs(engine.NewSequenceGenerator("bench")),
		// A deep chain is one long drain by construction.
		engine.WithMaxSteps(0),
	)
	e := engine.New(engineOpts...)
	defer e.Close()

	for w := 0; w < width; w++ {
		for d := 0; d < depth; d++ {
			listen := chainResource(w, d)
			next := chainResource(w, d+1)
			last := d == depth-1
			_, err := e.OnPersistent(fmt.Sprintf("chain%d.%d", w, d), []engine.Trigger{engine.ResourceMutated(listen)},
				func(c *engine.Context) error {
					if last {
						return nil
					}
					if m, ok := c.Trigger(); ok {
						c.Commands().SetResource(next, m.Payload)
					}
					return nil
				})
			if err != nil {
				return BenchRow{}, err
			}
		}
	}

	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	for i := 0; i < iters; i++ {
		start := time.Now()
		if err := e.SetResource(ctx, "src", ir.Int(i)); err != nil {
			return BenchRow{}, err
		}
		tach.AddTime(time.Since(start))
	}

	calc := tach.Calc()
	return BenchRow{
		Width:      width,
		Depth:      depth,
		Iterations: iters,
		Steps:      counter.steps,
		Avg:        calc.Time.Avg,
		Min:        calc.Time.Min,
		P75:        calc.Time.P75,
		P99:        calc.Time.P99,
		Max:        calc.Time.Max,
	}, nil
}

// chainResource names the resource that reactor d of chain w listens to.
// Every chain starts at "src".
func chainResource(w, d int) string {
	if d == 0 {
		return "src"
	}
	return fmt.Sprintf("c%d.%d", w, d)
}

// stepCounter tallies drain steps without keeping records.
type stepCounter struct {
	steps int64
}

func (s *stepCounter) RecordRun(context.Context, ir.RunRecord) error { return nil }

func (s *stepCounter) RecordDrain(_ context.Context, rec ir.DrainRecord) error {
	s.steps += int64(rec.Steps)
	return nil
}
