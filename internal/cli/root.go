package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ripple/internal/config"
	"github.com/roach88/ripple/internal/tracing"
)

// RootOptions holds global flags for all commands, plus the configuration
// loaded before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ripple CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Defaults()}

	cmd := &cobra.Command{
		Use:   "ripple",
		Short: "ripple - reactive units over an entity world",
		Long: `Compile, validate and exercise declarative reactors.

Reactors are declared in CUE and react to world mutations. Scenarios drive
them through a fresh engine and check the resulting runs and state.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "",
		"config file (default: .ripple/config.yaml, then ~/.config/ripple/config.yaml)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewBenchCommand(opts))

	return cmd
}

// Logger builds the command logger. Logs always go to w (stderr) so they
// never corrupt JSON output.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	return o.Config.Logger(w, o.Verbose)
}

// formatter builds an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// tracer starts the configured trace provider. Stdout spans go to the error
// stream for the same reason logs do. Callers must Shutdown the provider.
func (o *RootOptions) tracer(cmd *cobra.Command) (*tracing.Provider, error) {
	return tracing.NewProvider(o.Config.Tracing, tracing.WithWriter(cmd.ErrOrStderr()))
}
