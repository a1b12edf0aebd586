package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Spec is an optional CUE contract file; EnvID selects an environment
	// in it.
	Spec  string
	EnvID string

	// Decompose requests the reward-decomposing environment variant.
	Decompose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the envprobe CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "envprobe",
		Short: "envprobe - locomotion environment diagnostics",
		Long: `Diagnostics for continuous-control locomotion environments.

Each command runs one check against the reference hopper environment and
prints a report. Mismatches are reported without failing the command;
interaction and resource errors exit with status 1.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Spec, "spec", "", "CUE file or directory declaring the environment contract")
	cmd.PersistentFlags().StringVar(&opts.EnvID, "env-id", "", "environment to select from --spec")
	cmd.PersistentFlags().BoolVar(&opts.Decompose, "decompose", false, "use the reward-decomposing environment variant")

	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewEpisodesCommand(opts))
	cmd.AddCommand(NewRewardsCommand(opts))
	cmd.AddCommand(NewObservationsCommand(opts))
	cmd.AddCommand(NewZeroActionCommand(opts))
	cmd.AddCommand(NewFunctionalCommand(opts))
	cmd.AddCommand(NewEnvCheckerCommand(opts))
	cmd.AddCommand(NewParallelCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewSuiteCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs the root command with args and returns the process exit code.
// Errors are reported on stderr, or as a JSON error response on stdout when
// --format json is given.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	format, _ := cmd.PersistentFlags().GetString("format")
	switch {
	case format == "json" && code == ExitFailure:
		// The report already carries the failure.
	case format == "json":
		var details any
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Err != nil {
			details = exitErr.Err.Error()
		}
		f := &OutputFormatter{Format: "json", Writer: stdout}
		_ = f.Error(CodeCommand, err.Error(), details)
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
