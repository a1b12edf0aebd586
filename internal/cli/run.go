package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/envspec"
	"github.com/roach88/envprobe/internal/harness"
	"github.com/roach88/envprobe/internal/hopper"
)

var (
	passStyle  = color.New(color.FgGreen, color.Bold)
	failStyle  = color.New(color.FgYellow, color.Bold)
	errorStyle = color.New(color.FgRed, color.Bold)
	mutedStyle = color.New(color.FgHiBlack)
)

func styleStatus(s harness.Status, label string) string {
	switch s {
	case harness.StatusPass:
		return passStyle.Sprint(label)
	case harness.StatusMismatch:
		return failStyle.Sprint(label)
	case harness.StatusError:
		return errorStyle.Sprint(label)
	default:
		return mutedStyle.Sprint(label)
	}
}

// textOptions styles reports written to a terminal.
func textOptions(w io.Writer) []harness.TextOption {
	if !isTerminal(w) {
		return nil
	}
	return []harness.TextOption{harness.WithStyle(styleStatus)}
}

// declaredSpec returns the contract selected by --spec and --env-id, or the
// reference hopper contract.
func declaredSpec(opts *RootOptions) (env.Spec, error) {
	if opts.Spec == "" {
		if opts.EnvID != "" && opts.EnvID != hopper.ID {
			return env.Spec{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown environment %q without --spec", opts.EnvID))
		}
		return hopper.Spec(), nil
	}

	specs, err := envspec.Load(opts.Spec)
	if err != nil {
		return env.Spec{}, WrapExitError(ExitCommandError, "failed to load spec", err)
	}
	id := opts.EnvID
	if id == "" {
		if len(specs) != 1 {
			return env.Spec{}, NewExitError(ExitCommandError,
				fmt.Sprintf("%s declares %d environments, --env-id is required", opts.Spec, len(specs)))
		}
		id = specs[0].ID
	}
	spec, err := envspec.Lookup(specs, id)
	if err != nil {
		return env.Spec{}, WrapExitError(ExitCommandError, "failed to select environment", err)
	}
	return spec, nil
}

// runSuite executes suite against the reference hopper.
func runSuite(cmd *cobra.Command, opts *RootOptions, suite *harness.Suite) (*harness.Result, error) {
	spec, err := declaredSpec(opts)
	if err != nil {
		return nil, err
	}
	result, err := harness.Run(cmd.Context(), suite, harness.Config{
		Factory:   hopper.New,
		Spec:      spec,
		Decompose: opts.Decompose,
		Logger:    newLogger(cmd.ErrOrStderr(), opts.Verbose),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("suite %s could not run", suite.Name), err)
	}
	return result, nil
}

// runSingle runs one check as a suite named after the command and prints the
// report.
func runSingle(cmd *cobra.Command, opts *RootOptions, check harness.Check) error {
	suite := &harness.Suite{Name: "envprobe " + cmd.Name(), Checks: []harness.Check{check}}
	result, err := runSuite(cmd, opts, suite)
	if err != nil {
		return err
	}
	if err := writeResult(cmd, opts, result); err != nil {
		return err
	}
	return exitFor(result)
}

func writeResult(cmd *cobra.Command, opts *RootOptions, result *harness.Result) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: w, Verbose: opts.Verbose}
		return f.Success(result)
	}
	return harness.WriteText(w, result, textOptions(w)...)
}

// exitFor maps a result to the command outcome: only hard failures fail.
func exitFor(result *harness.Result) error {
	if !result.HardFailure {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("suite %s: %d checks failed with errors", result.Suite, result.Counts()[harness.StatusError]))
}
