package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/envprobe/internal/harness"
	"github.com/roach88/envprobe/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DB    string
	Limit int
	RunID string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded suite runs",
		Long: `List suite runs recorded with 'envprobe suite --db', newest first, or
print the full report of one run.

Examples:
  envprobe history --db envprobe.db
  envprobe history --db envprobe.db --run 0190c8f2-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", envOr(EnvDB, ""), "SQLite database runs were recorded in")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the report of one run")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	if opts.DB == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("--db is required (or set %s)", EnvDB))
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	f := &OutputFormatter{Format: opts.Format, Writer: w, Verbose: opts.Verbose}

	if opts.RunID != "" {
		run, err := st.ReadRun(cmd.Context(), opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		if opts.Format == "json" {
			return f.Success(run)
		}
		fmt.Fprintf(w, "Run: %s (#%d, %s)\n", run.ID, run.Seq, run.CreatedAt.Format(time.RFC3339))
		return harness.WriteText(w, &run.Result, textOptions(w)...)
	}

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.Format == "json" {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tSUITE\tENVIRONMENT\tRESULT\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Seq, r.ID, r.Result.Suite, r.Result.Environment, runVerdict(r.Result), r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runVerdict(r harness.Result) string {
	switch {
	case r.HardFailure:
		return "FAIL (hard failure)"
	case !r.Pass:
		return "FAIL"
	default:
		return "PASS"
	}
}
