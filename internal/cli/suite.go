package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/roach88/envprobe/internal/harness"
	"github.com/roach88/envprobe/internal/store"
)

// SuiteOptions holds flags for the suite command.
type SuiteOptions struct {
	*RootOptions
	Filter string
	DB     string
}

// suiteRun is one suite outcome in JSON output.
type suiteRun struct {
	File   string          `json:"file"`
	RunID  string          `json:"run_id,omitempty"`
	Result *harness.Result `json:"result"`
}

// NewSuiteCommand creates the suite command.
func NewSuiteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuiteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suite <file-or-dir>",
		Short: "Run diagnostic suites from YAML files",
		Long: `Run every check of a suite file, or of every .yaml/.yml suite under a
directory. Reports are printed in order. With --db, each run is stored and
can be listed with 'envprobe history'.

Examples:
  envprobe suite suites/hopper.yaml
  envprobe suite suites --filter 'hopper*.yaml'
  envprobe suite suites --db envprobe.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "glob selecting suite files under a directory (supports **)")
	cmd.Flags().StringVar(&opts.DB, "db", envOr(EnvDB, ""), "SQLite database to record runs in")
	return cmd
}

func runSuites(cmd *cobra.Command, opts *SuiteOptions, path string) error {
	files, err := suiteFiles(path, opts.Filter)
	if err != nil {
		return err
	}

	suites := make([]*harness.Suite, 0, len(files))
	for _, f := range files {
		s, err := harness.LoadSuite(f)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load suite %s", f), err)
		}
		suites = append(suites, s)
	}

	var st *store.Store
	if opts.DB != "" {
		st, err = store.Open(opts.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	runs := make([]suiteRun, 0, len(suites))
	hard := 0
	for i, s := range suites {
		result, err := runSuite(cmd, opts.RootOptions, s)
		if err != nil {
			return err
		}
		run := suiteRun{File: files[i], Result: result}
		if st != nil {
			id, err := st.WriteRun(cmd.Context(), result)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to record run", err)
			}
			run.RunID = id
		}
		if result.HardFailure {
			hard++
		}
		runs = append(runs, run)
	}

	if err := writeSuiteRuns(cmd, opts.RootOptions, runs); err != nil {
		return err
	}
	if hard > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d suites had hard failures", hard, len(runs)))
	}
	return nil
}

func writeSuiteRuns(cmd *cobra.Command, opts *RootOptions, runs []suiteRun) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: w, Verbose: opts.Verbose}
		return f.Success(runs)
	}

	for i, run := range runs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := harness.WriteText(w, run.Result, textOptions(w)...); err != nil {
			return err
		}
		if run.RunID != "" {
			fmt.Fprintf(w, "Run: %s\n", run.RunID)
		}
	}
	return nil
}

// suiteFiles returns path itself when it is a file, or the sorted suite files
// under it matching filter.
func suiteFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read suites", err)
	}
	if !info.IsDir() {
		if filter != "" {
			return nil, NewExitError(ExitCommandError, "--filter requires a directory")
		}
		return []string{path}, nil
	}
	if filter != "" && !doublestar.ValidatePattern(filter) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --filter pattern %q", filter))
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSuiteFile(p) {
			return nil
		}
		if filter != "" {
			rel, err := filepath.Rel(path, p)
			if err != nil {
				return err
			}
			ok, err := doublestar.Match(filter, filepath.ToSlash(rel))
			if err != nil || !ok {
				return err
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read suites", err)
	}
	if len(files) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no suite files found in %s", path))
	}
	slices.Sort(files)
	return files, nil
}

func isSuiteFile(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}
