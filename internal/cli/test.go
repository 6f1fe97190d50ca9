package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or empty without a golden file
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against the demo apps",
		Long: `Run YAML scenarios against the demo apps.

Each scenario mounts its app in a fresh in-memory store, runs its steps and
checks step expectations and final assertions. When
<scenarios-dir>/golden/<name>.golden exists the cycle trace must match it
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rehook test ./scenarios
  rehook test ./scenarios --filter "ticker*"
  rehook test ./scenarios --update
  rehook test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if f.JSON() {
			return f.Success(result)
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}

	for _, path := range files {
		f.VerboseLog("running %s", path)
		res := runScenario(path, opts.Update)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !f.JSON() {
			writeScenarioText(f, res)
		}
	}

	var failed *CLIError
	if result.Failed > 0 {
		failed = &CLIError{Code: CodeTestFailed, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
	}
	if f.JSON() {
		if err := f.Result(result, failed); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(f.Writer)
		fmt.Fprintf(f.Writer, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if failed == nil {
			f.Pass("All scenarios passed")
		}
	}
	if failed != nil {
		return NewExitError(ExitFailure, failed.Message)
	}
	return nil
}

// findScenarioFiles lists the scenario files of dir, optionally filtered
// by a glob on the name without extension. The golden directory is not
// searched.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	all, err := harness.ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return all, nil
	}
	var out []string
	for _, path := range all {
		base := filepath.Base(path)
		if ok, _ := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base))); ok {
			out = append(out, path)
		}
	}
	return out, nil
}

// runScenario executes one scenario file and checks its golden trace.
func runScenario(path string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(path),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}
	res := ScenarioResult{Name: scenario.Name}

	result, err := harness.Run(scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Errors = result.Errors

	trace, err := harness.MarshalTrace(scenario, result)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return res
	}
	goldenPath := goldenFilePath(path)
	switch {
	case update:
		if err := writeGolden(goldenPath, trace); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
		res.Golden = "updated"
	default:
		want, err := os.ReadFile(goldenPath)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
			return res
		}
		if !bytes.Equal(bytes.TrimRight(want, "\n"), trace) {
			res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
			return res
		}
		res.Golden = "match"
	}
	res.Pass = len(res.Errors) == 0
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, trace, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func writeScenarioText(f *OutputFormatter, res ScenarioResult) {
	if res.Pass {
		if res.Golden == "updated" {
			f.Pass("%s (golden updated)", res.Name)
		} else {
			f.Pass("%s", res.Name)
		}
		return
	}
	f.Fail("%s", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", e)
	}
}
