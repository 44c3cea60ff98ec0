package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tinkergo/internal/harness"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Runs   int      `json:"runs"`
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
	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every YAML scenario under a directory. Each scenario runs a
catalog traversal in standard and computer mode; the runs must agree with
each other, with the scenario's expectation and, for golden scenarios,
with golden/<name>.golden next to the scenario file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, invalid scenarios)

Examples:
  tinkergo test ./scenarios
  tinkergo test ./scenarios --filter "out-*"
  tinkergo test ./scenarios --update
  tinkergo test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, cmd, args[0])
		},
	}

	cmd.Flags().Bool("update", false, "regenerate golden files")
	cmd.Flags().String("filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *RootOptions, cmd *cobra.Command, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	scenarios, err := harness.LoadScenarios(dir, opts.v.GetString("filter"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	f := opts.formatter(cmd, nil)
	result := TestResult{Scenarios: []ScenarioResult{}, Total: len(scenarios)}
	for _, s := range scenarios {
		sr, err := runScenario(opts, cmd, s)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s", s.Name), err)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	text := func(w io.Writer) { writeTestText(w, result) }
	if result.Failed > 0 {
		return f.Failure(fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total), result, text)
	}
	return f.Success(result, text)
}

func runScenario(opts *RootOptions, cmd *cobra.Command, s *harness.Scenario) (ScenarioResult, error) {
	var hopts []harness.Option
	if opts.Verbose {
		hopts = append(hopts, harness.WithLogger(opts.log))
	}
	res, err := harness.Run(cmd.Context(), s, hopts...)
	if err != nil {
		return ScenarioResult{}, err
	}
	sr := ScenarioResult{Name: s.Name, Pass: res.Pass, Runs: len(res.Outcomes), Errors: res.Errors}
	if !s.Golden || !res.Pass {
		return sr, nil
	}

	if opts.v.GetBool("update") {
		if err := harness.UpdateGolden(s, res); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return sr, nil
	}
	match, err := harness.CompareGolden(s, res)
	switch {
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case !match:
		sr.Pass = false
		sr.Errors = append(sr.Errors, "results do not match golden file (run with --update to regenerate)")
	}
	return sr, nil
}

func writeTestText(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s (%d runs)\n", s.Name, s.Runs)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
