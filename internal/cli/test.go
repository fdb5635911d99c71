package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/kvorm/internal/harness"
)

// TestOptions holds the test command flags.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Parallel int    // scenarios run at once
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a test run. Scenarios are in file order.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command, which runs harness scenarios.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <schemas-dir> <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run YAML scenarios against the entity schemas.

Each scenario saves and finds records in a fresh in-memory store, checks
its assertions and compares the final keyspace with the golden file at
<scenarios-dir>/golden/<name>.golden when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  kvorm test ./schemas ./scenarios
  kvorm test ./schemas ./scenarios --filter "color-*"
  kvorm test ./schemas ./scenarios --update
  kvorm test ./schemas ./scenarios --parallel 8 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of scenarios to run concurrently")

	return cmd
}

func runTests(opts *TestOptions, schemasDir, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(schemasDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("schemas directory not found: %s", schemasDir))
	}
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.Parallel < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--parallel must be at least 1, got %d", opts.Parallel))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot list scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	// Each goroutine owns one slot, so output order follows the file order.
	results := make([]ScenarioResult, len(scenarioFiles))
	var g errgroup.Group
	g.SetLimit(opts.Parallel)
	for i, file := range scenarioFiles {
		g.Go(func() error {
			results[i] = runScenario(file, schemasDir, opts.Update)
			return nil
		})
	}
	_ = g.Wait()

	result := TestResult{Scenarios: results, Total: len(results)}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles lists the .yaml and .yml files under dir, in lexical
// order, keeping those whose base name (without extension) matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); filter == "" || ok {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// runScenario executes a single scenario and returns the result. It
// writes nothing, so scenarios can run concurrently.
func runScenario(scenarioFile, schemasDir string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenarioWithBasePath(scenarioFile, schemasDir)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(scenarioFile),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	out := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}

	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("failed to marshal dump: %v", err))
		return out
	}

	goldenPath := goldenFilePath(scenarioFile)
	if update {
		if err := writeGoldenFile(goldenPath, snapshot); err != nil {
			out.Pass = false
			out.Errors = append(out.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return out
		}
		out.Golden = "updated"
		return out
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// Assertions alone decide the outcome.
		out.Golden = "missing"
	case err != nil:
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(want, snapshot):
		out.Pass = false
		out.Errors = append(out.Errors, "keyspace does not match golden file (run with --update to regenerate)")
	default:
		out.Golden = "match"
	}
	return out
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	dir, file := filepath.Split(scenarioFile)
	return filepath.Join(dir, "golden", strings.TrimSuffix(file, filepath.Ext(file))+".golden")
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON writes the summary as a CLI response. Any failed scenario
// makes the command exit 1.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}
	return failedScenarios(result)
}

func failedScenarios(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
}

// outputTestText prints one line per scenario, errors indented below it,
// then the summary.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, s := range result.Scenarios {
		writeScenarioLine(w, s)
	}

	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return failedScenarios(result)
}

func writeScenarioLine(w io.Writer, s ScenarioResult) {
	if !s.Pass {
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintln(w, indent(e, "  "))
		}
		return
	}
	if s.Golden == "updated" {
		fmt.Fprintf(w, "✓ %s (golden updated)\n", s.Name)
		return
	}
	fmt.Fprintf(w, "✓ %s\n", s.Name)
}
