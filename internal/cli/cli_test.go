package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/harness"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/store"
	"github.com/roach88/tinkergo/internal/testutil"
)

type execResult struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, args ...string) execResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return execResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decode[T any](t *testing.T, out string) (string, T) {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   T              `json:"data"`
		Error  *ResponseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data
}

func sortedLines(s string) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	slices.Sort(lines)
	return lines
}

func TestRunText(t *testing.T) {
	res := execute(t, "run", "--traversal", "out-out-names")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, []string{`"lop"`, `"ripple"`}, sortedLines(res.stdout))
}

func TestRunComputerJSON(t *testing.T) {
	res := execute(t, "run", "--traversal", "age-sum", "--mode", "computer", "--partitions", "2", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	status, data := decode[struct {
		Traversal  string `json:"traversal"`
		Mode       string `json:"mode"`
		Values     []int  `json:"values"`
		RunID      string `json:"run_id"`
		Iterations int    `json:"iterations"`
	}](t, res.stdout)
	assert.Equal(t, "ok", status)
	assert.Equal(t, "age-sum", data.Traversal)
	assert.Equal(t, "computer", data.Mode)
	assert.Equal(t, []int{123}, data.Values)
	assert.NotEmpty(t, data.RunID)
	assert.Positive(t, data.Iterations)
}

func TestRunFromEnvironment(t *testing.T) {
	t.Setenv("TINKERGO_TRAVERSAL", "out-count")
	t.Setenv("TINKERGO_MAX_SUPERSTEPS", "50")

	res := execute(t, "run")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "6\n", res.stdout)

	// An explicit flag wins over the environment.
	res = execute(t, "run", "--traversal", "age-sum")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "123\n", res.stdout)
}

func TestRunJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
traversal: "out-names-dedup"
mode:      "computer"
partitions: 3
output:    "json"
`), 0o644))

	res := execute(t, "run", "--config", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	_, data := decode[struct {
		Mode   string `json:"mode"`
		Values []any  `json:"values"`
	}](t, res.stdout)
	assert.Equal(t, "computer", data.Mode)
	assert.Len(t, data.Values, 4)

	res = execute(t, "run", "--config", path, "--mode", "standard", "--format", "text")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, []string{`"josh"`, `"lop"`, `"ripple"`, `"vadas"`}, sortedLines(res.stdout))
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"no traversal", []string{"run"}, ExitCommandError, "a traversal is required"},
		{"unknown traversal", []string{"run", "--traversal", "nope"}, ExitCommandError, `unknown traversal "nope"`},
		{"verification", []string{"run", "--traversal", "first-two", "--mode", "computer"}, ExitCommandError, "E104"},
		{"invalid mode", []string{"run", "--traversal", "age-sum", "--mode", "olap"}, ExitCommandError, "E105"},
		{"unknown strategy", []string{"run", "--traversal", "age-sum", "--exclude", "NopeStrategy"}, ExitCommandError, "NopeStrategy"},
		{"invalid format", []string{"run", "--traversal", "age-sum", "--format", "xml"}, ExitCommandError, `invalid format "xml"`},
		{"missing database", []string{"run", "--traversal", "age-sum", "--graph", "missing.db"}, ExitCommandError, "database not found"},
		{"missing job file", []string{"run", "--config", "missing.cue"}, ExitCommandError, "invalid job file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, tt.args...)
			assert.Equal(t, tt.code, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Empty(t, res.stdout)
		})
	}
}

func TestErrorJSON(t *testing.T) {
	res := execute(t, "run", "--traversal", "first-two", "--mode", "computer", "--format", "json")
	assert.Equal(t, ExitCommandError, res.code)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E104", resp.Error.Code)
}

func TestExplain(t *testing.T) {
	res := execute(t, "explain", "--traversal", "repeat-out")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "original"))

	res = execute(t, "explain", "--traversal", "repeat-out", "--exclude", "RepeatUnrollStrategy", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	_, steps := decode[[]ExplainStep](t, res.stdout)
	require.Len(t, steps, 6)
	assert.Equal(t, "original", steps[0].Strategy)
	assert.Empty(t, steps[0].Category)
	for _, s := range steps[1:] {
		assert.NotEqual(t, "RepeatUnrollStrategy", s.Strategy)
		assert.NotEmpty(t, s.Category)
	}
}

func writeModern(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(testutil.ModernDocument())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "modern.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestGraphDocument(t *testing.T) {
	doc := writeModern(t)
	res := execute(t, "run", "--graph", doc, "--traversal", "lop-creators")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, []string{`"josh"`, `"marko"`, `"peter"`}, sortedLines(res.stdout))
}

func TestLoadRunComponentsRuns(t *testing.T) {
	doc := writeModern(t)
	db := filepath.Join(t.TempDir(), "graph.db")

	res := execute(t, "load", doc, db, "--index", "name", "--index", "age")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "loaded 6 vertices and 6 edges into "+db+"\n", res.stdout)

	res = execute(t, "run", "--graph", db, "--traversal", "out-name-counts", "--mode", "computer")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"@type":"map","entries":[["josh",1],["lop",3],["ripple",1],["vadas",1]]}`+"\n", res.stdout)

	res = execute(t, "components", "--graph", db, "--persist", "--partitions", "3", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	_, comps := decode[ComponentsResult](t, res.stdout)
	assert.True(t, comps.Persisted)
	assert.Equal(t, []Component{{ID: 1, Vertices: []int64{1, 2, 3, 4, 5, 6}}}, comps.Components)

	res = execute(t, "runs", db, "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	_, runs := decode[[]RunSummary](t, res.stdout)
	require.Len(t, runs, 1)
	assert.Equal(t, comps.RunID, runs[0].ID)
	assert.Equal(t, "ConnectedComponentsVertexProgram", runs[0].Program)

	st, err := store.Open(db)
	require.NoError(t, err)
	run, err := st.ReadRun(context.Background(), comps.RunID)
	require.NoError(t, err)
	require.Len(t, run.Vertices, 6)
	for _, v := range run.Vertices {
		assert.Equal(t, ir.IRInt(1), v.Properties["component"])
	}
	require.NoError(t, st.Close())

	// The source graph is left as loaded.
	res = execute(t, "run", "--graph", db, "--traversal", "property-keys")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Len(t, sortedLines(res.stdout), 12)

	// Loading the same ids twice fails.
	res = execute(t, "load", doc, db)
	assert.Equal(t, ExitFailure, res.code)
}

func TestComponents(t *testing.T) {
	res := execute(t, "components")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "1: 1 2 3 4 5 6\n", res.stdout)

	res = execute(t, "components", "--persist")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "--persist needs a sqlite graph")
}

func TestRunsEmpty(t *testing.T) {
	doc := writeModern(t)
	db := filepath.Join(t.TempDir(), "graph.db")
	require.Equal(t, ExitSuccess, execute(t, "load", doc, db).code)

	res := execute(t, "runs", db)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "No runs.\n", res.stdout)

	res = execute(t, "runs", doc)
	assert.Equal(t, ExitCommandError, res.code)
}

func TestCatalog(t *testing.T) {
	res := execute(t, "catalog")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Len(t, lines, len(harness.Catalog()))
	assert.True(t, strings.HasPrefix(lines[0], "age-sum"))
}

func TestTestCommand(t *testing.T) {
	res := execute(t, "test", "../harness/testdata")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "✓ out-name-counts (8 runs)")
	assert.Contains(t, res.stdout, "14 passed, 0 failed, 14 total")

	res = execute(t, "test", "../harness/testdata", "--filter", "first-two-*", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	status, result := decode[TestResult](t, res.stdout)
	assert.Equal(t, "ok", status)
	assert.Equal(t, 2, result.Total)
}

func TestTestCommandFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
traversal: age-sum
expect:
  values: [124]
`), 0o644))

	res := execute(t, "test", dir)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "✗ wrong")
	assert.Contains(t, res.stdout, "0 passed, 1 failed, 1 total")
	assert.Empty(t, res.stderr)

	res = execute(t, "test", dir, "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	status, result := decode[TestResult](t, res.stdout)
	assert.Equal(t, "error", status)
	assert.Equal(t, 1, result.Failed)

	res = execute(t, "test", filepath.Join(dir, "missing"))
	assert.Equal(t, ExitCommandError, res.code)
}

func TestTestCommandUpdatesGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sum.yaml"), []byte(`
name: sum
traversal: age-sum
golden: true
`), 0o644))

	res := execute(t, "test", dir)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "golden comparison failed")

	res = execute(t, "test", dir, "--update")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	data, err := os.ReadFile(filepath.Join(dir, "golden", "sum.golden"))
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"sum","traversal":"age-sum","values":[123]}`+"\n", string(data))

	res = execute(t, "test", dir)
	assert.Equal(t, ExitSuccess, res.code, res.stdout)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(fault.New(fault.CodeInvalidConfig, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(fault.New(fault.CodeCeiling, "too long")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "wrapped", fault.New(fault.CodeMutation, "x"))))
}

func TestVersion(t *testing.T) {
	res := execute(t, "--version")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "tinkergo version 0.1.0")
}
