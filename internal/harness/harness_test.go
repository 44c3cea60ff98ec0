package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traversal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata", "")
	require.NoError(t, err)
	require.Len(t, scenarios, 14)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			res := RunWithGolden(t, s)
			assert.True(t, res.Pass)
		})
	}
}

// Every catalog traversal that a computer can run gives the same
// normalized results in both modes.
func TestCatalogModeEquivalence(t *testing.T) {
	for _, e := range Catalog() {
		if e.Name == "first-two" {
			continue
		}
		t.Run(e.Name, func(t *testing.T) {
			s := &Scenario{Name: e.Name, Traversal: e.Name, Partitions: []int{1, 2, 3, 7}}
			res, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.Empty(t, res.Errors)
			assert.Len(t, res.Outcomes, 5)
			assert.NotEmpty(t, res.Values)
		})
	}
}

func TestRunOutcomes(t *testing.T) {
	s := &Scenario{
		Name:       "labels",
		Traversal:  "age-sum",
		Backends:   []string{BackendMemory, BackendSQLite},
		Partitions: []int{2},
	}
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, res.Pass, res.Errors)

	var labels []string
	for _, o := range res.Outcomes {
		labels = append(labels, o.Label())
	}
	assert.Equal(t, []string{
		"memory/standard", "memory/computer/p2",
		"sqlite/standard", "sqlite/computer/p2",
	}, labels)
	assert.Equal(t, []ir.IRValue{ir.IRInt(123)}, res.Values)
	assert.Contains(t, res.Summary(), "sqlite/computer/p2: 1 results")
}

func TestRunReportsUnexpectedValues(t *testing.T) {
	s := &Scenario{
		Name:      "wrong",
		Traversal: "co-creators",
		Modes:     []string{"standard"},
		Expect:    Expect{Values: []any{"josh"}},
	}
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "memory/standard: unexpected values")
}

func TestRunReportsCount(t *testing.T) {
	n := 3
	s := &Scenario{Name: "count", Traversal: "local-out-edges", Expect: Expect{Count: &n}}
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "expected 3 results, got 6")
}

func TestRunExpectedError(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		s := &Scenario{Name: "missing", Traversal: "out-count", Modes: []string{"computer"}, Expect: Expect{Error: "E104"}}
		res, err := Run(context.Background(), s)
		require.NoError(t, err)
		assert.False(t, res.Pass)
		assert.Contains(t, res.Errors[0], `expected error E104, got ""`)
	})

	t.Run("unexpected", func(t *testing.T) {
		s := &Scenario{Name: "unexpected", Traversal: "first-two", Partitions: []int{1}}
		res, err := Run(context.Background(), s)
		require.NoError(t, err)
		assert.False(t, res.Pass)
		require.Len(t, res.Outcomes, 2)
		assert.Equal(t, fault.Code(""), res.Outcomes[0].Error)
		assert.Equal(t, fault.CodeVerification, res.Outcomes[1].Error)
		assert.Equal(t, []string{"memory/computer/p1: unexpected error E104"}, res.Errors)
	})
}

func TestRunMissingGraphDocument(t *testing.T) {
	s := &Scenario{Name: "missing", Traversal: "out-count", Graph: "nope.json", dir: t.TempDir()}
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open graph document")
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, "typo.yaml", `
name: typo
traversal: out-count
expect:
  cuont: 6
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cuont")
}

func TestLoadScenarioValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no name", "traversal: out-count\n", "scenario name is required"},
		{"no traversal", "name: x\n", "traversal is required"},
		{"unknown traversal", "name: x\ntraversal: nope\n", `unknown traversal "nope"`},
		{"unknown backend", "name: x\ntraversal: out-count\nbackends: [postgres]\n", `unknown backend "postgres"`},
		{"unknown mode", "name: x\ntraversal: out-count\nmodes: [olap]\n", `unknown mode "olap"`},
		{"zero partitions", "name: x\ntraversal: out-count\npartitions: [0]\n", "partitions must be positive"},
		{"error with values", "name: x\ntraversal: out-count\nexpect:\n  error: E104\n  values: [1]\n", "expect.error excludes"},
		{"float value", "name: x\ntraversal: out-count\nexpect:\n  values: [1.5]\n", "floats are forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, "s.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, fault.IsConfiguration(err))
		})
	}
}

func TestLoadScenariosFilter(t *testing.T) {
	scenarios, err := LoadScenarios("testdata", "first-two-*")
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first-two-computer", scenarios[0].Name)
	assert.Equal(t, "first-two-standard", scenarios[1].Name)

	_, err = LoadScenarios("testdata", "[")
	require.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	s := &Scenario{Name: "snap", Traversal: "out-count", Expect: Expect{Error: "E104"}}
	data, err := Snapshot(s, &Result{})
	require.NoError(t, err)
	assert.Equal(t, `{"error":"E104","scenario":"snap","traversal":"out-count","values":[]}`+"\n", string(data))
}

func TestGoldenUpdateAndCompare(t *testing.T) {
	s := &Scenario{Name: "sum", Traversal: "age-sum", dir: t.TempDir()}
	res, err := Run(context.Background(), s)
	require.NoError(t, err)

	_, err = CompareGolden(s, res)
	require.Error(t, err)

	require.NoError(t, UpdateGolden(s, res))
	data, err := os.ReadFile(GoldenPath(s))
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"sum","traversal":"age-sum","values":[123]}`+"\n", string(data))

	ok, err := CompareGolden(s, res)
	require.NoError(t, err)
	assert.True(t, ok)

	res.Values = []ir.IRValue{ir.IRInt(124)}
	ok, err = CompareGolden(s, res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	entries := Catalog()
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Name, entries[i].Name)
	}

	_, _, err := Build("nope", traversal.Anon())
	assert.Equal(t, fault.CodeInvalidConfig, fault.CodeOf(err))

	tr, e, err := Build("out-count", traversal.Anon())
	require.NoError(t, err)
	assert.Equal(t, "out-count", e.Name)
	assert.Equal(t, 3, tr.Len())
}

func TestNormalize(t *testing.T) {
	vals := []ir.IRValue{
		ir.NewIRMap(ir.IRMapEntry{Key: ir.IRString("a"), Value: ir.IRArray{ir.IRInt(2), ir.IRInt(1)}}),
		ir.IRArray{ir.IRString("b"), ir.IRString("a")},
	}

	deep := Entry{Deep: true}.Normalize(vals)
	assert.Equal(t, []ir.IRValue{
		ir.IRArray{ir.IRString("a"), ir.IRString("b")},
		ir.NewIRMap(ir.IRMapEntry{Key: ir.IRString("a"), Value: ir.IRArray{ir.IRInt(1), ir.IRInt(2)}}),
	}, deep)

	ordered := Entry{Ordered: true}.Normalize(vals)
	assert.Equal(t, vals, ordered)
	assert.Equal(t, ir.IRArray{ir.IRInt(2), ir.IRInt(1)}, vals[0].(ir.IRMap)[0].Value)
}

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
