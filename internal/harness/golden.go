package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tinkergo/internal/ir"
)

// Snapshot renders the agreed result of a scenario as canonical JSON, the
// form stored in golden files.
func Snapshot(s *Scenario, res *Result) ([]byte, error) {
	snap := ir.IRObject{
		"scenario":  ir.IRString(s.Name),
		"traversal": ir.IRString(s.Traversal),
		"values":    ir.IRArray(res.Values),
	}
	if res.Values == nil {
		snap["values"] = ir.IRArray{}
	}
	if s.Expect.Error != "" {
		snap["error"] = ir.IRString(s.Expect.Error)
	}
	data, err := ir.MarshalCanonical(snap)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// GoldenPath returns where the golden file of s lives: a golden directory
// next to the scenario file.
func GoldenPath(s *Scenario) string {
	return filepath.Join(s.dir, "golden", s.Name+".golden")
}

// CompareGolden reports whether the snapshot of res matches the golden
// file of s.
func CompareGolden(s *Scenario, res *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(s))
	if err != nil {
		return false, fmt.Errorf("read golden file: %w", err)
	}
	got, err := Snapshot(s, res)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// UpdateGolden writes the snapshot of res as the golden file of s.
func UpdateGolden(s *Scenario, res *Result) error {
	data, err := Snapshot(s, res)
	if err != nil {
		return err
	}
	path := GoldenPath(s)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

// RunWithGolden runs s, fails t when the scenario fails and, for golden
// scenarios, compares the snapshot with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()

	res, err := Run(context.Background(), s, opts...)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}
	for _, e := range res.Errors {
		t.Error(e)
	}
	if !s.Golden {
		return res
	}

	data, err := Snapshot(s, res)
	if err != nil {
		t.Fatalf("snapshot %s: %v", s.Name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return res
}
