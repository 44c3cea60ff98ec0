package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traversal"
)

// Graph backends a scenario can run against.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// GraphModern names the built-in modern graph.
const GraphModern = "modern"

// Scenario runs one catalog traversal in every requested mode and checks
// that the modes agree with each other and with the expectation.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Traversal is the catalog name of the traversal to run.
	Traversal string `yaml:"traversal"`

	// Graph is "modern" or a path to a JSON graph document, relative to
	// the scenario file.
	Graph string `yaml:"graph,omitempty"`

	// Backends lists the graph implementations to load the graph into.
	// Default: [memory]
	Backends []string `yaml:"backends,omitempty"`

	// Modes lists the modes to run in. Default: [standard, computer]
	Modes []string `yaml:"modes,omitempty"`

	// Partitions lists the partition counts for computer mode runs.
	// Default: [1, 3]
	Partitions []int `yaml:"partitions,omitempty"`

	Expect Expect `yaml:"expect"`

	// Golden compares the normalized results with testdata/golden/<name>.golden.
	Golden bool `yaml:"golden,omitempty"`

	dir string
}

// Expect holds what every run of a scenario must produce.
type Expect struct {
	// Values are compared after normalization, so their order only
	// matters for ordered traversals.
	Values []any `yaml:"values,omitempty"`

	// Count is the number of results, bulk unrolled.
	Count *int `yaml:"count,omitempty"`

	// Error is a fault code such as E104 that every run must fail with.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos do not silently weaken a scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	s.dir = filepath.Dir(path)

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios loads every .yaml and .yml file under dir, sorted by path.
// filter is an optional glob matched against the file name without
// extension.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !ok {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fault.New(fault.CodeInvalidConfig, "scenario name is required")
	}
	if s.Traversal == "" {
		return fault.New(fault.CodeInvalidConfig, "traversal is required")
	}
	if _, ok := Lookup(s.Traversal); !ok {
		return fault.New(fault.CodeInvalidConfig, "unknown traversal %q", s.Traversal)
	}
	for _, b := range s.Backends {
		if b != BackendMemory && b != BackendSQLite {
			return fault.New(fault.CodeInvalidConfig, "unknown backend %q", b)
		}
	}
	for _, m := range s.Modes {
		if _, err := traversal.ParseMode(m); err != nil {
			return err
		}
	}
	for _, p := range s.Partitions {
		if p < 1 {
			return fault.New(fault.CodeInvalidConfig, "partitions must be positive, got %d", p)
		}
	}
	if s.Expect.Error != "" && (s.Expect.Values != nil || s.Expect.Count != nil) {
		return fault.New(fault.CodeInvalidConfig, "expect.error excludes values and count")
	}
	if _, err := s.expectedValues(); err != nil {
		return err
	}
	return nil
}

func (s *Scenario) graph() string {
	if s.Graph == "" {
		return GraphModern
	}
	return s.Graph
}

func (s *Scenario) backends() []string {
	if len(s.Backends) == 0 {
		return []string{BackendMemory}
	}
	return s.Backends
}

func (s *Scenario) modes() []traversal.Mode {
	if len(s.Modes) == 0 {
		return []traversal.Mode{traversal.Standard, traversal.Computer}
	}
	out := make([]traversal.Mode, 0, len(s.Modes))
	for _, m := range s.Modes {
		mode, _ := traversal.ParseMode(m)
		out = append(out, mode)
	}
	return out
}

func (s *Scenario) partitions() []int {
	if len(s.Partitions) == 0 {
		return []int{1, 3}
	}
	return s.Partitions
}

// expectedValues converts the YAML values; nil means no expectation.
func (s *Scenario) expectedValues() ([]ir.IRValue, error) {
	if s.Expect.Values == nil {
		return nil, nil
	}
	out := make([]ir.IRValue, len(s.Expect.Values))
	for i, v := range s.Expect.Values {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInvalidConfig, err, "expect.values[%d]", i)
		}
		out[i] = iv
	}
	return out, nil
}
