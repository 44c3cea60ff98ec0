package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/engine"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/store"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traversal"
)

// Outcome is one run of a scenario on one backend, mode and partition
// count.
type Outcome struct {
	Backend    string
	Mode       traversal.Mode
	Partitions int
	// Values are normalized as the catalog entry describes.
	Values []ir.IRValue
	// Error is the fault code the run failed with.
	Error fault.Code
}

// Label identifies the run in error messages, e.g. "memory/computer/p3".
func (o Outcome) Label() string {
	if o.Mode == traversal.Computer {
		return fmt.Sprintf("%s/%s/p%d", o.Backend, o.Mode, o.Partitions)
	}
	return fmt.Sprintf("%s/%s", o.Backend, o.Mode)
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every run agreed and matched the expectation.
	Pass     bool
	Outcomes []Outcome
	// Values are the normalized results every run agreed on.
	Values []ir.IRValue
	Errors []string
}

func newResult() *Result {
	return &Result{Pass: true}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger handed to the engine.
//
// Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.log = l }
}

type runner struct {
	log *slog.Logger
}

// Run executes the scenario's traversal on every backend, in every mode
// and for every partition count, then checks that all runs agree with
// each other and with the expectation.
//
// The returned error reports a harness failure such as an unreadable
// graph; a failing scenario is reported through Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}

	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	entry, ok := Lookup(s.Traversal)
	if !ok {
		return nil, fault.New(fault.CodeInvalidConfig, "unknown traversal %q", s.Traversal)
	}

	res := newResult()
	for _, backend := range s.backends() {
		for _, mode := range s.modes() {
			parts := []int{0}
			if mode == traversal.Computer {
				parts = s.partitions()
			}
			for _, p := range parts {
				out, err := r.runOnce(ctx, s, doc, entry, backend, mode, p)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", s.Name, err)
				}
				res.Outcomes = append(res.Outcomes, out)
			}
		}
	}

	if err := res.check(s); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *runner) runOnce(ctx context.Context, s *Scenario, doc *structure.Document, entry Entry, backend string, mode traversal.Mode, partitions int) (Outcome, error) {
	out := Outcome{Backend: backend, Mode: mode, Partitions: partitions}

	g, closeGraph, err := openGraph(ctx, doc, backend)
	if err != nil {
		return out, err
	}
	defer closeGraph()

	eng := engine.New(g,
		engine.WithLogger(r.log),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(s.Name)),
	)
	t := entry.Build(eng.G(mode))

	var runOpts []computer.Option
	if partitions > 0 {
		runOpts = append(runOpts, computer.WithPartitions(partitions))
	}
	sub, err := eng.Iterate(ctx, t, runOpts...)
	if err != nil {
		code := fault.CodeOf(err)
		if code == "" {
			return out, err
		}
		out.Error = code
		return out, nil
	}
	out.Values = entry.Normalize(sub.Values)
	return out, nil
}

func (res *Result) check(s *Scenario) error {
	want, err := s.expectedValues()
	if err != nil {
		return err
	}
	entry, _ := Lookup(s.Traversal)
	if want != nil {
		want = entry.Normalize(want)
	}

	for i, out := range res.Outcomes {
		switch {
		case s.Expect.Error != "":
			if string(out.Error) != s.Expect.Error {
				res.AddError("%s: expected error %s, got %q", out.Label(), s.Expect.Error, out.Error)
			}
			continue
		case out.Error != "":
			res.AddError("%s: unexpected error %s", out.Label(), out.Error)
			continue
		}

		if i > 0 && res.Outcomes[0].Error == "" {
			first := res.Outcomes[0]
			if diff := cmp.Diff(keys(first.Values), keys(out.Values)); diff != "" {
				res.AddError("%s differs from %s (-%s +%s):\n%s",
					out.Label(), first.Label(), first.Label(), out.Label(), diff)
			}
		}
		if want != nil {
			if diff := cmp.Diff(keys(want), keys(out.Values)); diff != "" {
				res.AddError("%s: unexpected values (-want +got):\n%s", out.Label(), diff)
			}
		}
		if s.Expect.Count != nil && len(out.Values) != *s.Expect.Count {
			res.AddError("%s: expected %d results, got %d", out.Label(), *s.Expect.Count, len(out.Values))
		}
	}

	if len(res.Outcomes) > 0 && res.Outcomes[0].Error == "" {
		res.Values = res.Outcomes[0].Values
	}
	return nil
}

func keys(vals []ir.IRValue) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = ir.Key(v)
	}
	return out
}

// document returns the scenario's graph as a document.
func (s *Scenario) document() (*structure.Document, error) {
	name := s.graph()
	if name == GraphModern {
		return testutil.ModernDocument(), nil
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph document: %w", err)
	}
	defer f.Close()
	return structure.ReadDocument(f)
}

// openGraph loads doc into a fresh graph on backend. Every run gets its
// own graph so computer mode mutations never leak between runs.
func openGraph(ctx context.Context, doc *structure.Document, backend string) (structure.Graph, func(), error) {
	switch backend {
	case BackendSQLite:
		st, err := store.Open(":memory:", store.WithLogger(slog.New(slog.DiscardHandler)))
		if err != nil {
			return nil, nil, fault.Wrap(fault.CodeUnreachable, err, "open sqlite graph")
		}
		if err := st.CreateIndex(ctx, "name"); err != nil {
			st.Close()
			return nil, nil, err
		}
		if err := structure.Load(ctx, st, doc); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		g := structure.NewMemoryGraph(structure.WithIndex("name"))
		if err := structure.Load(ctx, g, doc); err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
}

// Summary renders the outcomes on one line each, for CLI output.
func (res *Result) Summary() string {
	var b strings.Builder
	for _, out := range res.Outcomes {
		if out.Error != "" {
			fmt.Fprintf(&b, "%s: %s\n", out.Label(), out.Error)
			continue
		}
		fmt.Fprintf(&b, "%s: %d results\n", out.Label(), len(out.Values))
	}
	return b.String()
}
