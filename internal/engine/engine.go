package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/program"
	"github.com/roach88/tinkergo/internal/strategy"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traversal"
)

// Engine runs traversals and vertex programs over one graph.
//
// Thread-safety model:
//   - G, Apply, Iterate, Submit and the run functions are safe from any
//     goroutine; each traversal is owned by the goroutine executing it
//   - the strategy registry is read-only after New
type Engine struct {
	graph      structure.Graph
	strategies *strategy.Registry
	ids        IDGenerator
	clock      *Clock
	log        *slog.Logger
	run        []computer.Option
	seed       *uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. It is also handed to the strategy registry
// built by default and to every vertex program run.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithStrategies replaces the strategy registry.
//
// Default: strategy.Default()
func WithStrategies(r *strategy.Registry) Option {
	return func(e *Engine) { e.strategies = r }
}

// WithIDGenerator sets the submission id generator.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the logical clock used to sequence submissions.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRunOptions sets options applied to every vertex program and
// map/reduce run, before any per-call options.
func WithRunOptions(opts ...computer.Option) Option {
	return func(e *Engine) { e.run = append(e.run, opts...) }
}

// WithSeed fixes the random seed of traversals created by G.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = &seed }
}

// New creates an Engine over g.
func New(g structure.Graph, opts ...Option) *Engine {
	e := &Engine{
		graph: g,
		ids:   UUIDv7Generator{},
		clock: NewClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = strategy.Default(strategy.WithLogger(e.log))
	}
	return e
}

// Graph returns the graph the engine runs against.
func (e *Engine) Graph() structure.Graph { return e.graph }

// Strategies returns the engine's registry.
func (e *Engine) Strategies() *strategy.Registry { return e.strategies }

// G starts a root traversal over the engine's graph in the given mode.
func (e *Engine) G(mode traversal.Mode) *traversal.Traversal {
	opts := []traversal.Option{traversal.WithStrategies(e.strategies), traversal.WithMode(mode)}
	if e.seed != nil {
		opts = append(opts, traversal.WithSeed(*e.seed))
	}
	return traversal.New(e.graph, opts...)
}

// Apply rewrites t with the engine's strategies and locks it.
func (e *Engine) Apply(ctx context.Context, t *traversal.Traversal) error {
	return e.strategies.Apply(ctx, t)
}

// Lock locks t without applying strategies.
func (e *Engine) Lock(t *traversal.Traversal) error {
	return t.Lock()
}

// Explain applies the engine's strategies to a clone of t and reports the
// traversal after each one. t itself is left untouched.
func (e *Engine) Explain(ctx context.Context, t *traversal.Traversal) ([]strategy.Explanation, error) {
	return e.strategies.Explain(ctx, t.Clone())
}

// Result is the outcome of one submission.
type Result struct {
	ID   string
	Seq  int64
	Mode traversal.Mode
	// Fingerprint identifies the locked traversal; equal traversals under
	// equal strategies share it.
	Fingerprint string
	// Values are the results with bulk unrolled.
	Values []ir.IRValue
	// Run is set for computer mode submissions.
	Run *computer.Result

	sideEffects func(string) (ir.IRValue, bool)
}

// SideEffect returns the final value of a traversal side effect such as
// an aggregate key.
func (r *Result) SideEffect(key string) (ir.IRValue, bool) {
	if r.sideEffects == nil {
		return nil, false
	}
	return r.sideEffects(key)
}

// Iterate executes t in its own mode and returns every result. Strategies
// are applied first unless t is already locked.
func (e *Engine) Iterate(ctx context.Context, t *traversal.Traversal, opts ...computer.Option) (*Result, error) {
	if !t.IsRoot() {
		return nil, fault.New(fault.CodeInvalidConfig, "only root traversals can be executed")
	}
	if t.Mode() == traversal.Computer {
		return e.Submit(ctx, t, opts...)
	}

	res := e.begin(t)
	log := e.log.With("submission", res.ID, "seq", res.Seq)
	if err := e.prepare(ctx, t); err != nil {
		return nil, err
	}
	res.Fingerprint = fingerprint(t)
	log.Debug("traversal submitted", "mode", t.Mode(), "traversal", t.String(), "fingerprint", res.Fingerprint)
	vals, err := t.ToList(ctx)
	if err != nil {
		log.Error("traversal failed", "error", err)
		return nil, err
	}
	res.Values = vals
	se := t.SideEffects()
	res.sideEffects = func(key string) (ir.IRValue, bool) { return se.Get(key) }
	log.Info("traversal finished", "results", len(vals))
	return res, nil
}

// Submit executes t as a TraversalVertexProgram. t is switched to computer
// mode when it is not locked yet.
func (e *Engine) Submit(ctx context.Context, t *traversal.Traversal, opts ...computer.Option) (*Result, error) {
	if !t.Locked() && t.Mode() != traversal.Computer {
		if err := t.SetMode(traversal.Computer); err != nil {
			return nil, err
		}
	}
	if t.Mode() != traversal.Computer {
		return nil, fault.New(fault.CodeInvalidConfig, "traversal was locked in %s mode", t.Mode())
	}

	res := e.begin(t)
	log := e.log.With("submission", res.ID, "seq", res.Seq)
	if err := e.prepare(ctx, t); err != nil {
		return nil, err
	}
	res.Fingerprint = fingerprint(t)
	log.Debug("traversal submitted", "mode", t.Mode(), "traversal", t.String(), "fingerprint", res.Fingerprint)
	out, err := program.Run(ctx, t, e.runOptions(opts)...)
	if err != nil {
		log.Error("traversal failed", "error", err)
		return nil, err
	}
	res.Values = out.List()
	res.Run = out.Run
	res.sideEffects = out.SideEffect
	log.Info("traversal finished",
		"results", len(res.Values),
		"run_id", out.Run.RunID,
		"iterations", out.Run.Iterations,
	)
	return res, nil
}

func fingerprint(t *traversal.Traversal) string {
	return ir.Fingerprint(ir.DomainTraversal, ir.IRObject{
		"mode":      ir.IRString(t.Mode().String()),
		"traversal": ir.IRString(t.String()),
	})
}

func (e *Engine) begin(t *traversal.Traversal) *Result {
	return &Result{ID: e.ids.Generate(), Seq: e.clock.Next(), Mode: t.Mode()}
}

// prepare applies the engine's strategies unless t carries its own or is
// already locked.
func (e *Engine) prepare(ctx context.Context, t *traversal.Traversal) error {
	if t.Locked() {
		return nil
	}
	if t.HasStrategies() {
		return t.Prepare(ctx)
	}
	return e.strategies.Apply(ctx, t)
}

func (e *Engine) runOptions(opts []computer.Option) []computer.Option {
	return slices.Concat([]computer.Option{computer.WithLogger(e.log)}, e.run, opts)
}

// RunVertexProgram runs prog over the engine's graph with the engine's run
// options followed by opts.
func RunVertexProgram[M any](ctx context.Context, e *Engine, prog computer.VertexProgram[M], opts ...computer.Option) (*computer.Result, error) {
	seq := e.clock.Next()
	e.log.Debug("vertex program submitted", "program", prog.Name(), "seq", seq)
	return computer.RunVertexProgram(ctx, prog, e.graph, e.runOptions(opts)...)
}

// RunMapReduce runs job over the vertices of a finished run and stores the
// result in the run's memory under the job's key.
func (e *Engine) RunMapReduce(ctx context.Context, res *computer.Result, job computer.MapReduce, opts ...computer.Option) (ir.IRValue, error) {
	return res.MapReduce(ctx, job, e.runOptions(opts)...)
}
