package computer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roach88/tinkergo/internal/dataset"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// Result is the outcome of a vertex program run.
type Result struct {
	RunID   string
	Program string
	Memory  *Memory
	// Vertices holds every vertex with its final view, in id order.
	Vertices   []*Vertex
	Iterations int
	HitCeiling bool
	Persist    Persist
	// Graph is the result graph; nil when nothing is persisted.
	Graph    structure.Graph
	Started  time.Time
	Duration time.Duration
}

// payload is what a vertex id carries between supersteps: the vertex and
// its view, or messages addressed to it, or both after merging.
type payload[M any] struct {
	star  *structure.StarVertex
	view  ir.IRObject
	inbox []envelope[M]
}

// RunVertexProgram executes prog over g until it votes to halt or the
// superstep ceiling is reached.
func RunVertexProgram[M any](ctx context.Context, prog VertexProgram[M], g structure.Graph, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	r := &runner[M]{
		prog:  prog,
		graph: g,
		opts:  o,
		res: &Result{
			RunID:   ulid.Make().String(),
			Program: prog.Name(),
			Persist: o.persist,
			Started: time.Now(),
		},
	}
	r.log = o.logger.With("run_id", r.res.RunID, "program", prog.Name())

	err := r.run(ctx)
	r.res.Duration = time.Since(r.res.Started)
	switch {
	case err != nil:
		runsTotal.WithLabelValues(prog.Name(), "error").Inc()
		r.log.Error("vertex program failed", "error", err, "iterations", r.res.Iterations)
		return nil, err
	case r.res.HitCeiling:
		runsTotal.WithLabelValues(prog.Name(), "ceiling").Inc()
	default:
		runsTotal.WithLabelValues(prog.Name(), "halted").Inc()
	}
	r.log.Info("vertex program finished",
		"iterations", r.res.Iterations,
		"hit_ceiling", r.res.HitCeiling,
		"duration", r.res.Duration,
	)
	return r.res, nil
}

type runner[M any] struct {
	prog     VertexProgram[M]
	graph    structure.Graph
	opts     *options
	log      *slog.Logger
	res      *Result
	keys     map[string]VertexComputeKey
	combiner Combiner[M]
}

func (r *runner[M]) run(ctx context.Context) error {
	mem := NewMemory(r.prog.MemoryComputeKeys()...)
	r.res.Memory = mem
	if err := r.prog.Setup(ctx, mem); err != nil {
		return err
	}

	r.keys = make(map[string]VertexComputeKey)
	for _, k := range r.prog.VertexComputeKeys() {
		r.keys[k.Key] = k
	}
	if r.opts.combine {
		r.combiner, _ = r.prog.(Combiner[M])
	}

	stars, err := structure.LoadStars(ctx, r.graph)
	if err != nil {
		return fault.Wrap(fault.CodeUnreachable, err, "load graph")
	}
	pairs := make([]dataset.Pair[int64, payload[M]], len(stars))
	for i, s := range stars {
		pairs[i] = dataset.P(s.ID(), payload[M]{star: s, view: ir.IRObject{}})
	}
	n := r.opts.partitions
	state := dataset.Partition(n, pairs, dataset.WithWorkers(r.opts.workers))

	workers := make([]VertexProgram[M], n)
	for i := range workers {
		workers[i] = r.prog.Clone()
	}

	for {
		start := time.Now()
		next, sent, dropped, err := r.superstep(ctx, state, mem, workers)
		if err != nil {
			return err
		}
		state = next

		halt, err := r.prog.Terminate(ctx, mem)
		if err != nil {
			return err
		}
		superstepsTotal.Inc()
		messagesTotal.Add(float64(sent))
		superstepDuration.Observe(time.Since(start).Seconds())
		r.log.Debug("superstep complete",
			"iteration", mem.Iteration(),
			"messages", sent,
			"dropped_messages", dropped,
			"halted", halt,
		)

		r.res.Iterations = mem.Iteration() + 1
		if halt {
			break
		}
		if r.res.Iterations >= r.opts.maxSupersteps {
			r.res.HitCeiling = true
			r.log.Warn("superstep ceiling reached", "max_supersteps", r.opts.maxSupersteps)
			break
		}
		mem.incrIteration()
	}

	r.res.Vertices = r.finalVertices(state)
	mem.dropTransient()
	return r.output(ctx)
}

// superstep runs one round and returns the vertices for the next one with
// their inboxes attached.
func (r *runner[M]) superstep(ctx context.Context, state *dataset.Dataset[int64, payload[M]], mem *Memory, workers []VertexProgram[M]) (*dataset.Dataset[int64, payload[M]], int, int, error) {
	n := state.NumPartitions()
	views := make([]*WorkerMemory, n)
	sent := make([]int, n)

	local, err := dataset.MapPartitions(ctx, state, func(ctx context.Context, i int, part []dataset.Pair[int64, payload[M]]) ([]dataset.Pair[int64, payload[M]], error) {
		wm := mem.worker()
		views[i] = wm
		out, count, err := r.execute(ctx, workers[i], wm, part)
		if err != nil {
			return nil, workerErr(err, i)
		}
		sent[i] = count
		return out, nil
	})
	if err != nil {
		return nil, 0, 0, err
	}

	verts, err := dataset.Filter(ctx, local, func(p dataset.Pair[int64, payload[M]]) bool {
		return p.Value.star != nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	msgs, err := dataset.Filter(ctx, local, func(p dataset.Pair[int64, payload[M]]) bool {
		return p.Value.star == nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	inboxes, err := dataset.ReduceByKey(ctx, msgs, r.mergeInboxes)
	if err != nil {
		return nil, 0, 0, err
	}
	joined, err := dataset.LeftOuterJoin(ctx, verts, inboxes)
	if err != nil {
		return nil, 0, 0, err
	}
	var delivered atomic.Int64
	live, err := dataset.Map(ctx, joined, func(p dataset.Pair[int64, dataset.Joined[payload[M], payload[M]]]) (dataset.Pair[int64, payload[M]], error) {
		out := p.Value.Left
		for _, in := range p.Value.Right {
			out.inbox = append(out.inbox, in.inbox...)
		}
		if len(p.Value.Right) > 0 {
			delivered.Add(1)
		}
		return dataset.P(p.Key, out), nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	// Messages addressed to vertices that do not exist are dropped.
	dropped := inboxes.Len() - int(delivered.Load())

	if err := mem.merge(views); err != nil {
		return nil, 0, 0, err
	}
	total := 0
	for _, c := range sent {
		total += c
	}
	return live, total, dropped, nil
}

func (r *runner[M]) execute(ctx context.Context, prog VertexProgram[M], wm *WorkerMemory, part []dataset.Pair[int64, payload[M]]) ([]dataset.Pair[int64, payload[M]], int, error) {
	hooks, _ := prog.(WorkerHooks)
	if hooks != nil {
		if err := hooks.WorkerIterationStart(ctx, wm); err != nil {
			return nil, 0, err
		}
	}
	box := newOutbox(r.combiner)
	out := make([]dataset.Pair[int64, payload[M]], 0, len(part))
	for _, p := range part {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		v := &Vertex{star: p.Value.star, view: p.Value.view.Clone(), keys: r.keys}
		if v.view == nil {
			v.view = ir.IRObject{}
		}
		m := &messenger[M]{v: v, inbox: deliver(p.Value.inbox), out: box}
		if err := prog.Execute(ctx, v, m, wm); err != nil {
			return nil, 0, err
		}
		m.closed = true
		out = append(out, dataset.P(v.ID(), payload[M]{star: v.star, view: v.view}))
	}
	if hooks != nil {
		if err := hooks.WorkerIterationEnd(ctx, wm); err != nil {
			return nil, 0, err
		}
	}
	for to, envs := range box.byDest {
		out = append(out, dataset.P(to, payload[M]{inbox: envs}))
	}
	return out, box.count, nil
}

func (r *runner[M]) mergeInboxes(a, b payload[M]) (payload[M], error) {
	inbox := slices.Concat(a.inbox, b.inbox)
	if r.combiner != nil && len(inbox) > 1 {
		acc := inbox[0]
		for _, e := range inbox[1:] {
			acc.msg = r.combiner.Combine(acc.msg, e.msg)
		}
		inbox = []envelope[M]{acc}
	}
	return payload[M]{inbox: inbox}, nil
}

// deliver orders an inbox by sender and send order, which makes delivery
// independent of partitioning.
func deliver[M any](inbox []envelope[M]) []M {
	if len(inbox) == 0 {
		return nil
	}
	sorted := slices.Clone(inbox)
	slices.SortStableFunc(sorted, func(a, b envelope[M]) int {
		if a.from != b.from {
			if a.from < b.from {
				return -1
			}
			return 1
		}
		return a.seq - b.seq
	})
	out := make([]M, len(sorted))
	for i, e := range sorted {
		out[i] = e.msg
	}
	return out
}

func workerErr(err error, partition int) error {
	if _, ok := fault.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fe := &fault.Error{
		Class:   fault.Resource,
		Code:    fault.CodeWorkerFailure,
		Message: "partition worker failed",
		Err:     err,
	}
	if partition >= 0 {
		fe = fe.With("partition", strconv.Itoa(partition))
	}
	return fe
}

func (r *runner[M]) finalVertices(state *dataset.Dataset[int64, payload[M]]) []*Vertex {
	pairs := state.Collect()
	out := make([]*Vertex, len(pairs))
	for i, p := range pairs {
		view := p.Value.view.Clone()
		for key, k := range r.keys {
			if k.Transient {
				delete(view, key)
			}
		}
		out[i] = &Vertex{star: p.Value.star, view: view, keys: r.keys}
	}
	return out
}
