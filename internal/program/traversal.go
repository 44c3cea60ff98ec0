package program

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traversal"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Memory and view keys of the traversal program.
const (
	voteToHaltKey     = "tinkergo.voteToHalt"
	barrierWaitingKey = "tinkergo.barrierWaiting"
	releaseBarrierKey = "tinkergo.releaseBarrier"
	parkedKey         = "tinkergo.parked"
)

// TraversalProgram runs a locked traversal as a vertex program. Messages
// are sets of traversers; they are combined by union.
//
// Traversers that reach an aggregate step are parked at their vertex and
// their values are added to the step's side effect in memory. Once no
// traverser is in flight, the master releases the traversers parked at the
// earliest aggregate step and they continue with the aggregated collection
// visible.
type TraversalProgram struct {
	root        *traversal.Traversal
	graph       structure.Graph
	sideEffects map[string]ir.Reducer
	// store is the side-effect store of the current superstep; set per
	// partition clone.
	store    *memorySideEffects
	cloneErr error
}

// NewTraversalProgram prepares t and wraps it. The traversal must start
// with a graph step.
func NewTraversalProgram(ctx context.Context, t *traversal.Traversal) (*TraversalProgram, error) {
	if err := t.Prepare(ctx); err != nil {
		return nil, err
	}
	if _, ok := t.StartStep().(*traversal.GraphStep); !ok {
		return nil, fault.New(fault.CodeInvalidConfig, "a traversal program must start with a graph step, got %s", t.StartStep())
	}
	return &TraversalProgram{
		root:        t,
		graph:       t.Graph(),
		sideEffects: t.RegisteredSideEffects(),
	}, nil
}

// Traversal returns the traversal the program runs.
func (p *TraversalProgram) Traversal() *traversal.Traversal { return p.root }

func (p *TraversalProgram) Name() string { return "TraversalVertexProgram" }

func (p *TraversalProgram) Setup(_ context.Context, mem *computer.Memory) error {
	return mem.Set(releaseBarrierKey, ir.IRNull{})
}

func (p *TraversalProgram) VertexComputeKeys() []computer.VertexComputeKey {
	return []computer.VertexComputeKey{
		{Key: computer.HaltedTraversers},
		{Key: parkedKey, Transient: true},
	}
}

func (p *TraversalProgram) MemoryComputeKeys() []computer.MemoryComputeKey {
	keys := []computer.MemoryComputeKey{
		{Key: voteToHaltKey, Reducer: ir.AndReducer, Transient: true},
		{Key: barrierWaitingKey, Reducer: ir.MinReducer, Transient: true},
		{Key: releaseBarrierKey, Reducer: ir.OverwriteReducer, Transient: true},
	}
	for _, k := range slices.Sorted(maps.Keys(p.sideEffects)) {
		keys = append(keys, computer.MemoryComputeKey{Key: sideEffectKey(k), Reducer: p.sideEffects[k]})
	}
	return keys
}

// Clone gives a partition its own copy of the traversal.
func (p *TraversalProgram) Clone() computer.VertexProgram[*traverser.Set] {
	root := p.root.Clone()
	err := root.Lock()
	return &TraversalProgram{
		root:        root,
		graph:       p.graph,
		sideEffects: p.sideEffects,
		cloneErr:    err,
	}
}

// Combine implements computer.Combiner.
func (p *TraversalProgram) Combine(a, b *traverser.Set) *traverser.Set {
	return traverser.Union(a, b)
}

// WorkerIterationStart binds the partition's traversal to this superstep's
// memory.
func (p *TraversalProgram) WorkerIterationStart(_ context.Context, mem computer.MemoryView) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	p.store = &memorySideEffects{mem: mem, keys: p.sideEffects}
	p.root.SetSideEffects(p.store)
	return nil
}

// WorkerIterationEnd releases iterators held by the partition's steps.
func (p *TraversalProgram) WorkerIterationEnd(context.Context, computer.MemoryView) error {
	p.root.Close()
	return nil
}

func (p *TraversalProgram) Execute(ctx context.Context, v *computer.Vertex, msgs computer.Messenger[*traverser.Set], mem computer.MemoryView) error {
	p.root.SetGraph(structure.NewStarGraph(v.Star(), p.graph))
	w := &walk{
		p:      p,
		v:      v,
		mem:    mem,
		active: traverser.NewSet(),
		out:    make(map[int64]*traverser.Set),
	}
	var err error
	if w.halted, err = p.load(v, computer.HaltedTraversers); err != nil {
		return err
	}
	if w.parked, err = p.load(v, parkedKey); err != nil {
		return err
	}

	if mem.IsInitialIteration() {
		w.start()
	}
	for _, m := range msgs.Messages() {
		for _, t := range m.Slice() {
			t = t.Clone()
			t.SetSideEffects(p.store)
			w.active.Add(t)
		}
	}
	if rel, ok := mem.Get(releaseBarrierKey); ok {
		if idx, ok := rel.(ir.IRInt); ok {
			w.release(int(idx))
		}
	}
	if err := w.run(ctx); err != nil {
		return err
	}
	return w.finish(msgs)
}

func (p *TraversalProgram) load(v *computer.Vertex, key string) (*traverser.Set, error) {
	raw, ok := v.Get(key)
	if !ok {
		return traverser.NewSet(), nil
	}
	s, err := traverser.SetFromIR(raw, p.store)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidValue, err, "vertex %d %s", v.ID(), key)
	}
	return s, nil
}

// Terminate halts once a superstep sent no traverser anywhere. Parked
// traversers postpone the halt by one superstep, in which they are
// released.
func (p *TraversalProgram) Terminate(_ context.Context, mem *computer.Memory) (bool, error) {
	vote, _ := mem.Get(voteToHaltKey)
	waiting, _ := mem.Get(barrierWaitingKey)
	for key, v := range map[string]ir.IRValue{
		voteToHaltKey:     ir.IRBool(true),
		barrierWaitingKey: ir.IRNull{},
		releaseBarrierKey: ir.IRNull{},
	} {
		if err := mem.Set(key, v); err != nil {
			return false, err
		}
	}
	if vote != ir.IRBool(true) {
		return false, nil
	}
	if idx, ok := waiting.(ir.IRInt); ok {
		return false, mem.Set(releaseBarrierKey, idx)
	}
	return true, nil
}

// walk is the processing of one vertex in one superstep.
type walk struct {
	p      *TraversalProgram
	v      *computer.Vertex
	mem    computer.MemoryView
	active *traverser.Set
	halted *traverser.Set
	parked *traverser.Set
	out    map[int64]*traverser.Set
}

func (w *walk) nextID(i int) string {
	if i+1 < w.p.root.Len() {
		return w.p.root.Step(i + 1).ID()
	}
	return ""
}

// start seeds the traversers the graph step emits at this vertex.
func (w *walk) start() {
	gs := w.p.root.StartStep().(*traversal.GraphStep)
	for _, val := range gs.StartAt(w.v.Star()) {
		t := gs.Generate(val)
		t.AddLabels(gs.Labels()...)
		t.SetStepID(w.nextID(0))
		w.dispatch(t)
	}
}

// release moves the traversers parked at step index idx past it.
func (w *walk) release(idx int) {
	step := w.p.root.Step(idx)
	keep := traverser.NewSet()
	for t, ok := w.parked.Poll(); ok; t, ok = w.parked.Poll() {
		if w.p.root.IndexOfID(t.StepID()) != idx {
			keep.Add(t)
			continue
		}
		t.AddLabels(step.Labels()...)
		t.SetStepID(w.nextID(idx))
		w.dispatch(t)
	}
	w.parked = keep
}

// host returns the vertex a value lives at. Edges live at their out
// vertex.
func host(v ir.IRValue) (int64, bool) {
	switch e := v.(type) {
	case ir.IRVertex:
		return e.ID, true
	case ir.IREdge:
		return e.OutV.ID, true
	}
	return 0, false
}

func (w *walk) dispatch(t *traverser.Traverser) {
	if t.StepID() == "" {
		w.halted.Add(t)
		return
	}
	if id, ok := host(t.Value()); ok && id != w.v.ID() {
		if w.out[id] == nil {
			w.out[id] = traverser.NewSet()
		}
		w.out[id].Add(t)
		return
	}
	w.active.Add(t)
}

// run drives local traversers until each has halted, parked or left.
// Traversers are batched by step so equal ones coalesce.
func (w *walk) run(ctx context.Context) error {
	root := w.p.root
	for !w.active.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batches := make(map[string]*traverser.Set)
		var ids []string
		for t, ok := w.active.Poll(); ok; t, ok = w.active.Poll() {
			id := t.StepID()
			if batches[id] == nil {
				batches[id] = traverser.NewSet()
				ids = append(ids, id)
			}
			batches[id].Add(t)
		}
		slices.SortFunc(ids, func(a, b string) int {
			if c := root.IndexOfID(a) - root.IndexOfID(b); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		})
		for _, id := range ids {
			if err := w.step(ctx, id, batches[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walk) step(ctx context.Context, id string, in *traverser.Set) error {
	root := w.p.root
	i := root.IndexOfID(id)
	if i < 0 {
		return fault.New(fault.CodeMessenger, "traverser addressed to unknown step %q", id)
	}
	if agg, ok := root.Step(i).(*traversal.AggregateStep); ok {
		collected := ir.NewBulkSet()
		for _, t := range in.Slice() {
			collected.Add(t.Value(), t.Bulk())
			w.parked.Add(t)
		}
		return w.mem.Add(sideEffectKey(agg.Key()), collected.ToIR())
	}
	root.Reset()
	out, err := root.Drive(ctx, i, in)
	if err != nil {
		return err
	}
	for _, t := range out {
		w.dispatch(t)
	}
	return nil
}

// finish stores the vertex's traversers and sends the ones leaving.
func (w *walk) finish(msgs computer.Messenger[*traverser.Set]) error {
	if err := w.keep(computer.HaltedTraversers, w.halted); err != nil {
		return err
	}
	if err := w.keep(parkedKey, w.parked); err != nil {
		return err
	}
	if !w.parked.IsEmpty() {
		first := -1
		for _, t := range w.parked.Slice() {
			if i := w.p.root.IndexOfID(t.StepID()); first < 0 || i < first {
				first = i
			}
		}
		if err := w.mem.Add(barrierWaitingKey, ir.IRInt(first)); err != nil {
			return err
		}
	}
	if len(w.out) == 0 {
		return nil
	}
	for _, id := range slices.Sorted(maps.Keys(w.out)) {
		if err := msgs.Send(id, w.out[id]); err != nil {
			return err
		}
	}
	return w.mem.Add(voteToHaltKey, ir.IRBool(false))
}

func (w *walk) keep(key string, s *traverser.Set) error {
	if s.IsEmpty() {
		w.v.Drop(key)
		return nil
	}
	return w.v.Set(key, s.ToIR())
}
