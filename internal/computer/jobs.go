package computer

import (
	"context"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Memory keys of the built-in jobs.
const (
	// ReducingKey holds the result of a traversal's final reducing barrier.
	ReducingKey = "tinkergo.reducing"
	// TraversersKey holds the halted traversers of a traversal as a bulk
	// set of values.
	TraversersKey = "tinkergo.traversers"
)

// haltedAt decodes the traversers that halted at v.
func haltedAt(v *Vertex) ([]*traverser.Traverser, error) {
	raw, ok := v.Get(HaltedTraversers)
	if !ok {
		return nil, nil
	}
	s, err := traverser.SetFromIR(raw, nil)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidValue, err, "halted traversers of vertex %d", v.ID())
	}
	return s.Slice(), nil
}

// job carries the identity shared by the built-in jobs.
type job struct {
	name string
	key  string
}

func (j job) Name() string      { return j.name }
func (j job) MemoryKey() string { return j.key }

// sumValues emits the integer sum of values under key.
func sumValues(key ir.IRValue, values []ir.IRValue, e Emitter) error {
	var n ir.IRInt
	for _, v := range values {
		i, ok := v.(ir.IRInt)
		if !ok {
			return fault.New(fault.CodeInvalidValue, "sum() requires integers, got %s", ir.Key(v))
		}
		n += i
	}
	e.Emit(key, n)
	return nil
}

func single(pairs []KeyValue, empty ir.IRValue) ir.IRValue {
	if len(pairs) == 0 {
		return empty
	}
	return pairs[0].Value
}

// CountMapReduce totals the bulk of the halted traversers.
type CountMapReduce struct{ job }

// NewCountMapReduce creates the job behind count().
func NewCountMapReduce() *CountMapReduce {
	return &CountMapReduce{job{name: "CountMapReduce", key: ReducingKey}}
}

func (*CountMapReduce) DoStage(Stage) bool { return true }

func (*CountMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		e.Emit(ir.IRNull{}, ir.IRInt(t.Bulk()))
	}
	return nil
}

func (*CountMapReduce) Combine(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*CountMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*CountMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return single(pairs, ir.IRInt(0)), nil
}

// SumMapReduce totals the integer values of the halted traversers, each
// weighted by its bulk.
type SumMapReduce struct{ job }

// NewSumMapReduce creates the job behind sum().
func NewSumMapReduce() *SumMapReduce {
	return &SumMapReduce{job{name: "SumMapReduce", key: ReducingKey}}
}

func (*SumMapReduce) DoStage(Stage) bool { return true }

func (*SumMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		n, ok := t.Value().(ir.IRInt)
		if !ok {
			return fault.New(fault.CodeInvalidValue, "sum() requires integers, got %s", ir.Key(t.Value()))
		}
		e.Emit(ir.IRNull{}, n*ir.IRInt(t.Bulk()))
	}
	return nil
}

func (*SumMapReduce) Combine(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*SumMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*SumMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return single(pairs, ir.IRInt(0)), nil
}

// FoldMapReduce collects the halted values into one list, ordered by
// ir.Compare.
type FoldMapReduce struct{ job }

// NewFoldMapReduce creates the job behind fold().
func NewFoldMapReduce() *FoldMapReduce {
	return &FoldMapReduce{job{name: "FoldMapReduce", key: ReducingKey}}
}

func (*FoldMapReduce) DoStage(s Stage) bool { return s != StageCombine }

func (*FoldMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		for range t.Bulk() {
			e.Emit(ir.IRNull{}, t.Value())
		}
	}
	return nil
}

func (*FoldMapReduce) Combine(context.Context, ir.IRValue, []ir.IRValue, Emitter) error {
	return nil
}

func (*FoldMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	e.Emit(key, ir.IRArray(slices.Clone(values)))
	return nil
}

func (*FoldMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return single(pairs, ir.IRArray{}), nil
}

// DedupMapReduce keeps one of each halted value.
type DedupMapReduce struct{ job }

// NewDedupMapReduce creates the job behind dedup().
func NewDedupMapReduce() *DedupMapReduce {
	return &DedupMapReduce{job{name: "DedupMapReduce", key: ReducingKey}}
}

func (*DedupMapReduce) DoStage(Stage) bool { return true }

func (*DedupMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		e.Emit(t.Value(), ir.IRNull{})
	}
	return nil
}

func (*DedupMapReduce) Combine(_ context.Context, key ir.IRValue, _ []ir.IRValue, e Emitter) error {
	e.Emit(key, ir.IRNull{})
	return nil
}

func (*DedupMapReduce) Reduce(_ context.Context, key ir.IRValue, _ []ir.IRValue, e Emitter) error {
	e.Emit(key, ir.IRNull{})
	return nil
}

func (*DedupMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	out := make(ir.IRArray, len(pairs))
	for i, p := range pairs {
		out[i] = p.Key
	}
	ir.SortValues(out)
	return out, nil
}

// GroupCountMapReduce counts halted values by key. The halted traverser's
// value is the key.
type GroupCountMapReduce struct{ job }

// NewGroupCountMapReduce creates the job behind groupCount().
func NewGroupCountMapReduce() *GroupCountMapReduce {
	return &GroupCountMapReduce{job{name: "GroupCountMapReduce", key: ReducingKey}}
}

func (*GroupCountMapReduce) DoStage(Stage) bool { return true }

func (*GroupCountMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		e.Emit(t.Value(), ir.IRInt(t.Bulk()))
	}
	return nil
}

func (*GroupCountMapReduce) Combine(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*GroupCountMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*GroupCountMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return toMap(pairs), nil
}

func toMap(pairs []KeyValue) ir.IRMap {
	b := ir.NewMapBuilder()
	for _, p := range pairs {
		b.Put(p.Key, p.Value)
	}
	return b.Build()
}

// GroupReduceFunc turns the sorted values of one group into the group's
// value. Returning false drops the group.
type GroupReduceFunc func(ctx context.Context, values ir.IRArray) (ir.IRValue, bool, error)

// GroupMapReduce groups halted values. Each halted traverser carries a
// [key, values] pair where values is the projection of one unit of bulk.
type GroupMapReduce struct {
	job
	reduce GroupReduceFunc
}

// NewGroupMapReduce creates the job behind group(). A nil reduce keeps the
// values list.
func NewGroupMapReduce(reduce GroupReduceFunc) *GroupMapReduce {
	return &GroupMapReduce{job: job{name: "GroupMapReduce", key: ReducingKey}, reduce: reduce}
}

func (*GroupMapReduce) DoStage(s Stage) bool { return s != StageCombine }

func (*GroupMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		pair, ok := t.Value().(ir.IRArray)
		if !ok || len(pair) != 2 {
			return fault.New(fault.CodeInvalidValue, "group expects a [key, values] pair, got %s", ir.Key(t.Value()))
		}
		vals, _ := pair[1].(ir.IRArray)
		if vals == nil {
			vals = ir.IRArray{}
		}
		for range t.Bulk() {
			e.Emit(pair[0], vals)
		}
	}
	return nil
}

func (*GroupMapReduce) Combine(context.Context, ir.IRValue, []ir.IRValue, Emitter) error {
	return nil
}

func (g *GroupMapReduce) Reduce(ctx context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	all := ir.IRArray{}
	for _, v := range values {
		all = append(all, v.(ir.IRArray)...)
	}
	ir.SortValues(all)
	if g.reduce == nil {
		e.Emit(key, all)
		return nil
	}
	out, ok, err := g.reduce(ctx, all)
	if err != nil {
		return err
	}
	if ok {
		e.Emit(key, out)
	}
	return nil
}

func (*GroupMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return toMap(pairs), nil
}

// OrderMapReduce sorts halted values. Each halted traverser carries a
// [sortKeys, value] pair.
type OrderMapReduce struct {
	job
	desc []bool
}

// NewOrderMapReduce creates the job behind order(). desc flags which sort
// keys are descending.
func NewOrderMapReduce(desc []bool) *OrderMapReduce {
	return &OrderMapReduce{job: job{name: "OrderMapReduce", key: ReducingKey}, desc: slices.Clone(desc)}
}

func (*OrderMapReduce) DoStage(s Stage) bool { return s != StageCombine }

func (*OrderMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		pair, ok := t.Value().(ir.IRArray)
		if !ok || len(pair) != 2 {
			return fault.New(fault.CodeInvalidValue, "order expects a [keys, value] pair, got %s", ir.Key(t.Value()))
		}
		for range t.Bulk() {
			e.Emit(ir.IRNull{}, pair)
		}
	}
	return nil
}

func (*OrderMapReduce) Combine(context.Context, ir.IRValue, []ir.IRValue, Emitter) error {
	return nil
}

func (o *OrderMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	pairs := slices.Clone(values)
	slices.SortStableFunc(pairs, func(a, b ir.IRValue) int {
		pa, pb := a.(ir.IRArray), b.(ir.IRArray)
		ka, _ := pa[0].(ir.IRArray)
		kb, _ := pb[0].(ir.IRArray)
		return CompareOrdered(ka, pa[1], kb, pb[1], o.desc)
	})
	out := make(ir.IRArray, len(pairs))
	for i, p := range pairs {
		out[i] = p.(ir.IRArray)[1]
	}
	e.Emit(key, out)
	return nil
}

func (*OrderMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	return single(pairs, ir.IRArray{}), nil
}

// CompareOrdered orders two values by their sort keys, flipping the keys
// flagged in desc. Ties fall back to the values themselves so the order is
// total.
func CompareOrdered(aKeys ir.IRArray, aVal ir.IRValue, bKeys ir.IRArray, bVal ir.IRValue, desc []bool) int {
	for i := 0; i < len(aKeys) && i < len(bKeys); i++ {
		c := ir.Compare(aKeys[i], bKeys[i])
		if i < len(desc) && desc[i] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if c := ir.Compare(aVal, bVal); c != 0 {
		return c
	}
	return strings.Compare(ir.Key(aVal), ir.Key(bVal))
}

// TraverserMapReduce gathers the halted traversers' values with their bulk.
type TraverserMapReduce struct{ job }

// NewTraverserMapReduce creates the job that collects a traversal's output
// when it ends without a reducing barrier.
func NewTraverserMapReduce() *TraverserMapReduce {
	return &TraverserMapReduce{job{name: "TraverserMapReduce", key: TraversersKey}}
}

func (*TraverserMapReduce) DoStage(Stage) bool { return true }

func (*TraverserMapReduce) Map(_ context.Context, v *Vertex, e Emitter) error {
	ts, err := haltedAt(v)
	if err != nil {
		return err
	}
	for _, t := range ts {
		e.Emit(t.Value(), ir.IRInt(t.Bulk()))
	}
	return nil
}

func (*TraverserMapReduce) Combine(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

func (*TraverserMapReduce) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error {
	return sumValues(key, values, e)
}

// GenerateFinalResult returns the bulk set encoding [[value, count], ...].
func (*TraverserMapReduce) GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error) {
	b := ir.NewBulkSet()
	for _, p := range pairs {
		n, _ := p.Value.(ir.IRInt)
		b.Add(p.Key, int64(n))
	}
	return b.ToIR(), nil
}
