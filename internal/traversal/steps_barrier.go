package traversal

import (
	"context"
	"slices"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traverser"
)

// reducing is the shared state of reducing barriers: the step emits a single
// traverser once its upstream is exhausted. In bypass mode the step projects
// each traverser instead and leaves the reduction to its map/reduce job.
type reducing struct {
	done   bool
	bypass bool
}

func (r *reducing) SetBypass(b bool) { r.bypass = b }
func (r *reducing) Bypass() bool     { return r.bypass }
func (r *reducing) barrier()         {}

func singleResult(final ir.IRValue) ([]ir.BulkEntry, error) {
	return []ir.BulkEntry{{Value: final, Count: 1}}, nil
}

func listResults(final ir.IRValue) ([]ir.BulkEntry, error) {
	arr, _ := final.(ir.IRArray)
	out := make([]ir.BulkEntry, 0, len(arr))
	for _, v := range arr {
		out = append(out, ir.BulkEntry{Value: v, Count: 1})
	}
	return out, nil
}

// CountStep emits the total bulk of its input.
type CountStep struct {
	stepBase
	reducing
}

// NewCountStep creates a count step.
func NewCountStep() *CountStep { return &CountStep{} }

func (s *CountStep) Kind() Kind                           { return KindBarrier }
func (s *CountStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *CountStep) Reset()                               { s.done = false }
func (s *CountStep) String() string                       { return "CountGlobalStep" }

func (s *CountStep) Clone() Step {
	return &CountStep{stepBase: s.cloneBase(), reducing: reducing{bypass: s.bypass}}
}

func (s *CountStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		return in.Next(ctx)
	}
	if s.done {
		return nil, errDone
	}
	var n int64
	if err := drain(ctx, in, func(t *traverser.Traverser) error {
		n += t.Bulk()
		return nil
	}); err != nil {
		return nil, err
	}
	s.done = true
	return s.generate(ir.IRInt(n), 1), nil
}

func (s *CountStep) MapReduce() computer.MapReduce { return computer.NewCountMapReduce() }

func (s *CountStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) { return singleResult(final) }

// SumStep emits the bulk-weighted sum of its integer input.
type SumStep struct {
	stepBase
	reducing
}

// NewSumStep creates a sum step.
func NewSumStep() *SumStep { return &SumStep{} }

func (s *SumStep) Kind() Kind                           { return KindBarrier }
func (s *SumStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *SumStep) Reset()                               { s.done = false }
func (s *SumStep) String() string                       { return "SumGlobalStep" }

func (s *SumStep) Clone() Step {
	return &SumStep{stepBase: s.cloneBase(), reducing: reducing{bypass: s.bypass}}
}

func (s *SumStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		return in.Next(ctx)
	}
	if s.done {
		return nil, errDone
	}
	var sum ir.IRInt
	if err := drain(ctx, in, func(t *traverser.Traverser) error {
		n, ok := t.Value().(ir.IRInt)
		if !ok {
			return s.fail(fault.CodeInvalidValue, "sum() requires integers, got %s", ir.Key(t.Value()))
		}
		sum += n * ir.IRInt(t.Bulk())
		return nil
	}); err != nil {
		return nil, err
	}
	s.done = true
	return s.generate(sum, 1), nil
}

func (s *SumStep) MapReduce() computer.MapReduce { return computer.NewSumMapReduce() }

func (s *SumStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) { return singleResult(final) }

// FoldStep emits its input as one list, each value repeated bulk times.
type FoldStep struct {
	stepBase
	reducing
}

// NewFoldStep creates a fold step.
func NewFoldStep() *FoldStep { return &FoldStep{} }

func (s *FoldStep) Kind() Kind                           { return KindBarrier }
func (s *FoldStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *FoldStep) Reset()                               { s.done = false }
func (s *FoldStep) String() string                       { return "FoldStep" }

func (s *FoldStep) Clone() Step {
	return &FoldStep{stepBase: s.cloneBase(), reducing: reducing{bypass: s.bypass}}
}

func (s *FoldStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		return in.Next(ctx)
	}
	if s.done {
		return nil, errDone
	}
	out := ir.IRArray{}
	if err := drain(ctx, in, func(t *traverser.Traverser) error {
		for i := int64(0); i < t.Bulk(); i++ {
			out = append(out, t.Value())
		}
		return nil
	}); err != nil {
		return nil, err
	}
	s.done = true
	return s.generate(out, 1), nil
}

func (s *FoldStep) MapReduce() computer.MapReduce { return computer.NewFoldMapReduce() }

func (s *FoldStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) { return singleResult(final) }

// GroupCountStep emits a map from key to the total bulk of the traversers
// with that key. The key child defaults to the value itself.
type GroupCountStep struct {
	stepBase
	reducing
	key *Traversal
}

// NewGroupCountStep creates a group count step.
func NewGroupCountStep() *GroupCountStep { return &GroupCountStep{} }

func (s *GroupCountStep) Kind() Kind                           { return KindBarrier }
func (s *GroupCountStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *GroupCountStep) Reset()                               { s.done = false }
func (s *GroupCountStep) String() string                       { return format("GroupCountStep", describeChild(s.key)) }

func (s *GroupCountStep) Children() []*Traversal {
	if s.key == nil {
		return nil
	}
	return []*Traversal{s.key}
}

func (s *GroupCountStep) Clone() Step {
	return &GroupCountStep{stepBase: s.cloneBase(), reducing: reducing{bypass: s.bypass}, key: cloneChild(s.key)}
}

func (s *GroupCountStep) modulateBy(t *Traversal, child *Traversal, _ Order) error {
	if s.key != nil {
		return fault.New(fault.CodeInvalidConfig, "groupCount() takes a single by()").AtStep(s.id)
	}
	s.key = child
	if child != nil {
		t.attach(s, child)
	}
	return nil
}

func (s *GroupCountStep) groupKey(ctx context.Context, t *traverser.Traverser) (ir.IRValue, error) {
	k, ok, err := firstValue(ctx, s.key, single(t))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.fail(fault.CodeEmptyKey, "group key traversal produced no value for %s", ir.Key(t.Value()))
	}
	return k, nil
}

func (s *GroupCountStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		k, err := s.groupKey(ctx, t)
		if err != nil {
			return nil, err
		}
		return t.Split(k), nil
	}
	if s.done {
		return nil, errDone
	}
	counts := ir.NewBulkSet()
	if err := drain(ctx, in, func(t *traverser.Traverser) error {
		k, err := s.groupKey(ctx, t)
		if err != nil {
			return err
		}
		counts.Add(k, t.Bulk())
		return nil
	}); err != nil {
		return nil, err
	}
	s.done = true
	b := ir.NewMapBuilder()
	for _, e := range counts.Entries() {
		b.Put(e.Value, ir.IRInt(e.Count))
	}
	return s.generate(b.Build(), 1), nil
}

func (s *GroupCountStep) MapReduce() computer.MapReduce { return computer.NewGroupCountMapReduce() }

func (s *GroupCountStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) {
	return singleResult(final)
}

// GroupStep emits a map from key to the sorted list of values with that
// key, or to the reduction of that list when a reduce child is set. Key and
// value children default to the value itself.
type GroupStep struct {
	stepBase
	reducing
	key, value, reduce *Traversal
	modulated          int
}

// NewGroupStep creates a group step.
func NewGroupStep() *GroupStep { return &GroupStep{} }

func (s *GroupStep) Kind() Kind                           { return KindBarrier }
func (s *GroupStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *GroupStep) Reset()                               { s.done = false }

func (s *GroupStep) String() string {
	return format("GroupStep", describeChild(s.key), describeChild(s.value), describeChild(s.reduce))
}

func (s *GroupStep) Children() []*Traversal {
	var out []*Traversal
	for _, c := range []*Traversal{s.key, s.value, s.reduce} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (s *GroupStep) Clone() Step {
	return &GroupStep{
		stepBase:  s.cloneBase(),
		reducing:  reducing{bypass: s.bypass},
		key:       cloneChild(s.key),
		value:     cloneChild(s.value),
		reduce:    cloneChild(s.reduce),
		modulated: s.modulated,
	}
}

func (s *GroupStep) modulateBy(t *Traversal, child *Traversal, _ Order) error {
	switch s.modulated {
	case 0:
		s.key = child
	case 1:
		s.value = child
	case 2:
		s.reduce = child
	default:
		return fault.New(fault.CodeInvalidConfig, "group() takes at most three by()").AtStep(s.id)
	}
	s.modulated++
	if child != nil {
		t.attach(s, child)
	}
	return nil
}

// entry computes the key and values of one traverser. Values are computed
// for a single copy of the traverser; callers account for bulk.
func (s *GroupStep) entry(ctx context.Context, t *traverser.Traverser) (ir.IRValue, ir.IRArray, error) {
	one := single(t)
	k, ok, err := firstValue(ctx, s.key, one)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, s.fail(fault.CodeEmptyKey, "group key traversal produced no value for %s", ir.Key(t.Value()))
	}
	results, err := runChild(ctx, s.value, one)
	if err != nil {
		return nil, nil, err
	}
	vals := ir.IRArray{}
	for _, r := range results {
		for i := int64(0); i < r.Bulk(); i++ {
			vals = append(vals, r.Value())
		}
	}
	return k, vals, nil
}

func (s *GroupStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		k, vals, err := s.entry(ctx, t)
		if err != nil {
			return nil, err
		}
		return t.Split(ir.IRArray{k, vals}), nil
	}
	if s.done {
		return nil, errDone
	}
	groups := ir.NewMapBuilder()
	if err := drain(ctx, in, func(t *traverser.Traverser) error {
		k, vals, err := s.entry(ctx, t)
		if err != nil {
			return err
		}
		cur, _ := groups.Get(k)
		acc, _ := cur.(ir.IRArray)
		if acc == nil {
			acc = ir.IRArray{}
		}
		for i := int64(0); i < t.Bulk(); i++ {
			acc = append(acc, vals...)
		}
		groups.Put(k, acc)
		return nil
	}); err != nil {
		return nil, err
	}
	s.done = true
	out := ir.NewMapBuilder()
	for _, e := range groups.Build() {
		v, ok, err := s.finish(ctx, e.Value.(ir.IRArray))
		if err != nil {
			return nil, err
		}
		if ok {
			out.Put(e.Key, v)
		}
	}
	return s.generate(out.Build(), 1), nil
}

// finish sorts a group's values and applies the reduce child. A reduction
// that produces nothing drops the group.
func (s *GroupStep) finish(ctx context.Context, vals ir.IRArray) (ir.IRValue, bool, error) {
	sorted := slices.Clone(vals)
	ir.SortValues(sorted)
	if s.reduce == nil {
		return sorted, true, nil
	}
	return applyDetached(ctx, s.reduce, sorted)
}

func (s *GroupStep) MapReduce() computer.MapReduce {
	reduce := s.reduce
	return computer.NewGroupMapReduce(func(ctx context.Context, vals ir.IRArray) (ir.IRValue, bool, error) {
		if reduce == nil {
			return vals, true, nil
		}
		return applyDetached(ctx, reduce, vals)
	})
}

func (s *GroupStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) { return singleResult(final) }

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// Comparator orders traversers by the first value of By (the value itself
// when nil).
type Comparator struct {
	By    *Traversal
	Order Order
}

// OrderStep sorts its input. Ties are broken by value and then by
// canonical form, so the output order does not depend on input order.
type OrderStep struct {
	stepBase
	reducing
	comparators []Comparator
	buf         bufferState
}

// NewOrderStep creates an order step.
func NewOrderStep() *OrderStep { return &OrderStep{} }

func (s *OrderStep) Kind() Kind                           { return KindBarrier }
func (s *OrderStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *OrderStep) Comparators() []Comparator            { return slices.Clone(s.comparators) }

func (s *OrderStep) Reset() {
	s.done = false
	s.buf.reset()
}

func (s *OrderStep) String() string {
	parts := make([]string, len(s.comparators))
	for i, c := range s.comparators {
		parts[i] = describeChild(c.By) + ":" + c.Order.String()
	}
	return format("OrderGlobalStep", parts)
}

func (s *OrderStep) Children() []*Traversal {
	var out []*Traversal
	for _, c := range s.comparators {
		if c.By != nil {
			out = append(out, c.By)
		}
	}
	return out
}

func (s *OrderStep) Clone() Step {
	c := &OrderStep{stepBase: s.cloneBase(), reducing: reducing{bypass: s.bypass}}
	for _, cp := range s.comparators {
		c.comparators = append(c.comparators, Comparator{By: cloneChild(cp.By), Order: cp.Order})
	}
	return c
}

func (s *OrderStep) modulateBy(t *Traversal, child *Traversal, order Order) error {
	s.comparators = append(s.comparators, Comparator{By: child, Order: order})
	if child != nil {
		t.attach(s, child)
	}
	return nil
}

func (s *OrderStep) descending() []bool {
	if len(s.comparators) == 0 {
		return []bool{false}
	}
	out := make([]bool, len(s.comparators))
	for i, c := range s.comparators {
		out[i] = c.Order == Desc
	}
	return out
}

func (s *OrderStep) sortKeys(ctx context.Context, t *traverser.Traverser) (ir.IRArray, error) {
	if len(s.comparators) == 0 {
		return ir.IRArray{t.Value()}, nil
	}
	keys := make(ir.IRArray, len(s.comparators))
	for i, c := range s.comparators {
		k, ok, err := firstValue(ctx, c.By, single(t))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.fail(fault.CodeInvalidValue, "order by traversal produced no value for %s", ir.Key(t.Value()))
		}
		keys[i] = k
	}
	return keys, nil
}

func (s *OrderStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		keys, err := s.sortKeys(ctx, t)
		if err != nil {
			return nil, err
		}
		return t.Split(ir.IRArray{keys, t.Value()}), nil
	}
	if !s.done {
		type keyed struct {
			keys ir.IRArray
			t    *traverser.Traverser
		}
		var all []keyed
		if err := drain(ctx, in, func(t *traverser.Traverser) error {
			keys, err := s.sortKeys(ctx, t)
			if err != nil {
				return err
			}
			all = append(all, keyed{keys, t})
			return nil
		}); err != nil {
			return nil, err
		}
		desc := s.descending()
		slices.SortStableFunc(all, func(a, b keyed) int {
			return computer.CompareOrdered(a.keys, a.t.Value(), b.keys, b.t.Value(), desc)
		})
		for _, k := range all {
			s.buf.out = append(s.buf.out, k.t)
		}
		s.done = true
	}
	if t, ok := s.buf.pop(); ok {
		return t, nil
	}
	return nil, errDone
}

func (s *OrderStep) MapReduce() computer.MapReduce {
	return computer.NewOrderMapReduce(s.descending())
}

func (s *OrderStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) { return listResults(final) }

// AggregateStep is a barrier that collects every value, bulk included, into
// a bulk set side effect before letting its input through.
type AggregateStep struct {
	stepBase
	key  string
	done bool
	buf  bufferState
}

// NewAggregateStep creates an aggregate step writing side effect key.
func NewAggregateStep(key string) *AggregateStep { return &AggregateStep{key: key} }

// Key returns the side effect key.
func (s *AggregateStep) Key() string { return s.key }

func (s *AggregateStep) Kind() Kind { return KindSideEffect }
func (s *AggregateStep) Requirements() traverser.Requirements {
	return traverser.Object | traverser.Bulk | traverser.SideEffects
}
func (s *AggregateStep) String() string { return format("AggregateStep", s.key) }
func (s *AggregateStep) barrier()       {}

func (s *AggregateStep) Reset() {
	s.done = false
	s.buf.reset()
}

func (s *AggregateStep) Clone() Step {
	return &AggregateStep{stepBase: s.cloneBase(), key: s.key}
}

func (s *AggregateStep) registerSideEffects(se *traverser.MapSideEffects) {
	se.Register(s.key, ir.BulkSetReducer)
}

func (s *AggregateStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if !s.done {
		collected := ir.NewBulkSet()
		if err := drain(ctx, in, func(t *traverser.Traverser) error {
			collected.Add(t.Value(), t.Bulk())
			s.buf.out = append(s.buf.out, t)
			return nil
		}); err != nil {
			return nil, err
		}
		if err := s.sideEffects().Merge(s.key, collected.ToIR()); err != nil {
			return nil, fault.Wrap(fault.CodeInvalidValue, err, "aggregate %s", s.key)
		}
		s.done = true
	}
	if t, ok := s.buf.pop(); ok {
		return t, nil
	}
	return nil, errDone
}

func describeChild(c *Traversal) string {
	if c == nil {
		return "identity"
	}
	return c.String()
}
