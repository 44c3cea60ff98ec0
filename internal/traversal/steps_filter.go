package traversal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traverser"
)

// CoinStep keeps each of a traverser's bulk independently with probability
// p, so the emitted bulk is Binomial(bulk, p). Traversers thinned to zero
// are dropped.
type CoinStep struct {
	stepBase
	p   float64
	src rand.Source
}

// NewCoinStep creates a coin step.
func NewCoinStep(p float64) *CoinStep { return &CoinStep{p: p} }

// Probability returns p.
func (s *CoinStep) Probability() float64 { return s.p }

func (s *CoinStep) Kind() Kind                           { return KindFilter }
func (s *CoinStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *CoinStep) Reset()                               {}
func (s *CoinStep) Clone() Step                          { return &CoinStep{stepBase: s.cloneBase(), p: s.p} }
func (s *CoinStep) String() string                       { return format("CoinStep", fmt.Sprint(s.p)) }

func (s *CoinStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	for {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		if k := s.sample(t.Bulk()); k > 0 {
			t.SetBulk(k)
			return t, nil
		}
	}
}

func (s *CoinStep) sample(n int64) int64 {
	switch {
	case s.p >= 1:
		return n
	case s.p <= 0:
		return 0
	}
	if s.src == nil {
		var seed uint64
		if s.owner != nil {
			seed = s.owner.seed
		}
		s.src = rand.NewPCG(seed, xxhash.Sum64String(s.id))
	}
	return int64(distuv.Binomial{N: float64(n), P: s.p, Src: s.src}.Rand())
}

// RetainStep keeps traversers whose value is in a collection. The
// collection is a constant list, a side effect holding a bulk set, or the
// value under a path label when no side effect has that key.
type RetainStep struct {
	stepBase
	key    string
	values []ir.IRValue
}

// NewRetainStep retains values found in side effect key, or equal to the
// value labeled key in the path.
func NewRetainStep(key string) *RetainStep { return &RetainStep{key: key} }

// NewRetainValuesStep retains values equal to one of values.
func NewRetainValuesStep(values ...ir.IRValue) *RetainStep {
	return &RetainStep{values: slices.Clone(values)}
}

// Key returns the side effect or label key, or "" for constant retention.
func (s *RetainStep) Key() string { return s.key }

func (s *RetainStep) Kind() Kind { return KindFilter }
func (s *RetainStep) Reset()     {}

func (s *RetainStep) Requirements() traverser.Requirements {
	if s.key != "" {
		return traverser.Object | traverser.SideEffects | traverser.LabeledPath
	}
	return traverser.Object
}

func (s *RetainStep) Clone() Step {
	return &RetainStep{stepBase: s.cloneBase(), key: s.key, values: slices.Clone(s.values)}
}

func (s *RetainStep) String() string {
	if s.key != "" {
		return format("RetainStep", s.key)
	}
	return format("RetainStep", ir.IRArray(s.values))
}

func (s *RetainStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullFilter(ctx, in, func(_ context.Context, t *traverser.Traverser) (bool, error) {
		return s.retains(t)
	})
}

func (s *RetainStep) retains(t *traverser.Traverser) (bool, error) {
	v := t.Value()
	if s.key == "" {
		return slices.ContainsFunc(s.values, func(x ir.IRValue) bool { return ir.Equal(v, x) }), nil
	}
	if se := t.SideEffects(); se != nil {
		if coll, ok := se.Get(s.key); ok {
			return collectionContains(coll, v)
		}
	}
	if p := t.Path(); p != nil {
		if labeled, ok := p.Get(s.key); ok {
			return ir.Equal(v, labeled), nil
		}
	}
	return false, nil
}

// collectionContains tests membership in a side effect value: a bulk set in
// its IR form, or any other value compared for equality.
func collectionContains(coll, v ir.IRValue) (bool, error) {
	if arr, ok := coll.(ir.IRArray); ok {
		bs, err := ir.BulkSetFromIR(arr)
		if err == nil {
			return bs.Contains(v), nil
		}
		return slices.ContainsFunc(arr, func(x ir.IRValue) bool { return ir.Equal(v, x) }), nil
	}
	return ir.Equal(coll, v), nil
}

// DedupStep emits each distinct value once, with bulk 1.
type DedupStep struct {
	stepBase
	seen   map[string]struct{}
	bypass bool
}

// NewDedupStep creates a dedup step.
func NewDedupStep() *DedupStep { return &DedupStep{} }

func (s *DedupStep) Kind() Kind                           { return KindFilter }
func (s *DedupStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *DedupStep) Reset()                               { s.seen = nil }
func (s *DedupStep) String() string                       { return "DedupGlobalStep" }
func (s *DedupStep) SetBypass(b bool)                     { s.bypass = b }
func (s *DedupStep) Bypass() bool                         { return s.bypass }

func (s *DedupStep) Clone() Step {
	return &DedupStep{stepBase: s.cloneBase(), bypass: s.bypass}
}

func (s *DedupStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.bypass {
		return in.Next(ctx)
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	return pullFilter(ctx, in, func(_ context.Context, t *traverser.Traverser) (bool, error) {
		k := ir.Key(t.Value())
		if _, ok := s.seen[k]; ok {
			return false, nil
		}
		s.seen[k] = struct{}{}
		t.SetBulk(1)
		return true, nil
	})
}

// MapReduce implements MapReducer.
func (s *DedupStep) MapReduce() computer.MapReduce { return computer.NewDedupMapReduce() }

// Results implements MapReducer.
func (s *DedupStep) Results(final ir.IRValue) ([]ir.BulkEntry, error) {
	return listResults(final)
}

// RangeStep keeps the traversers at positions [low, high) of its input,
// counting bulk. A negative high is unbounded.
type RangeStep struct {
	stepBase
	low, high int64
	counter   int64
}

// NewRangeStep creates a range step.
func NewRangeStep(low, high int64) *RangeStep { return &RangeStep{low: low, high: high} }

// Bounds returns low and high.
func (s *RangeStep) Bounds() (int64, int64) { return s.low, s.high }

func (s *RangeStep) Kind() Kind                           { return KindFilter }
func (s *RangeStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *RangeStep) Reset()                               { s.counter = 0 }
func (s *RangeStep) String() string                       { return format("RangeGlobalStep", s.low, s.high) }

func (s *RangeStep) Clone() Step {
	return &RangeStep{stepBase: s.cloneBase(), low: s.low, high: s.high}
}

func (s *RangeStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	for {
		if s.high >= 0 && s.counter >= s.high {
			return nil, errDone
		}
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		start := s.counter
		s.counter += t.Bulk()
		lo := max(start, s.low)
		hi := s.counter
		if s.high >= 0 {
			hi = min(hi, s.high)
		}
		if hi > lo {
			t.SetBulk(hi - lo)
			return t, nil
		}
	}
}

// TraversalFilterStep keeps traversers for which its child produces at
// least one result.
type TraversalFilterStep struct {
	stepBase
	child *Traversal
}

// NewTraversalFilterStep creates a filter step over child.
func NewTraversalFilterStep(child *Traversal) *TraversalFilterStep {
	return &TraversalFilterStep{child: child}
}

func (s *TraversalFilterStep) Kind() Kind                           { return KindFilter }
func (s *TraversalFilterStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *TraversalFilterStep) Reset()                               {}
func (s *TraversalFilterStep) Children() []*Traversal               { return []*Traversal{s.child} }
func (s *TraversalFilterStep) String() string                       { return format("TraversalFilterStep", s.child.String()) }

func (s *TraversalFilterStep) Clone() Step {
	return &TraversalFilterStep{stepBase: s.cloneBase(), child: cloneChild(s.child)}
}

func (s *TraversalFilterStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullFilter(ctx, in, func(ctx context.Context, t *traverser.Traverser) (bool, error) {
		_, ok, err := firstValue(ctx, s.child, t)
		return ok, err
	})
}
