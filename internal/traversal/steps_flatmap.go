package traversal

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// VertexStep moves from a vertex to its adjacent vertices or incident edges.
type VertexStep struct {
	stepBase
	dir    structure.Direction
	labels []string
	edges  bool
	state  flatMapState
}

// NewVertexStep creates a vertex step. With edges set the step emits the
// incident edges instead of the vertices at their other end.
func NewVertexStep(dir structure.Direction, edges bool, labels ...string) *VertexStep {
	return &VertexStep{dir: dir, edges: edges, labels: slices.Clone(labels)}
}

// Direction returns the traversed direction.
func (s *VertexStep) Direction() structure.Direction { return s.dir }

// ReturnsEdges reports whether the step emits edges.
func (s *VertexStep) ReturnsEdges() bool { return s.edges }

func (s *VertexStep) Kind() Kind                           { return KindFlatMap }
func (s *VertexStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *VertexStep) Reset()                               { s.state.reset() }

func (s *VertexStep) Clone() Step {
	return &VertexStep{stepBase: s.cloneBase(), dir: s.dir, edges: s.edges, labels: slices.Clone(s.labels)}
}

func (s *VertexStep) String() string {
	ret := "vertex"
	if s.edges {
		ret = "edge"
	}
	return format("VertexStep", s.dir.String(), s.labels, ret)
}

func (s *VertexStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return s.state.pull(ctx, in, s.expand)
}

func (s *VertexStep) expand(ctx context.Context, t *traverser.Traverser) (structure.Iterator[ir.IRValue], error) {
	v, ok := t.Value().(ir.IRVertex)
	if !ok {
		return nil, s.fail(fault.CodeInvalidValue, "%s requires a vertex, got %s", s.dir, ir.Key(t.Value()))
	}
	it, err := s.graph().IncidentEdges(ctx, v.ID, s.dir, s.labels...)
	if errors.Is(err, structure.ErrNotFound) {
		return structure.NewSliceIterator[ir.IRValue](nil), nil
	}
	if err != nil {
		return nil, s.graphErr(err, "read incident edges")
	}
	return structure.MapIterator(it, func(e *structure.Edge) ir.IRValue {
		if s.edges {
			return e.Ref()
		}
		return e.Other(v.ID)
	}), nil
}

// PropertiesStep emits the values of an element's properties, in key order.
type PropertiesStep struct {
	stepBase
	keys  []string
	state flatMapState
}

// NewPropertiesStep creates a values step. No keys means every property.
func NewPropertiesStep(keys ...string) *PropertiesStep {
	return &PropertiesStep{keys: slices.Clone(keys)}
}

// Keys returns the selected property keys.
func (s *PropertiesStep) Keys() []string { return slices.Clone(s.keys) }

func (s *PropertiesStep) Kind() Kind                           { return KindFlatMap }
func (s *PropertiesStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *PropertiesStep) Reset()                               { s.state.reset() }
func (s *PropertiesStep) String() string                       { return format("PropertiesStep", s.keys, "value") }

func (s *PropertiesStep) Clone() Step {
	return &PropertiesStep{stepBase: s.cloneBase(), keys: slices.Clone(s.keys)}
}

func (s *PropertiesStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return s.state.pull(ctx, in, func(ctx context.Context, t *traverser.Traverser) (structure.Iterator[ir.IRValue], error) {
		props, err := properties(ctx, &s.stepBase, t.Value())
		if errors.Is(err, structure.ErrNotFound) {
			return structure.NewSliceIterator[ir.IRValue](nil), nil
		}
		if err != nil {
			return nil, err
		}
		var out []ir.IRValue
		for _, k := range props.SortedKeys() {
			if len(s.keys) == 0 || slices.Contains(s.keys, k) {
				out = append(out, props[k])
			}
		}
		return structure.NewSliceIterator(out), nil
	})
}

// UnfoldStep flattens collections: array elements are emitted in order and
// maps and objects become [key, value] entries in key order. Other values
// pass through.
type UnfoldStep struct {
	stepBase
	state flatMapState
}

// NewUnfoldStep creates an unfold step.
func NewUnfoldStep() *UnfoldStep { return &UnfoldStep{} }

func (s *UnfoldStep) Kind() Kind                           { return KindFlatMap }
func (s *UnfoldStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *UnfoldStep) Reset()                               { s.state.reset() }
func (s *UnfoldStep) Clone() Step                          { return &UnfoldStep{stepBase: s.cloneBase()} }
func (s *UnfoldStep) String() string                       { return "UnfoldStep" }

func (s *UnfoldStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return s.state.pull(ctx, in, func(_ context.Context, t *traverser.Traverser) (structure.Iterator[ir.IRValue], error) {
		return structure.NewSliceIterator(unfold(t.Value())), nil
	})
}

func unfold(v ir.IRValue) []ir.IRValue {
	switch c := v.(type) {
	case ir.IRArray:
		return c
	case ir.IRObject:
		out := make([]ir.IRValue, 0, len(c))
		for _, k := range c.SortedKeys() {
			out = append(out, ir.IRArray{ir.IRString(k), c[k]})
		}
		return out
	case ir.IRMap:
		out := make([]ir.IRValue, 0, len(c))
		for _, e := range c {
			out = append(out, ir.IRArray{e.Key, e.Value})
		}
		return out
	}
	return []ir.IRValue{v}
}
