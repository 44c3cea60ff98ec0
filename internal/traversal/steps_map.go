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

// IdentityStep passes traversers through unchanged.
type IdentityStep struct {
	stepBase
}

// NewIdentityStep creates an identity step.
func NewIdentityStep() *IdentityStep { return &IdentityStep{} }

func (s *IdentityStep) Kind() Kind                           { return KindMap }
func (s *IdentityStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *IdentityStep) Reset()                               {}
func (s *IdentityStep) Clone() Step                          { return &IdentityStep{stepBase: s.cloneBase()} }
func (s *IdentityStep) String() string                       { return "IdentityStep" }

func (s *IdentityStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return in.Next(ctx)
}

// IDStep maps an element to its id.
type IDStep struct {
	stepBase
}

// NewIDStep creates an id step.
func NewIDStep() *IDStep { return &IDStep{} }

func (s *IDStep) Kind() Kind                           { return KindMap }
func (s *IDStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *IDStep) Reset()                               {}
func (s *IDStep) Clone() Step                          { return &IDStep{stepBase: s.cloneBase()} }
func (s *IDStep) String() string                       { return "IdStep" }

func (s *IDStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(_ context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		switch e := t.Value().(type) {
		case ir.IRVertex:
			return ir.IRInt(e.ID), true, nil
		case ir.IREdge:
			return ir.IRInt(e.ID), true, nil
		}
		return nil, false, s.fail(fault.CodeInvalidValue, "id() requires an element, got %s", ir.Key(t.Value()))
	})
}

// LabelStep maps an element to its label.
type LabelStep struct {
	stepBase
}

// NewLabelStep creates a label step.
func NewLabelStep() *LabelStep { return &LabelStep{} }

func (s *LabelStep) Kind() Kind                           { return KindMap }
func (s *LabelStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *LabelStep) Reset()                               {}
func (s *LabelStep) Clone() Step                          { return &LabelStep{stepBase: s.cloneBase()} }
func (s *LabelStep) String() string                       { return "LabelStep" }

func (s *LabelStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(_ context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		switch e := t.Value().(type) {
		case ir.IRVertex:
			return ir.IRString(e.Label), true, nil
		case ir.IREdge:
			return ir.IRString(e.Label), true, nil
		}
		return nil, false, s.fail(fault.CodeInvalidValue, "label() requires an element, got %s", ir.Key(t.Value()))
	})
}

// ValueMapStep maps an element to an object of property key to a one
// element list of its value.
type ValueMapStep struct {
	stepBase
	keys []string
}

// NewValueMapStep creates a value map step. No keys means every property.
func NewValueMapStep(keys ...string) *ValueMapStep {
	return &ValueMapStep{keys: slices.Clone(keys)}
}

func (s *ValueMapStep) Kind() Kind                           { return KindMap }
func (s *ValueMapStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *ValueMapStep) Reset()                               {}
func (s *ValueMapStep) String() string                       { return format("PropertyMapStep", s.keys, "value") }

func (s *ValueMapStep) Clone() Step {
	return &ValueMapStep{stepBase: s.cloneBase(), keys: slices.Clone(s.keys)}
}

func (s *ValueMapStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(ctx context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		props, err := properties(ctx, &s.stepBase, t.Value())
		if errors.Is(err, structure.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		out := ir.IRObject{}
		for k, v := range props {
			if len(s.keys) == 0 || slices.Contains(s.keys, k) {
				out[k] = ir.IRArray{v}
			}
		}
		return out, true, nil
	})
}

// properties reads the property map of the element referenced by v.
func properties(ctx context.Context, b *stepBase, v ir.IRValue) (ir.IRObject, error) {
	switch v.(type) {
	case ir.IRVertex, ir.IREdge:
	default:
		return nil, b.fail(fault.CodeInvalidValue, "properties require an element, got %s", ir.Key(v))
	}
	e, err := loadElement(ctx, b.graph(), v)
	if errors.Is(err, structure.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, b.graphErr(err, "read properties")
	}
	switch el := e.(type) {
	case *structure.Vertex:
		return el.Properties, nil
	case *structure.Edge:
		return el.Properties, nil
	}
	return nil, nil
}

// Lambda is a named pure function over values.
type Lambda struct {
	Name string
	Fn   func(ir.IRValue) (ir.IRValue, error)
}

// Built-in lambdas over [key, value] pairs produced by unfolding a map.
var (
	EntryKey   = Lambda{Name: "key", Fn: entryPart(0)}
	EntryValue = Lambda{Name: "value", Fn: entryPart(1)}
)

func entryPart(i int) func(ir.IRValue) (ir.IRValue, error) {
	return func(v ir.IRValue) (ir.IRValue, error) {
		pair, ok := v.(ir.IRArray)
		if !ok || len(pair) != 2 {
			return nil, fault.New(fault.CodeInvalidValue, "expected a [key, value] entry, got %s", ir.Key(v))
		}
		return pair[i], nil
	}
}

// LambdaMapStep applies a Lambda to each value.
type LambdaMapStep struct {
	stepBase
	lambda Lambda
}

// NewLambdaMapStep creates a lambda map step.
func NewLambdaMapStep(l Lambda) *LambdaMapStep { return &LambdaMapStep{lambda: l} }

func (s *LambdaMapStep) Kind() Kind                           { return KindMap }
func (s *LambdaMapStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *LambdaMapStep) Reset()                               {}
func (s *LambdaMapStep) String() string                       { return format("LambdaMapStep", s.lambda.Name) }

func (s *LambdaMapStep) Clone() Step {
	return &LambdaMapStep{stepBase: s.cloneBase(), lambda: s.lambda}
}

func (s *LambdaMapStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(_ context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		v, err := s.lambda.Fn(t.Value())
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				return nil, false, fe.AtStep(s.id)
			}
			return nil, false, fault.Wrap(fault.CodeInvalidValue, err, "lambda %s", s.lambda.Name)
		}
		return v, true, nil
	})
}

// SelectStep maps a traverser to the values labeled in its path. One label
// yields the value itself; several yield an object keyed by label.
// Traversers missing a label are dropped.
type SelectStep struct {
	stepBase
	labels []string
}

// NewSelectStep creates a select step.
func NewSelectStep(labels ...string) *SelectStep {
	return &SelectStep{labels: slices.Clone(labels)}
}

func (s *SelectStep) Kind() Kind { return KindMap }
func (s *SelectStep) Requirements() traverser.Requirements {
	return traverser.Object | traverser.LabeledPath
}
func (s *SelectStep) Reset()         {}
func (s *SelectStep) String() string { return format("SelectStep", s.labels) }

func (s *SelectStep) Clone() Step {
	return &SelectStep{stepBase: s.cloneBase(), labels: slices.Clone(s.labels)}
}

func (s *SelectStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(_ context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		p := t.Path()
		if p == nil {
			return nil, false, nil
		}
		if len(s.labels) == 1 {
			v, ok := p.Get(s.labels[0])
			return v, ok, nil
		}
		out := ir.IRObject{}
		for _, l := range s.labels {
			v, ok := p.Get(l)
			if !ok {
				return nil, false, nil
			}
			out[l] = v
		}
		return out, true, nil
	})
}

// PathStep maps a traverser to the list of values it has visited.
type PathStep struct {
	stepBase
}

// NewPathStep creates a path step.
func NewPathStep() *PathStep { return &PathStep{} }

func (s *PathStep) Kind() Kind                           { return KindMap }
func (s *PathStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Path }
func (s *PathStep) Reset()                               {}
func (s *PathStep) Clone() Step                          { return &PathStep{stepBase: s.cloneBase()} }
func (s *PathStep) String() string                       { return "PathStep" }

func (s *PathStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullMap(ctx, in, func(_ context.Context, t *traverser.Traverser) (ir.IRValue, bool, error) {
		if t.Path() == nil {
			return ir.IRArray{t.Value()}, true, nil
		}
		return ir.IRArray(t.Path().Objects()), true, nil
	})
}
