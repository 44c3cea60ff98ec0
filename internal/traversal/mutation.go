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

// MutationKind identifies what a mutating step changed.
type MutationKind string

const (
	VertexAdded     MutationKind = "vertex_added"
	PropertyChanged MutationKind = "property_changed"
)

// MutationEvent describes one graph mutation.
type MutationEvent struct {
	Kind   MutationKind
	StepID string
	Vertex ir.IRVertex
	Key    string
	// Old is nil when the property did not exist.
	Old ir.IRValue
	New ir.IRValue
}

// Listener is notified synchronously of each mutation. Handle identifies the
// listener so it is attached at most once per step.
type Listener interface {
	Handle() string
	OnMutation(ctx context.Context, ev MutationEvent) error
}

// Mutating is implemented by steps that change the graph.
type Mutating interface {
	Step
	AddListener(l Listener)
	RemoveListener(handle string)
	ClearListeners()
	Listeners() []Listener
}

type listeners struct {
	list []Listener
}

// AddListener appends l unless a listener with the same handle is attached.
func (ls *listeners) AddListener(l Listener) {
	if slices.ContainsFunc(ls.list, func(x Listener) bool { return x.Handle() == l.Handle() }) {
		return
	}
	ls.list = append(ls.list, l)
}

// RemoveListener detaches the listener with the given handle, if any.
func (ls *listeners) RemoveListener(handle string) {
	ls.list = slices.DeleteFunc(ls.list, func(x Listener) bool { return x.Handle() == handle })
}

// ClearListeners detaches every listener.
func (ls *listeners) ClearListeners() { ls.list = nil }

// Listeners returns the attached listeners in registration order.
func (ls *listeners) Listeners() []Listener { return slices.Clone(ls.list) }

func (ls *listeners) notify(ctx context.Context, ev MutationEvent) error {
	for _, l := range ls.list {
		if err := l.OnMutation(ctx, ev); err != nil {
			return fault.Wrap(fault.CodeMutation, err, "listener %s", l.Handle())
		}
	}
	return nil
}

// AddVertexStep adds a vertex for every traverser and passes the traverser
// through unchanged.
type AddVertexStep struct {
	stepBase
	listeners
	label string
	props ir.IRObject
}

// NewAddVertexStep creates an add vertex step.
func NewAddVertexStep(label string, props ir.IRObject) *AddVertexStep {
	return &AddVertexStep{label: label, props: props.Clone()}
}

func (s *AddVertexStep) Kind() Kind                           { return KindSideEffect }
func (s *AddVertexStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Bulk }
func (s *AddVertexStep) Reset()                               {}
func (s *AddVertexStep) String() string                       { return format("AddVertexStep", s.label, s.props) }

func (s *AddVertexStep) Clone() Step {
	return &AddVertexStep{
		stepBase:  s.cloneBase(),
		listeners: listeners{list: slices.Clone(s.list)},
		label:     s.label,
		props:     s.props.Clone(),
	}
}

// Pull adds one vertex per unit of bulk.
func (s *AddVertexStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	t, err := in.Next(ctx)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < t.Bulk(); i++ {
		v, err := s.graph().AddVertex(ctx, s.label, s.props)
		if err != nil {
			return nil, s.mutationErr(err, "add vertex")
		}
		if err := s.notify(ctx, MutationEvent{Kind: VertexAdded, StepID: s.id, Vertex: v.Ref()}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (b *stepBase) mutationErr(err error, op string) error {
	var fe *fault.Error
	if errors.As(err, &fe) || errors.Is(err, structure.ErrNonLocalElement) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return b.graphErr(err, op)
	}
	return &fault.Error{Class: fault.Execution, Code: fault.CodeMutation, Message: op, StepID: b.id, Err: err}
}

// PropertyStep sets a property on each vertex it sees and passes the
// traverser through unchanged.
type PropertyStep struct {
	stepBase
	listeners
	key   string
	value ir.IRValue
}

// NewPropertyStep creates a property step.
func NewPropertyStep(key string, value ir.IRValue) *PropertyStep {
	return &PropertyStep{key: key, value: value}
}

func (s *PropertyStep) Kind() Kind                           { return KindSideEffect }
func (s *PropertyStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *PropertyStep) Reset()                               {}
func (s *PropertyStep) String() string                       { return format("AddPropertyStep", s.key, s.value) }

func (s *PropertyStep) Clone() Step {
	return &PropertyStep{
		stepBase:  s.cloneBase(),
		listeners: listeners{list: slices.Clone(s.list)},
		key:       s.key,
		value:     s.value,
	}
}

func (s *PropertyStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	t, err := in.Next(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := t.Value().(ir.IRVertex)
	if !ok {
		return nil, s.fail(fault.CodeInvalidValue, "property() requires a vertex, got %s", ir.Key(t.Value()))
	}
	g := s.graph()
	v, err := g.Vertex(ctx, ref.ID)
	if err != nil {
		return nil, s.graphErr(err, "read vertex")
	}
	old := v.Properties[s.key]
	if err := g.SetProperty(ctx, ref.ID, s.key, s.value); err != nil {
		return nil, s.mutationErr(err, "set property")
	}
	ev := MutationEvent{Kind: PropertyChanged, StepID: s.id, Vertex: ref, Key: s.key, Old: old, New: s.value}
	if err := s.notify(ctx, ev); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordingListener collects events. It is safe for sequential use only.
type RecordingListener struct {
	Name   string
	Events []MutationEvent
}

// Handle implements Listener.
func (r *RecordingListener) Handle() string { return r.Name }

// OnMutation implements Listener.
func (r *RecordingListener) OnMutation(_ context.Context, ev MutationEvent) error {
	r.Events = append(r.Events, ev)
	return nil
}

