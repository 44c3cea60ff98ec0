package traversal

import (
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// The builder methods append a step and return t so calls chain. The first
// failure is recorded and surfaces from Err, Lock and every execution method;
// later builder calls are ignored.

func (t *Traversal) add(s Step, children ...*Traversal) *Traversal {
	if t.err != nil {
		return t
	}
	for _, c := range children {
		if c != nil && c.err != nil {
			t.err = c.err
			return t
		}
	}
	if err := t.AddStep(s); err != nil {
		t.err = err
	}
	return t
}

// V starts at the vertices with the given ids, or all vertices.
func (t *Traversal) V(ids ...int64) *Traversal {
	return t.add(NewGraphStep(Vertices, ids...))
}

// E starts at the edges with the given ids, or all edges.
func (t *Traversal) E(ids ...int64) *Traversal {
	return t.add(NewGraphStep(Edges, ids...))
}

// Inject starts with the given values.
func (t *Traversal) Inject(values ...ir.IRValue) *Traversal {
	return t.add(NewStartStep(values...))
}

func (t *Traversal) Out(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.Out, false, labels...))
}

func (t *Traversal) In(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.In, false, labels...))
}

func (t *Traversal) Both(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.Both, false, labels...))
}

func (t *Traversal) OutE(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.Out, true, labels...))
}

func (t *Traversal) InE(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.In, true, labels...))
}

func (t *Traversal) BothE(labels ...string) *Traversal {
	return t.add(NewVertexStep(structure.Both, true, labels...))
}

// Values emits the values of the given property keys, or of all keys.
func (t *Traversal) Values(keys ...string) *Traversal {
	return t.add(NewPropertiesStep(keys...))
}

func (t *Traversal) ValueMap(keys ...string) *Traversal {
	return t.add(NewValueMapStep(keys...))
}

func (t *Traversal) ID() *Traversal       { return t.add(NewIDStep()) }
func (t *Traversal) Label() *Traversal    { return t.add(NewLabelStep()) }
func (t *Traversal) Identity() *Traversal { return t.add(NewIdentityStep()) }
func (t *Traversal) Path() *Traversal     { return t.add(NewPathStep()) }
func (t *Traversal) Unfold() *Traversal   { return t.add(NewUnfoldStep()) }
func (t *Traversal) Fold() *Traversal     { return t.add(NewFoldStep()) }
func (t *Traversal) Count() *Traversal    { return t.add(NewCountStep()) }
func (t *Traversal) Sum() *Traversal      { return t.add(NewSumStep()) }
func (t *Traversal) Dedup() *Traversal    { return t.add(NewDedupStep()) }

// Map applies a named function to each value.
func (t *Traversal) Map(l Lambda) *Traversal {
	return t.add(NewLambdaMapStep(l))
}

// Select emits the value labeled label, or a map of several labels.
func (t *Traversal) Select(labels ...string) *Traversal {
	return t.add(NewSelectStep(labels...))
}

// Filter keeps traversers for which child produces at least one result.
func (t *Traversal) Filter(child *Traversal) *Traversal {
	return t.add(NewTraversalFilterStep(child), child)
}

// Has keeps elements whose key satisfies pred.
func (t *Traversal) Has(key string, pred Predicate) *Traversal {
	return t.add(NewHasStep(HasContainer{Key: key, Predicate: pred}))
}

// HasLabel keeps elements with one of the labels.
func (t *Traversal) HasLabel(labels ...string) *Traversal {
	vals := make([]ir.IRValue, len(labels))
	for i, l := range labels {
		vals[i] = ir.IRString(l)
	}
	return t.add(NewHasStep(HasContainer{Key: structure.KeyLabel, Predicate: Within(vals...)}))
}

// HasID keeps elements with one of the ids.
func (t *Traversal) HasID(ids ...int64) *Traversal {
	vals := make([]ir.IRValue, len(ids))
	for i, id := range ids {
		vals[i] = ir.IRInt(id)
	}
	return t.add(NewHasStep(HasContainer{Key: structure.KeyID, Predicate: Within(vals...)}))
}

// Coin keeps each unit of bulk with probability p.
func (t *Traversal) Coin(p float64) *Traversal {
	return t.add(NewCoinStep(p))
}

// Retain keeps values contained in the side effect or path label key.
func (t *Traversal) Retain(key string) *Traversal {
	return t.add(NewRetainStep(key))
}

// RetainValues keeps values equal to one of vals.
func (t *Traversal) RetainValues(vals ...ir.IRValue) *Traversal {
	return t.add(NewRetainValuesStep(vals...))
}

// Range keeps the traversers in [low, high). A negative high is unbounded.
func (t *Traversal) Range(low, high int64) *Traversal {
	return t.add(NewRangeStep(low, high))
}

// Limit keeps the first n traversers.
func (t *Traversal) Limit(n int64) *Traversal {
	return t.add(NewRangeStep(0, n))
}

func (t *Traversal) Group() *Traversal      { return t.add(NewGroupStep()) }
func (t *Traversal) GroupCount() *Traversal { return t.add(NewGroupCountStep()) }
func (t *Traversal) Order() *Traversal      { return t.add(NewOrderStep()) }

// By modulates the previous step. A nil child stands for the identity. The
// order only applies to order().
func (t *Traversal) By(child *Traversal, order ...Order) *Traversal {
	if t.err != nil {
		return t
	}
	if child != nil && child.err != nil {
		t.err = child.err
		return t
	}
	end := t.EndStep()
	m, ok := end.(ByModulator)
	if !ok {
		name := "<empty>"
		if end != nil {
			name = end.String()
		}
		t.err = fault.New(fault.CodeInvalidConfig, "by() cannot modulate %s", name)
		return t
	}
	if err := t.checkUnlocked("modulate step"); err != nil {
		t.err = err
		return t
	}
	o := Asc
	if len(order) > 0 {
		o = order[0]
	}
	if err := m.modulateBy(t, child, o); err != nil {
		t.err = err
	}
	return t
}

// ByKey modulates the previous step with the value of a property.
func (t *Traversal) ByKey(key string, order ...Order) *Traversal {
	return t.By(Anon().Values(key), order...)
}

// Aggregate collects every traverser into the side effect key.
func (t *Traversal) Aggregate(key string) *Traversal {
	return t.add(NewAggregateStep(key))
}

// Local runs child on each traverser in isolation.
func (t *Traversal) Local(child *Traversal) *Traversal {
	return t.add(NewLocalStep(child), child)
}

// Union merges the outputs of every child.
func (t *Traversal) Union(children ...*Traversal) *Traversal {
	return t.add(NewUnionStep(children...), children...)
}

// Repeat runs body once; chain Times to repeat it more often.
func (t *Traversal) Repeat(body *Traversal) *Traversal {
	return t.add(NewRepeatStep(body, 1), body)
}

// Times sets the pass count of the preceding repeat().
func (t *Traversal) Times(n int) *Traversal {
	if t.err != nil {
		return t
	}
	r, ok := t.EndStep().(*RepeatStep)
	if !ok {
		t.err = fault.New(fault.CodeInvalidConfig, "times() must follow repeat()")
		return t
	}
	if err := t.checkUnlocked("modulate step"); err != nil {
		t.err = err
		return t
	}
	if n < 0 {
		t.err = fault.New(fault.CodeInvalidConfig, "times() requires a non-negative count, got %d", n)
		return t
	}
	r.SetTimes(n)
	return t
}

// AddV adds a vertex for each traverser.
func (t *Traversal) AddV(label string, props ir.IRObject) *Traversal {
	return t.add(NewAddVertexStep(label, props))
}

// Property sets key to value on each vertex.
func (t *Traversal) Property(key string, value ir.IRValue) *Traversal {
	return t.add(NewPropertyStep(key, value))
}

// As labels the previous step.
func (t *Traversal) As(labels ...string) *Traversal {
	if t.err != nil {
		return t
	}
	end := t.EndStep()
	if end == nil {
		t.err = fault.New(fault.CodeInvalidConfig, "as() requires a preceding step")
		return t
	}
	for _, l := range labels {
		end.AddLabel(l)
	}
	return t
}
