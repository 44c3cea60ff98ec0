package traversal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Op is a comparison used by predicates.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpWithin  Op = "within"
	OpWithout Op = "without"
)

// Predicate tests a value against an operand.
type Predicate struct {
	Op    Op
	Value ir.IRValue
}

func Eq(v ir.IRValue) Predicate  { return Predicate{OpEq, v} }
func Neq(v ir.IRValue) Predicate { return Predicate{OpNeq, v} }
func Lt(v ir.IRValue) Predicate  { return Predicate{OpLt, v} }
func Lte(v ir.IRValue) Predicate { return Predicate{OpLte, v} }
func Gt(v ir.IRValue) Predicate  { return Predicate{OpGt, v} }
func Gte(v ir.IRValue) Predicate { return Predicate{OpGte, v} }

// Within matches any of vals.
func Within(vals ...ir.IRValue) Predicate { return Predicate{OpWithin, ir.IRArray(vals)} }

// Without matches none of vals.
func Without(vals ...ir.IRValue) Predicate { return Predicate{OpWithout, ir.IRArray(vals)} }

// ParseOp validates an operator name.
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToLower(s))
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpWithin, OpWithout:
		return op, nil
	}
	return "", fault.New(fault.CodeInvalidConfig, "unknown predicate %q", s)
}

// Test reports whether v satisfies the predicate. Ordering comparisons only
// hold between values of the same type.
func (p Predicate) Test(v ir.IRValue) bool {
	switch p.Op {
	case OpEq:
		return ir.Equal(v, p.Value)
	case OpNeq:
		return !ir.Equal(v, p.Value)
	case OpLt, OpLte, OpGt, OpGte:
		if reflect.TypeOf(v) != reflect.TypeOf(p.Value) {
			return false
		}
		c := ir.Compare(v, p.Value)
		switch p.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpWithin, OpWithout:
		vals, _ := p.Value.(ir.IRArray)
		in := slices.ContainsFunc(vals, func(x ir.IRValue) bool { return ir.Equal(v, x) })
		return in == (p.Op == OpWithin)
	}
	return false
}

func (p Predicate) String() string {
	return string(p.Op) + "(" + ir.Key(p.Value) + ")"
}

// HasContainer is a property predicate. Key may be structure.KeyID or
// structure.KeyLabel.
type HasContainer struct {
	Key       string
	Predicate Predicate
}

func (h HasContainer) String() string {
	return h.Key + "." + h.Predicate.String()
}

type valuer interface {
	Value(key string) (ir.IRValue, bool)
}

func (h HasContainer) test(e valuer) bool {
	v, ok := e.Value(h.Key)
	if !ok {
		return false
	}
	return h.Predicate.Test(v)
}

// needsLookup reports whether the container reads a property that element
// references do not carry.
func (h HasContainer) needsLookup() bool {
	return h.Key != structure.KeyID && h.Key != structure.KeyLabel
}

func testAll(hs []HasContainer, e valuer) bool {
	for _, h := range hs {
		if !h.test(e) {
			return false
		}
	}
	return true
}

// refValuer resolves id and label from an element reference.
type refValuer struct {
	id    int64
	label string
}

func (r refValuer) Value(key string) (ir.IRValue, bool) {
	switch key {
	case structure.KeyID:
		return ir.IRInt(r.id), true
	case structure.KeyLabel:
		return ir.IRString(r.label), true
	}
	return nil, false
}

// HasStep filters elements by property predicates.
type HasStep struct {
	stepBase
	containers []HasContainer
}

// NewHasStep creates a has step.
func NewHasStep(containers ...HasContainer) *HasStep {
	return &HasStep{containers: slices.Clone(containers)}
}

// Containers returns the predicates.
func (s *HasStep) Containers() []HasContainer { return slices.Clone(s.containers) }

func (s *HasStep) Kind() Kind                           { return KindFilter }
func (s *HasStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *HasStep) Reset()                               {}

func (s *HasStep) Clone() Step {
	return &HasStep{stepBase: s.cloneBase(), containers: slices.Clone(s.containers)}
}

func (s *HasStep) String() string {
	parts := make([]string, len(s.containers))
	for i, h := range s.containers {
		parts[i] = h.String()
	}
	return "HasStep([" + strings.Join(parts, ",") + "])"
}

func (s *HasStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	return pullFilter(ctx, in, func(ctx context.Context, t *traverser.Traverser) (bool, error) {
		return s.test(ctx, t.Value())
	})
}

func (s *HasStep) test(ctx context.Context, v ir.IRValue) (bool, error) {
	var ref refValuer
	switch e := v.(type) {
	case ir.IRVertex:
		ref = refValuer{e.ID, e.Label}
	case ir.IREdge:
		ref = refValuer{e.ID, e.Label}
	default:
		return false, s.fail(fault.CodeInvalidValue, "has() requires an element, got %s", ir.Key(v))
	}
	lookup := slices.ContainsFunc(s.containers, HasContainer.needsLookup)
	if !lookup {
		return testAll(s.containers, ref), nil
	}
	e, err := loadElement(ctx, s.graph(), v)
	if errors.Is(err, structure.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.graphErr(err, "has() lookup")
	}
	return testAll(s.containers, e), nil
}

// loadElement reads the full element behind a reference.
func loadElement(ctx context.Context, g structure.Graph, v ir.IRValue) (valuer, error) {
	switch e := v.(type) {
	case ir.IRVertex:
		return g.Vertex(ctx, e.ID)
	case ir.IREdge:
		return g.Edge(ctx, e.ID)
	}
	return nil, fmt.Errorf("not an element: %s", ir.Key(v))
}
