package traversal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Input is the upstream a step pulls traversers from.
type Input = structure.Iterator[*traverser.Traverser]

var errDone = structure.ErrIteratorDone

// Kind is the family a step belongs to.
type Kind int

const (
	KindStart Kind = iota
	KindMap
	KindFlatMap
	KindFilter
	KindSideEffect
	KindBarrier
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMap:
		return "map"
	case KindFlatMap:
		return "flatmap"
	case KindFilter:
		return "filter"
	case KindSideEffect:
		return "sideeffect"
	case KindBarrier:
		return "barrier"
	case KindBranch:
		return "branch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Step is one operator of a traversal.
type Step interface {
	// ID is unique within the root traversal.
	ID() string
	Kind() Kind
	Labels() []string
	AddLabel(label string)
	Requirements() traverser.Requirements

	// Pull returns the next output traverser, pulling from in as needed,
	// or structure.ErrIteratorDone once in is exhausted and nothing is
	// buffered.
	Pull(ctx context.Context, in Input) (*traverser.Traverser, error)

	// Reset drops in-flight state and releases held iterators.
	Reset()

	// Clone returns a structurally identical step with fresh copies of its
	// child traversals and no in-flight state.
	Clone() Step

	String() string

	base() *stepBase
}

// Parent is implemented by steps that own child traversals.
type Parent interface {
	Step
	Children() []*Traversal
}

// Barrier is implemented by steps that drain their upstream before emitting.
type Barrier interface {
	Step
	barrier()
}

// MapReducer is implemented by barrier steps that have a map/reduce job for
// computer execution.
type MapReducer interface {
	Step
	// MapReduce returns the job reducing the step's bypassed output.
	MapReduce() computer.MapReduce
	// SetBypass switches the step to per-traverser projection, leaving the
	// reduction to its job.
	SetBypass(bool)
	Bypass() bool
	// Results converts the job's final value into result values with bulk.
	Results(final ir.IRValue) ([]ir.BulkEntry, error)
}

// ComparatorHolder is implemented by steps that order traversers.
type ComparatorHolder interface {
	Step
	Comparators() []Comparator
}

// ByModulator is implemented by steps configured with By.
type ByModulator interface {
	Step
	modulateBy(t *Traversal, child *Traversal, order Order) error
}

type stepBase struct {
	id     string
	labels []string
	owner  *Traversal
}

func (b *stepBase) base() *stepBase { return b }

// ID implements Step.
func (b *stepBase) ID() string { return b.id }

// Labels implements Step.
func (b *stepBase) Labels() []string { return slices.Clone(b.labels) }

// AddLabel implements Step.
func (b *stepBase) AddLabel(label string) {
	if !slices.Contains(b.labels, label) {
		b.labels = append(b.labels, label)
	}
}

func (b *stepBase) cloneBase() stepBase {
	return stepBase{id: b.id, labels: slices.Clone(b.labels)}
}

func (b *stepBase) graph() structure.Graph {
	if b.owner == nil {
		return nil
	}
	return b.owner.graph
}

func (b *stepBase) generate(v ir.IRValue, bulk int64) *traverser.Traverser {
	t := b.owner.generator.Generate(v, b.id, bulk)
	t.SetSideEffects(b.owner.sideEffects)
	return t
}

func (b *stepBase) sideEffects() traverser.SideEffectStore {
	return b.owner.sideEffects
}

func (b *stepBase) fail(code fault.Code, format string, args ...any) error {
	return fault.New(code, format, args...).AtStep(b.id)
}

// graphErr classifies an error from the graph collaborator.
func (b *stepBase) graphErr(err error, op string) error {
	var fe *fault.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, structure.ErrNonLocalElement):
		return &fault.Error{Class: fault.Execution, Code: fault.CodeNonLocal, Message: op, StepID: b.id, Err: err}
	default:
		return &fault.Error{Class: fault.Resource, Code: fault.CodeUnreachable, Message: op, StepID: b.id, Err: err}
	}
}

func format(name string, args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case nil:
		case []string:
			if len(v) > 0 {
				parts = append(parts, "["+strings.Join(v, ",")+"]")
			}
		case ir.IRValue:
			parts = append(parts, ir.Key(v))
		default:
			if s := fmt.Sprint(v); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return name
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

// pullMap applies fn to each upstream traverser. fn reports false to drop
// the traverser.
func pullMap(ctx context.Context, in Input, fn func(context.Context, *traverser.Traverser) (ir.IRValue, bool, error)) (*traverser.Traverser, error) {
	for {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, ok, err := fn(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return t.Split(v), nil
		}
	}
}

// pullFilter emits upstream traversers accepted by pred.
func pullFilter(ctx context.Context, in Input, pred func(context.Context, *traverser.Traverser) (bool, error)) (*traverser.Traverser, error) {
	for {
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		ok, err := pred(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
}

// flatMapState drives a lazy sequence of values per upstream traverser.
type flatMapState struct {
	cur *traverser.Traverser
	it  structure.Iterator[ir.IRValue]
}

func (f *flatMapState) pull(ctx context.Context, in Input, fn func(context.Context, *traverser.Traverser) (structure.Iterator[ir.IRValue], error)) (*traverser.Traverser, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.it != nil {
			v, err := f.it.Next(ctx)
			if err == nil {
				return f.cur.Split(v), nil
			}
			f.reset()
			if !errors.Is(err, structure.ErrIteratorDone) {
				return nil, err
			}
		}
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		it, err := fn(ctx, t)
		if err != nil {
			return nil, err
		}
		f.cur, f.it = t, it
	}
}

func (f *flatMapState) reset() {
	if f.it != nil {
		f.it.Stop()
	}
	f.cur, f.it = nil, nil
}

// bufferState holds traversers already produced for the current input.
type bufferState struct {
	out []*traverser.Traverser
}

func (b *bufferState) pop() (*traverser.Traverser, bool) {
	if len(b.out) == 0 {
		return nil, false
	}
	t := b.out[0]
	b.out = b.out[1:]
	return t, true
}

func (b *bufferState) reset() {
	b.out = nil
}

func drain(ctx context.Context, in Input, fn func(*traverser.Traverser) error) error {
	for {
		t, err := in.Next(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
}
