package program

import (
	"context"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traversal"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Output is a traversal run on the vertex program engine.
type Output struct {
	Run *computer.Result
	// Values are the results with their bulk, in result order.
	Values []ir.BulkEntry
}

// List expands Values by bulk.
func (o *Output) List() []ir.IRValue {
	var out []ir.IRValue
	for _, e := range o.Values {
		for range e.Count {
			out = append(out, e.Value)
		}
	}
	return out
}

// SideEffect returns the final value of a traversal side effect.
func (o *Output) SideEffect(key string) (ir.IRValue, bool) {
	return o.Run.Memory.Get(sideEffectKey(key))
}

// Run executes t as a TraversalProgram over its graph. When the last step
// is a bypassed reducing barrier its job produces the results; otherwise
// the halted traversers are collected.
func Run(ctx context.Context, t *traversal.Traversal, opts ...computer.Option) (*Output, error) {
	p, err := NewTraversalProgram(ctx, t)
	if err != nil {
		return nil, err
	}
	res, err := computer.RunVertexProgram[*traverser.Set](ctx, p, p.graph, opts...)
	if err != nil {
		return nil, err
	}
	if res.HitCeiling {
		return nil, fault.New(fault.CodeCeiling, "traversal did not halt within %d supersteps", res.Iterations).
			With("run_id", res.RunID)
	}

	mr, reducing := t.EndStep().(traversal.MapReducer)
	if reducing && mr.Bypass() {
		final, err := res.MapReduce(ctx, mr.MapReduce(), opts...)
		if err != nil {
			return nil, err
		}
		values, err := mr.Results(final)
		if err != nil {
			return nil, err
		}
		return &Output{Run: res, Values: values}, nil
	}

	final, err := res.MapReduce(ctx, computer.NewTraverserMapReduce(), opts...)
	if err != nil {
		return nil, err
	}
	bs, err := ir.BulkSetFromIR(final)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidValue, err, "halted traversers")
	}
	return &Output{Run: res, Values: bs.Entries()}, nil
}
