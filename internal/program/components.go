package program

import (
	"context"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// ComponentKey is the view key holding a vertex's component id.
const ComponentKey = "component"

const changedKey = "tinkergo.components.changed"

// ConnectedComponents labels every vertex with the smallest vertex id
// reachable from it ignoring edge direction. Labels propagate along both
// directions until a superstep changes none.
type ConnectedComponents struct{}

// NewConnectedComponents returns the program.
func NewConnectedComponents() *ConnectedComponents { return &ConnectedComponents{} }

func (*ConnectedComponents) Name() string { return "ConnectedComponentsVertexProgram" }

func (*ConnectedComponents) Setup(context.Context, *computer.Memory) error { return nil }

func (*ConnectedComponents) VertexComputeKeys() []computer.VertexComputeKey {
	return []computer.VertexComputeKey{{Key: ComponentKey}}
}

func (*ConnectedComponents) MemoryComputeKeys() []computer.MemoryComputeKey {
	return []computer.MemoryComputeKey{
		{Key: changedKey, Reducer: ir.OrReducer, Transient: true},
	}
}

func (c *ConnectedComponents) Clone() computer.VertexProgram[int64] { return c }

// Combine implements computer.Combiner.
func (*ConnectedComponents) Combine(a, b int64) int64 { return min(a, b) }

func (*ConnectedComponents) Execute(_ context.Context, v *computer.Vertex, msgs computer.Messenger[int64], mem computer.MemoryView) error {
	current := v.ID()
	if raw, ok := v.Get(ComponentKey); ok {
		id, ok := raw.(ir.IRInt)
		if !ok {
			return fault.New(fault.CodeInvalidValue, "vertex %d has non-integer component %v", v.ID(), raw)
		}
		current = int64(id)
	}
	best := current
	for _, m := range msgs.Messages() {
		best = min(best, m)
	}
	if mem.IsInitialIteration() || best < current {
		if err := v.Set(ComponentKey, ir.IRInt(best)); err != nil {
			return err
		}
		if err := mem.Add(changedKey, ir.IRBool(true)); err != nil {
			return err
		}
		return msgs.SendAlong(structure.Both, best)
	}
	return nil
}

// Terminate halts after the first superstep in which no label moved.
func (*ConnectedComponents) Terminate(_ context.Context, mem *computer.Memory) (bool, error) {
	changed, _ := mem.Get(changedKey)
	if err := mem.Set(changedKey, ir.IRBool(false)); err != nil {
		return false, err
	}
	return changed != ir.IRBool(true), nil
}

// Components returns the vertex ids of a finished run grouped by component
// id.
func Components(res *computer.Result) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	for _, v := range res.Vertices {
		raw, ok := v.Get(ComponentKey)
		if !ok {
			return nil, fault.New(fault.CodeInvalidValue, "vertex %d has no component", v.ID())
		}
		id, ok := raw.(ir.IRInt)
		if !ok {
			return nil, fault.New(fault.CodeInvalidValue, "vertex %d has non-integer component %v", v.ID(), raw)
		}
		out[int64(id)] = append(out[int64(id)], v.ID())
	}
	return out, nil
}
