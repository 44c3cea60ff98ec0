package computer

import (
	"context"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/structure"
)

// VertexProgram is a computation executed at every vertex in every
// superstep. Setup and Terminate run on the master; Execute runs on a
// per-partition clone made after Setup.
type VertexProgram[M any] interface {
	Name() string
	Setup(ctx context.Context, mem *Memory) error
	Execute(ctx context.Context, v *Vertex, msgs Messenger[M], mem MemoryView) error
	// Terminate reports whether the run halts after the superstep that just
	// completed.
	Terminate(ctx context.Context, mem *Memory) (bool, error)
	VertexComputeKeys() []VertexComputeKey
	MemoryComputeKeys() []MemoryComputeKey
	Clone() VertexProgram[M]
}

// Combiner is implemented by programs whose messages to one vertex may be
// merged before delivery. Combine must be associative and commutative.
type Combiner[M any] interface {
	Combine(a, b M) M
}

// WorkerHooks is implemented by programs that need per-partition setup and
// teardown in each superstep.
type WorkerHooks interface {
	WorkerIterationStart(ctx context.Context, mem MemoryView) error
	WorkerIterationEnd(ctx context.Context, mem MemoryView) error
}

// Messenger delivers messages between vertices across supersteps.
type Messenger[M any] interface {
	// Messages returns the messages sent to the vertex in the previous
	// superstep, ordered by sender id and send order.
	Messages() []M
	Send(to int64, msg M) error
	// SendAlong sends msg to every vertex adjacent to this one over edges in
	// dir with one of labels.
	SendAlong(dir structure.Direction, msg M, labels ...string) error
}

type envelope[M any] struct {
	from int64
	seq  int
	msg  M
}

// outbox collects one partition's outgoing messages.
type outbox[M any] struct {
	combiner Combiner[M]
	byDest   map[int64][]envelope[M]
	count    int
}

func newOutbox[M any](c Combiner[M]) *outbox[M] {
	return &outbox[M]{combiner: c, byDest: make(map[int64][]envelope[M])}
}

func (o *outbox[M]) put(to int64, e envelope[M]) {
	o.count++
	cur := o.byDest[to]
	if o.combiner != nil && len(cur) == 1 {
		cur[0].msg = o.combiner.Combine(cur[0].msg, e.msg)
		return
	}
	o.byDest[to] = append(cur, e)
}

type messenger[M any] struct {
	v      *Vertex
	inbox  []M
	out    *outbox[M]
	seq    int
	closed bool
}

func (m *messenger[M]) Messages() []M { return m.inbox }

func (m *messenger[M]) Send(to int64, msg M) error {
	if m.closed {
		return fault.New(fault.CodeMessenger, "send from vertex %d after its execution finished", m.v.ID())
	}
	m.out.put(to, envelope[M]{from: m.v.ID(), seq: m.seq, msg: msg})
	m.seq++
	return nil
}

func (m *messenger[M]) SendAlong(dir structure.Direction, msg M, labels ...string) error {
	for _, e := range m.v.star.Edges(dir, labels...) {
		if err := m.Send(e.Other(m.v.ID()).ID, msg); err != nil {
			return err
		}
	}
	return nil
}
