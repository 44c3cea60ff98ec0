package engine_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/engine"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/program"
	"github.com/roach88/tinkergo/internal/strategy"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traversal"
)

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("sub")),
		engine.WithRunOptions(computer.WithPartitions(3)),
	}, opts...)
	return engine.New(testutil.NewModernGraph(t), opts...)
}

func TestIterateStandard(t *testing.T) {
	e := newEngine(t)
	res, err := e.Iterate(context.Background(), e.G(traversal.Standard).V(testutil.Marko).Out("knows").Values("name"))
	require.NoError(t, err)
	assert.Equal(t, "sub-1", res.ID)
	assert.Equal(t, int64(1), res.Seq)
	assert.Equal(t, traversal.Standard, res.Mode)
	assert.Nil(t, res.Run)
	assert.ElementsMatch(t, []ir.IRValue{ir.IRString("vadas"), ir.IRString("josh")}, res.Values)
}

func TestIterateComputer(t *testing.T) {
	e := newEngine(t)
	res, err := e.Iterate(context.Background(), e.G(traversal.Computer).V().Out().Count())
	require.NoError(t, err)
	assert.Equal(t, traversal.Computer, res.Mode)
	require.NotNil(t, res.Run)
	assert.NotEmpty(t, res.Run.RunID)
	assert.Equal(t, []ir.IRValue{ir.IRInt(6)}, res.Values)
}

func TestSubmitSwitchesMode(t *testing.T) {
	e := newEngine(t)
	tr := e.G(traversal.Standard).V().HasLabel("software").Values("name")
	res, err := e.Submit(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, traversal.Computer, tr.Mode())
	assert.ElementsMatch(t, []ir.IRValue{ir.IRString("lop"), ir.IRString("ripple")}, res.Values)
}

func TestSubmitRejectsLockedStandard(t *testing.T) {
	e := newEngine(t)
	tr := e.G(traversal.Standard).V()
	require.NoError(t, e.Apply(context.Background(), tr))
	_, err := e.Submit(context.Background(), tr)
	assert.Equal(t, fault.CodeInvalidConfig, fault.CodeOf(err))
}

func TestSubmissionsAreSequenced(t *testing.T) {
	e := newEngine(t, engine.WithClock(engine.NewClockAt(41)))
	var seqs []int64
	for range 3 {
		res, err := e.Iterate(context.Background(), e.G(traversal.Standard).V().Count())
		require.NoError(t, err)
		seqs = append(seqs, res.Seq)
	}
	assert.Equal(t, []int64{42, 43, 44}, seqs)
}

func TestSideEffectsInBothModes(t *testing.T) {
	for _, mode := range []traversal.Mode{traversal.Standard, traversal.Computer} {
		t.Run(mode.String(), func(t *testing.T) {
			e := newEngine(t)
			tr := e.G(mode).V(testutil.Marko).Out().Values("name").Aggregate("x").Count()
			res, err := e.Iterate(context.Background(), tr)
			require.NoError(t, err)
			assert.Equal(t, []ir.IRValue{ir.IRInt(3)}, res.Values)

			raw, ok := res.SideEffect("x")
			require.True(t, ok)
			bs, err := ir.BulkSetFromIR(raw)
			require.NoError(t, err)
			assert.Equal(t, int64(3), bs.Size())
		})
	}
}

func TestApplyLocks(t *testing.T) {
	e := newEngine(t)
	tr := e.G(traversal.Standard).V().Identity().Out()
	require.NoError(t, e.Apply(context.Background(), tr))
	assert.True(t, tr.Locked())
	assert.Equal(t, 2, tr.Len())

	err := e.Apply(context.Background(), tr)
	assert.Equal(t, fault.CodeLocked, fault.CodeOf(err))
}

func TestLockSkipsStrategies(t *testing.T) {
	e := newEngine(t)
	tr := e.G(traversal.Standard).V().Identity().Out()
	require.NoError(t, e.Lock(tr))
	assert.True(t, tr.Locked())
	assert.Equal(t, 3, tr.Len())
}

func TestExplainLeavesTraversalUntouched(t *testing.T) {
	e := newEngine(t)
	tr := e.G(traversal.Standard).V().Identity().Out()
	before := tr.String()
	steps, err := e.Explain(context.Background(), tr)
	require.NoError(t, err)
	assert.Len(t, steps, len(e.Strategies().Names())+1)
	assert.Equal(t, before, tr.String())
	assert.False(t, tr.Locked())
}

func TestIterateRejectsChild(t *testing.T) {
	e := newEngine(t)
	_, err := e.Iterate(context.Background(), traversal.Anon().Out())
	assert.Equal(t, fault.CodeInvalidConfig, fault.CodeOf(err))
}

func TestTraversalOwnStrategiesWin(t *testing.T) {
	e := newEngine(t)
	g := e.Graph()
	tr := traversal.New(g, traversal.WithStrategies(strategy.Empty())).V().Identity().Out()
	_, err := e.Iterate(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())
}

func TestRunVertexProgram(t *testing.T) {
	e := newEngine(t)
	res, err := engine.RunVertexProgram[int64](context.Background(), e, program.NewConnectedComponents())
	require.NoError(t, err)
	comps, err := program.Components(res)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{1: {1, 2, 3, 4, 5, 6}}, comps)
}

func TestRunMapReduce(t *testing.T) {
	e := newEngine(t)
	res, err := e.Iterate(context.Background(), e.G(traversal.Computer).V().Out().Values("name"))
	require.NoError(t, err)

	v, err := e.RunMapReduce(context.Background(), res.Run, computer.NewCountMapReduce(), computer.WithCombine(false))
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(6), v)
	stored, ok := res.Run.Memory.Get(computer.ReducingKey)
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(6), stored)
}

func TestLoggerReachesRuns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEngine(t, engine.WithLogger(log))
	_, err := e.Iterate(context.Background(), e.G(traversal.Computer).V().Identity().Count())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "submission=sub-1")
	assert.Contains(t, buf.String(), "vertex program finished")
	assert.Contains(t, buf.String(), "strategy applied")
}

func TestUUIDv7Generator(t *testing.T) {
	gen := engine.UUIDv7Generator{}
	const goroutines = 50

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			defer mu.Unlock()
			seen[id] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines)

	for id := range seen {
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
	}
}

func TestClock(t *testing.T) {
	c := engine.NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Next()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(102), c.Current())
}

func TestFingerprint(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	a, err := e.Iterate(ctx, e.G(traversal.Standard).V().Out("knows").Values("name"))
	require.NoError(t, err)
	other := newEngine(t)
	b, err := other.Iterate(ctx, other.G(traversal.Standard).V().Out("knows").Values("name"))
	require.NoError(t, err)
	c, err := e.Iterate(ctx, e.G(traversal.Standard).V().Out("created").Values("name"))
	require.NoError(t, err)
	d, err := e.Iterate(ctx, e.G(traversal.Computer).V().Out("knows").Values("name"))
	require.NoError(t, err)

	assert.Len(t, a.Fingerprint, 64)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, d.Fingerprint)
}
