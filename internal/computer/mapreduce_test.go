package computer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traverser"
)

type halted struct {
	value ir.IRValue
	bulk  int64
}

// withHalted loads the modern graph and parks the given traversers at its
// vertices, keyed by vertex id.
func withHalted(t *testing.T, at map[int64][]halted) []*computer.Vertex {
	t.Helper()
	vs, err := computer.LoadVertices(context.Background(), testutil.NewModernGraph(t))
	require.NoError(t, err)
	out := make([]*computer.Vertex, len(vs))
	for i, v := range vs {
		set := traverser.NewSet()
		for _, h := range at[v.ID()] {
			set.Add(traverser.BulkGenerator.Generate(h.value, "", h.bulk))
		}
		view := ir.IRObject{}
		if !set.IsEmpty() {
			view[computer.HaltedTraversers] = set.ToIR()
		}
		out[i] = computer.NewVertex(v.Star(), view)
	}
	return out
}

// names parks each vertex's name with the given bulk at the vertex.
func names(t *testing.T, bulk int64) []*computer.Vertex {
	t.Helper()
	g := testutil.NewModernGraph(t)
	at := make(map[int64][]halted)
	for id := testutil.Marko; id <= testutil.Peter; id++ {
		v, err := g.Vertex(context.Background(), id)
		require.NoError(t, err)
		at[id] = []halted{{v.Properties["name"], bulk}}
	}
	return withHalted(t, at)
}

func runAll(t *testing.T, job func() computer.MapReduce, vs []*computer.Vertex) ir.IRValue {
	t.Helper()
	var first ir.IRValue
	for _, n := range []int{1, 2, 5} {
		for _, combine := range []bool{true, false} {
			got, err := computer.RunMapReduce(context.Background(), job(), vs,
				computer.WithPartitions(n), computer.WithCombine(combine))
			require.NoError(t, err)
			if first == nil {
				first = got
				continue
			}
			if diff := cmp.Diff(ir.Key(first), ir.Key(got)); diff != "" {
				t.Fatalf("partitions=%d combine=%v (-first +got):\n%s", n, combine, diff)
			}
		}
	}
	return first
}

func TestBuiltinJobs(t *testing.T) {
	vs := names(t, 2)
	tests := []struct {
		name string
		job  func() computer.MapReduce
		want ir.IRValue
	}{
		{"count", func() computer.MapReduce { return computer.NewCountMapReduce() }, ir.IRInt(12)},
		{"fold", func() computer.MapReduce { return computer.NewFoldMapReduce() }, ir.IRArray{
			ir.IRString("josh"), ir.IRString("josh"), ir.IRString("lop"), ir.IRString("lop"),
			ir.IRString("marko"), ir.IRString("marko"), ir.IRString("peter"), ir.IRString("peter"),
			ir.IRString("ripple"), ir.IRString("ripple"), ir.IRString("vadas"), ir.IRString("vadas"),
		}},
		{"dedup", func() computer.MapReduce { return computer.NewDedupMapReduce() }, ir.IRArray{
			ir.IRString("josh"), ir.IRString("lop"), ir.IRString("marko"),
			ir.IRString("peter"), ir.IRString("ripple"), ir.IRString("vadas"),
		}},
		{"groupCount", func() computer.MapReduce { return computer.NewGroupCountMapReduce() }, ir.NewIRMap(
			ir.IRMapEntry{Key: ir.IRString("josh"), Value: ir.IRInt(2)},
			ir.IRMapEntry{Key: ir.IRString("lop"), Value: ir.IRInt(2)},
			ir.IRMapEntry{Key: ir.IRString("marko"), Value: ir.IRInt(2)},
			ir.IRMapEntry{Key: ir.IRString("peter"), Value: ir.IRInt(2)},
			ir.IRMapEntry{Key: ir.IRString("ripple"), Value: ir.IRInt(2)},
			ir.IRMapEntry{Key: ir.IRString("vadas"), Value: ir.IRInt(2)},
		)},
		{"traversers", func() computer.MapReduce { return computer.NewTraverserMapReduce() }, ir.IRArray{
			ir.IRArray{ir.IRString("josh"), ir.IRInt(2)},
			ir.IRArray{ir.IRString("lop"), ir.IRInt(2)},
			ir.IRArray{ir.IRString("marko"), ir.IRInt(2)},
			ir.IRArray{ir.IRString("peter"), ir.IRInt(2)},
			ir.IRArray{ir.IRString("ripple"), ir.IRInt(2)},
			ir.IRArray{ir.IRString("vadas"), ir.IRInt(2)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runAll(t, tt.job, vs)
			assert.Equal(t, ir.Key(tt.want), ir.Key(got))
		})
	}
}

func TestSumJob(t *testing.T) {
	vs := withHalted(t, map[int64][]halted{
		testutil.Marko: {{ir.IRInt(29), 1}},
		testutil.Josh:  {{ir.IRInt(32), 2}},
		testutil.Lop:   {{ir.IRInt(-3), 1}},
	})
	got := runAll(t, func() computer.MapReduce { return computer.NewSumMapReduce() }, vs)
	assert.Equal(t, ir.IRInt(90), got)

	_, err := computer.RunMapReduce(context.Background(), computer.NewSumMapReduce(), names(t, 1))
	assert.Equal(t, fault.CodeInvalidValue, fault.CodeOf(err))
}

func TestJobsOverNoTraversers(t *testing.T) {
	vs := withHalted(t, nil)
	tests := []struct {
		job  computer.MapReduce
		want ir.IRValue
	}{
		{computer.NewCountMapReduce(), ir.IRInt(0)},
		{computer.NewSumMapReduce(), ir.IRInt(0)},
		{computer.NewFoldMapReduce(), ir.IRArray{}},
		{computer.NewDedupMapReduce(), ir.IRArray{}},
		{computer.NewGroupCountMapReduce(), ir.IRMap{}},
		{computer.NewGroupMapReduce(nil), ir.IRMap{}},
		{computer.NewOrderMapReduce(nil), ir.IRArray{}},
		{computer.NewTraverserMapReduce(), ir.IRArray{}},
	}
	for _, tt := range tests {
		t.Run(tt.job.Name(), func(t *testing.T) {
			got, err := computer.RunMapReduce(context.Background(), tt.job, vs)
			require.NoError(t, err)
			assert.Equal(t, ir.Key(tt.want), ir.Key(got))
		})
	}
}

func TestGroupJob(t *testing.T) {
	pair := func(k string, vals ...ir.IRValue) ir.IRValue {
		return ir.IRArray{ir.IRString(k), ir.IRArray(vals)}
	}
	vs := withHalted(t, map[int64][]halted{
		testutil.Marko: {{pair("person", ir.IRInt(29)), 1}},
		testutil.Vadas: {{pair("person", ir.IRInt(27)), 2}},
		testutil.Lop:   {{pair("software"), 1}},
	})

	got := runAll(t, func() computer.MapReduce { return computer.NewGroupMapReduce(nil) }, vs)
	want := ir.NewIRMap(
		ir.IRMapEntry{Key: ir.IRString("person"), Value: ir.IRArray{ir.IRInt(27), ir.IRInt(27), ir.IRInt(29)}},
		ir.IRMapEntry{Key: ir.IRString("software"), Value: ir.IRArray{}},
	)
	assert.Equal(t, ir.Key(want), ir.Key(got))

	count := func(_ context.Context, vals ir.IRArray) (ir.IRValue, bool, error) {
		if len(vals) == 0 {
			return nil, false, nil
		}
		return ir.IRInt(len(vals)), true, nil
	}
	got = runAll(t, func() computer.MapReduce { return computer.NewGroupMapReduce(count) }, vs)
	assert.Equal(t, ir.Key(ir.NewIRMap(ir.IRMapEntry{Key: ir.IRString("person"), Value: ir.IRInt(3)})), ir.Key(got))
}

func TestOrderJob(t *testing.T) {
	entry := func(age int64, name string) ir.IRValue {
		return ir.IRArray{ir.IRArray{ir.IRInt(age)}, ir.IRString(name)}
	}
	vs := withHalted(t, map[int64][]halted{
		testutil.Marko: {{entry(29, "marko"), 1}},
		testutil.Vadas: {{entry(27, "vadas"), 1}},
		testutil.Josh:  {{entry(32, "josh"), 2}},
		testutil.Peter: {{entry(29, "aaron"), 1}},
	})

	got := runAll(t, func() computer.MapReduce { return computer.NewOrderMapReduce([]bool{true}) }, vs)
	want := ir.IRArray{
		ir.IRString("josh"), ir.IRString("josh"),
		ir.IRString("aaron"), ir.IRString("marko"),
		ir.IRString("vadas"),
	}
	assert.Equal(t, want, got)
}

func TestCompareOrdered(t *testing.T) {
	keys := func(vs ...int64) ir.IRArray {
		out := make(ir.IRArray, len(vs))
		for i, v := range vs {
			out[i] = ir.IRInt(v)
		}
		return out
	}
	tests := []struct {
		name string
		a, b ir.IRArray
		desc []bool
		want int
	}{
		{"asc", keys(1), keys(2), nil, -1},
		{"desc", keys(1), keys(2), []bool{true}, 1},
		{"second key breaks tie", keys(1, 5), keys(1, 3), []bool{false, true}, -1},
		{"value breaks tie", keys(1), keys(1), []bool{true}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computer.CompareOrdered(tt.a, ir.IRString("a"), tt.b, ir.IRString("b"), tt.desc)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultMapReduceStoresInMemory(t *testing.T) {
	res, err := computer.RunVertexProgram[int64](context.Background(), &inDegree{}, testutil.NewModernGraph(t))
	require.NoError(t, err)

	got, err := res.MapReduce(context.Background(), &degreeSum{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(6), got)

	stored, ok := res.Memory.Get("degreeSum")
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(6), stored)
}

// degreeSum totals the inDegree view key without a combine stage.
type degreeSum struct{}

func (*degreeSum) Name() string      { return "degreeSum" }
func (*degreeSum) MemoryKey() string { return "degreeSum" }

func (*degreeSum) DoStage(s computer.Stage) bool { return s == computer.StageReduce }

func (*degreeSum) Map(_ context.Context, v *computer.Vertex, e computer.Emitter) error {
	if d, ok := v.Get("inDegree"); ok {
		e.Emit(ir.IRString("total"), d)
	}
	return nil
}

func (*degreeSum) Combine(context.Context, ir.IRValue, []ir.IRValue, computer.Emitter) error {
	return errors.New("combine is disabled")
}

func (*degreeSum) Reduce(_ context.Context, key ir.IRValue, values []ir.IRValue, e computer.Emitter) error {
	var n ir.IRInt
	for _, v := range values {
		n += v.(ir.IRInt)
	}
	e.Emit(key, n)
	return nil
}

func (*degreeSum) GenerateFinalResult(pairs []computer.KeyValue) (ir.IRValue, error) {
	if len(pairs) == 0 {
		return ir.IRInt(0), nil
	}
	return pairs[0].Value, nil
}

func TestMapErrorIsWrapped(t *testing.T) {
	job := failingJob{computer.NewCountMapReduce()}
	_, err := computer.RunMapReduce(context.Background(), job, withHalted(t, nil), computer.WithPartitions(2))
	require.Error(t, err)
	assert.Equal(t, fault.CodeWorkerFailure, fault.CodeOf(err))
}

type failingJob struct{ *computer.CountMapReduce }

func (failingJob) Map(context.Context, *computer.Vertex, computer.Emitter) error {
	return errors.New("bad vertex")
}
