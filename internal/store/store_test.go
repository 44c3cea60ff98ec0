package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/program"
	"github.com/roach88/tinkergo/internal/store"
	"github.com/roach88/tinkergo/internal/strategy"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traversal"
)

func setupTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// modernStore loads the modern graph with a page size small enough that
// every iterator crosses several pages.
func modernStore(t *testing.T) *store.Store {
	t.Helper()
	s := setupTestStore(t, store.WithPageSize(2))
	require.NoError(t, s.CreateIndex(context.Background(), "name"))
	require.NoError(t, structure.Load(context.Background(), s, testutil.ModernDocument()))
	return s
}

func ids[T interface{ *structure.Vertex | *structure.Edge }](t *testing.T, it structure.Iterator[T], id func(T) int64) []int64 {
	t.Helper()
	items, err := structure.Collect(context.Background(), it)
	require.NoError(t, err)
	out := []int64{}
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

func vid(v *structure.Vertex) int64 { return v.ID }
func eid(e *structure.Edge) int64   { return e.ID }

func TestOpenAppliesPragmas(t *testing.T) {
	s := setupTestStore(t)
	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"user_version": "1",
	} {
		var got string
		require.NoError(t, s.DB().QueryRow("PRAGMA "+pragma).Scan(&got))
		assert.Equal(t, want, got, pragma)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex(context.Background(), "name"))
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"name"}, s.IndexedKeys())
}

func TestVertexAndEdge(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	v, err := s.Vertex(ctx, testutil.Josh)
	require.NoError(t, err)
	assert.Equal(t, "person", v.Label)
	assert.Equal(t, ir.IRObject{"name": ir.IRString("josh"), "age": ir.IRInt(32)}, v.Properties)

	e, err := s.Edge(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ir.IREdge{ID: 10, Label: "created", OutV: testutil.VertexRef(testutil.Josh), InV: testutil.VertexRef(testutil.Ripple)}, e.Ref())
	assert.Equal(t, ir.IRInt(100), e.Properties["weight"])

	_, err = s.Vertex(ctx, 99)
	assert.ErrorIs(t, err, structure.ErrNotFound)
	_, err = s.Edge(ctx, 99)
	assert.ErrorIs(t, err, structure.ErrNotFound)
}

func TestIteratorsPage(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	vit, err := s.Vertices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ids(t, vit, vid))

	eit, err := s.Edges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8, 9, 10, 11, 12}, ids(t, eit, eid))
}

func TestIteratorStop(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	it, err := s.Vertices(ctx)
	require.NoError(t, err)
	_, err = it.Next(ctx)
	require.NoError(t, err)
	it.Stop()
	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, structure.ErrIteratorDone)
}

func TestIteratorsSkipLaterInserts(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	vit, err := s.Vertices(ctx)
	require.NoError(t, err)
	first, err := vit.Next(ctx)
	require.NoError(t, err)
	eit, err := s.Edges(ctx)
	require.NoError(t, err)

	v, err := s.AddVertex(ctx, "person", ir.IRObject{"name": ir.IRString("kelvin")})
	require.NoError(t, err)
	_, err = s.AddEdge(ctx, "knows", v.ID, testutil.Marko, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, ids(t, vit, vid))
	assert.Equal(t, []int64{7, 8, 9, 10, 11, 12}, ids(t, eit, eid))
}

func TestIncidentEdges(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	tests := []struct {
		name   string
		vertex int64
		dir    structure.Direction
		labels []string
		want   []int64
	}{
		{"out", testutil.Marko, structure.Out, nil, []int64{7, 8, 9}},
		{"out knows", testutil.Marko, structure.Out, []string{"knows"}, []int64{7, 8}},
		{"in", testutil.Lop, structure.In, nil, []int64{9, 11, 12}},
		{"both", testutil.Josh, structure.Both, nil, []int64{10, 11, 8}},
		{"both labels", testutil.Josh, structure.Both, []string{"knows", "created"}, []int64{10, 11, 8}},
		{"none", testutil.Vadas, structure.Out, nil, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := s.IncidentEdges(ctx, tt.vertex, tt.dir, tt.labels...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(t, it, eid))
		})
	}

	_, err := s.IncidentEdges(ctx, 99, structure.Out)
	assert.ErrorIs(t, err, structure.ErrNotFound)
}

func TestVerticesByProperty(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	it, err := s.VerticesByProperty(ctx, "name", ir.IRString("lop"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(t, it, vid))

	it, err = s.VerticesByProperty(ctx, "lang", ir.IRString("java"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, ids(t, it, vid))

	it, err = s.VerticesByProperty(ctx, "age", ir.IRString("29"))
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids(t, it, vid))
}

func TestIndexFollowsMutation(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	require.NoError(t, s.SetProperty(ctx, testutil.Lop, "name", ir.IRString("lop2")))
	it, err := s.VerticesByProperty(ctx, "name", ir.IRString("lop"))
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids(t, it, vid))
	it, err = s.VerticesByProperty(ctx, "name", ir.IRString("lop2"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(t, it, vid))

	require.NoError(t, s.DropProperty(ctx, testutil.Lop, "name"))
	it, err = s.VerticesByProperty(ctx, "name", ir.IRString("lop2"))
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids(t, it, vid))

	assert.ErrorIs(t, s.SetProperty(ctx, 99, "name", ir.IRString("x")), structure.ErrNotFound)
}

func TestCreateIndexBackfills(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	require.NoError(t, s.CreateIndex(ctx, "lang"))
	require.NoError(t, s.CreateIndex(ctx, "lang"))
	assert.Equal(t, []string{"lang", "name"}, s.IndexedKeys())

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM vertex_index WHERE key = 'lang'`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestAddSharesIDSpace(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	v, err := s.AddVertex(ctx, "person", ir.IRObject{"name": ir.IRString("kelvin")})
	require.NoError(t, err)
	assert.Equal(t, int64(13), v.ID)

	e, err := s.AddEdge(ctx, "knows", v.ID, testutil.Marko, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(14), e.ID)
	assert.Equal(t, testutil.VertexRef(testutil.Marko), e.InV)
	assert.Equal(t, ir.IRObject{}, e.Properties)

	it, err := s.VerticesByProperty(ctx, "name", ir.IRString("kelvin"))
	require.NoError(t, err)
	assert.Equal(t, []int64{13}, ids(t, it, vid))

	_, err = s.AddEdge(ctx, "knows", v.ID, 99, nil)
	assert.ErrorIs(t, err, structure.ErrNotFound)
}

func TestPutRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	assert.Error(t, s.PutVertex(ctx, &structure.Vertex{ID: testutil.Marko, Label: "person"}))
	assert.Error(t, s.PutEdge(ctx, &structure.Edge{ID: 7, Label: "knows", OutV: ir.IRVertex{ID: 1}, InV: ir.IRVertex{ID: 2}}))
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	doc, err := structure.Export(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, testutil.ModernDocument(), doc)
}

// The store answers traversals exactly like the in-memory graph.
func TestTraversalsMatchMemoryGraph(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	mem := testutil.NewModernGraph(t)
	anon := traversal.Anon

	queries := map[string]func(structure.Graph) *traversal.Traversal{
		"out out": func(g structure.Graph) *traversal.Traversal {
			return traversal.New(g, traversal.WithStrategies(strategy.Default())).V().Out().Out().Values("name")
		},
		"indexed has": func(g structure.Graph) *traversal.Traversal {
			return traversal.New(g, traversal.WithStrategies(strategy.Default())).V().Has("name", traversal.Eq(ir.IRString("josh"))).Out().Values("name")
		},
		"group count": func(g structure.Graph) *traversal.Traversal {
			return traversal.New(g, traversal.WithStrategies(strategy.Default())).V().Both().GroupCount().By(anon().Label())
		},
		"in edges": func(g structure.Graph) *traversal.Traversal {
			return traversal.New(g, traversal.WithStrategies(strategy.Default())).V(testutil.Lop).InE().ID()
		},
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			want, err := q(mem).ToList(ctx)
			require.NoError(t, err)
			got, err := q(s).ToList(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestComputerModeMutation(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	tr := traversal.New(s, traversal.WithMode(traversal.Computer), traversal.WithStrategies(strategy.Default())).
		V().HasLabel("person").Property("seen", ir.IRBool(true)).Count()
	out, err := program.Run(ctx, tr, computer.WithPartitions(3))
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRInt(4)}, out.List())

	it, err := s.VerticesByProperty(ctx, "seen", ir.IRBool(true))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4, 6}, ids(t, it, vid))
}

func TestWriteRun(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)

	res, err := computer.RunVertexProgram[int64](ctx, program.NewConnectedComponents(), s,
		computer.WithPartitions(2),
		computer.WithResultGraph(computer.ResultNew),
		computer.WithPersist(computer.PersistEdges),
		computer.WithOutputWriter(s),
	)
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "ConnectedComponentsVertexProgram", run.Program)
	assert.Equal(t, res.Iterations, run.Iterations)
	assert.Equal(t, "edges", run.Persist)
	require.Len(t, run.Vertices, 6)
	for _, v := range run.Vertices {
		assert.Equal(t, ir.IRInt(1), v.Properties[program.ComponentKey], "vertex %d", v.ID)
	}
	require.Len(t, run.Edges, 6)
	assert.Equal(t, testutil.VertexRef(testutil.Marko), run.Edges[0].OutV)

	// ResultNew leaves the stored graph untouched.
	v, err := s.Vertex(ctx, testutil.Vadas)
	require.NoError(t, err)
	assert.NotContains(t, v.Properties, program.ComponentKey)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)

	// Writing the same run again is a no-op.
	require.NoError(t, s.WriteRun(ctx, res))
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWriteRunPersistNothing(t *testing.T) {
	ctx := context.Background()
	s := modernStore(t)
	res, err := computer.RunVertexProgram[int64](ctx, program.NewConnectedComponents(), s, computer.WithOutputWriter(s))
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Empty(t, run.Vertices)
	assert.Empty(t, run.Edges)
}

func TestReadRunNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}
