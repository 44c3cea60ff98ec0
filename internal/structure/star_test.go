package structure_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
)

func TestLoadStars(t *testing.T) {
	ctx := context.Background()
	stars, err := structure.LoadStars(ctx, testutil.NewModernGraph(t))
	require.NoError(t, err)
	require.Len(t, stars, 6)

	lop := stars[2]
	assert.Equal(t, testutil.Lop, lop.ID())
	assert.Empty(t, lop.OutEdges)
	assert.Len(t, lop.InEdges, 3)
	assert.Len(t, stars[0].Edges(structure.Out, "knows"), 2)
}

func TestStarGraphStaysLocal(t *testing.T) {
	ctx := context.Background()
	backing := testutil.NewModernGraph(t)
	star, err := structure.LoadStar(ctx, backing, testutil.Marko)
	require.NoError(t, err)
	g := structure.NewStarGraph(star, backing)

	v, err := g.Vertex(ctx, testutil.Marko)
	require.NoError(t, err)
	assert.Equal(t, "marko", string(v.Properties["name"].(ir.IRString)))

	_, err = g.Vertex(ctx, testutil.Vadas)
	assert.ErrorIs(t, err, structure.ErrNonLocalElement)

	_, err = g.Vertices(ctx)
	assert.ErrorIs(t, err, structure.ErrNonLocalElement)

	it, err := g.IncidentEdges(ctx, testutil.Marko, structure.Out, "created")
	require.NoError(t, err)
	edges, err := structure.Collect(ctx, it)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(9), edges[0].ID)

	require.NoError(t, g.SetProperty(ctx, testutil.Marko, "age", ir.IRInt(30)))
	v, err = g.Vertex(ctx, testutil.Marko)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(30), v.Properties["age"])

	stored, err := backing.Vertex(ctx, testutil.Marko)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(30), stored.Properties["age"])
}

func TestStarGraphWithoutBackingRejectsMutation(t *testing.T) {
	ctx := context.Background()
	star, err := structure.LoadStar(ctx, testutil.NewModernGraph(t), testutil.Vadas)
	require.NoError(t, err)
	g := structure.NewStarGraph(star, nil)

	assert.False(t, g.ConcurrentMutationSafe())
	_, err = g.AddVertex(ctx, "person", nil)
	assert.ErrorIs(t, err, structure.ErrNonLocalElement)
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	doc, err := structure.Export(ctx, testutil.NewModernGraph(t))
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	back, err := structure.ReadDocument(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, testutil.ModernDocument(), back)
}

func TestReadDocumentRejectsFloats(t *testing.T) {
	_, err := structure.ReadDocument(bytes.NewReader([]byte(`{"vertices":[{"id":1,"label":"x","properties":{"w":0.5}}],"edges":[]}`)))
	assert.Error(t, err)
}
