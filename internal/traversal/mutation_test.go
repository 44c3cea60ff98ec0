package traversal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traversal"
)

func TestAddVertexNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)

	step := traversal.NewAddVertexStep("person", ir.IRObject{"name": ir.IRString("ann")})
	rec := &traversal.RecordingListener{Name: "rec"}
	step.AddListener(rec)
	step.AddListener(rec)
	require.Len(t, step.Listeners(), 1)

	tr := traversal.New(g).Inject(ir.IRInt(1), ir.IRInt(2))
	require.NoError(t, tr.AddStep(step))
	out := run(t, tr)
	assert.Equal(t, ints(1, 2), out)

	require.Len(t, rec.Events, 2)
	assert.Equal(t, traversal.VertexAdded, rec.Events[0].Kind)
	assert.Equal(t, ir.IRVertex{ID: 13, Label: "person"}, rec.Events[0].Vertex)
	assert.Equal(t, step.ID(), rec.Events[0].StepID)

	v, err := g.Vertex(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("ann"), v.Properties["name"])
}

func TestPropertyStep(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)

	step := traversal.NewPropertyStep("age", ir.IRInt(30))
	rec := &traversal.RecordingListener{Name: "rec"}
	step.AddListener(rec)
	tr := traversal.New(g).V(testutil.Marko)
	require.NoError(t, tr.AddStep(step))
	require.NoError(t, tr.Iterate(ctx))

	v, err := g.Vertex(ctx, testutil.Marko)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(30), v.Properties["age"])

	require.Len(t, rec.Events, 1)
	ev := rec.Events[0]
	assert.Equal(t, traversal.PropertyChanged, ev.Kind)
	assert.Equal(t, ir.IRInt(29), ev.Old)
	assert.Equal(t, ir.IRInt(30), ev.New)

	// The builder form has no listeners.
	require.NoError(t, traversal.New(g).V(testutil.Vadas).Property("nick", ir.IRString("v")).Iterate(ctx))
	v, err = g.Vertex(ctx, testutil.Vadas)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("v"), v.Properties["nick"])
}

func TestRemoveAndClearListeners(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)

	step := traversal.NewPropertyStep("age", ir.IRInt(30))
	kept := &traversal.RecordingListener{Name: "kept"}
	dropped := &traversal.RecordingListener{Name: "dropped"}
	step.AddListener(kept)
	step.AddListener(dropped)
	step.RemoveListener("dropped")
	step.RemoveListener("unknown")
	require.Len(t, step.Listeners(), 1)
	assert.Equal(t, "kept", step.Listeners()[0].Handle())

	tr := traversal.New(g).V(testutil.Marko)
	require.NoError(t, tr.AddStep(step))
	require.NoError(t, tr.Iterate(ctx))
	assert.Len(t, kept.Events, 1)
	assert.Empty(t, dropped.Events)

	var m traversal.Mutating = traversal.NewAddVertexStep("person", nil)
	m.AddListener(kept)
	m.AddListener(dropped)
	m.ClearListeners()
	assert.Empty(t, m.Listeners())

	// A cleared step accepts listeners again.
	m.AddListener(dropped)
	assert.Len(t, m.Listeners(), 1)
}

func TestPropertyRequiresVertex(t *testing.T) {
	g := testutil.NewModernGraph(t)
	_, err := traversal.New(g).V(testutil.Marko).OutE().Property("k", ir.IRInt(1)).ToList(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInvalidValue))
}

type failingListener struct{}

func (failingListener) Handle() string { return "fail" }
func (failingListener) OnMutation(context.Context, traversal.MutationEvent) error {
	return errors.New("audit log full")
}

func TestListenerFailure(t *testing.T) {
	g := testutil.NewModernGraph(t)
	step := traversal.NewPropertyStep("age", ir.IRInt(1))
	step.AddListener(failingListener{})
	tr := traversal.New(g).V(testutil.Marko)
	require.NoError(t, tr.AddStep(step))

	err := tr.Iterate(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeMutation))
	assert.Contains(t, err.Error(), "audit log full")
}

func TestMutationOutsideStarIsNonLocal(t *testing.T) {
	ctx := context.Background()
	backing := testutil.NewModernGraph(t)
	star, err := structure.LoadStar(ctx, backing, testutil.Marko)
	require.NoError(t, err)

	tr := traversal.New(structure.NewStarGraph(star, backing)).Inject(testutil.VertexRef(testutil.Vadas)).Property("age", ir.IRInt(1))
	err = tr.Iterate(ctx)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeNonLocal))
}
