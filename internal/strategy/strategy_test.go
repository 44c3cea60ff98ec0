package strategy_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/strategy"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
	"github.com/roach88/tinkergo/internal/traversal"
)

// fake is a no-op strategy with declared constraints.
type fake struct {
	name      string
	category  strategy.Category
	prior     []string
	posterior []string
}

func (f fake) Name() string                                     { return f.name }
func (f fake) Category() strategy.Category                      { return f.category }
func (f fake) Prior() []string                                  { return f.prior }
func (f fake) Posterior() []string                              { return f.posterior }
func (f fake) Apply(context.Context, *traversal.Traversal) error { return nil }

func stepTypes(t *traversal.Traversal) []string {
	out := make([]string, t.Len())
	for i, s := range t.Steps() {
		out[i] = fmt.Sprintf("%T", s)
	}
	return out
}

func TestDefaultOrder(t *testing.T) {
	assert.Equal(t, []string{
		"RepeatUnrollStrategy",
		"IdentityRemovalStrategy",
		"GraphStepFoldStrategy",
		"ComparatorHolderRemovalStrategy",
		"ComputerBypassStrategy",
		"ComputerVerificationStrategy",
	}, strategy.Default().Names())
}

func TestDefaultIsNotShared(t *testing.T) {
	a := strategy.Default()
	a.Remove("ComputerVerificationStrategy")
	assert.Len(t, strategy.Default().Names(), 6)
	assert.Len(t, a.Names(), 5)
}

func TestOrderHonorsConstraints(t *testing.T) {
	r, err := strategy.New([]strategy.Strategy{
		fake{name: "c", category: strategy.Optimization, prior: []string{"b"}},
		fake{name: "b", category: strategy.Optimization},
		fake{name: "a", category: strategy.Optimization, posterior: []string{"b"}},
		fake{name: "v", category: strategy.Verification},
		fake{name: "d", category: strategy.Decoration},
		fake{name: "x", category: strategy.Optimization, prior: []string{"not-registered"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "b", "c", "x", "v"}, r.Names())
}

func TestOrderCycle(t *testing.T) {
	r := strategy.Empty()
	require.NoError(t, r.Register(fake{name: "a", category: strategy.Optimization}))

	err := r.Register(
		fake{name: "b", category: strategy.Optimization, prior: []string{"c"}},
		fake{name: "c", category: strategy.Optimization, prior: []string{"b"}},
	)
	require.Error(t, err)
	assert.Equal(t, fault.CodeStrategyCycle, fault.CodeOf(err))
	assert.True(t, fault.IsConfiguration(err))
	assert.Contains(t, err.Error(), "b -> c -> b")
	assert.Equal(t, []string{"a"}, r.Names(), "registry unchanged")
}

func TestCategoryConflictIsCycle(t *testing.T) {
	_, err := strategy.New([]strategy.Strategy{
		fake{name: "opt", category: strategy.Optimization},
		fake{name: "verify", category: strategy.Verification, posterior: []string{"opt"}},
	})
	assert.Equal(t, fault.CodeStrategyCycle, fault.CodeOf(err))
}

func TestSelfCycle(t *testing.T) {
	_, err := strategy.New([]strategy.Strategy{
		fake{name: "loop", category: strategy.Optimization, prior: []string{"loop"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop -> loop")
}

func TestRegisterReplacesByName(t *testing.T) {
	r := strategy.Empty()
	require.NoError(t, r.Register(fake{name: "a", category: strategy.Verification}))
	require.NoError(t, r.Register(fake{name: "b", category: strategy.Optimization}))
	require.NoError(t, r.Register(fake{name: "a", category: strategy.Decoration}))

	require.Len(t, r.Strategies(), 2)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestApplyLocks(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Out()

	require.NoError(t, strategy.Empty().Apply(ctx, tr))
	assert.True(t, tr.Locked())

	err := strategy.Default().Apply(ctx, tr)
	assert.Equal(t, fault.CodeLocked, fault.CodeOf(err))
}

func TestApplyReportsBuilderError(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Times(2)
	err := strategy.Default().Apply(context.Background(), tr)
	assert.Equal(t, fault.CodeInvalidConfig, fault.CodeOf(err))
}

func TestIdempotence(t *testing.T) {
	g := testutil.NewModernGraph(t)
	anon := traversal.Anon
	build := map[string]func(...traversal.Option) *traversal.Traversal{
		"identity": func(o ...traversal.Option) *traversal.Traversal {
			return traversal.New(g, o...).V().Identity().Identity().As("x").Out()
		},
		"repeat": func(o ...traversal.Option) *traversal.Traversal {
			return traversal.New(g, o...).V(testutil.Marko).Repeat(anon().Out().Repeat(anon().In()).Times(1)).Times(2).Values("name")
		},
		"fold has": func(o ...traversal.Option) *traversal.Traversal {
			return traversal.New(g, o...).V().HasLabel("person").Has("age", traversal.Gt(ir.IRInt(30))).Values("name")
		},
		"order in local": func(o ...traversal.Option) *traversal.Traversal {
			return traversal.New(g, o...).V().Local(anon().Out().Order().ByKey("name").Identity()).Order().ByKey("name").Count()
		},
		"group": func(o ...traversal.Option) *traversal.Traversal {
			return traversal.New(g, o...).V().Group().By(anon().Label()).By(anon().Identity().Values("name"))
		},
	}

	for name, fn := range build {
		for _, mode := range []traversal.Mode{traversal.Standard, traversal.Computer} {
			t.Run(name+"/"+mode.String(), func(t *testing.T) {
				ctx := context.Background()
				r := strategy.Default()
				first := fn(traversal.WithMode(mode))
				require.NoError(t, r.Apply(ctx, first))

				again := first.Clone()
				require.NoError(t, r.Apply(ctx, again))
				if diff := cmp.Diff(first.Describe(), again.Describe()); diff != "" {
					t.Errorf("reapplying changed the traversal (-first +again):\n%s", diff)
				}
			})
		}
	}
}

func TestIdentityRemoval(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Identity().Identity().As("keep").Out().Local(traversal.Anon().Identity().Count())
	require.NoError(t, strategy.Default().Apply(context.Background(), tr))

	assert.Equal(t, []string{"*traversal.GraphStep", "*traversal.IdentityStep", "*traversal.VertexStep", "*traversal.LocalStep"}, stepTypes(tr))
	child := tr.Step(3).(traversal.Parent).Children()[0]
	assert.Equal(t, []string{"*traversal.CountStep"}, stepTypes(child))
}

func TestRepeatUnroll(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V(testutil.Marko).Repeat(traversal.Anon().Out()).Times(2).Values("name")
	require.NoError(t, strategy.Default().Apply(ctx, tr))

	assert.Equal(t, []string{"*traversal.GraphStep", "*traversal.VertexStep", "*traversal.VertexStep", "*traversal.PropertiesStep"}, stepTypes(tr))
	out, err := tr.ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRString("ripple"), ir.IRString("lop")}, out)
}

func TestRepeatUnrollSkipsBarriersAndLabels(t *testing.T) {
	g := testutil.NewModernGraph(t)
	anon := traversal.Anon

	barrier := traversal.New(g).V().Repeat(anon().Out().Dedup().Fold().Unfold()).Times(2)
	labeled := traversal.New(g).V().Repeat(anon().Out().As("x")).Times(2)
	for _, tr := range []*traversal.Traversal{barrier, labeled} {
		require.NoError(t, strategy.Default().Apply(context.Background(), tr))
		assert.IsType(t, &traversal.RepeatStep{}, tr.Step(1))
	}
}

func TestRepeatUnrollZeroTimes(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V(testutil.Marko).Repeat(traversal.Anon().Out()).Times(0).Values("name")
	require.NoError(t, strategy.Default().Apply(context.Background(), tr))
	assert.Equal(t, []string{"*traversal.GraphStep", "*traversal.PropertiesStep"}, stepTypes(tr))
}

func TestGraphStepFold(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Identity().HasLabel("person").Has("age", traversal.Gt(ir.IRInt(30))).As("old").Has("name", traversal.Eq(ir.IRString("josh"))).Values("name")
	require.NoError(t, strategy.Default().Apply(ctx, tr))

	require.Equal(t, []string{"*traversal.GraphStep", "*traversal.HasStep", "*traversal.HasStep", "*traversal.PropertiesStep"}, stepTypes(tr))
	assert.Len(t, tr.StartStep().(*traversal.GraphStep).Containers(), 1)
	assert.Equal(t, []string{"old"}, tr.Step(1).Labels())

	out, err := tr.ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRString("josh")}, out)
}

func TestComputerFinalization(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g, traversal.WithMode(traversal.Computer)).V().Order().ByKey("age").Values("name").Local(traversal.Anon().Order()).Count()
	require.NoError(t, strategy.Default().Apply(context.Background(), tr))

	assert.Equal(t, []string{"*traversal.GraphStep", "*traversal.PropertiesStep", "*traversal.LocalStep", "*traversal.CountStep"}, stepTypes(tr))
	assert.True(t, tr.EndStep().(traversal.MapReducer).Bypass())
	child := tr.Step(2).(traversal.Parent).Children()[0]
	assert.Equal(t, []string{"*traversal.OrderStep"}, stepTypes(child), "children keep their order")
}

func TestStandardModeUntouchedByComputerStrategies(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Order().ByKey("age").Values("name").Count()
	require.NoError(t, strategy.Default().Apply(context.Background(), tr))

	assert.Equal(t, []string{"*traversal.GraphStep", "*traversal.OrderStep", "*traversal.PropertiesStep", "*traversal.CountStep"}, stepTypes(tr))
	assert.False(t, tr.EndStep().(traversal.MapReducer).Bypass())
}

func TestComputerVerification(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g, traversal.WithMode(traversal.Computer)).
		Inject(ir.IRInt(1)).Count().Dedup().Range(0, 2).Fold()
	err := strategy.Default().Apply(context.Background(), tr)
	require.Error(t, err)
	assert.Equal(t, fault.CodeVerification, fault.CodeOf(err))
	for _, want := range []string{"must start with V() or E()", "CountGlobalStep must be the last step", "DedupGlobalStep must be the last step", "RangeGlobalStep"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.False(t, tr.Locked())
}

func TestComputerVerificationAcceptsAggregate(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g, traversal.WithMode(traversal.Computer)).V().Out().Aggregate("x").In().Retain("x").Dedup()
	require.NoError(t, strategy.Default().Apply(context.Background(), tr))
}

func TestComputerVerificationRejectsRepeat(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g, traversal.WithMode(traversal.Computer)).V().Repeat(traversal.Anon().Out().Fold().Unfold()).Times(2)
	err := strategy.Default().Apply(context.Background(), tr)
	assert.Equal(t, fault.CodeVerification, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "could not be unrolled")
}

// unsafeGraph hides the memory graph's concurrent mutation declaration.
type unsafeGraph struct{ structure.Graph }

func TestComputerVerificationRejectsUnsafeMutation(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)

	safe := traversal.New(g, traversal.WithMode(traversal.Computer)).V().Property("seen", ir.IRBool(true))
	require.NoError(t, strategy.Default().Apply(ctx, safe))

	unsafe := traversal.New(unsafeGraph{g}, traversal.WithMode(traversal.Computer)).V().Local(traversal.Anon().Property("seen", ir.IRBool(true)))
	err := strategy.Default().Apply(ctx, unsafe)
	assert.Equal(t, fault.CodeVerification, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "not safe for concurrent mutation")
}

func TestReadOnly(t *testing.T) {
	g := testutil.NewModernGraph(t)
	r := strategy.Default()
	require.NoError(t, r.Register(strategy.ReadOnly{}))

	require.NoError(t, r.Apply(context.Background(), traversal.New(g).V().Out()))

	err := r.Apply(context.Background(), traversal.New(g).V().Local(traversal.Anon().AddV("person", nil)))
	assert.Equal(t, fault.CodeVerification, fault.CodeOf(err))
}

func TestEventAttachesOnce(t *testing.T) {
	ctx := context.Background()
	g := testutil.NewModernGraph(t)
	rec := &traversal.RecordingListener{Name: "rec"}
	ev := strategy.NewEvent(rec)

	tr := traversal.New(g).V(testutil.Marko).Property("age", ir.IRInt(30)).Local(traversal.Anon().Property("seen", ir.IRBool(true)))
	require.NoError(t, ev.Apply(ctx, tr))
	require.NoError(t, ev.Apply(ctx, tr))
	assert.Len(t, tr.Step(1).(traversal.Mutating).Listeners(), 1)

	r := strategy.Empty()
	require.NoError(t, r.Register(ev))
	require.NoError(t, r.Apply(ctx, tr))
	require.NoError(t, tr.Iterate(ctx))
	assert.Len(t, rec.Events, 2, "the child's mutation is observed too")
}

func TestExplain(t *testing.T) {
	g := testutil.NewModernGraph(t)
	tr := traversal.New(g).V().Identity().Out()
	steps, err := strategy.Default().Explain(context.Background(), tr)
	require.NoError(t, err)

	require.Len(t, steps, 7)
	assert.Equal(t, "original", steps[0].Strategy)
	assert.Equal(t, "[GraphStep(vertex), IdentityStep, VertexStep(out,vertex)]", steps[0].Traversal)
	assert.Equal(t, "IdentityRemovalStrategy", steps[2].Strategy)
	assert.Equal(t, "[GraphStep(vertex), VertexStep(out,vertex)]", steps[2].Traversal)
	assert.True(t, tr.Locked())
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "decoration", strategy.Decoration.String())
	assert.Equal(t, "verification", strategy.Verification.String())
}
