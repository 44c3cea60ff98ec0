package strategy

import (
	"context"
	"log/slog"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/traversal"
)

// Category groups strategies; lower categories run first.
type Category int

const (
	Decoration Category = iota
	Optimization
	Finalization
	Verification
)

func (c Category) String() string {
	switch c {
	case Decoration:
		return "decoration"
	case Optimization:
		return "optimization"
	case Finalization:
		return "finalization"
	case Verification:
		return "verification"
	}
	return "unknown"
}

// Strategy rewrites or checks one traversal. Apply is called on the root
// and on each child traversal; it must be idempotent.
type Strategy interface {
	Name() string
	Category() Category
	Apply(ctx context.Context, t *traversal.Traversal) error
}

// Prior is implemented by strategies that must run after the named ones.
type Prior interface {
	Prior() []string
}

// Posterior is implemented by strategies that must run before the named
// ones.
type Posterior interface {
	Posterior() []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for strategy application.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry is an ordered set of strategies keyed by name.
type Registry struct {
	byName  *linkedhashmap.Map
	ordered []Strategy
	log     *slog.Logger
}

// New creates a registry holding strategies.
func New(strategies []Strategy, opts ...Option) (*Registry, error) {
	r := Empty(opts...)
	if err := r.Register(strategies...); err != nil {
		return nil, err
	}
	return r, nil
}

// Empty creates a registry with no strategies. Applying it only locks.
func Empty(opts ...Option) *Registry {
	r := &Registry{
		byName: linkedhashmap.New(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default creates a new registry with the built-in strategies that apply to
// every traversal. Event and read-only strategies are opt-in.
func Default(opts ...Option) *Registry {
	r, err := New([]Strategy{
		IdentityRemoval{},
		RepeatUnroll{},
		GraphStepFold{},
		ComparatorHolderRemoval{},
		ComputerBypass{},
		ComputerVerification{},
	}, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds strategies, replacing any registered under the same name,
// and recomputes the order. On an ordering cycle the registry is left
// unchanged and an E102 error names the cycle.
func (r *Registry) Register(strategies ...Strategy) error {
	next := linkedhashmap.New()
	r.byName.Each(func(k, v any) { next.Put(k, v) })
	for _, s := range strategies {
		next.Put(s.Name(), s)
	}
	list := make([]Strategy, 0, next.Size())
	next.Each(func(_, v any) { list = append(list, v.(Strategy)) })
	ordered, err := sortStrategies(list)
	if err != nil {
		return err
	}
	r.byName = next
	r.ordered = ordered
	return nil
}

// Remove drops the named strategies.
func (r *Registry) Remove(names ...string) {
	for _, n := range names {
		r.byName.Remove(n)
	}
	list := make([]Strategy, 0, r.byName.Size())
	r.byName.Each(func(_, v any) { list = append(list, v.(Strategy)) })
	// Removing constraints never introduces a cycle.
	r.ordered, _ = sortStrategies(list)
}

// Strategies returns the strategies in application order.
func (r *Registry) Strategies() []Strategy {
	return append([]Strategy(nil), r.ordered...)
}

// Names returns the strategy names in application order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.ordered))
	for i, s := range r.ordered {
		out[i] = s.Name()
	}
	return out
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	c := &Registry{byName: linkedhashmap.New(), log: r.log}
	r.byName.Each(func(k, v any) { c.byName.Put(k, v) })
	c.ordered = append([]Strategy(nil), r.ordered...)
	return c
}

// Apply rewrites t and its children, then locks t. It fails with E101 when
// t is already locked.
func (r *Registry) Apply(ctx context.Context, t *traversal.Traversal) error {
	return r.apply(ctx, t, nil)
}

// Explanation is the state of a traversal after one strategy.
type Explanation struct {
	Strategy  string
	Category  Category
	Traversal string
}

// Explain applies the registry like Apply and records the root traversal
// before the first strategy and after each one.
func (r *Registry) Explain(ctx context.Context, t *traversal.Traversal) ([]Explanation, error) {
	out := []Explanation{{Strategy: "original", Category: -1, Traversal: t.String()}}
	err := r.apply(ctx, t, func(s Strategy) {
		out = append(out, Explanation{Strategy: s.Name(), Category: s.Category(), Traversal: t.String()})
	})
	return out, err
}

func (r *Registry) apply(ctx context.Context, t *traversal.Traversal, observe func(Strategy)) error {
	if err := t.Err(); err != nil {
		return err
	}
	if t.Locked() {
		return fault.New(fault.CodeLocked, "cannot apply strategies: traversal is locked")
	}
	for _, s := range r.ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := t.String()
		if err := s.Apply(ctx, t); err != nil {
			return err
		}
		if observe != nil {
			observe(s)
		}
		if after := t.String(); after != before {
			r.log.Debug("strategy applied",
				"strategy", s.Name(),
				"category", s.Category().String(),
				"before", before,
				"after", after,
			)
		}
	}
	for _, child := range children(t) {
		if err := r.applyChild(ctx, child); err != nil {
			return err
		}
	}
	return t.Lock()
}

func (r *Registry) applyChild(ctx context.Context, t *traversal.Traversal) error {
	for _, s := range r.ordered {
		if err := s.Apply(ctx, t); err != nil {
			return err
		}
	}
	for _, child := range children(t) {
		if err := r.applyChild(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// children returns the direct child traversals of t's steps.
func children(t *traversal.Traversal) []*traversal.Traversal {
	var out []*traversal.Traversal
	for _, s := range t.Steps() {
		if p, ok := s.(traversal.Parent); ok {
			for _, c := range p.Children() {
				if c != nil {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// walk calls fn for t and every traversal nested under it.
func walk(t *traversal.Traversal, fn func(*traversal.Traversal)) {
	fn(t)
	for _, c := range children(t) {
		walk(c, fn)
	}
}
