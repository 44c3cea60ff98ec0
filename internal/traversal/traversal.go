package traversal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// Mode selects how a traversal is executed.
type Mode int

const (
	// Standard walks the traversal as a pull iterator in one goroutine.
	Standard Mode = iota
	// Computer compiles the traversal into a vertex program.
	Computer
)

func (m Mode) String() string {
	if m == Computer {
		return "computer"
	}
	return "standard"
}

// ParseMode parses "standard" or "computer".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "standard":
		return Standard, nil
	case "computer":
		return Computer, nil
	}
	return Standard, fault.New(fault.CodeInvalidConfig, "unknown mode %q", s)
}

// Strategies rewrites and then locks a traversal. It is satisfied by
// *strategy.Registry.
type Strategies interface {
	Apply(ctx context.Context, t *Traversal) error
}

// Option configures a root traversal.
type Option func(*Traversal)

// WithStrategies applies s on the first execution request.
func WithStrategies(s Strategies) Option {
	return func(t *Traversal) { t.strategies = s }
}

// WithGenerator restricts the traversal to g. Locking fails when a step
// requires more than g provides.
func WithGenerator(g traverser.Generator) Option {
	return func(t *Traversal) { t.restricted = g }
}

// WithMode sets the execution mode.
func WithMode(m Mode) Option {
	return func(t *Traversal) { t.mode = m }
}

// WithSeed seeds the random source used by probabilistic steps.
func WithSeed(seed uint64) Option {
	return func(t *Traversal) { t.seed = seed }
}

// Traversal is an ordered, editable sequence of steps. It is not safe for
// concurrent use; computer execution clones it per partition.
type Traversal struct {
	graph  structure.Graph
	steps  []Step
	parent Step

	prefix  string
	counter int
	locked  bool
	mode    Mode
	seed    uint64

	strategies Strategies
	restricted traverser.Generator
	generator  traverser.Generator

	own         *traverser.MapSideEffects
	sideEffects traverser.SideEffectStore

	starts *traverser.Set
	pipes  []*pipe

	unrolling *traverser.Traverser
	remaining int64

	err error
}

// New creates an empty root traversal over g.
func New(g structure.Graph, opts ...Option) *Traversal {
	t := newTraversal()
	t.graph = g
	t.seed = rand.Uint64()
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Anon creates an anonymous traversal for use as a child of a step.
func Anon() *Traversal {
	return newTraversal()
}

func newTraversal() *Traversal {
	own := traverser.NewMapSideEffects()
	return &Traversal{
		own:         own,
		sideEffects: own,
		starts:      traverser.NewSet(),
	}
}

// Err returns the first error recorded by a builder method.
func (t *Traversal) Err() error { return t.err }

// Graph returns the graph collaborator.
func (t *Traversal) Graph() structure.Graph { return t.graph }

// SetGraph replaces the graph collaborator of t and all of its children.
func (t *Traversal) SetGraph(g structure.Graph) {
	t.graph = g
	t.eachChild(func(c *Traversal) { c.SetGraph(g) })
}

// Mode returns the execution mode.
func (t *Traversal) Mode() Mode { return t.mode }

// SetMode changes the execution mode of t and its children.
func (t *Traversal) SetMode(m Mode) error {
	if err := t.checkUnlocked("set mode"); err != nil {
		return err
	}
	t.mode = m
	t.eachChild(func(c *Traversal) { _ = c.SetMode(m) })
	return nil
}

// Seed returns the seed of the random source.
func (t *Traversal) Seed() uint64 { return t.seed }

// Parent returns the step owning t, or nil for a root traversal.
func (t *Traversal) Parent() Step { return t.parent }

// IsRoot reports whether t is not owned by a step.
func (t *Traversal) IsRoot() bool { return t.parent == nil }

// HasStrategies reports whether strategies were set with WithStrategies.
func (t *Traversal) HasStrategies() bool { return t.strategies != nil }

// Locked reports whether t is locked.
func (t *Traversal) Locked() bool { return t.locked }

// Generator returns the generator selected at lock.
func (t *Traversal) Generator() traverser.Generator { return t.generator }

// SideEffects returns the side-effect store.
func (t *Traversal) SideEffects() traverser.SideEffectStore { return t.sideEffects }

// SetSideEffects replaces the side-effect store of t and its children.
func (t *Traversal) SetSideEffects(s traverser.SideEffectStore) {
	t.sideEffects = s
	t.eachChild(func(c *Traversal) { c.SetSideEffects(s) })
}

// Steps returns the steps in order.
func (t *Traversal) Steps() []Step { return slices.Clone(t.steps) }

// Len returns the number of steps.
func (t *Traversal) Len() int { return len(t.steps) }

// Step returns the step at index i.
func (t *Traversal) Step(i int) Step { return t.steps[i] }

// StartStep returns the first step, or nil when empty.
func (t *Traversal) StartStep() Step {
	if len(t.steps) == 0 {
		return nil
	}
	return t.steps[0]
}

// EndStep returns the last step, or nil when empty.
func (t *Traversal) EndStep() Step {
	if len(t.steps) == 0 {
		return nil
	}
	return t.steps[len(t.steps)-1]
}

// IndexOf returns the position of s, or -1.
func (t *Traversal) IndexOf(s Step) int {
	return slices.Index(t.steps, s)
}

// IndexOfID returns the position of the step with id, or -1.
func (t *Traversal) IndexOfID(id string) int {
	return slices.IndexFunc(t.steps, func(s Step) bool { return s.ID() == id })
}

// Requirements returns the union of the requirements of every step,
// including the steps of child traversals.
func (t *Traversal) Requirements() traverser.Requirements {
	var req traverser.Requirements
	for _, s := range t.steps {
		req |= s.Requirements()
		if p, ok := s.(Parent); ok {
			for _, c := range p.Children() {
				req |= c.Requirements()
			}
		}
	}
	return req | traverser.Object
}

func (t *Traversal) eachChild(fn func(*Traversal)) {
	for _, s := range t.steps {
		if p, ok := s.(Parent); ok {
			for _, c := range p.Children() {
				fn(c)
			}
		}
	}
}

func (t *Traversal) checkUnlocked(op string) error {
	if t.locked {
		return fault.New(fault.CodeLocked, "cannot %s: traversal is locked", op)
	}
	return nil
}

func (t *Traversal) nextID() string {
	id := t.prefix + strconv.Itoa(t.counter)
	t.counter++
	return id
}

// adopt assigns s a fresh id in t and re-prefixes its children.
func (t *Traversal) adopt(s Step) {
	b := s.base()
	b.id = t.nextID()
	b.owner = t
	if p, ok := s.(Parent); ok {
		for _, c := range p.Children() {
			c.parent = s
			c.rebase(b.id + ".")
		}
	}
}

// attach makes child a child of s.
func (t *Traversal) attach(s Step, child *Traversal) {
	child.parent = s
	child.mode = t.mode
	child.rebase(s.ID() + ".")
}

func (t *Traversal) rebase(prefix string) {
	t.prefix = prefix
	t.counter = 0
	for _, s := range t.steps {
		t.adopt(s)
	}
}

// AddStep appends s.
func (t *Traversal) AddStep(s Step) error {
	return t.InsertStep(len(t.steps), s)
}

// InsertStep inserts s at index i.
func (t *Traversal) InsertStep(i int, s Step) error {
	if err := t.checkUnlocked("insert step"); err != nil {
		return err
	}
	if i < 0 || i > len(t.steps) {
		return fmt.Errorf("insert step at %d: index out of range [0,%d]", i, len(t.steps))
	}
	t.adopt(s)
	t.steps = slices.Insert(t.steps, i, s)
	return nil
}

// RemoveStep removes s.
func (t *Traversal) RemoveStep(s Step) error {
	if err := t.checkUnlocked("remove step"); err != nil {
		return err
	}
	i := t.IndexOf(s)
	if i < 0 {
		return fmt.Errorf("remove step %s: not in traversal", s.ID())
	}
	t.steps = slices.Delete(t.steps, i, i+1)
	s.base().owner = nil
	return nil
}

// ReplaceStep puts replacement in the position of old.
func (t *Traversal) ReplaceStep(old, replacement Step) error {
	if err := t.checkUnlocked("replace step"); err != nil {
		return err
	}
	i := t.IndexOf(old)
	if i < 0 {
		return fmt.Errorf("replace step %s: not in traversal", old.ID())
	}
	t.adopt(replacement)
	t.steps[i] = replacement
	old.base().owner = nil
	return nil
}

// Lock selects the traverser generator, locks every child traversal and
// links the steps into pipes. It is idempotent.
func (t *Traversal) Lock() error {
	if t.err != nil {
		return t.err
	}
	if t.locked {
		return nil
	}
	req := t.Requirements()
	gen := t.restricted
	if gen != nil {
		if missing := req.Missing(gen.Provides()); missing != 0 {
			return fault.New(fault.CodeRequirements,
				"steps require %s which generator %s does not provide", missing, gen.Name()).
				With("generator", gen.Name())
		}
	} else {
		gen = traverser.SelectGenerator(req)
	}
	t.finalize(gen, t.own, t.sideEffects, t.graph)
	return nil
}

type sideEffectRegistrar interface {
	registerSideEffects(s *traverser.MapSideEffects)
}

func (t *Traversal) finalize(gen traverser.Generator, own *traverser.MapSideEffects, se traverser.SideEffectStore, g structure.Graph) {
	t.generator = gen
	t.sideEffects = se
	t.graph = g
	for _, s := range t.steps {
		s.base().owner = t
		if r, ok := s.(sideEffectRegistrar); ok {
			r.registerSideEffects(own)
		}
		if p, ok := s.(Parent); ok {
			for _, c := range p.Children() {
				c.parent = s
				c.mode = t.mode
				c.finalize(gen, own, se, g)
			}
		}
	}
	t.pipes = make([]*pipe, len(t.steps))
	var upstream Input = t.starts
	for i, s := range t.steps {
		p := &pipe{step: s, upstream: upstream}
		if i+1 < len(t.steps) {
			p.nextID = t.steps[i+1].ID()
		}
		t.pipes[i] = p
		upstream = p
	}
	t.locked = true
}

// prepare applies strategies and locks on the first execution request.
func (t *Traversal) prepare(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if t.locked {
		return nil
	}
	if t.strategies != nil && t.IsRoot() {
		return t.strategies.Apply(ctx, t)
	}
	return t.Lock()
}

// Prepare applies strategies and locks, as the first execution request
// would. It is a no-op on a locked traversal.
func (t *Traversal) Prepare(ctx context.Context) error {
	return t.prepare(ctx)
}

// RegisteredSideEffects returns the side-effect keys declared by the steps
// of a locked traversal with their reducers.
func (t *Traversal) RegisteredSideEffects() map[string]ir.Reducer {
	out := make(map[string]ir.Reducer)
	for _, k := range t.own.Keys() {
		if r, ok := t.own.Reducer(k); ok {
			out[k] = r
		}
	}
	return out
}

// AddStart feeds a traverser into the first step.
func (t *Traversal) AddStart(tr *traverser.Traverser) {
	if len(t.steps) > 0 {
		tr.SetStepID(t.steps[0].ID())
	}
	t.starts.Add(tr)
}

func (t *Traversal) output() Input {
	if len(t.pipes) == 0 {
		return t.starts
	}
	return t.pipes[len(t.pipes)-1]
}

// HasNext reports whether another traverser is available without consuming
// it.
func (t *Traversal) HasNext(ctx context.Context) (bool, error) {
	if err := t.prepare(ctx); err != nil {
		return false, err
	}
	if t.unrolling != nil {
		return true, nil
	}
	if len(t.pipes) == 0 {
		return !t.starts.IsEmpty(), nil
	}
	return t.pipes[len(t.pipes)-1].HasNext(ctx)
}

// NextTraverser returns the next traverser or structure.ErrIteratorDone.
func (t *Traversal) NextTraverser(ctx context.Context) (*traverser.Traverser, error) {
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	if t.unrolling != nil {
		tr := t.unrolling.Clone()
		tr.SetBulk(t.remaining)
		t.unrolling, t.remaining = nil, 0
		return tr, nil
	}
	return t.output().Next(ctx)
}

// Next returns the next value, repeating each traverser's value bulk times.
func (t *Traversal) Next(ctx context.Context) (ir.IRValue, error) {
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	if t.unrolling == nil {
		tr, err := t.output().Next(ctx)
		if err != nil {
			return nil, err
		}
		t.unrolling, t.remaining = tr, tr.Bulk()
	}
	v := t.unrolling.Value()
	t.remaining--
	if t.remaining <= 0 {
		t.unrolling = nil
	}
	return v, nil
}

// ToList drains the traversal into a list of values with bulk unrolled and
// closes it.
func (t *Traversal) ToList(ctx context.Context) ([]ir.IRValue, error) {
	defer t.Close()
	var out []ir.IRValue
	for {
		v, err := t.Next(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// Traversers drains the traversal into traversers and closes it.
func (t *Traversal) Traversers(ctx context.Context) ([]*traverser.Traverser, error) {
	defer t.Close()
	var out []*traverser.Traverser
	for {
		tr, err := t.NextTraverser(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
}

// Iterate drains the traversal for its side effects and closes it.
func (t *Traversal) Iterate(ctx context.Context) error {
	defer t.Close()
	for {
		_, err := t.NextTraverser(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases every iterator held by steps and drops in-flight
// traversers. The traversal may be restarted after Close.
func (t *Traversal) Close() {
	t.Reset()
}

// Reset drops in-flight state of t and its children.
func (t *Traversal) Reset() {
	for _, p := range t.pipes {
		p.Stop()
	}
	for _, s := range t.steps {
		s.Reset()
	}
	t.eachChild(func(c *Traversal) { c.Reset() })
	t.starts.Clear()
	t.unrolling, t.remaining = nil, 0
}

// Drive runs the step at index i on in alone and returns its outputs,
// labeled and addressed to the next step. The step is drained; its upstream
// is never consulted. Outputs of the last step are addressed to "".
func (t *Traversal) Drive(ctx context.Context, i int, in *traverser.Set) ([]*traverser.Traverser, error) {
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	p := &pipe{step: t.steps[i], upstream: in}
	if i+1 < len(t.steps) {
		p.nextID = t.steps[i+1].ID()
	}
	var out []*traverser.Traverser
	for {
		tr, err := p.Next(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
}

// Clone returns an unlocked deep copy with the same step ids and no
// in-flight traversers.
func (t *Traversal) Clone() *Traversal {
	c := newTraversal()
	c.graph = t.graph
	c.prefix = t.prefix
	c.counter = t.counter
	c.mode = t.mode
	c.seed = t.seed
	c.strategies = t.strategies
	c.restricted = t.restricted
	c.err = t.err
	c.steps = make([]Step, len(t.steps))
	for i, s := range t.steps {
		cs := s.Clone()
		cs.base().owner = c
		if p, ok := cs.(Parent); ok {
			for _, child := range p.Children() {
				child.parent = cs
			}
		}
		c.steps[i] = cs
	}
	return c
}

func cloneChild(child *Traversal) *Traversal {
	if child == nil {
		return nil
	}
	return child.Clone()
}

// Description is a comparable rendering of a traversal's structure.
type Description struct {
	Mode  string
	Steps []StepDescription
}

// StepDescription describes one step.
type StepDescription struct {
	ID       string
	Step     string
	Labels   []string
	Children []Description
}

// Describe returns the structure of t for comparison and display.
func (t *Traversal) Describe() Description {
	d := Description{Mode: t.mode.String()}
	for _, s := range t.steps {
		sd := StepDescription{ID: s.ID(), Step: s.String(), Labels: s.Labels()}
		if p, ok := s.(Parent); ok {
			for _, c := range p.Children() {
				sd.Children = append(sd.Children, c.Describe())
			}
		}
		d.Steps = append(d.Steps, sd)
	}
	return d
}

// String renders the steps as [Step@[labels], ...].
func (t *Traversal) String() string {
	parts := make([]string, len(t.steps))
	for i, s := range t.steps {
		parts[i] = s.String()
		if labels := s.Labels(); len(labels) > 0 {
			parts[i] += "@[" + strings.Join(labels, ",") + "]"
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
