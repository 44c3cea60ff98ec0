package traversal

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// StartStep injects seed values, each with bulk 1, ahead of any traversers
// fed to the traversal.
type StartStep struct {
	stepBase
	seeds   []ir.IRValue
	emitted int
}

// NewStartStep creates a start step.
func NewStartStep(seeds ...ir.IRValue) *StartStep {
	return &StartStep{seeds: slices.Clone(seeds)}
}

// Seeds returns the injected values.
func (s *StartStep) Seeds() []ir.IRValue { return slices.Clone(s.seeds) }

func (s *StartStep) Kind() Kind                           { return KindStart }
func (s *StartStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *StartStep) Reset()                               { s.emitted = 0 }
func (s *StartStep) String() string                       { return format("StartStep", ir.IRArray(s.seeds)) }

func (s *StartStep) Clone() Step {
	return &StartStep{stepBase: s.cloneBase(), seeds: slices.Clone(s.seeds)}
}

func (s *StartStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	if s.emitted < len(s.seeds) {
		v := s.seeds[s.emitted]
		s.emitted++
		return s.generate(v, 1), nil
	}
	return in.Next(ctx)
}

// ElementType selects what a graph step emits.
type ElementType int

const (
	Vertices ElementType = iota
	Edges
)

func (e ElementType) String() string {
	if e == Edges {
		return "edge"
	}
	return "vertex"
}

// GraphStep emits vertices or edges from the graph, optionally restricted to
// ids and to has-containers folded into it. An equality container over an
// indexed key is answered from the index.
type GraphStep struct {
	stepBase
	elements   ElementType
	ids        []int64
	containers []HasContainer
	it         structure.Iterator[ir.IRValue]
}

// NewGraphStep creates a graph step.
func NewGraphStep(elements ElementType, ids ...int64) *GraphStep {
	return &GraphStep{elements: elements, ids: slices.Clone(ids)}
}

// Elements returns what the step emits.
func (s *GraphStep) Elements() ElementType { return s.elements }

// IDs returns the id restriction.
func (s *GraphStep) IDs() []int64 { return slices.Clone(s.ids) }

// Containers returns the folded has-containers.
func (s *GraphStep) Containers() []HasContainer { return slices.Clone(s.containers) }

// AddContainer folds a has-container into the step.
func (s *GraphStep) AddContainer(h HasContainer) {
	s.containers = append(s.containers, h)
}

func (s *GraphStep) Kind() Kind                           { return KindStart }
func (s *GraphStep) Requirements() traverser.Requirements { return traverser.Object }

func (s *GraphStep) Reset() {
	if s.it != nil {
		s.it.Stop()
		s.it = nil
	}
}

func (s *GraphStep) Clone() Step {
	return &GraphStep{
		stepBase:   s.cloneBase(),
		elements:   s.elements,
		ids:        slices.Clone(s.ids),
		containers: slices.Clone(s.containers),
	}
}

func (s *GraphStep) String() string {
	ids := make([]string, len(s.ids))
	for i, id := range s.ids {
		ids[i] = strconv.FormatInt(id, 10)
	}
	hs := make([]string, len(s.containers))
	for i, h := range s.containers {
		hs[i] = h.String()
	}
	return format("GraphStep", s.elements.String(), ids, hs)
}

func (s *GraphStep) Pull(ctx context.Context, _ Input) (*traverser.Traverser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.it == nil {
		it, err := s.open(ctx)
		if err != nil {
			return nil, err
		}
		s.it = it
	}
	v, err := s.it.Next(ctx)
	if errors.Is(err, structure.ErrIteratorDone) {
		return nil, err
	}
	if err != nil {
		return nil, s.graphErr(err, "read "+s.elements.String()+"s")
	}
	return s.generate(v, 1), nil
}

// open returns a lazy iterator over the matching elements. Containers are
// tested as elements are pulled from the graph.
func (s *GraphStep) open(ctx context.Context) (structure.Iterator[ir.IRValue], error) {
	g := s.graph()
	if g == nil {
		return nil, s.fail(fault.CodeInvalidConfig, "graph step without a graph")
	}
	if s.elements == Edges {
		return s.openEdges(ctx, g)
	}
	it, err := s.candidateVertices(ctx, g)
	if err != nil {
		return nil, s.graphErr(err, "read vertices")
	}
	matching := structure.FilterIterator(it, func(v *structure.Vertex) bool { return testAll(s.containers, v) })
	return structure.MapIterator(matching, func(v *structure.Vertex) ir.IRValue { return v.Ref() }), nil
}

func (s *GraphStep) candidateVertices(ctx context.Context, g structure.Graph) (structure.Iterator[*structure.Vertex], error) {
	if len(s.ids) > 0 {
		return structure.LookupIterator(slices.Clone(s.ids), g.Vertex), nil
	}
	if h, ok := s.indexedContainer(g); ok {
		return g.VerticesByProperty(ctx, h.Key, h.Predicate.Value)
	}
	return g.Vertices(ctx)
}

// indexedContainer returns an equality container over an indexed key.
func (s *GraphStep) indexedContainer(g structure.Graph) (HasContainer, bool) {
	indexed := g.IndexedKeys()
	for _, h := range s.containers {
		if h.Predicate.Op == OpEq && slices.Contains(indexed, h.Key) {
			return h, true
		}
	}
	return HasContainer{}, false
}

func (s *GraphStep) openEdges(ctx context.Context, g structure.Graph) (structure.Iterator[ir.IRValue], error) {
	var it structure.Iterator[*structure.Edge]
	if len(s.ids) > 0 {
		it = structure.LookupIterator(slices.Clone(s.ids), g.Edge)
	} else {
		var err error
		if it, err = g.Edges(ctx); err != nil {
			return nil, s.graphErr(err, "read edges")
		}
	}
	matching := structure.FilterIterator(it, func(e *structure.Edge) bool { return testAll(s.containers, e) })
	return structure.MapIterator(matching, func(e *structure.Edge) ir.IRValue { return e.Ref() }), nil
}

// StartAt returns the elements the step emits that are anchored at star:
// the center vertex itself, or its outgoing edges. It is the computer mode
// counterpart of Pull.
func (s *GraphStep) StartAt(star *structure.StarVertex) []ir.IRValue {
	matchID := func(id int64) bool {
		return len(s.ids) == 0 || slices.Contains(s.ids, id)
	}
	if s.elements == Vertices {
		if matchID(star.ID()) && testAll(s.containers, star.Vertex) {
			return []ir.IRValue{star.Vertex.Ref()}
		}
		return nil
	}
	var out []ir.IRValue
	for _, e := range star.OutEdges {
		if matchID(e.ID) && testAll(s.containers, e) {
			out = append(out, e.Ref())
		}
	}
	return out
}

// Generate creates a traverser at this step for a value returned by
// StartAt.
func (s *GraphStep) Generate(v ir.IRValue) *traverser.Traverser {
	return s.generate(v, 1)
}
