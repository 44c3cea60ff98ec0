package structure

import (
	"context"
	"fmt"

	"github.com/roach88/tinkergo/internal/ir"
)

// StarVertex is a vertex together with all of its incident edges. It is the
// unit of data a partition worker holds in computer mode.
type StarVertex struct {
	Vertex   *Vertex
	OutEdges []*Edge
	InEdges  []*Edge
}

// ID returns the center vertex id.
func (s *StarVertex) ID() int64 {
	return s.Vertex.ID
}

// Edges returns incident edges in the given direction filtered by labels.
func (s *StarVertex) Edges(dir Direction, labels ...string) []*Edge {
	var out []*Edge
	if dir == Out || dir == Both {
		for _, e := range s.OutEdges {
			if hasLabel(e.Label, labels) {
				out = append(out, e)
			}
		}
	}
	if dir == In || dir == Both {
		for _, e := range s.InEdges {
			if hasLabel(e.Label, labels) {
				out = append(out, e)
			}
		}
	}
	return out
}

// LoadStar reads the star of vertex id from g.
func LoadStar(ctx context.Context, g Graph, id int64) (*StarVertex, error) {
	v, err := g.Vertex(ctx, id)
	if err != nil {
		return nil, err
	}
	return loadStar(ctx, g, v)
}

func loadStar(ctx context.Context, g Graph, v *Vertex) (*StarVertex, error) {
	outIt, err := g.IncidentEdges(ctx, v.ID, Out)
	if err != nil {
		return nil, err
	}
	outEdges, err := Collect(ctx, outIt)
	if err != nil {
		return nil, err
	}
	inIt, err := g.IncidentEdges(ctx, v.ID, In)
	if err != nil {
		return nil, err
	}
	inEdges, err := Collect(ctx, inIt)
	if err != nil {
		return nil, err
	}
	return &StarVertex{Vertex: v, OutEdges: outEdges, InEdges: inEdges}, nil
}

// LoadStars reads the star of every vertex in g, in vertex id order.
func LoadStars(ctx context.Context, g Graph) ([]*StarVertex, error) {
	it, err := g.Vertices(ctx)
	if err != nil {
		return nil, err
	}
	vertices, err := Collect(ctx, it)
	if err != nil {
		return nil, err
	}
	stars := make([]*StarVertex, 0, len(vertices))
	for _, v := range vertices {
		s, err := loadStar(ctx, g, v)
		if err != nil {
			return nil, fmt.Errorf("load star %d: %w", v.ID, err)
		}
		stars = append(stars, s)
	}
	return stars, nil
}

// StarGraph answers Graph lookups from a single star vertex. Reads that
// leave the star fail with ErrNonLocalElement. Mutations are forwarded to
// the backing graph when one is configured.
type StarGraph struct {
	star    *StarVertex
	backing Graph
}

// NewStarGraph creates a local graph view. backing may be nil.
func NewStarGraph(star *StarVertex, backing Graph) *StarGraph {
	return &StarGraph{star: star, backing: backing}
}

// ConcurrentMutationSafe forwards the backing graph's declaration.
func (s *StarGraph) ConcurrentMutationSafe() bool {
	return s.backing != nil && SupportsConcurrentMutation(s.backing)
}

func (s *StarGraph) nonLocal(kind string, id int64) error {
	return fmt.Errorf("%s %d from star %d: %w", kind, id, s.star.ID(), ErrNonLocalElement)
}

// Vertex implements Graph.
func (s *StarGraph) Vertex(_ context.Context, id int64) (*Vertex, error) {
	if id != s.star.ID() {
		return nil, s.nonLocal("vertex", id)
	}
	return s.star.Vertex.Clone(), nil
}

// Edge implements Graph.
func (s *StarGraph) Edge(_ context.Context, id int64) (*Edge, error) {
	for _, e := range s.star.Edges(Both) {
		if e.ID == id {
			return e.Clone(), nil
		}
	}
	return nil, s.nonLocal("edge", id)
}

// Vertices implements Graph.
func (s *StarGraph) Vertices(context.Context) (Iterator[*Vertex], error) {
	return nil, fmt.Errorf("scan from star %d: %w", s.star.ID(), ErrNonLocalElement)
}

// Edges implements Graph.
func (s *StarGraph) Edges(context.Context) (Iterator[*Edge], error) {
	return nil, fmt.Errorf("scan from star %d: %w", s.star.ID(), ErrNonLocalElement)
}

// VerticesByProperty implements Graph.
func (s *StarGraph) VerticesByProperty(context.Context, string, ir.IRValue) (Iterator[*Vertex], error) {
	return nil, fmt.Errorf("index lookup from star %d: %w", s.star.ID(), ErrNonLocalElement)
}

// IndexedKeys implements Graph.
func (s *StarGraph) IndexedKeys() []string { return nil }

// IncidentEdges implements Graph.
func (s *StarGraph) IncidentEdges(_ context.Context, vertexID int64, dir Direction, labels ...string) (Iterator[*Edge], error) {
	if vertexID != s.star.ID() {
		return nil, s.nonLocal("vertex", vertexID)
	}
	edges := s.star.Edges(dir, labels...)
	out := make([]*Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return NewSliceIterator(out), nil
}

// AddVertex implements Graph.
func (s *StarGraph) AddVertex(ctx context.Context, label string, props ir.IRObject) (*Vertex, error) {
	if s.backing == nil {
		return nil, fmt.Errorf("add vertex from star %d: %w", s.star.ID(), ErrNonLocalElement)
	}
	return s.backing.AddVertex(ctx, label, props)
}

// AddEdge implements Graph.
func (s *StarGraph) AddEdge(ctx context.Context, label string, outV, inV int64, props ir.IRObject) (*Edge, error) {
	if s.backing == nil {
		return nil, fmt.Errorf("add edge from star %d: %w", s.star.ID(), ErrNonLocalElement)
	}
	return s.backing.AddEdge(ctx, label, outV, inV, props)
}

// SetProperty implements Graph. The local copy is updated as well so that
// later reads in the same superstep observe the write.
func (s *StarGraph) SetProperty(ctx context.Context, vertexID int64, key string, value ir.IRValue) error {
	if vertexID != s.star.ID() || s.backing == nil {
		return s.nonLocal("vertex", vertexID)
	}
	if err := s.backing.SetProperty(ctx, vertexID, key, value); err != nil {
		return err
	}
	props := s.star.Vertex.Properties.Clone()
	if props == nil {
		props = ir.IRObject{}
	}
	props[key] = value
	s.star.Vertex = &Vertex{ID: s.star.Vertex.ID, Label: s.star.Vertex.Label, Properties: props}
	return nil
}

// DropProperty implements Graph.
func (s *StarGraph) DropProperty(ctx context.Context, vertexID int64, key string) error {
	if vertexID != s.star.ID() || s.backing == nil {
		return s.nonLocal("vertex", vertexID)
	}
	if err := s.backing.DropProperty(ctx, vertexID, key); err != nil {
		return err
	}
	props := s.star.Vertex.Properties.Clone()
	delete(props, key)
	s.star.Vertex = &Vertex{ID: s.star.Vertex.ID, Label: s.star.Vertex.Label, Properties: props}
	return nil
}
