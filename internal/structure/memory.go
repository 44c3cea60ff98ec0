package structure

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/tinkergo/internal/ir"
)

// MemoryGraph is an in-memory Graph with optional secondary indexes on
// vertex property keys. It is safe for concurrent use.
type MemoryGraph struct {
	mu       sync.RWMutex
	vertices map[int64]*Vertex
	edges    map[int64]*Edge
	out      map[int64][]int64
	in       map[int64][]int64
	indexes  map[string]map[string][]int64 // key -> canonical value -> vertex ids
	nextID   int64
}

// MemoryOption configures a MemoryGraph.
type MemoryOption func(*MemoryGraph)

// WithIndex creates secondary indexes on the given property keys.
func WithIndex(keys ...string) MemoryOption {
	return func(g *MemoryGraph) {
		for _, k := range keys {
			g.indexes[k] = make(map[string][]int64)
		}
	}
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph(opts ...MemoryOption) *MemoryGraph {
	g := &MemoryGraph{
		vertices: make(map[int64]*Vertex),
		edges:    make(map[int64]*Edge),
		out:      make(map[int64][]int64),
		in:       make(map[int64][]int64),
		indexes:  make(map[string]map[string][]int64),
		nextID:   1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ConcurrentMutationSafe implements ConcurrentMutationSafe.
func (g *MemoryGraph) ConcurrentMutationSafe() bool { return true }

// CreateIndex adds a secondary index on key and backfills it.
func (g *MemoryGraph) CreateIndex(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.indexes[key]; ok {
		return
	}
	idx := make(map[string][]int64)
	for id, v := range g.vertices {
		if val, ok := v.Properties[key]; ok {
			k := ir.Key(val)
			idx[k] = append(idx[k], id)
		}
	}
	g.indexes[key] = idx
}

// IndexedKeys implements Graph.
func (g *MemoryGraph) IndexedKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, 0, len(g.indexes))
	for k := range g.indexes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Vertex implements Graph.
func (g *MemoryGraph) Vertex(_ context.Context, id int64) (*Vertex, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vertices[id]
	if !ok {
		return nil, fmt.Errorf("vertex %d: %w", id, ErrNotFound)
	}
	return v.Clone(), nil
}

// Edge implements Graph.
func (g *MemoryGraph) Edge(_ context.Context, id int64) (*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok {
		return nil, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

// Vertices implements Graph. Vertices are returned in id order.
func (g *MemoryGraph) Vertices(_ context.Context) (Iterator[*Vertex], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int64, 0, len(g.vertices))
	for id := range g.vertices {
		ids = append(ids, id)
	}
	return NewSliceIterator(g.cloneVertices(ids)), nil
}

// Edges implements Graph. Edges are returned in id order.
func (g *MemoryGraph) Edges(_ context.Context) (Iterator[*Edge], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int64, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return NewSliceIterator(g.cloneEdges(ids)), nil
}

// VerticesByProperty implements Graph.
func (g *MemoryGraph) VerticesByProperty(_ context.Context, key string, value ir.IRValue) (Iterator[*Vertex], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	want := ir.Key(value)
	if idx, ok := g.indexes[key]; ok {
		return NewSliceIterator(g.cloneVertices(slices.Clone(idx[want]))), nil
	}
	var ids []int64
	for id, v := range g.vertices {
		if val, ok := v.Value(key); ok && ir.Key(val) == want {
			ids = append(ids, id)
		}
	}
	return NewSliceIterator(g.cloneVertices(ids)), nil
}

// IncidentEdges implements Graph.
func (g *MemoryGraph) IncidentEdges(_ context.Context, vertexID int64, dir Direction, labels ...string) (Iterator[*Edge], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.vertices[vertexID]; !ok {
		return nil, fmt.Errorf("vertex %d: %w", vertexID, ErrNotFound)
	}
	var ids []int64
	if dir == Out || dir == Both {
		ids = append(ids, g.out[vertexID]...)
	}
	if dir == In || dir == Both {
		ids = append(ids, g.in[vertexID]...)
	}
	ids = slices.DeleteFunc(ids, func(id int64) bool {
		return !hasLabel(g.edges[id].Label, labels)
	})
	return NewSliceIterator(g.cloneEdges(ids)), nil
}

// AddVertex implements Graph.
func (g *MemoryGraph) AddVertex(_ context.Context, label string, props ir.IRObject) (*Vertex, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := &Vertex{ID: g.nextID, Label: label, Properties: props.Clone()}
	if v.Properties == nil {
		v.Properties = ir.IRObject{}
	}
	g.putVertex(v)
	return v.Clone(), nil
}

// AddEdge implements Graph.
func (g *MemoryGraph) AddEdge(_ context.Context, label string, outV, inV int64, props ir.IRObject) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.newEdge(g.nextID, label, outV, inV, props)
	if err != nil {
		return nil, err
	}
	g.putEdge(e)
	return e.Clone(), nil
}

// SetProperty implements Graph.
func (g *MemoryGraph) SetProperty(_ context.Context, vertexID int64, key string, value ir.IRValue) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vertices[vertexID]
	if !ok {
		return fmt.Errorf("vertex %d: %w", vertexID, ErrNotFound)
	}
	g.unindex(v, key)
	v.Properties[key] = value
	g.index(v, key)
	return nil
}

// DropProperty implements Graph.
func (g *MemoryGraph) DropProperty(_ context.Context, vertexID int64, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vertices[vertexID]
	if !ok {
		return fmt.Errorf("vertex %d: %w", vertexID, ErrNotFound)
	}
	g.unindex(v, key)
	delete(v.Properties, key)
	return nil
}

// PutVertex implements Loader.
func (g *MemoryGraph) PutVertex(_ context.Context, v *Vertex) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.vertices[v.ID]; ok {
		return fmt.Errorf("vertex %d already exists", v.ID)
	}
	c := v.Clone()
	if c.Properties == nil {
		c.Properties = ir.IRObject{}
	}
	g.putVertex(c)
	return nil
}

// PutEdge implements Loader.
func (g *MemoryGraph) PutEdge(_ context.Context, e *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[e.ID]; ok {
		return fmt.Errorf("edge %d already exists", e.ID)
	}
	c, err := g.newEdge(e.ID, e.Label, e.OutV.ID, e.InV.ID, e.Properties)
	if err != nil {
		return err
	}
	g.putEdge(c)
	return nil
}

func (g *MemoryGraph) newEdge(id int64, label string, outV, inV int64, props ir.IRObject) (*Edge, error) {
	out, ok := g.vertices[outV]
	if !ok {
		return nil, fmt.Errorf("out vertex %d: %w", outV, ErrNotFound)
	}
	in, ok := g.vertices[inV]
	if !ok {
		return nil, fmt.Errorf("in vertex %d: %w", inV, ErrNotFound)
	}
	e := &Edge{ID: id, Label: label, OutV: out.Ref(), InV: in.Ref(), Properties: props.Clone()}
	if e.Properties == nil {
		e.Properties = ir.IRObject{}
	}
	return e, nil
}

// putVertex and putEdge share one id space so element ids never collide.
func (g *MemoryGraph) putVertex(v *Vertex) {
	g.vertices[v.ID] = v
	for key := range v.Properties {
		g.index(v, key)
	}
	g.bump(v.ID)
}

func (g *MemoryGraph) putEdge(e *Edge) {
	g.edges[e.ID] = e
	g.out[e.OutV.ID] = append(g.out[e.OutV.ID], e.ID)
	g.in[e.InV.ID] = append(g.in[e.InV.ID], e.ID)
	g.bump(e.ID)
}

func (g *MemoryGraph) bump(id int64) {
	if id >= g.nextID {
		g.nextID = id + 1
	}
}

func (g *MemoryGraph) index(v *Vertex, key string) {
	idx, ok := g.indexes[key]
	if !ok {
		return
	}
	if val, ok := v.Properties[key]; ok {
		k := ir.Key(val)
		idx[k] = append(idx[k], v.ID)
	}
}

func (g *MemoryGraph) unindex(v *Vertex, key string) {
	idx, ok := g.indexes[key]
	if !ok {
		return
	}
	if val, ok := v.Properties[key]; ok {
		k := ir.Key(val)
		idx[k] = slices.DeleteFunc(idx[k], func(id int64) bool { return id == v.ID })
	}
}

func (g *MemoryGraph) cloneVertices(ids []int64) []*Vertex {
	slices.Sort(ids)
	out := make([]*Vertex, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.vertices[id].Clone())
	}
	return out
}

func (g *MemoryGraph) cloneEdges(ids []int64) []*Edge {
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id].Clone())
	}
	return out
}
