package computer

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// HaltedTraversers is the vertex view key under which traversal programs
// store traversers that finished at the vertex.
const HaltedTraversers = "tinkergo.haltedTraversers"

// VertexComputeKey declares a key of the per-vertex view.
type VertexComputeKey struct {
	Key string
	// Transient keys are dropped from the vertices returned with a result.
	Transient bool
}

// Vertex is a vertex during a run: its star (the vertex with its incident
// edges) and its view of computed values.
type Vertex struct {
	star *structure.StarVertex
	view ir.IRObject
	keys map[string]VertexComputeKey
}

// NewVertex creates a vertex over star with the given view.
func NewVertex(star *structure.StarVertex, view ir.IRObject) *Vertex {
	if view == nil {
		view = ir.IRObject{}
	}
	return &Vertex{star: star, view: view}
}

// LoadVertices reads every vertex of g with an empty view, in id order.
func LoadVertices(ctx context.Context, g structure.Graph) ([]*Vertex, error) {
	stars, err := structure.LoadStars(ctx, g)
	if err != nil {
		return nil, fault.Wrap(fault.CodeUnreachable, err, "load vertices")
	}
	out := make([]*Vertex, len(stars))
	for i, s := range stars {
		out[i] = NewVertex(s, nil)
	}
	return out, nil
}

// ID returns the vertex id.
func (v *Vertex) ID() int64 { return v.star.ID() }

// Label returns the vertex label.
func (v *Vertex) Label() string { return v.star.Vertex.Label }

// Ref returns a value reference to the vertex.
func (v *Vertex) Ref() ir.IRVertex { return v.star.Vertex.Ref() }

// Star returns the vertex with its incident edges.
func (v *Vertex) Star() *structure.StarVertex { return v.star }

// Property returns a stored property of the vertex.
func (v *Vertex) Property(key string) (ir.IRValue, bool) {
	val, ok := v.star.Vertex.Properties[key]
	return val, ok
}

// Get returns a computed value.
func (v *Vertex) Get(key string) (ir.IRValue, bool) {
	val, ok := v.view[key]
	return val, ok
}

// Set stores a computed value under a declared key.
func (v *Vertex) Set(key string, val ir.IRValue) error {
	if _, ok := v.keys[key]; !ok {
		return fault.New(fault.CodeMessenger, "vertex compute key %q is not declared", key).
			With("vertex", strconv.FormatInt(v.ID(), 10))
	}
	v.view[key] = val
	return nil
}

// Drop removes a computed value.
func (v *Vertex) Drop(key string) { delete(v.view, key) }

// View returns a copy of the computed values.
func (v *Vertex) View() ir.IRObject { return v.view.Clone() }

// ViewKeys returns the computed keys present, sorted.
func (v *Vertex) ViewKeys() []string {
	return slices.Sorted(maps.Keys(v.view))
}
