package structure

import (
	"context"
	"errors"

	"github.com/roach88/tinkergo/internal/ir"
)

var (
	// ErrNotFound is returned when an element id does not exist.
	ErrNotFound = errors.New("element not found")

	// ErrNonLocalElement is returned by a star graph when a lookup leaves the
	// vertex it was built around.
	ErrNonLocalElement = errors.New("element is not local to this star vertex")
)

// Graph is the storage collaborator a traversal runs against.
type Graph interface {
	Vertex(ctx context.Context, id int64) (*Vertex, error)
	Edge(ctx context.Context, id int64) (*Edge, error)
	Vertices(ctx context.Context) (Iterator[*Vertex], error)
	Edges(ctx context.Context) (Iterator[*Edge], error)

	// VerticesByProperty returns vertices whose key equals value. Graphs
	// answer from a secondary index when key is listed in IndexedKeys and
	// fall back to a scan otherwise.
	VerticesByProperty(ctx context.Context, key string, value ir.IRValue) (Iterator[*Vertex], error)
	IndexedKeys() []string

	// IncidentEdges returns the edges of a vertex in the given direction,
	// optionally restricted to labels.
	IncidentEdges(ctx context.Context, vertexID int64, dir Direction, labels ...string) (Iterator[*Edge], error)

	AddVertex(ctx context.Context, label string, props ir.IRObject) (*Vertex, error)
	AddEdge(ctx context.Context, label string, outV, inV int64, props ir.IRObject) (*Edge, error)
	SetProperty(ctx context.Context, vertexID int64, key string, value ir.IRValue) error
	DropProperty(ctx context.Context, vertexID int64, key string) error
}

// Loader accepts elements with caller-assigned ids.
type Loader interface {
	PutVertex(ctx context.Context, v *Vertex) error
	PutEdge(ctx context.Context, e *Edge) error
}

// ConcurrentMutationSafe is implemented by graphs that accept mutation from
// many partition workers at once.
type ConcurrentMutationSafe interface {
	ConcurrentMutationSafe() bool
}

// SupportsConcurrentMutation reports whether g declares itself safe for
// concurrent mutation.
func SupportsConcurrentMutation(g Graph) bool {
	c, ok := g.(ConcurrentMutationSafe)
	return ok && c.ConcurrentMutationSafe()
}
