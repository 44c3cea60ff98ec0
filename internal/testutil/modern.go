package testutil

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// Vertex ids of the modern graph.
const (
	Marko  int64 = 1
	Vadas  int64 = 2
	Lop    int64 = 3
	Josh   int64 = 4
	Ripple int64 = 5
	Peter  int64 = 6
)

// ModernDocument returns the classic six vertex "modern" graph. Edge weights
// are stored as integer hundredths (0.4 becomes 40) since floats are not
// representable.
func ModernDocument() *structure.Document {
	person := func(id int64, name string, age int64) structure.DocumentVertex {
		return structure.DocumentVertex{ID: id, Label: "person", Properties: ir.IRObject{"name": ir.IRString(name), "age": ir.IRInt(age)}}
	}
	software := func(id int64, name string) structure.DocumentVertex {
		return structure.DocumentVertex{ID: id, Label: "software", Properties: ir.IRObject{"name": ir.IRString(name), "lang": ir.IRString("java")}}
	}
	edge := func(id int64, label string, out, in, weight int64) structure.DocumentEdge {
		return structure.DocumentEdge{ID: id, Label: label, OutV: out, InV: in, Properties: ir.IRObject{"weight": ir.IRInt(weight)}}
	}
	return &structure.Document{
		Vertices: []structure.DocumentVertex{
			person(Marko, "marko", 29),
			person(Vadas, "vadas", 27),
			software(Lop, "lop"),
			person(Josh, "josh", 32),
			software(Ripple, "ripple"),
			person(Peter, "peter", 35),
		},
		Edges: []structure.DocumentEdge{
			edge(7, "knows", Marko, Vadas, 50),
			edge(8, "knows", Marko, Josh, 100),
			edge(9, "created", Marko, Lop, 40),
			edge(10, "created", Josh, Ripple, 100),
			edge(11, "created", Josh, Lop, 40),
			edge(12, "created", Peter, Lop, 20),
		},
	}
}

// NewModernGraph builds the modern graph in memory with an index on name.
func NewModernGraph(t testing.TB) *structure.MemoryGraph {
	t.Helper()
	g := structure.NewMemoryGraph(structure.WithIndex("name"))
	require.NoError(t, structure.Load(context.Background(), g, ModernDocument()))
	return g
}

// VertexRef returns the value reference of a modern graph vertex.
func VertexRef(id int64) ir.IRVertex {
	label := "person"
	if id == Lop || id == Ripple {
		label = "software"
	}
	return ir.IRVertex{ID: id, Label: label}
}

// NewRand returns a seeded random source so probabilistic steps are
// reproducible in tests.
func NewRand(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
