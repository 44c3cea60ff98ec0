package structure

import (
	"fmt"
	"strings"

	"github.com/roach88/tinkergo/internal/ir"
)

// Reserved property keys addressing element identity in has-containers.
const (
	KeyID    = "~id"
	KeyLabel = "~label"
)

// Direction selects incident edges relative to a vertex.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "out", "in" or "both".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "out":
		return Out, nil
	case "in":
		return In, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Vertex is a detached copy of a stored vertex.
type Vertex struct {
	ID         int64
	Label      string
	Properties ir.IRObject
}

// Ref returns the value-level reference to the vertex.
func (v *Vertex) Ref() ir.IRVertex {
	return ir.IRVertex{ID: v.ID, Label: v.Label}
}

// Value returns a property, resolving the reserved id and label keys.
func (v *Vertex) Value(key string) (ir.IRValue, bool) {
	switch key {
	case KeyID:
		return ir.IRInt(v.ID), true
	case KeyLabel:
		return ir.IRString(v.Label), true
	}
	val, ok := v.Properties[key]
	return val, ok
}

// Clone returns a deep enough copy that callers may mutate Properties.
func (v *Vertex) Clone() *Vertex {
	return &Vertex{ID: v.ID, Label: v.Label, Properties: v.Properties.Clone()}
}

// Edge is a detached copy of a stored edge.
type Edge struct {
	ID         int64
	Label      string
	OutV       ir.IRVertex
	InV        ir.IRVertex
	Properties ir.IRObject
}

// Ref returns the value-level reference to the edge.
func (e *Edge) Ref() ir.IREdge {
	return ir.IREdge{ID: e.ID, Label: e.Label, OutV: e.OutV, InV: e.InV}
}

// Value returns a property, resolving the reserved id and label keys.
func (e *Edge) Value(key string) (ir.IRValue, bool) {
	switch key {
	case KeyID:
		return ir.IRInt(e.ID), true
	case KeyLabel:
		return ir.IRString(e.Label), true
	}
	val, ok := e.Properties[key]
	return val, ok
}

// Other returns the endpoint opposite to vertexID.
func (e *Edge) Other(vertexID int64) ir.IRVertex {
	if e.OutV.ID == vertexID {
		return e.InV
	}
	return e.OutV
}

// Clone returns a copy with its own property map.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

func hasLabel(label string, labels []string) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
