package traverser

import "strings"

// Requirements is the set of traverser capabilities a step needs.
type Requirements uint16

const (
	Object Requirements = 1 << iota
	Bulk
	Path
	LabeledPath
	SideEffects
	Loops
	// GlobalChild marks a step inside a child traversal that must see every
	// traverser of the parent rather than one at a time.
	GlobalChild
)

var requirementNames = []struct {
	r    Requirements
	name string
}{
	{Object, "object"},
	{Bulk, "bulk"},
	{Path, "path"},
	{LabeledPath, "labeled_path"},
	{SideEffects, "side_effects"},
	{Loops, "loops"},
	{GlobalChild, "global_child"},
}

// Has reports whether every requirement in other is in r.
func (r Requirements) Has(other Requirements) bool {
	return r&other == other
}

// Missing returns the requirements of r that provided lacks.
func (r Requirements) Missing(provided Requirements) Requirements {
	return r &^ provided
}

func (r Requirements) String() string {
	if r == 0 {
		return "none"
	}
	var names []string
	for _, n := range requirementNames {
		if r&n.r != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}
