package traverser

import (
	"fmt"

	"github.com/roach88/tinkergo/internal/ir"
)

// Generator creates the traversers a start step emits. Each generator
// provides a fixed set of capabilities; the lightest generator covering a
// traversal's requirements is chosen when it locks.
type Generator interface {
	Name() string
	Provides() Requirements
	Generate(v ir.IRValue, stepID string, bulk int64) *Traverser
}

type generator struct {
	name     string
	provides Requirements
	mode     pathMode
}

func (g generator) Name() string           { return g.name }
func (g generator) Provides() Requirements { return g.provides }

func (g generator) Generate(v ir.IRValue, stepID string, bulk int64) *Traverser {
	t := &Traverser{value: v, bulk: bulk, stepID: stepID, mode: g.mode}
	switch g.mode {
	case pathFull:
		t.path = NewPath().Extend(v)
	case pathLabeled:
		t.path = NewPath()
		t.unlabeled = true
	}
	return t
}

const base = Object | Bulk | GlobalChild

var (
	// BulkGenerator tracks only value and bulk.
	BulkGenerator Generator = generator{name: "B_O", provides: base}

	// StandardGenerator adds side effects and loop counting.
	StandardGenerator Generator = generator{name: "B_O_SE_SL", provides: base | SideEffects | Loops}

	// LabeledPathGenerator records only the labeled entries of a path.
	LabeledPathGenerator Generator = generator{name: "B_LP_O_SE_SL", provides: base | SideEffects | Loops | LabeledPath, mode: pathLabeled}

	// PathGenerator records every visited value.
	PathGenerator Generator = generator{name: "B_O_P_SE_SL", provides: base | SideEffects | Loops | LabeledPath | Path, mode: pathFull}
)

var generators = []Generator{BulkGenerator, StandardGenerator, LabeledPathGenerator, PathGenerator}

// SelectGenerator returns the lightest generator providing req.
func SelectGenerator(req Requirements) Generator {
	for _, g := range generators {
		if g.Provides().Has(req) {
			return g
		}
	}
	return PathGenerator
}

// GeneratorByName looks up a generator.
func GeneratorByName(name string) (Generator, error) {
	for _, g := range generators {
		if g.Name() == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("unknown traverser generator %q", name)
}
