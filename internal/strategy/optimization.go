package strategy

import (
	"context"

	"github.com/roach88/tinkergo/internal/traversal"
)

// IdentityRemoval removes identity steps that carry no label.
type IdentityRemoval struct{}

func (IdentityRemoval) Name() string       { return "IdentityRemovalStrategy" }
func (IdentityRemoval) Category() Category { return Optimization }

func (IdentityRemoval) Apply(_ context.Context, t *traversal.Traversal) error {
	for _, s := range t.Steps() {
		if _, ok := s.(*traversal.IdentityStep); ok && len(s.Labels()) == 0 {
			if err := t.RemoveStep(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// RepeatUnroll replaces repeat(body).times(n) by n copies of body when the
// body holds no barrier and no labels.
type RepeatUnroll struct{}

func (RepeatUnroll) Name() string       { return "RepeatUnrollStrategy" }
func (RepeatUnroll) Category() Category { return Optimization }
func (RepeatUnroll) Posterior() []string {
	return []string{"IdentityRemovalStrategy", "GraphStepFoldStrategy"}
}

func (RepeatUnroll) Apply(_ context.Context, t *traversal.Traversal) error {
	for i := 0; i < t.Len(); i++ {
		r, ok := t.Step(i).(*traversal.RepeatStep)
		if !ok || !unrollable(r) {
			continue
		}
		if err := t.RemoveStep(r); err != nil {
			return err
		}
		at := i
		for range r.Times() {
			for _, s := range r.Body().Steps() {
				if err := t.InsertStep(at, s.Clone()); err != nil {
					return err
				}
				at++
			}
		}
		// Inserted steps may hold repeats of their own; rescan from i.
		i--
	}
	return nil
}

func unrollable(r *traversal.RepeatStep) bool {
	if len(r.Labels()) > 0 || r.Body() == nil {
		return false
	}
	for _, s := range r.Body().Steps() {
		if _, ok := s.(traversal.Barrier); ok || len(s.Labels()) > 0 {
			return false
		}
	}
	return true
}

// GraphStepFold folds the has steps directly following a graph step into
// its has-containers, so the graph can answer them from an index.
type GraphStepFold struct{}

func (GraphStepFold) Name() string       { return "GraphStepFoldStrategy" }
func (GraphStepFold) Category() Category { return Optimization }
func (GraphStepFold) Prior() []string    { return []string{"IdentityRemovalStrategy"} }

func (GraphStepFold) Apply(_ context.Context, t *traversal.Traversal) error {
	if t.Len() == 0 {
		return nil
	}
	gs, ok := t.StartStep().(*traversal.GraphStep)
	if !ok || len(gs.Labels()) > 0 {
		return nil
	}
	for t.Len() > 1 {
		has, ok := t.Step(1).(*traversal.HasStep)
		if !ok || len(has.Labels()) > 0 {
			return nil
		}
		for _, h := range has.Containers() {
			gs.AddContainer(h)
		}
		if err := t.RemoveStep(has); err != nil {
			return err
		}
	}
	return nil
}
