package strategy

import (
	"context"

	"github.com/roach88/tinkergo/internal/traversal"
)

// ComparatorHolderRemoval drops ordering steps other than the last step of
// a root computer traversal. Traversers leave a barrier in no defined
// order, so only a final order is observable.
type ComparatorHolderRemoval struct{}

func (ComparatorHolderRemoval) Name() string       { return "ComparatorHolderRemovalStrategy" }
func (ComparatorHolderRemoval) Category() Category { return Finalization }

func (ComparatorHolderRemoval) Apply(_ context.Context, t *traversal.Traversal) error {
	if !t.IsRoot() || t.Mode() != traversal.Computer {
		return nil
	}
	for _, s := range t.Steps() {
		if _, ok := s.(traversal.ComparatorHolder); !ok || s == t.EndStep() {
			continue
		}
		if err := t.RemoveStep(s); err != nil {
			return err
		}
	}
	return nil
}

// ComputerBypass switches the last step of a root computer traversal into
// bypass mode when it is a map/reducer; its job then does the reduction.
type ComputerBypass struct{}

func (ComputerBypass) Name() string       { return "ComputerBypassStrategy" }
func (ComputerBypass) Category() Category { return Finalization }
func (ComputerBypass) Prior() []string    { return []string{"ComparatorHolderRemovalStrategy"} }

func (ComputerBypass) Apply(_ context.Context, t *traversal.Traversal) error {
	if !t.IsRoot() || t.Mode() != traversal.Computer {
		return nil
	}
	if mr, ok := t.EndStep().(traversal.MapReducer); ok {
		mr.SetBypass(true)
	}
	return nil
}
