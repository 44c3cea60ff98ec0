package strategy

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traversal"
)

// ComputerVerification rejects root computer traversals the vertex program
// engine cannot run. Every violation is reported in one E104 error.
type ComputerVerification struct{}

func (ComputerVerification) Name() string       { return "ComputerVerificationStrategy" }
func (ComputerVerification) Category() Category { return Verification }

func (ComputerVerification) Apply(_ context.Context, t *traversal.Traversal) error {
	if !t.IsRoot() || t.Mode() != traversal.Computer {
		return nil
	}
	var errs *multierror.Error
	if _, ok := t.StartStep().(*traversal.GraphStep); !ok {
		errs = multierror.Append(errs, fmt.Errorf("must start with V() or E(), got %s", describe(t.StartStep())))
	}
	end := t.EndStep()
	for _, s := range t.Steps() {
		switch s.(type) {
		case *traversal.RangeStep:
			errs = multierror.Append(errs, fmt.Errorf("%s is not supported", s))
			continue
		case *traversal.RepeatStep:
			errs = multierror.Append(errs, fmt.Errorf("%s could not be unrolled", s))
			continue
		case *traversal.AggregateStep:
			continue
		}
		if s == end {
			continue
		}
		if _, ok := s.(traversal.Barrier); ok {
			errs = multierror.Append(errs, fmt.Errorf("barrier %s must be the last step", s))
		}
		if _, ok := s.(*traversal.DedupStep); ok {
			errs = multierror.Append(errs, fmt.Errorf("%s must be the last step", s))
		}
	}
	if g := t.Graph(); g != nil && !structure.SupportsConcurrentMutation(g) {
		walk(t, func(c *traversal.Traversal) {
			for _, s := range c.Steps() {
				if _, ok := s.(traversal.Mutating); ok {
					errs = multierror.Append(errs, fmt.Errorf("%s mutates a graph that is not safe for concurrent mutation", s))
				}
			}
		})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fault.Wrap(fault.CodeVerification, err, "traversal cannot run in computer mode")
	}
	return nil
}

func describe(s traversal.Step) string {
	if s == nil {
		return "an empty traversal"
	}
	return s.String()
}

// ReadOnly rejects traversals with mutating steps.
type ReadOnly struct{}

func (ReadOnly) Name() string       { return "ReadOnlyStrategy" }
func (ReadOnly) Category() Category { return Verification }

func (ReadOnly) Apply(_ context.Context, t *traversal.Traversal) error {
	var errs *multierror.Error
	for _, s := range t.Steps() {
		if _, ok := s.(traversal.Mutating); ok {
			errs = multierror.Append(errs, fmt.Errorf("%s mutates the graph", s))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fault.Wrap(fault.CodeVerification, err, "traversal is read-only")
	}
	return nil
}
