package traversal

import (
	"context"
	"errors"

	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// pipe links a step to its upstream. It adds the step's labels to each
// output, addresses the output to the downstream step and buffers one
// traverser for HasNext.
type pipe struct {
	step     Step
	upstream Input
	nextID   string
	peeked   *traverser.Traverser
}

func (p *pipe) Next(ctx context.Context) (*traverser.Traverser, error) {
	if p.peeked != nil {
		t := p.peeked
		p.peeked = nil
		return t, nil
	}
	t, err := p.step.Pull(ctx, p.upstream)
	if err != nil {
		return nil, err
	}
	t.AddLabels(p.step.Labels()...)
	t.SetStepID(p.nextID)
	return t, nil
}

func (p *pipe) HasNext(ctx context.Context) (bool, error) {
	if p.peeked != nil {
		return true, nil
	}
	t, err := p.Next(ctx)
	if errors.Is(err, structure.ErrIteratorDone) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.peeked = t
	return true, nil
}

func (p *pipe) Stop() {
	p.peeked = nil
	p.step.Reset()
}
