package traversal

import (
	"context"
	"errors"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/traverser"
)

// runChild feeds a copy of t into child and drains it. A nil child is the
// identity.
func runChild(ctx context.Context, child *Traversal, t *traverser.Traverser) ([]*traverser.Traverser, error) {
	if child == nil {
		return []*traverser.Traverser{t.Clone()}, nil
	}
	child.Reset()
	defer child.Reset()
	child.AddStart(t.Clone())
	var out []*traverser.Traverser
	for {
		tr, err := child.output().Next(ctx)
		if errors.Is(err, structure.ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
}

// firstValue returns the first value child produces for t.
func firstValue(ctx context.Context, child *Traversal, t *traverser.Traverser) (ir.IRValue, bool, error) {
	if child == nil {
		return t.Value(), true, nil
	}
	child.Reset()
	defer child.Reset()
	child.AddStart(t.Clone())
	tr, err := child.output().Next(ctx)
	if errors.Is(err, structure.ErrIteratorDone) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tr.Value(), true, nil
}

// single returns a bulk 1 copy of t.
func single(t *traverser.Traverser) *traverser.Traverser {
	c := t.Clone()
	c.SetBulk(1)
	return c
}

// applyDetached runs a standalone copy of child over one value. It is safe
// to call concurrently.
func applyDetached(ctx context.Context, child *Traversal, v ir.IRValue) (ir.IRValue, bool, error) {
	c := child.Clone()
	c.parent = nil
	if err := c.Lock(); err != nil {
		return nil, false, err
	}
	defer c.Close()
	c.AddStart(c.generator.Generate(v, "", 1))
	tr, err := c.output().Next(ctx)
	if errors.Is(err, structure.ErrIteratorDone) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tr.Value(), true, nil
}
