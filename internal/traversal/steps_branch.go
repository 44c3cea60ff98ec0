package traversal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tinkergo/internal/traverser"
)

// LocalStep runs its child on each traverser in isolation and emits the
// child's output, so barriers in the child only see one traverser.
type LocalStep struct {
	stepBase
	child *Traversal
	buf   bufferState
}

// NewLocalStep creates a local step.
func NewLocalStep(child *Traversal) *LocalStep { return &LocalStep{child: child} }

func (s *LocalStep) Kind() Kind                           { return KindBranch }
func (s *LocalStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *LocalStep) Reset()                               { s.buf.reset() }
func (s *LocalStep) Children() []*Traversal               { return []*Traversal{s.child} }
func (s *LocalStep) String() string                       { return format("LocalStep", s.child.String()) }

func (s *LocalStep) Clone() Step {
	return &LocalStep{stepBase: s.cloneBase(), child: cloneChild(s.child)}
}

func (s *LocalStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	for {
		if t, ok := s.buf.pop(); ok {
			return t, nil
		}
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		if s.buf.out, err = runChild(ctx, s.child, t); err != nil {
			return nil, err
		}
	}
}

// UnionStep runs every child on each traverser and emits their outputs in
// child order.
type UnionStep struct {
	stepBase
	children []*Traversal
	buf      bufferState
}

// NewUnionStep creates a union step.
func NewUnionStep(children ...*Traversal) *UnionStep {
	return &UnionStep{children: children}
}

func (s *UnionStep) Kind() Kind                           { return KindBranch }
func (s *UnionStep) Requirements() traverser.Requirements { return traverser.Object }
func (s *UnionStep) Reset()                               { s.buf.reset() }
func (s *UnionStep) Children() []*Traversal               { return s.children }

func (s *UnionStep) String() string {
	parts := make([]string, len(s.children))
	for i, c := range s.children {
		parts[i] = c.String()
	}
	return "UnionStep(" + strings.Join(parts, ",") + ")"
}

func (s *UnionStep) Clone() Step {
	c := &UnionStep{stepBase: s.cloneBase()}
	for _, child := range s.children {
		c.children = append(c.children, cloneChild(child))
	}
	return c
}

func (s *UnionStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	for {
		if t, ok := s.buf.pop(); ok {
			return t, nil
		}
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range s.children {
			out, err := runChild(ctx, c, t)
			if err != nil {
				return nil, err
			}
			s.buf.out = append(s.buf.out, out...)
		}
	}
}

// RepeatStep runs its body a fixed number of times, feeding each pass's
// output into the next. The loop counter counts completed passes and is
// cleared on exit.
type RepeatStep struct {
	stepBase
	body  *Traversal
	times int
	buf   bufferState
}

// NewRepeatStep creates a repeat step.
func NewRepeatStep(body *Traversal, times int) *RepeatStep {
	return &RepeatStep{body: body, times: times}
}

// Body returns the repeated traversal.
func (s *RepeatStep) Body() *Traversal { return s.body }

// Times returns the number of passes.
func (s *RepeatStep) Times() int { return s.times }

// SetTimes sets the number of passes.
func (s *RepeatStep) SetTimes(n int) { s.times = n }

func (s *RepeatStep) Kind() Kind                           { return KindBranch }
func (s *RepeatStep) Requirements() traverser.Requirements { return traverser.Object | traverser.Loops }
func (s *RepeatStep) Reset()                               { s.buf.reset() }
func (s *RepeatStep) Children() []*Traversal               { return []*Traversal{s.body} }

func (s *RepeatStep) String() string {
	return format("RepeatStep", s.body.String(), fmt.Sprintf("times=%d", s.times))
}

func (s *RepeatStep) Clone() Step {
	return &RepeatStep{stepBase: s.cloneBase(), body: cloneChild(s.body), times: s.times}
}

func (s *RepeatStep) Pull(ctx context.Context, in Input) (*traverser.Traverser, error) {
	for {
		if t, ok := s.buf.pop(); ok {
			return t, nil
		}
		t, err := in.Next(ctx)
		if err != nil {
			return nil, err
		}
		current := []*traverser.Traverser{t}
		for i := 0; i < s.times && len(current) > 0; i++ {
			var next []*traverser.Traverser
			for _, c := range current {
				out, err := runChild(ctx, s.body, c)
				if err != nil {
					return nil, err
				}
				for _, o := range out {
					o.IncrLoops()
				}
				next = append(next, out...)
			}
			current = next
		}
		for _, c := range current {
			c.ResetLoops()
		}
		s.buf.out = current
	}
}
