package traverser

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// Set holds traversers in insertion order, coalescing traversers with equal
// keys by summing their bulk. Poll removes from the front. A Set is also a
// structure.Iterator so it can feed a step directly.
type Set struct {
	index map[string]int
	items []*Traverser
	head  int
}

// NewSet creates a set holding ts.
func NewSet(ts ...*Traverser) *Set {
	s := &Set{index: make(map[string]int)}
	for _, t := range ts {
		s.Add(t)
	}
	return s
}

// Add inserts t, merging it into an existing traverser with the same key.
// Traversers with bulk below one are dropped. The set takes ownership of t;
// it must not be modified while held.
func (s *Set) Add(t *Traverser) {
	if t == nil || t.bulk < 1 {
		return
	}
	k := t.Key()
	if i, ok := s.index[k]; ok {
		s.items[i].Merge(t)
		return
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, t)
}

// AddAll adds every remaining traverser of other. other is not drained.
func (s *Set) AddAll(other *Set) {
	for _, t := range other.Slice() {
		s.Add(t.Clone())
	}
}

// Len returns the number of distinct traversers remaining.
func (s *Set) Len() int {
	return len(s.items) - s.head
}

// IsEmpty reports whether no traversers remain.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// Bulk returns the summed bulk of the remaining traversers.
func (s *Set) Bulk() int64 {
	var n int64
	for _, t := range s.items[s.head:] {
		n += t.bulk
	}
	return n
}

// Poll removes and returns the oldest traverser.
func (s *Set) Poll() (*Traverser, bool) {
	if s.head >= len(s.items) {
		return nil, false
	}
	t := s.items[s.head]
	s.items[s.head] = nil
	s.head++
	delete(s.index, t.Key())
	if s.head == len(s.items) {
		s.items = s.items[:0]
		s.head = 0
	}
	return t, true
}

// Next implements structure.Iterator.
func (s *Set) Next(ctx context.Context) (*Traverser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.Poll()
	if !ok {
		return nil, structure.ErrIteratorDone
	}
	return t, nil
}

// Stop implements structure.Iterator by clearing the set.
func (s *Set) Stop() {
	s.Clear()
}

// Clear removes every traverser.
func (s *Set) Clear() {
	s.index = make(map[string]int)
	s.items = nil
	s.head = 0
}

// Slice returns the remaining traversers in insertion order without
// removing them.
func (s *Set) Slice() []*Traverser {
	return slices.Clone(s.items[s.head:])
}

// Sorted returns the remaining traversers ordered by key.
func (s *Set) Sorted() []*Traverser {
	out := s.Slice()
	slices.SortFunc(out, func(a, b *Traverser) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// Clone returns an independent copy of the remaining traversers.
func (s *Set) Clone() *Set {
	out := NewSet()
	out.AddAll(s)
	return out
}

// Union combines two sets into a new one. It is the message combiner of
// traversal vertex programs.
func Union(a, b *Set) *Set {
	out := NewSet()
	out.AddAll(a)
	out.AddAll(b)
	return out
}

// ToIR encodes the remaining traversers in key order.
func (s *Set) ToIR() ir.IRArray {
	sorted := s.Sorted()
	out := make(ir.IRArray, len(sorted))
	for i, t := range sorted {
		out[i] = t.ToIR()
	}
	return out
}

// SetFromIR decodes the ToIR form.
func SetFromIR(v ir.IRValue, sideEffects SideEffectStore) (*Set, error) {
	s := NewSet()
	switch val := v.(type) {
	case nil, ir.IRNull:
		return s, nil
	case ir.IRArray:
		for _, raw := range val {
			t, err := FromIR(raw, sideEffects)
			if err != nil {
				return nil, err
			}
			s.Add(t)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("traverser set: expected array, got %T", v)
	}
}
