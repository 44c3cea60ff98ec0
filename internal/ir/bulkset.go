package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// BulkEntry is one distinct value of a BulkSet with its multiplicity.
type BulkEntry struct {
	Value IRValue
	Count int64
}

// BulkSet is a multiset of values. Duplicates are preserved as counts, and
// iteration follows first insertion order.
type BulkSet struct {
	m    *linkedhashmap.Map // canonical key -> *BulkEntry
	size int64
}

// NewBulkSet creates an empty bulk set.
func NewBulkSet() *BulkSet {
	return &BulkSet{m: linkedhashmap.New()}
}

// Add records count occurrences of v. Non-positive counts are ignored.
func (b *BulkSet) Add(v IRValue, count int64) {
	if count <= 0 {
		return
	}
	k := Key(v)
	if e, ok := b.m.Get(k); ok {
		e.(*BulkEntry).Count += count
	} else {
		b.m.Put(k, &BulkEntry{Value: v, Count: count})
	}
	b.size += count
}

// AddAll merges other into b.
func (b *BulkSet) AddAll(other *BulkSet) {
	for _, e := range other.Entries() {
		b.Add(e.Value, e.Count)
	}
}

// Count returns the multiplicity of v.
func (b *BulkSet) Count(v IRValue) int64 {
	if e, ok := b.m.Get(Key(v)); ok {
		return e.(*BulkEntry).Count
	}
	return 0
}

// Contains reports whether v occurs at least once.
func (b *BulkSet) Contains(v IRValue) bool {
	_, ok := b.m.Get(Key(v))
	return ok
}

// Len returns the number of distinct values.
func (b *BulkSet) Len() int {
	return b.m.Size()
}

// Size returns the total multiplicity.
func (b *BulkSet) Size() int64 {
	return b.size
}

// Entries returns distinct values in insertion order.
func (b *BulkSet) Entries() []BulkEntry {
	out := make([]BulkEntry, 0, b.m.Size())
	it := b.m.Iterator()
	for it.Next() {
		out = append(out, *it.Value().(*BulkEntry))
	}
	return out
}

// Sorted returns distinct values in canonical key order.
func (b *BulkSet) Sorted() []BulkEntry {
	out := b.Entries()
	slices.SortFunc(out, func(x, y BulkEntry) int {
		return strings.Compare(Key(x.Value), Key(y.Value))
	})
	return out
}

// Expand returns every occurrence as a flat array sorted by Compare.
func (b *BulkSet) Expand() IRArray {
	out := make(IRArray, 0, b.size)
	for _, e := range b.Entries() {
		for i := int64(0); i < e.Count; i++ {
			out = append(out, e.Value)
		}
	}
	SortValues(out)
	return out
}

// Clone returns an independent copy.
func (b *BulkSet) Clone() *BulkSet {
	out := NewBulkSet()
	out.AddAll(b)
	return out
}

// ToIR encodes the set as [[value, count], ...] in canonical key order.
func (b *BulkSet) ToIR() IRArray {
	sorted := b.Sorted()
	out := make(IRArray, len(sorted))
	for i, e := range sorted {
		out[i] = IRArray{e.Value, IRInt(e.Count)}
	}
	return out
}

// BulkSetFromIR decodes the ToIR form. A null value decodes to an empty set.
func BulkSetFromIR(v IRValue) (*BulkSet, error) {
	out := NewBulkSet()
	switch val := v.(type) {
	case nil, IRNull:
		return out, nil
	case IRArray:
		for i, raw := range val {
			pair, ok := raw.(IRArray)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("bulk set entry %d: expected [value, count]", i)
			}
			n, ok := pair[1].(IRInt)
			if !ok {
				return nil, fmt.Errorf("bulk set entry %d: count is %T", i, pair[1])
			}
			out.Add(pair[0], int64(n))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("bulk set: unexpected %T", v)
	}
}
