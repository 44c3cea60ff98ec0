package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkSetCounts(t *testing.T) {
	b := NewBulkSet()
	b.Add(IRString("a"), 2)
	b.Add(IRString("b"), 1)
	b.Add(IRString("a"), 3)
	b.Add(IRString("c"), 0)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(6), b.Size())
	assert.Equal(t, int64(5), b.Count(IRString("a")))
	assert.False(t, b.Contains(IRString("c")))
	assert.Equal(t, IRArray{IRString("a"), IRString("a"), IRString("a"), IRString("a"), IRString("a"), IRString("b")}, b.Expand())
}

func TestBulkSetInsertionOrder(t *testing.T) {
	b := NewBulkSet()
	b.Add(IRInt(3), 1)
	b.Add(IRInt(1), 1)
	b.Add(IRInt(3), 1)

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, IRInt(3), entries[0].Value)
	assert.Equal(t, int64(2), entries[0].Count)
}

func TestBulkSetIRRoundTrip(t *testing.T) {
	b := NewBulkSet()
	b.Add(IRVertex{ID: 2, Label: "person"}, 1)
	b.Add(IRVertex{ID: 4, Label: "person"}, 2)

	back, err := BulkSetFromIR(b.ToIR())
	require.NoError(t, err)
	assert.Equal(t, b.ToIR(), back.ToIR())
	assert.Equal(t, int64(2), back.Count(IRVertex{ID: 4, Label: "person"}))

	_, err = BulkSetFromIR(IRArray{IRInt(1)})
	assert.Error(t, err)
}
