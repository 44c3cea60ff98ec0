package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want int
	}{
		{"ints", IRInt(1), IRInt(2), -1},
		{"strings", IRString("b"), IRString("a"), 1},
		{"bools", IRBool(false), IRBool(true), -1},
		{"null first", IRNull{}, IRInt(0), -1},
		{"int before string", IRInt(100), IRString("0"), -1},
		{"vertices by id", IRVertex{ID: 6}, IRVertex{ID: 2}, 1},
		{"arrays lexicographic", IRArray{IRInt(1), IRInt(2)}, IRArray{IRInt(1), IRInt(3)}, -1},
		{"array prefix", IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(0)}, -1},
		{"equal objects", IRObject{"a": IRInt(1)}, IRObject{"a": IRInt(1)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestSortValues(t *testing.T) {
	vals := []IRValue{IRString("josh"), IRInt(3), IRString("lop"), IRInt(1)}
	SortValues(vals)
	assert.Equal(t, []IRValue{IRInt(1), IRInt(3), IRString("josh"), IRString("lop")}, vals)
}
