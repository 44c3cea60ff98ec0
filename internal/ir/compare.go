package ir

import (
	"cmp"
	"slices"
	"strings"
)

// typeRank orders values of different types. Values of one type compare by
// content; across types the rank decides.
func typeRank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return 0
	case IRBool:
		return 1
	case IRInt:
		return 2
	case IRString:
		return 3
	case IRVertex:
		return 4
	case IREdge:
		return 5
	case IRArray:
		return 6
	case IRMap:
		return 7
	default:
		return 8
	}
}

// Compare is a total order over IR values. It is used by order steps and to
// sort results wherever output must not depend on execution order.
func Compare(a, b IRValue) int {
	if ra, rb := typeRank(a), typeRank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil, IRNull:
		return 0
	case IRBool:
		bv := b.(IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case IRInt:
		return cmp.Compare(av, b.(IRInt))
	case IRString:
		return strings.Compare(string(av), string(b.(IRString)))
	case IRVertex:
		return cmp.Compare(av.ID, b.(IRVertex).ID)
	case IREdge:
		return cmp.Compare(av.ID, b.(IREdge).ID)
	case IRArray:
		bv := b.(IRArray)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	default:
		return strings.Compare(Key(a), Key(b))
	}
}

// Equal reports whether a and b have the same canonical form.
func Equal(a, b IRValue) bool {
	return Key(a) == Key(b)
}

// SortValues sorts values in place by Compare.
func SortValues(vals []IRValue) {
	slices.SortStableFunc(vals, Compare)
}
