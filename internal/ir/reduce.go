package ir

import "fmt"

// Reducer merges two values proposed for the same memory or side-effect key.
// Reduce must be associative; every reducer except Overwrite is also
// commutative, which is what makes merged results independent of partition
// count and merge order.
type Reducer interface {
	Name() string
	// Identity is the value a key holds before anything is merged into it.
	Identity() IRValue
	Reduce(a, b IRValue) (IRValue, error)
}

type reducerFunc struct {
	name     string
	identity IRValue
	fn       func(a, b IRValue) (IRValue, error)
}

func (r reducerFunc) Name() string                         { return r.name }
func (r reducerFunc) Identity() IRValue                    { return r.identity }
func (r reducerFunc) Reduce(a, b IRValue) (IRValue, error) { return r.fn(a, b) }

// Built-in reducers.
var (
	SumReducer Reducer = reducerFunc{"sum", IRInt(0), func(a, b IRValue) (IRValue, error) {
		x, y, err := ints(a, b)
		return x + y, err
	}}
	MinReducer Reducer = reducerFunc{"min", IRNull{}, func(a, b IRValue) (IRValue, error) {
		if isNull(a) {
			return b, nil
		}
		if isNull(b) || Compare(a, b) <= 0 {
			return a, nil
		}
		return b, nil
	}}
	MaxReducer Reducer = reducerFunc{"max", IRNull{}, func(a, b IRValue) (IRValue, error) {
		if isNull(a) {
			return b, nil
		}
		if isNull(b) || Compare(a, b) >= 0 {
			return a, nil
		}
		return b, nil
	}}
	AndReducer Reducer = reducerFunc{"and", IRBool(true), func(a, b IRValue) (IRValue, error) {
		x, y, err := bools(a, b)
		return x && y, err
	}}
	OrReducer Reducer = reducerFunc{"or", IRBool(false), func(a, b IRValue) (IRValue, error) {
		x, y, err := bools(a, b)
		return x || y, err
	}}
	// OverwriteReducer keeps the newer value. It is only order independent
	// when a single writer proposes the key in a superstep, which is how the
	// master uses it.
	OverwriteReducer Reducer = reducerFunc{"overwrite", IRNull{}, func(_, b IRValue) (IRValue, error) {
		return b, nil
	}}
	// ConcatReducer appends arrays. Callers that need order independence
	// sort the result.
	ConcatReducer Reducer = reducerFunc{"concat", IRArray{}, func(a, b IRValue) (IRValue, error) {
		x, ok := a.(IRArray)
		if !ok && !isNull(a) {
			return nil, fmt.Errorf("concat: expected array, got %T", a)
		}
		y, ok := b.(IRArray)
		if !ok && !isNull(b) {
			return nil, fmt.Errorf("concat: expected array, got %T", b)
		}
		out := make(IRArray, 0, len(x)+len(y))
		return append(append(out, x...), y...), nil
	}}
	// BulkSetReducer unions two bulk sets in their ToIR form, summing counts.
	BulkSetReducer Reducer = reducerFunc{"bulkset", IRArray{}, func(a, b IRValue) (IRValue, error) {
		x, err := BulkSetFromIR(a)
		if err != nil {
			return nil, err
		}
		y, err := BulkSetFromIR(b)
		if err != nil {
			return nil, err
		}
		x.AddAll(y)
		return x.ToIR(), nil
	}}
)

// ReducerByName looks up a built-in reducer.
func ReducerByName(name string) (Reducer, bool) {
	for _, r := range []Reducer{SumReducer, MinReducer, MaxReducer, AndReducer, OrReducer, OverwriteReducer, ConcatReducer, BulkSetReducer} {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

func isNull(v IRValue) bool {
	switch v.(type) {
	case nil, IRNull:
		return true
	}
	return false
}

func ints(a, b IRValue) (IRInt, IRInt, error) {
	x, ok := a.(IRInt)
	if !ok {
		return 0, 0, fmt.Errorf("sum: expected int, got %T", a)
	}
	y, ok := b.(IRInt)
	if !ok {
		return 0, 0, fmt.Errorf("sum: expected int, got %T", b)
	}
	return x, y, nil
}

func bools(a, b IRValue) (IRBool, IRBool, error) {
	x, ok := a.(IRBool)
	if !ok {
		return false, false, fmt.Errorf("expected bool, got %T", a)
	}
	y, ok := b.(IRBool)
	if !ok {
		return false, false, fmt.Errorf("expected bool, got %T", b)
	}
	return x, y, nil
}
