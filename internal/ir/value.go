package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface representing the values that flow through a
// traversal. NO IRFloat - floats are forbidden (they break determinism of
// coalescing and grouping keys).
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents an explicit null value.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64, never float64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRVertex is a reference to a graph vertex. It carries the label so that
// label() never needs a graph round trip.
type IRVertex struct {
	ID    int64
	Label string
}

func (IRVertex) irValue() {}

// IREdge is a reference to a graph edge with both endpoint references.
type IREdge struct {
	ID    int64
	Label string
	OutV  IRVertex
	InV   IRVertex
}

func (IREdge) irValue() {}

// IRMapEntry is one key/value pair of an IRMap.
type IRMapEntry struct {
	Key   IRValue
	Value IRValue
}

// IRMap is a mapping with arbitrary value keys. Entries are kept sorted by the
// canonical form of their keys, so two maps with the same content are
// structurally equal. Build with NewIRMap or MapBuilder.
type IRMap []IRMapEntry

func (IRMap) irValue() {}

// Type tags used by the JSON encoding of element references and maps.
const (
	typeTag    = "@type"
	typeVertex = "vertex"
	typeEdge   = "edge"
	typeMap    = "map"
)

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair.
// Example: NewIRObjectFromPairs(O("name", IRString("marko")), O("age", IRInt(29)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Clone returns a shallow copy of the object.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// NewIRMap builds an IRMap from entries. Later entries win on duplicate keys.
func NewIRMap(entries ...IRMapEntry) IRMap {
	b := NewMapBuilder()
	for _, e := range entries {
		b.Put(e.Key, e.Value)
	}
	return b.Build()
}

// Get returns the value stored under key.
func (m IRMap) Get(key IRValue) (IRValue, bool) {
	k := Key(key)
	i, found := slices.BinarySearchFunc(m, k, func(e IRMapEntry, target string) int {
		return strings.Compare(Key(e.Key), target)
	})
	if !found {
		return nil, false
	}
	return m[i].Value, true
}

// MapBuilder accumulates entries keyed by canonical key.
type MapBuilder struct {
	entries map[string]IRMapEntry
}

// NewMapBuilder creates an empty builder.
func NewMapBuilder() *MapBuilder {
	return &MapBuilder{entries: make(map[string]IRMapEntry)}
}

// Put stores value under key, replacing any previous value.
func (b *MapBuilder) Put(key, value IRValue) {
	b.entries[Key(key)] = IRMapEntry{Key: key, Value: value}
}

// Get returns the value currently stored under key.
func (b *MapBuilder) Get(key IRValue) (IRValue, bool) {
	e, ok := b.entries[Key(key)]
	return e.Value, ok
}

// Len returns the number of distinct keys.
func (b *MapBuilder) Len() int {
	return len(b.entries)
}

// Build returns the entries as an IRMap sorted by canonical key.
func (b *MapBuilder) Build() IRMap {
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make(IRMap, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.entries[k])
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// UnmarshalIRValue decodes JSON (canonical or not) into an IRValue.
// Tagged objects ("@type": vertex, edge, map) decode to element references
// and IRMap. Floats are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	return unmarshalIRValue(bytes.TrimSpace(data))
}

func unmarshalIRValue(data []byte) (IRValue, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil

	case 'n':
		return IRNull{}, nil

	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return decodeTagged(obj)

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		s := string(n)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", s)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(i), nil
	}
}

func decodeTagged(obj IRObject) (IRValue, error) {
	tag, ok := obj[typeTag].(IRString)
	if !ok {
		return obj, nil
	}
	switch string(tag) {
	case typeVertex:
		return decodeVertex(obj)
	case typeEdge:
		id, _ := obj["id"].(IRInt)
		label, _ := obj["label"].(IRString)
		outObj, _ := obj["outV"].(IRVertex)
		inObj, _ := obj["inV"].(IRVertex)
		return IREdge{ID: int64(id), Label: string(label), OutV: outObj, InV: inObj}, nil
	case typeMap:
		entries, _ := obj["entries"].(IRArray)
		b := NewMapBuilder()
		for i, e := range entries {
			pair, ok := e.(IRArray)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("map entry %d: expected [key, value] pair", i)
			}
			b.Put(pair[0], pair[1])
		}
		return b.Build(), nil
	default:
		return obj, nil
	}
}

func decodeVertex(obj IRObject) (IRValue, error) {
	id, ok := obj["id"].(IRInt)
	if !ok {
		return nil, fmt.Errorf("vertex reference without integer id")
	}
	label, _ := obj["label"].(IRString)
	return IRVertex{ID: int64(id), Label: string(label)}, nil
}

// MarshalJSON encodes the map in its canonical tagged form.
func (m IRMap) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(m)
}

// MarshalJSON encodes the vertex reference in its canonical tagged form.
func (v IRVertex) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(v)
}

// MarshalJSON encodes the edge reference in its canonical tagged form.
func (e IREdge) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(e)
}

// MarshalJSON encodes the object with sorted keys.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// FromGo converts plain Go values (as produced by yaml or json decoding into
// any) into IR values. Floats are rejected unless they are whole numbers,
// because YAML decoders produce float64 for some integer literals.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
		}
		return IRInt(int64(val)), nil
	case json.Number:
		return unmarshalIRValue([]byte(val))
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return decodeTagged(obj)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
