package ir

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// This is the ONLY serialization used for value identity: traverser
// coalescing, group keys, message routing keys and golden output.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. No floats (returns error)
//  5. Element references and IRMap use a tagged object form
func MarshalCanonical(v any) ([]byte, error) {
	iv, ok := v.(IRValue)
	if !ok {
		var err error
		iv, err = FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("canonical json: %w", err)
		}
	}
	return appendCanonical(nil, iv), nil
}

// Key returns the canonical form of v as a string. Equal values always have
// equal keys; it is safe to use as a Go map key.
func Key(v IRValue) string {
	return string(appendCanonical(nil, v))
}

// appendCanonical is total over IRValue; a nil interface encodes as null.
func appendCanonical(buf []byte, v IRValue) []byte {
	switch val := v.(type) {
	case nil, IRNull:
		return append(buf, "null"...)
	case IRString:
		return appendCanonicalString(buf, string(val))
	case IRInt:
		return strconv.AppendInt(buf, int64(val), 10)
	case IRBool:
		return strconv.AppendBool(buf, bool(val))
	case IRArray:
		buf = append(buf, '[')
		for i, elem := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonical(buf, elem)
		}
		return append(buf, ']')
	case IRObject:
		buf = append(buf, '{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonicalString(buf, k)
			buf = append(buf, ':')
			buf = appendCanonical(buf, val[k])
		}
		return append(buf, '}')
	case IRVertex:
		return appendCanonical(buf, IRObject{
			typeTag: IRString(typeVertex),
			"id":    IRInt(val.ID),
			"label": IRString(val.Label),
		})
	case IREdge:
		return appendCanonical(buf, IRObject{
			typeTag: IRString(typeEdge),
			"id":    IRInt(val.ID),
			"label": IRString(val.Label),
			"outV":  val.OutV,
			"inV":   val.InV,
		})
	case IRMap:
		entries := make(IRArray, len(val))
		for i, e := range val {
			entries[i] = IRArray{e.Key, e.Value}
		}
		return appendCanonical(buf, IRObject{
			typeTag:   IRString(typeMap),
			"entries": entries,
		})
	default:
		panic(fmt.Sprintf("ir: unknown IRValue type %T", v))
	}
}

// appendCanonicalString writes a JSON string with NFC normalization and no
// HTML escaping. Only quote, backslash and control characters are escaped,
// as RFC 8785 requires.
func appendCanonicalString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range norm.NFC.String(s) {
		switch {
		case r == '"':
			buf = append(buf, '\\', '"')
		case r == '\\':
			buf = append(buf, '\\', '\\')
		case r == '\b':
			buf = append(buf, '\\', 'b')
		case r == '\f':
			buf = append(buf, '\\', 'f')
		case r == '\n':
			buf = append(buf, '\\', 'n')
		case r == '\r':
			buf = append(buf, '\\', 'r')
		case r == '\t':
			buf = append(buf, '\\', 't')
		case r < 0x20:
			buf = append(buf, fmt.Sprintf("\\u%04x", r)...)
		default:
			buf = utf8.AppendRune(buf, r)
		}
	}
	return append(buf, '"')
}
