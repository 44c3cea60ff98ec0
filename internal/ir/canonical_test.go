package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"int", IRInt(42), "42"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"sorted keys", IRObject{"zebra": IRInt(1), "alpha": IRInt(2)}, `{"alpha":2,"zebra":1}`},
		{"vertex", IRVertex{ID: 1, Label: "person"}, `{"@type":"vertex","id":1,"label":"person"}`},
		{"edge", IREdge{ID: 7, Label: "knows", OutV: IRVertex{ID: 1, Label: "person"}, InV: IRVertex{ID: 2, Label: "person"}},
			`{"@type":"edge","id":7,"inV":{"@type":"vertex","id":2,"label":"person"},"label":"knows","outV":{"@type":"vertex","id":1,"label":"person"}}`},
		{"map", NewIRMap(IRMapEntry{IRString("b"), IRInt(2)}, IRMapEntry{IRString("a"), IRInt(1)}),
			`{"@type":"map","entries":[["a",1],["b",2]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// UTF-16 order: 0xD800 < 0xE000, so the astral key sorts first.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html untouched", "<a & b>", `"<a & b>"`},
		{"quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"newline", "a\nb", `"a\nb"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"literal backslash u2028 text", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	assert.Equal(t, Key(IRString(composed)), Key(IRString(decomposed)))
	assert.Equal(t, Key(IRObject{composed: IRInt(1)}), Key(IRObject{decomposed: IRInt(1)}))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestMarshalCanonicalWithGoTypes(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"b": []any{int64(1), "x", true}, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":[1,"x",true]}`, string(result))
}

func TestCanonicalRoundTrip(t *testing.T) {
	values := []IRValue{
		IRString("marko"),
		IRInt(29),
		IRArray{IRInt(1), IRString("a")},
		IRVertex{ID: 3, Label: "software"},
		IREdge{ID: 9, Label: "created", OutV: IRVertex{ID: 1, Label: "person"}, InV: IRVertex{ID: 3, Label: "software"}},
		NewIRMap(IRMapEntry{IRVertex{ID: 1, Label: "person"}, IRArray{IRInt(1)}}),
		IRObject{"name": IRArray{IRString("lop")}},
	}

	for _, v := range values {
		data, err := MarshalCanonical(v)
		require.NoError(t, err)

		back, err := UnmarshalIRValue(data)
		require.NoError(t, err)
		assert.Equal(t, Key(v), Key(back), "round trip of %s", data)
	}
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	for _, input := range []string{"3.14", "1e10", `{"weight":0.5}`, `[1, 2.5]`} {
		_, err := UnmarshalIRValue([]byte(input))
		assert.Error(t, err, input)
	}
}
