package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIRValueSealed(t *testing.T) {
	var values []IRValue = []IRValue{
		IRNull{}, IRString(""), IRInt(0), IRBool(true), IRArray{}, IRObject{},
		IRVertex{}, IREdge{}, IRMap{},
	}
	assert.Len(t, values, 9)
}

func TestIRMapKeepsCanonicalOrder(t *testing.T) {
	m := NewIRMap(
		IRMapEntry{IRString("b"), IRInt(2)},
		IRMapEntry{IRString("a"), IRInt(1)},
		IRMapEntry{IRString("b"), IRInt(3)},
	)

	require.Len(t, m, 2)
	assert.Equal(t, IRString("a"), m[0].Key)

	v, ok := m.Get(IRString("b"))
	require.True(t, ok)
	assert.Equal(t, IRInt(3), v, "later entries win")

	_, ok = m.Get(IRString("c"))
	assert.False(t, ok)
}

func TestIRMapNonStringKeys(t *testing.T) {
	b := NewMapBuilder()
	b.Put(IRVertex{ID: 2, Label: "person"}, IRInt(1))
	b.Put(IRInt(10), IRInt(2))
	b.Put(IRArray{IRString("x")}, IRInt(3))

	m := b.Build()
	require.Len(t, m, 3)

	v, ok := m.Get(IRVertex{ID: 2, Label: "person"})
	require.True(t, ok)
	assert.Equal(t, IRInt(1), v)
}

func TestFromGoYAML(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("name: marko\nage: 29\ntags: [a, b]\n"), &raw))

	v, err := FromGo(raw)
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"name": IRString("marko"),
		"age":  IRInt(29),
		"tags": IRArray{IRString("a"), IRString("b")},
	}, v)
}

func TestFromGoRejectsFractions(t *testing.T) {
	_, err := FromGo(0.5)
	assert.Error(t, err)

	v, err := FromGo(float64(4))
	require.NoError(t, err)
	assert.Equal(t, IRInt(4), v)
}

func TestFromGoDecodesTaggedVertex(t *testing.T) {
	v, err := FromGo(map[string]any{"@type": "vertex", "id": 1, "label": "person"})
	require.NoError(t, err)
	assert.Equal(t, IRVertex{ID: 1, Label: "person"}, v)
}
