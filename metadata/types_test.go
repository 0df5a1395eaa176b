package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	i, ok := Int(5).AsInt64()
	assert.True(t, ok)
	assert.Equal(t, int64(5), i)

	_, ok = String("x").AsInt64()
	assert.False(t, ok)

	s, ok := String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	assert.Empty(t, Int(1).StringValue())

	m, ok := Map(Document{"a": Int(1)}).AsMap()
	assert.True(t, ok)
	assert.Len(t, m, 1)

	assert.Equal(t, "map", KindMap.String())
	assert.Equal(t, "invalid", Kind(200).String())
}

func TestDocumentCloneIsDeep(t *testing.T) {
	orig := Document{
		"tags": Array([]Value{String("a")}),
		"nest": Map(Document{"k": Int(1)}),
	}
	c := orig.Clone()
	require.True(t, orig.Equal(c))

	c["tags"].A[0] = String("changed")
	c["nest"].M["k"] = Int(2)
	c["new"] = Null()

	assert.Equal(t, "a", orig["tags"].A[0].StringValue())
	assert.Equal(t, Int(1), orig["nest"].M["k"])
	assert.Len(t, orig, 2)

	assert.Nil(t, Document(nil).Clone())
	assert.Nil(t, CloneIfNeeded(Document{}))
}

func TestDocumentEqual(t *testing.T) {
	a := Document{"x": Float(1), "y": String("s")}
	assert.True(t, a.Equal(Document{"y": String("s"), "x": Float(1)}))
	assert.False(t, a.Equal(Document{"x": Int(1), "y": String("s")}))
	assert.False(t, a.Equal(Document{"x": Float(1)}))
}

func TestValueJSON(t *testing.T) {
	d := Document{"s": String("hello"), "arr": Array([]Value{Int(1)}), "m": Map(Document{"b": Bool(true)})}

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, d.Equal(got))
	assert.Equal(t, "hello", got["s"].StringValue())
}
