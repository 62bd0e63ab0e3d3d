package resolver

import (
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastWinsOverwritesLeaves(t *testing.T) {
	fromA := func(p graphql.ResolveParams) (interface{}, error) { return "a", nil }
	fromB := func(p graphql.ResolveParams) (interface{}, error) { return "b", nil }
	bar := func(p graphql.ResolveParams) (interface{}, error) { return "bar", nil }

	a := Map{"Query": map[string]any{"foo": graphql.FieldResolveFn(fromA), "bar": graphql.FieldResolveFn(bar)}}
	b := Map{"Query": Map{"foo": graphql.FieldResolveFn(fromB)}}

	merged := Merge(LastWins, a, b)

	query, ok := merged.Type("Query")
	require.True(t, ok)

	foo := query["foo"].(graphql.FieldResolveFn)
	v, err := foo(graphql.ResolveParams{})
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	assert.Contains(t, query, "bar")
}

func TestLastWinsDoesNotAliasInputs(t *testing.T) {
	a := Map{"Query": Map{"x": 1}}
	b := Map{"Query": Map{"y": 2}}

	merged := Merge(nil, a, b)
	nested, _ := merged.Type("Query")
	nested["z"] = 3

	assert.Equal(t, Map{"x": 1}, a["Query"])
	assert.Equal(t, Map{"y": 2}, b["Query"])
	assert.Equal(t, Map{"x": 1, "y": 2, "z": 3}, merged["Query"])
}

func TestLastWinsNilDoesNotOverwrite(t *testing.T) {
	dst := Map{"a": 1}
	LastWins(dst, Map{"a": nil, "b": nil})

	assert.Equal(t, 1, dst["a"])
	assert.Contains(t, dst, "b")
	assert.Nil(t, dst["b"])
}

func TestLastWinsMapReplacesLeafAndBack(t *testing.T) {
	dst := Map{"Color": "scalar", "Size": Map{"S": 1}}
	LastWins(dst, Map{"Color": Map{"RED": "red"}, "Size": 4})

	assert.Equal(t, Map{"RED": "red"}, dst["Color"])
	assert.Equal(t, 4, dst["Size"])
}

func TestClone(t *testing.T) {
	m := Map{"T": map[string]any{"f": 1}}
	c := m.Clone()

	nested, ok := c.Type("T")
	require.True(t, ok)
	nested["g"] = 2

	assert.NotContains(t, m["T"], "g")
	assert.Nil(t, Map(nil).Clone())
}
