package executable

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradyumna-smpx/gqutils/pkg/connection"
	"github.com/pradyumna-smpx/gqutils/pkg/cursor"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/scalars"
	"github.com/pradyumna-smpx/gqutils/pkg/sdl"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// collectingLogger records every logged error.
type collectingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *collectingLogger) Log(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func typeDefs() string {
	var d sdl.Definitions
	d.Add(sdl.ParseSchema(`
# @types
type Item {
  id: Int!
  name: String
}
@connection(Item)

enum Color { RED GREEN }

interface Named { name: String }
type Dog implements Named { name: String barks: Boolean }
type Cat implements Named { name: String }
union Pet = Dog | Cat

# @queries
items(@paging.params): ItemConnection
echo(text: String, raw: StringOriginal): String
limit(n: Int = 5): Int
color(c: Color = GREEN): String
pets: [Pet]
named: [Named]
missing: String
undefinedValue: String
failing: String
`))
	return sdl.TypeDefs(d)
}

func testResolvers() resolver.Map {
	items := []item{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}}

	m := scalars.Builtins()
	resolver.LastWins(m, resolver.Map{
		"Color": map[string]any{"RED": "#f00", "GREEN": "#0f0"},
		"Query": map[string]any{
			"items": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
				return connection.FromArgs(connection.Slice(items), p.Args), nil
			}),
			"echo": func(p graphql.ResolveParams) (interface{}, error) {
				if raw, ok := p.Args["raw"]; ok {
					return raw, nil
				}
				return p.Args["text"], nil
			},
			"limit": func(p graphql.ResolveParams) (interface{}, error) {
				return p.Args["n"], nil
			},
			"color": func(p graphql.ResolveParams) (interface{}, error) {
				return p.Args["c"], nil
			},
			"pets": func(p graphql.ResolveParams) (interface{}, error) {
				return []interface{}{
					map[string]interface{}{"__typename": "Dog", "name": "rex", "barks": true},
					map[string]interface{}{"__typename": "Cat", "name": "tom"},
				}, nil
			},
			"named": func(p graphql.ResolveParams) (interface{}, error) {
				return []interface{}{map[string]interface{}{"kind": "cat", "name": "tom"}}, nil
			},
			"undefinedValue": func(p graphql.ResolveParams) (interface{}, error) {
				return resolver.Undefined, nil
			},
			"failing": func(p graphql.ResolveParams) (interface{}, error) {
				return nil, errors.New("boom")
			},
		},
		"Named": map[string]any{
			resolver.TypeResolverKey: resolver.TypeResolveFunc(func(p graphql.ResolveTypeParams) string {
				if v, ok := p.Value.(map[string]interface{}); ok && v["kind"] == "cat" {
					return "Cat"
				}
				return ""
			}),
		},
	})
	return m
}

func run(t *testing.T, s *Schema, query string, vars map[string]interface{}) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:         s.GraphQL,
		RequestString:  query,
		VariableValues: vars,
		Context:        context.Background(),
	})
}

func TestBuildAndExecuteConnection(t *testing.T) {
	s, err := Build(typeDefs(), testResolvers(), Options{})
	require.NoError(t, err)

	res := run(t, s, `{ items(first: 2, after: "`+cursor.Encode(1)+`") {
		totalCount
		nodes { id name }
		edges { cursor node { id } }
		pageInfo { startCursor endCursor hasNextPage hasPreviousPage edgeCount }
	} }`, nil)
	require.Empty(t, res.Errors)

	conn := res.Data.(map[string]interface{})["items"].(map[string]interface{})
	assert.Equal(t, 4, conn["totalCount"])

	nodes := conn["nodes"].([]interface{})
	require.Len(t, nodes, 2)
	assert.Equal(t, "b", nodes[0].(map[string]interface{})["name"])

	edges := conn["edges"].([]interface{})
	assert.Equal(t, cursor.Encode(2), edges[0].(map[string]interface{})["cursor"])
	assert.Equal(t, cursor.Encode(3), edges[1].(map[string]interface{})["cursor"])

	info := conn["pageInfo"].(map[string]interface{})
	assert.Equal(t, cursor.Encode(2), info["startCursor"])
	assert.Equal(t, cursor.Encode(3), info["endCursor"])
	assert.Equal(t, true, info["hasNextPage"])
	assert.Equal(t, true, info["hasPreviousPage"])
	assert.Equal(t, 2, info["edgeCount"])
}

func TestStringOverrideTrimsLiterals(t *testing.T) {
	s, err := Build(typeDefs(), testResolvers(), Options{})
	require.NoError(t, err)
	require.Contains(t, s.Overrides, "String")

	res := run(t, s, `{ echo(text: "  padded  ") }`, nil)
	require.Empty(t, res.Errors)
	assert.Equal(t, "padded", res.Data.(map[string]interface{})["echo"])

	res = run(t, s, `query($t: String) { echo(text: $t) }`, map[string]interface{}{"t": "  padded  "})
	require.Empty(t, res.Errors)
	assert.Equal(t, "  padded  ", res.Data.(map[string]interface{})["echo"])

	res = run(t, s, `{ echo(raw: "  kept  ") }`, nil)
	require.Empty(t, res.Errors)
	assert.Equal(t, "  kept  ", res.Data.(map[string]interface{})["echo"])
}

func TestDefaultValues(t *testing.T) {
	s, err := Build(typeDefs(), testResolvers(), Options{})
	require.NoError(t, err)

	res := run(t, s, `{ limit color }`, nil)
	require.Empty(t, res.Errors)

	data := res.Data.(map[string]interface{})
	assert.Equal(t, 5, data["limit"])
	assert.Equal(t, "#0f0", data["color"])
}

func TestAbstractTypes(t *testing.T) {
	s, err := Build(typeDefs(), testResolvers(), Options{})
	require.NoError(t, err)

	res := run(t, s, `{
		pets { __typename ... on Dog { name barks } ... on Cat { name } }
		named { __typename name }
	}`, nil)
	require.Empty(t, res.Errors)

	data := res.Data.(map[string]interface{})
	pets := data["pets"].([]interface{})
	assert.Equal(t, "Dog", pets[0].(map[string]interface{})["__typename"])
	assert.Equal(t, true, pets[0].(map[string]interface{})["barks"])
	assert.Equal(t, "Cat", pets[1].(map[string]interface{})["__typename"])

	named := data["named"].([]interface{})
	assert.Equal(t, "Cat", named[0].(map[string]interface{})["__typename"])
}

func TestUndefinedResults(t *testing.T) {
	logger := &collectingLogger{}
	s, err := Build(typeDefs(), testResolvers(), Options{Logger: logger})
	require.NoError(t, err)

	res := run(t, s, `{ undefinedValue }`, nil)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, `"Query.undefinedValue" returned undefined`)
	assert.Len(t, logger.errs, 1)

	allowed, err := Build(typeDefs(), testResolvers(), Options{AllowUndefinedInResolve: true, Logger: logger})
	require.NoError(t, err)

	res = run(t, allowed, `{ undefinedValue missing }`, nil)
	require.Empty(t, res.Errors)
	assert.Nil(t, res.Data.(map[string]interface{})["undefinedValue"])
}

func TestResolverErrorsAreLogged(t *testing.T) {
	logger := &collectingLogger{}
	s, err := Build(typeDefs(), testResolvers(), Options{Logger: logger})
	require.NoError(t, err)

	res := run(t, s, `{ failing }`, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "boom", res.Errors[0].Message)

	require.Len(t, logger.errs, 1)
	assert.Contains(t, logger.errs[0].Error(), "Query.failing")
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name      string
		typeDefs  string
		resolvers resolver.Map
		opts      Options
		wantErr   string
	}{
		{
			name:     "syntax error",
			typeDefs: "type Query { foo: }",
			wantErr:  "",
		},
		{
			name:     "unknown type reference",
			typeDefs: "type Query { foo: Missing }",
			wantErr:  "Missing",
		},
		{
			name:     "duplicate types",
			typeDefs: "type Query { foo: Int }\ntype Foo { a: Int }\ntype Foo { a: Int }",
			wantErr:  "Foo",
		},
		{
			name:      "resolver for unknown type",
			typeDefs:  "type Query { foo: Int }",
			resolvers: resolver.Map{"Bar": map[string]any{}},
			wantErr:   `"Bar" defined in resolvers, but not in schema`,
		},
		{
			name:      "resolver for unknown field",
			typeDefs:  "type Query { foo: Int }",
			resolvers: resolver.Map{"Query": map[string]any{"bar": graphql.FieldResolveFn(nil)}},
			wantErr:   "Query.bar defined in resolvers, but not in schema",
		},
		{
			name:      "resolver that is not a function",
			typeDefs:  "type Query { foo: Int }",
			resolvers: resolver.Map{"Query": map[string]any{"foo": 42}},
			wantErr:   "must be a function",
		},
		{
			name:     "missing resolver for field with arguments",
			typeDefs: "type Query { foo(a: Int): Int }",
			opts:     Options{ResolverValidation: ResolverValidation{RequireResolversForArgs: true}},
			wantErr:  `resolve function missing for "Query.foo"`,
		},
		{
			name:     "missing resolver for non-scalar field",
			typeDefs: "type Query { foo: Foo }\ntype Foo { a: Int }",
			opts:     Options{ResolverValidation: ResolverValidation{RequireResolversForNonScalar: true}},
			wantErr:  `resolve function missing for "Query.foo"`,
		},
		{
			name:     "no query type",
			typeDefs: "type Foo { a: Int }",
			wantErr:  "query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.typeDefs, tt.resolvers, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllowResolversNotInSchema(t *testing.T) {
	_, err := Build("type Query { foo: Int }", resolver.Map{
		"Bar":   map[string]any{},
		"Query": map[string]any{"bar": graphql.FieldResolveFn(nil)},
	}, Options{ResolverValidation: ResolverValidation{AllowResolversNotInSchema: true}})
	assert.NoError(t, err)
}

func TestResolverFieldStruct(t *testing.T) {
	s, err := Build("type Query { foo: Int }", resolver.Map{
		"Query": map[string]any{
			"foo": resolver.Field{Resolve: func(p graphql.ResolveParams) (interface{}, error) { return 7, nil }},
		},
	}, Options{})
	require.NoError(t, err)

	res := run(t, s, `{ foo }`, nil)
	require.Empty(t, res.Errors)
	assert.Equal(t, 7, res.Data.(map[string]interface{})["foo"])
}
