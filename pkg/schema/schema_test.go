package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/pradyumna-smpx/gqutils/pkg/connection"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

func constant(v interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) { return v, nil }
}

func run(t *testing.T, res *Result, query string) map[string]interface{} {
	t.Helper()
	out := graphql.Do(graphql.Params{
		Schema:        res.Schema.GraphQL,
		RequestString: query,
		Context:       context.Background(),
	})
	require.Empty(t, out.Errors)
	return out.Data.(map[string]interface{})
}

func TestLaterModuleResolverWins(t *testing.T) {
	a := &module.Module{
		Name:   "a",
		Schema: "# @queries\nfoo: String",
		Resolvers: resolver.Map{
			"Query": map[string]any{"foo": constant("a"), "bar": constant("bar")},
		},
	}
	b := &module.Module{
		Name:    "b",
		Queries: "bar: String",
		Resolvers: resolver.Map{
			"Query": map[string]any{"foo": constant("b")},
		},
	}

	res, err := MakeFromModules([]module.Ref{module.Static(a), module.Static(b)}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, res.Modules)
	assert.Equal(t, map[string]interface{}{"foo": "b", "bar": "bar"}, run(t, res, `{ foo bar }`))
}

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestConnectionModule(t *testing.T) {
	items := []item{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}}

	mod := &module.Module{
		Name: "items",
		Schema: `
# @types
type Item { id: Int name: String }
@connection(Item)

# @queries
items(@paging.params): ItemConnection
`,
		Resolvers: resolver.Map{
			"Query": map[string]any{
				"items": func(p graphql.ResolveParams) (interface{}, error) {
					return connection.FromArgs(connection.Slice(items), p.Args), nil
				},
			},
		},
	}

	res, err := MakeFromModules([]module.Ref{module.Static(mod)}, Options{})
	require.NoError(t, err)

	data := run(t, res, `{ items(first: 2, after: "1") { totalCount nodes { name } edges { cursor } pageInfo { hasNextPage hasPreviousPage } } }`)
	conn := data["items"].(map[string]interface{})

	assert.Equal(t, 4, conn["totalCount"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "b"},
		map[string]interface{}{"name": "c"},
	}, conn["nodes"])
	assert.Equal(t, map[string]interface{}{"hasNextPage": true, "hasPreviousPage": true}, conn["pageInfo"])
	assert.Len(t, conn["edges"], 2)

	def := res.Schema.Document.Types["ItemConnection"]
	require.NotNil(t, def)
	assert.Equal(t, ast.Object, def.Kind)
	assert.Contains(t, res.TypeDefs, "first: Int\nafter: StringOrInt")
}

func TestSubscriptionConventions(t *testing.T) {
	ps := pubsub.New()
	mod := &module.Module{
		Name: "events",
		Schema: `
# @queries
ok: Boolean
# @subscriptions
output(key: String!): JSON
`,
		Resolvers: resolver.Map{
			"Subscription": map[string]any{
				"output": func(p graphql.ResolveParams) (interface{}, error) { return p.Source, nil },
			},
			module.SubscriptionFilterKey: map[string]any{
				"output": subscription.FilterFunc(func(payload interface{}, args map[string]interface{}, req subscription.Request) bool {
					msg, ok := payload.(map[string]interface{})
					return ok && msg["key"] == args["key"]
				}),
			},
		},
	}

	res, err := MakeFromModules([]module.Ref{module.Static(mod)}, Options{PubSub: ps})
	require.NoError(t, err)
	assert.Same(t, ps, res.PubSub)
	assert.True(t, res.Subscriptions.HasSetup("output"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, results, err := res.Subscriptions.Subscribe(ctx, subscription.Request{Query: `subscription { output(key: "k") }`})
	require.NoError(t, err)

	ps.Out("other", 1)
	ps.Out("k", 2)

	select {
	case r := <-results:
		require.Empty(t, r.Errors)
		assert.Equal(t, map[string]interface{}{
			"output": map[string]interface{}{"key": "k", "message": 2},
		}, r.Data)
	case <-time.After(time.Second):
		t.Fatal("no subscription result")
	}
}

func TestSubscriptionMapWinsOverFilter(t *testing.T) {
	var used string
	mod := &module.Module{
		Name:          "events",
		Queries:       "ok: Boolean",
		Subscriptions: "tick: Int",
		Resolvers: resolver.Map{
			module.SubscriptionFilterKey: map[string]any{
				"tick": subscription.FilterFunc(func(interface{}, map[string]interface{}, subscription.Request) bool {
					used = "filter"
					return true
				}),
			},
			module.SubscriptionMapKey: map[string]any{
				"tick": subscription.SetupFunc(func(req subscription.Request, args map[string]interface{}, name string) map[string]subscription.TriggerConfig {
					used = "map"
					return map[string]subscription.TriggerConfig{name: {}}
				}),
			},
		},
	}

	res, err := MakeFromModules([]module.Ref{module.Static(mod)}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, err = res.Subscriptions.Subscribe(ctx, subscription.Request{Query: `subscription { tick }`})
	require.NoError(t, err)
	assert.Equal(t, "map", used)

	_, hasFilter := res.Schema.GraphQL.TypeMap()[module.SubscriptionFilterKey]
	assert.False(t, hasFilter)
}

func TestPathModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ping.graphql"), []byte("# @queries\nping: String"), 0o644))

	reg := module.NewRegistry()
	reg.Register("pong", func(env module.Env) (*module.Module, error) {
		return &module.Module{
			Queries:   "pong: String",
			Resolvers: resolver.Map{"Query": map[string]any{"pong": constant("pong"), "ping": constant("ping")}},
		}, nil
	})

	res, err := MakeFromModules(
		[]module.Ref{module.Path("ping.graphql"), module.Path("pong")},
		Options{BaseFolder: dir, Loader: module.NewLoader(reg, module.Env{})},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"ping", "pong"}, res.Modules)
	assert.Equal(t, map[string]interface{}{"ping": "ping", "pong": "pong"}, run(t, res, `{ ping pong }`))
}

func TestErrorsPropagate(t *testing.T) {
	_, err := MakeFromModules([]module.Ref{module.Path("missing")}, Options{
		BaseFolder: t.TempDir(),
		Loader:     module.NewLoader(module.NewRegistry(), module.Env{}),
	})
	assert.ErrorIs(t, err, module.ErrNotFound)

	broken := &module.Module{Name: "broken", Queries: "foo: Missing"}
	_, err = MakeFromModules([]module.Ref{module.Static(broken)}, Options{})
	assert.ErrorContains(t, err, "Missing")

	noQuery := &module.Module{Name: "types", Types: "type Lonely { id: ID }"}
	_, err = MakeFromModules([]module.Ref{module.Static(noQuery)}, Options{})
	assert.Error(t, err)
}
