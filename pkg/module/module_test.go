package module

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func hello(p graphql.ResolveParams) (interface{}, error) { return "hello", nil }

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	ps := pubsub.New()

	var gotEnv Env
	reg.Register("greeter", func(env Env) (*Module, error) {
		gotEnv = env
		return &Module{
			Queries:   "hello: String",
			Resolvers: resolver.Map{"Query": resolver.Map{"hello": graphql.FieldResolveFn(hello)}},
		}, nil
	})
	reg.Register("broken", func(env Env) (*Module, error) {
		return nil, errors.New("no database")
	})
	reg.Register("empty", func(env Env) (*Module, error) {
		return &Module{}, nil
	})

	assert.Equal(t, []string{"broken", "empty", "greeter"}, reg.Names())

	mod, err := reg.Build("greeter", Env{PubSub: ps})
	require.NoError(t, err)
	assert.Equal(t, "greeter", mod.Name)
	assert.Same(t, ps, gotEnv.PubSub)

	_, err = reg.Build("broken", Env{})
	assert.ErrorContains(t, err, "no database")

	_, err = reg.Build("empty", Env{})
	assert.ErrorContains(t, err, "contributes no schema")

	_, err = reg.Build("missing", Env{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateSubscriptionConventions(t *testing.T) {
	valid := &Module{
		Name: "subs",
		Resolvers: resolver.Map{
			SubscriptionFilterKey: map[string]any{
				"a": subscription.FilterFunc(func(payload interface{}, args map[string]interface{}, req subscription.Request) bool { return true }),
				"b": func(payload interface{}, args map[string]interface{}, req subscription.Request) bool { return false },
			},
			SubscriptionMapKey: map[string]any{
				"c": subscription.FromFilter(func(interface{}, map[string]interface{}, subscription.Request) bool { return true }),
			},
		},
	}
	assert.NoError(t, valid.Validate())

	badFilter := &Module{Name: "bad", Resolvers: resolver.Map{
		SubscriptionFilterKey: map[string]any{"a": "not a function"},
	}}
	assert.ErrorContains(t, badFilter.Validate(), "SubscriptionFilter.a")

	badMap := &Module{Name: "bad", Resolvers: resolver.Map{SubscriptionMapKey: 3}}
	assert.ErrorContains(t, badMap.Validate(), "SubscriptionMap must be a map")
}

func TestLoaderPrefersRegisteredNames(t *testing.T) {
	reg := NewRegistry()
	reg.Register("blog", func(env Env) (*Module, error) {
		return &Module{Types: "type Post { id: ID }"}, nil
	})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blog", ManifestFile), "schema: schema.graphql\n")
	writeFile(t, filepath.Join(dir, "blog", "schema.graphql"), "# @queries\nposts: Int")

	mod, err := NewLoader(reg, Env{}).Load("blog", dir)
	require.NoError(t, err)
	assert.Equal(t, "type Post { id: ID }", mod.Types)
}

func TestLoaderManifest(t *testing.T) {
	reg := NewRegistry()
	reg.Register("blog-resolvers", func(env Env) (*Module, error) {
		return &Module{Resolvers: resolver.Map{"Query": resolver.Map{"hello": graphql.FieldResolveFn(hello)}}}, nil
	})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "modules", "blog", ManifestFile), `
name: blog
schema: schema.graphql
types: extra.graphql
resolvers: blog-resolvers
`)
	writeFile(t, filepath.Join(dir, "modules", "blog", "schema.graphql"), "# @queries\nhello: String")
	writeFile(t, filepath.Join(dir, "modules", "blog", "extra.graphql"), "@connection(Post)")

	loader := NewLoader(reg, Env{})
	mod, err := loader.Load("modules/blog", dir)
	require.NoError(t, err)

	assert.Equal(t, "blog", mod.Name)
	assert.Equal(t, "# @queries\nhello: String", mod.Schema)
	assert.Equal(t, "@connection(Post)", mod.Types)
	assert.Contains(t, mod.Resolvers, "Query")

	assert.Len(t, loader.Files(), 3)
}

func TestLoaderSchemaFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ping.graphql"), "# @queries\nping: String")

	mod, err := NewLoader(NewRegistry(), Env{}).Load(filepath.Join(dir, "ping.graphql"), "")
	require.NoError(t, err)

	assert.Equal(t, "ping", mod.Name)
	assert.Equal(t, "# @queries\nping: String", mod.Schema)
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(), Env{})

	_, err := loader.Load("nowhere", dir)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bare"), 0o755))
	_, err = loader.Load("bare", dir)
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, filepath.Join(dir, "typo", ManifestFile), "shema: schema.graphql\n")
	_, err = loader.Load("typo", dir)
	assert.ErrorContains(t, err, "shema")

	writeFile(t, filepath.Join(dir, "nothing", ManifestFile), "name: nothing\n")
	_, err = loader.Load("nothing", dir)
	assert.ErrorContains(t, err, "names no schema files")

	writeFile(t, filepath.Join(dir, "dangling", ManifestFile), "schema: missing.graphql\n")
	_, err = loader.Load("dangling", dir)
	assert.ErrorContains(t, err, "missing.graphql")

	writeFile(t, filepath.Join(dir, "unknown", ManifestFile), "resolvers: ghost\n")
	_, err = loader.Load("unknown", dir)
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, filepath.Join(dir, "notes.txt"), "hi")
	_, err = loader.Load("notes.txt", dir)
	assert.ErrorContains(t, err, "unsupported module file type")
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "a/b", Path("a/b").String())
	assert.Equal(t, "x", Static(&Module{Name: "x"}).String())
}
