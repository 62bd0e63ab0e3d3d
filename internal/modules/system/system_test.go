package system

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradyumna-smpx/gqutils/internal/version"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/schema"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

func build(t *testing.T, ps *pubsub.PubSub) *schema.Result {
	t.Helper()

	mod, err := New(module.Env{PubSub: ps})
	require.NoError(t, err)
	require.NoError(t, mod.Validate())

	res, err := schema.MakeFromModules([]module.Ref{module.Static(mod)}, schema.Options{PubSub: ps})
	require.NoError(t, err)
	return res
}

func do(t *testing.T, res *schema.Result, query string) map[string]interface{} {
	t.Helper()

	out := graphql.Do(graphql.Params{
		Schema:        res.Schema.GraphQL,
		RequestString: query,
		Context:       context.Background(),
	})
	require.Empty(t, out.Errors)
	return out.Data.(map[string]interface{})
}

func TestRegistered(t *testing.T) {
	assert.True(t, module.Global().Has(Name))
}

func TestVersionAndModules(t *testing.T) {
	res := build(t, pubsub.New())

	data := do(t, res, `{ version { version commit date } modules }`)
	assert.Equal(t, map[string]interface{}{
		"version": version.Version,
		"commit":  version.Commit,
		"date":    version.Date,
	}, data["version"])
	assert.Contains(t, data["modules"], Name)
}

func TestEmitReachesMatchingSubscribers(t *testing.T) {
	ps := pubsub.New()
	res := build(t, ps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, results, err := res.Subscriptions.Subscribe(ctx, subscription.Request{
		Query: `subscription { output(key: "build") { key message } }`,
	})
	require.NoError(t, err)

	data := do(t, res, `mutation { other: emit(key: "deploy", message: 1) build: emit(key: "build", message: {step: "test"}) }`)
	// Both reach the output channel; the key filter runs per subscriber.
	assert.Equal(t, 1, data["other"])
	assert.Equal(t, 1, data["build"])

	select {
	case r := <-results:
		require.Empty(t, r.Errors)
		assert.Equal(t, map[string]interface{}{
			"output": map[string]interface{}{
				"key":     "build",
				"message": map[string]interface{}{"step": "test"},
			},
		}, r.Data)
	case <-time.After(time.Second):
		t.Fatal("no output delivered")
	}
}

func TestEmitWithoutPubSub(t *testing.T) {
	mod, err := New(module.Env{})
	require.NoError(t, err)

	res, err := schema.MakeFromModules([]module.Ref{module.Static(mod)}, schema.Options{})
	require.NoError(t, err)

	data := do(t, res, `mutation { emit(key: "k") }`)
	assert.Equal(t, 0, data["emit"])
}
