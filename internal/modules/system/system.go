// Package system registers the built-in "system" module.
//
// The module exposes build information, the names of the compiled-in
// modules and a generic output channel: the emit mutation publishes a
// keyed message and the output subscription delivers the messages of one
// key.
package system

import (
	"github.com/graphql-go/graphql"

	"github.com/pradyumna-smpx/gqutils/internal/version"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// Name is the registered module name.
const Name = "system"

const typeDefs = `
# @types
type VersionInfo {
  version: String!
  commit: String!
  date: String!
}

type OutputMessage {
  key: String!
  message: JSON
}

# @queries
version: VersionInfo!
modules: [String!]!

# @mutations
emit(key: String!, message: JSON): Int!

# @subscriptions
output(key: String!): OutputMessage
`

func init() {
	module.Register(Name, New)
}

// New builds the system module.
//
// Parameters:
//   - env (module.Env): shared services, PubSub is required for emit
//
// Returns:
//   - *module.Module: the module
//   - error: always nil
func New(env module.Env) (*module.Module, error) {
	return &module.Module{
		Name:   Name,
		Schema: typeDefs,
		Resolvers: resolver.Map{
			"Query": resolver.Map{
				"version": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					return map[string]interface{}{
						"version": version.Version,
						"commit":  version.Commit,
						"date":    version.Date,
					}, nil
				}),
				"modules": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					return module.Global().Names(), nil
				}),
			},
			"Mutation": resolver.Map{
				"emit": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					key, _ := p.Args["key"].(string)
					return publisher(env).Out(key, p.Args["message"]), nil
				}),
			},
			"Subscription": resolver.Map{
				"output": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source, nil
				}),
			},
			module.SubscriptionMapKey: resolver.Map{
				"output": subscription.SetupFunc(outputSetup),
			},
		},
	}, nil
}

// outputSetup listens on the output channel and keeps the messages whose
// key matches the key argument.
func outputSetup(req subscription.Request, args map[string]interface{}, name string) map[string]subscription.TriggerConfig {
	key, _ := args["key"].(string)
	return map[string]subscription.TriggerConfig{
		pubsub.OutputChannel: {
			Filter: func(payload interface{}) bool {
				msg, ok := payload.(map[string]interface{})
				return ok && msg["key"] == key
			},
		},
	}
}

// fallback is used when the module is built without a pub/sub.
var fallback = pubsub.New()

func publisher(env module.Env) *pubsub.PubSub {
	if env.PubSub != nil {
		return env.PubSub
	}
	return fallback
}
