// Package schema aggregates modules into one executable GraphQL schema.
package schema

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/pradyumna-smpx/gqutils/pkg/executable"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/scalars"
	"github.com/pradyumna-smpx/gqutils/pkg/sdl"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// Metrics for schema aggregation.
var (
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_schema_builds_total",
			Help: "Total number of schema builds by outcome",
		},
		[]string{"outcome"},
	)

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gqutils_schema_build_duration_seconds",
		Help:    "Schema build duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	modulesAggregated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gqutils_schema_modules",
		Help: "Number of modules in the current schema",
	})
)

// Options configures MakeFromModules.
type Options struct {
	// BaseFolder resolves relative module paths. Defaults to the working
	// directory.
	BaseFolder string

	// Loader resolves path references. A loader over the global registry
	// and Env is created when nil.
	Loader *module.Loader

	// Env is passed to module factories when Loader is nil.
	Env module.Env

	// PubSub is reused when set, otherwise a new one is created.
	PubSub *pubsub.PubSub

	// Executable configures the schema builder.
	Executable executable.Options
}

// Result is an aggregated schema with its subscription machinery.
type Result struct {
	// TypeDefs is the synthesized SDL document.
	TypeDefs string
	// Schema is the executable schema.
	Schema *executable.Schema
	// Subscriptions runs subscriptions against Schema.
	Subscriptions *subscription.Manager
	// PubSub delivers subscription payloads.
	PubSub *pubsub.PubSub
	// Modules lists the module names in aggregation order.
	Modules []string
}

// MakeFromModules loads every module, merges their schema sections and
// resolvers and builds the executable schema.
//
// Resolvers are merged in module order over the built-in scalars, later
// modules winning on conflicts. The SubscriptionFilter and SubscriptionMap
// entries are removed from the merged map and become subscription setup
// functions; SubscriptionMap wins when both name the same field.
//
// Parameters:
//   - refs ([]module.Ref): modules in aggregation order
//   - opts (Options): aggregation options
//
// Returns:
//   - *Result: aggregated schema
//   - error: nil on success, the first load or build error otherwise
func MakeFromModules(refs []module.Ref, opts Options) (*Result, error) {
	start := time.Now()

	res, err := makeFromModules(refs, opts)

	buildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	buildsTotal.WithLabelValues("success").Inc()
	modulesAggregated.Set(float64(len(res.Modules)))

	log.Debug().
		Strs("modules", res.Modules).
		Dur("duration", time.Since(start)).
		Msg("built schema")

	return res, nil
}

func makeFromModules(refs []module.Ref, opts Options) (*Result, error) {
	ps := opts.PubSub
	if ps == nil {
		ps = pubsub.New()
	}

	loader := opts.Loader
	if loader == nil {
		env := opts.Env
		if env.PubSub == nil {
			env.PubSub = ps
		}
		loader = module.NewLoader(nil, env)
	}

	var defs sdl.Definitions
	resolvers := scalars.Builtins()
	names := make([]string, 0, len(refs))

	for _, ref := range refs {
		mod := ref.Module
		if mod == nil {
			var err error
			mod, err = loader.Load(ref.Path, opts.BaseFolder)
			if err != nil {
				return nil, err
			}
		}
		names = append(names, mod.Name)

		if mod.Schema != "" {
			defs.Add(sdl.ParseSchema(mod.Schema))
		}
		defs.Add(sdl.Fragment{
			Types:         sdl.ExpandConnections(mod.Types),
			Queries:       mod.Queries,
			Mutations:     mod.Mutations,
			Subscriptions: mod.Subscriptions,
		})

		if mod.Resolvers != nil {
			resolver.LastWins(resolvers, mod.Resolvers)
		}
	}

	setup, err := setupFunctions(resolvers)
	if err != nil {
		return nil, err
	}

	typeDefs := sdl.TypeDefs(defs)

	s, err := executable.Build(typeDefs, resolvers, opts.Executable)
	if err != nil {
		return nil, err
	}

	return &Result{
		TypeDefs:      typeDefs,
		Schema:        s,
		Subscriptions: subscription.NewManager(s.GraphQL, ps, setup),
		PubSub:        ps,
		Modules:       names,
	}, nil
}

// setupFunctions removes the subscription conventions from the merged
// resolver map and converts them into setup functions.
func setupFunctions(resolvers resolver.Map) (map[string]subscription.SetupFunc, error) {
	setup := make(map[string]subscription.SetupFunc)

	filters, _ := resolver.AsMap(resolvers[module.SubscriptionFilterKey])
	mapped, _ := resolver.AsMap(resolvers[module.SubscriptionMapKey])
	delete(resolvers, module.SubscriptionFilterKey)
	delete(resolvers, module.SubscriptionMapKey)

	for _, name := range sortedKeys(filters) {
		filter, ok := module.AsFilter(filters[name])
		if !ok {
			return nil, fmt.Errorf("%s.%s: expected a filter function, got %T", module.SubscriptionFilterKey, name, filters[name])
		}
		setup[name] = subscription.FromFilter(filter)
	}
	for _, name := range sortedKeys(mapped) {
		fn, ok := module.AsSetup(mapped[name])
		if !ok {
			return nil, fmt.Errorf("%s.%s: expected a setup function, got %T", module.SubscriptionMapKey, name, mapped[name])
		}
		setup[name] = fn
	}

	return setup, nil
}

func sortedKeys(m resolver.Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
