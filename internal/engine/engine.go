// Package engine holds the process-wide aggregated schema.
//
// The engine builds the schema from the configured modules, swaps in a new
// build atomically on reload and keeps the previous build when a reload
// fails, so in-flight requests always finish on the schema they started
// with.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/pkg/config"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/schema"
)

// statsInterval is how often Run refreshes store statistics.
const statsInterval = 15 * time.Second

// Metrics for engine monitoring.
var (
	reloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_engine_reloads_total",
			Help: "Total number of schema reloads by outcome",
		},
		[]string{"outcome"},
	)

	schemaGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gqutils_engine_schema_generation",
			Help: "Generation number of the schema currently served",
		},
	)
)

// Options holds the services shared by every build.
type Options struct {
	// Store backs modules that need a database. Optional.
	Store *store.Store

	// PubSub is shared across builds so publishers survive reloads.
	// Created when nil.
	PubSub *pubsub.PubSub

	// Registry holds compiled-in modules. Defaults to the global registry.
	Registry *module.Registry
}

// Engine builds and serves the aggregated schema.
type Engine struct {
	store    *store.Store
	pubsub   *pubsub.PubSub
	registry *module.Registry

	// mu serializes builds.
	mu         sync.Mutex
	cfg        *config.Config
	files      []string
	generation uint64

	current atomic.Pointer[schema.Result]
}

// New creates an engine and performs the initial build.
//
// Parameters:
//   - cfg (*config.Config): configuration
//   - opts (Options): shared services
//
// Returns:
//   - *Engine: initialized engine
//   - error: nil on success, build error on failure
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.PubSub == nil {
		opts.PubSub = pubsub.New()
	}
	if opts.Registry == nil {
		opts.Registry = module.Global()
	}

	e := &Engine{
		store:    opts.Store,
		pubsub:   opts.PubSub,
		registry: opts.Registry,
	}

	if err := e.Reload(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Current returns the schema currently served.
//
// Returns:
//   - *schema.Result: current build
func (e *Engine) Current() *schema.Result {
	return e.current.Load()
}

// PubSub returns the pub/sub shared by every build.
func (e *Engine) PubSub() *pubsub.PubSub {
	return e.pubsub
}

// Config returns the configuration of the current build.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Files returns the module files read by the current build.
//
// Returns:
//   - []string: absolute file paths
func (e *Engine) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.files...)
}

// Reload rebuilds the schema from newCfg and swaps it in. The current build
// is kept when the rebuild fails.
//
// Parameters:
//   - newCfg (*config.Config): configuration to build from
//
// Returns:
//   - error: nil on success, build error on failure
func (e *Engine) Reload(newCfg *config.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	env := module.Env{
		PubSub: e.pubsub,
		Logger: log.Logger,
	}
	if e.store != nil {
		env.DB = e.store.DB()
	}
	loader := module.NewLoader(e.registry, env)

	refs := make([]module.Ref, len(newCfg.Modules))
	for i, m := range newCfg.Modules {
		refs[i] = module.Path(m)
	}

	res, err := schema.MakeFromModules(refs, schema.Options{
		BaseFolder: newCfg.BaseFolder,
		Loader:     loader,
		PubSub:     e.pubsub,
		Executable: newCfg.Schema.Executable(),
	})
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("building schema: %w", err)
	}

	e.current.Store(res)
	e.cfg = newCfg
	e.files = loader.Files()
	e.generation++

	reloadsTotal.WithLabelValues("success").Inc()
	schemaGeneration.Set(float64(e.generation))

	log.Info().
		Strs("modules", res.Modules).
		Uint64("generation", e.generation).
		Dur("duration", time.Since(start)).
		Msg("schema built")

	return nil
}

// Run keeps store statistics current until ctx is cancelled.
//
// Parameters:
//   - ctx (context.Context): context for cancellation
//
// Returns:
//   - error: nil on graceful shutdown
func (e *Engine) Run(ctx context.Context) error {
	if e.store == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		e.store.UpdateStats()

		select {
		case <-ctx.Done():
			log.Info().Msg("engine shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
