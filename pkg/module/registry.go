package module

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Metrics for module construction.
var (
	modulesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_modules_loaded_total",
			Help: "Total number of modules loaded",
		},
		[]string{"module", "source"},
	)

	factoryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gqutils_module_factory_duration_seconds",
			Help:    "Module factory execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)

	factoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_module_factory_errors_total",
			Help: "Total number of module factory errors",
		},
		[]string{"module"},
	)
)

// Factory builds a module from the shared environment.
type Factory func(env Env) (*Module, error)

// Registry manages compiled-in module factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory // name -> factory
}

// globalRegistry is the default module registry.
var globalRegistry = NewRegistry()

// NewRegistry creates a new module registry.
//
// Returns:
//   - *Registry: initialized registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a module factory to the global registry.
//
// Parameters:
//   - name (string): module name used in module lists (e.g., "system")
//   - factory (Factory): the module factory
func Register(name string, factory Factory) {
	globalRegistry.Register(name, factory)
}

// Register adds a module factory.
//
// Parameters:
//   - name (string): module name used in module lists (e.g., "system")
//   - factory (Factory): the module factory
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		log.Warn().Str("module", name).Msg("overwriting existing module")
	}

	r.factories[name] = factory
	log.Debug().Str("module", name).Msg("registered module")
}

// Get retrieves a module factory from the global registry.
//
// Parameters:
//   - name (string): module name
//
// Returns:
//   - Factory: the module factory
//   - bool: true if the module is registered
func Get(name string) (Factory, bool) {
	return globalRegistry.Get(name)
}

// Get retrieves a module factory.
//
// Parameters:
//   - name (string): module name
//
// Returns:
//   - Factory: the module factory
//   - bool: true if the module is registered
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	return factory, ok
}

// Build runs the factory of a registered module and validates the result.
//
// Parameters:
//   - name (string): module name
//   - env (Env): shared services
//
// Returns:
//   - *Module: the built module, named after its registration if unnamed
//   - error: nil on success, ErrNotFound or factory error on failure
func (r *Registry) Build(name string, env Env) (*Module, error) {
	factory, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("module %s: %w", name, ErrNotFound)
	}

	start := time.Now()

	mod, err := factory(env)

	duration := time.Since(start)
	factoryDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		factoryErrors.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	if mod == nil {
		factoryErrors.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("module %s: factory returned no module", name)
	}
	if mod.Name == "" {
		mod.Name = name
	}
	if err := mod.Validate(); err != nil {
		factoryErrors.WithLabelValues(name).Inc()
		return nil, err
	}

	modulesLoaded.WithLabelValues(mod.Name, "registry").Inc()

	log.Debug().
		Str("module", name).
		Dur("duration", duration).
		Msg("built module")

	return mod, nil
}

// Has checks if a module is registered.
//
// Parameters:
//   - name (string): module name
//
// Returns:
//   - bool: true if the module is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// Names returns all registered module names in sorted order.
//
// Returns:
//   - []string: list of registered module names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Global returns the global module registry.
//
// Returns:
//   - *Registry: the global registry
func Global() *Registry {
	return globalRegistry
}
