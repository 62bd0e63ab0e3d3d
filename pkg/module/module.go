// Package module defines schema modules and how they are resolved.
//
// A module contributes annotated schema text and resolvers to the
// aggregated schema. Modules are either compiled in and registered by name
// from an init function, or described by a module.yaml manifest (or a bare
// .graphql file) on disk.
package module

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// Resolver map entries with special meaning.
const (
	// SubscriptionFilterKey holds subscription.FilterFunc values by
	// subscription field name.
	SubscriptionFilterKey = "SubscriptionFilter"
	// SubscriptionMapKey holds subscription.SetupFunc values by
	// subscription field name.
	SubscriptionMapKey = "SubscriptionMap"
)

// ErrNotFound is returned when a module path resolves to nothing.
var ErrNotFound = errors.New("module not found")

// Module is one contributor to the aggregated schema. Every field is
// optional.
type Module struct {
	// Name identifies the module in logs and listings.
	Name string

	// Schema is annotated schema text split into sections by markers.
	Schema string

	// Types, Queries, Mutations and Subscriptions are pre-split sections.
	// Connection macros in Types are expanded.
	Types         string
	Queries       string
	Mutations     string
	Subscriptions string

	// Resolvers is merged into the aggregated resolver map.
	Resolvers resolver.Map
}

// Validate checks that the module contributes something and that its
// subscription conventions hold functions of the expected types.
//
// Returns:
//   - error: nil if valid, description of the first problem otherwise
func (m *Module) Validate() error {
	if m.Schema == "" && m.Types == "" && m.Queries == "" && m.Mutations == "" &&
		m.Subscriptions == "" && len(m.Resolvers) == 0 {
		return fmt.Errorf("module %q contributes no schema and no resolvers", m.Name)
	}

	if v, ok := m.Resolvers[SubscriptionFilterKey]; ok {
		filters, isMap := resolver.AsMap(v)
		if !isMap {
			return fmt.Errorf("module %q: %s must be a map, got %T", m.Name, SubscriptionFilterKey, v)
		}
		for name, f := range filters {
			if _, ok := AsFilter(f); !ok {
				return fmt.Errorf("module %q: %s.%s must be a filter function, got %T", m.Name, SubscriptionFilterKey, name, f)
			}
		}
	}

	if v, ok := m.Resolvers[SubscriptionMapKey]; ok {
		setups, isMap := resolver.AsMap(v)
		if !isMap {
			return fmt.Errorf("module %q: %s must be a map, got %T", m.Name, SubscriptionMapKey, v)
		}
		for name, f := range setups {
			if _, ok := AsSetup(f); !ok {
				return fmt.Errorf("module %q: %s.%s must be a setup function, got %T", m.Name, SubscriptionMapKey, name, f)
			}
		}
	}

	return nil
}

// AsFilter converts a SubscriptionFilter entry into a FilterFunc.
func AsFilter(v any) (subscription.FilterFunc, bool) {
	switch f := v.(type) {
	case subscription.FilterFunc:
		return f, true
	case func(payload interface{}, args map[string]interface{}, req subscription.Request) bool:
		return f, true
	default:
		return nil, false
	}
}

// AsSetup converts a SubscriptionMap entry into a SetupFunc.
func AsSetup(v any) (subscription.SetupFunc, bool) {
	switch f := v.(type) {
	case subscription.SetupFunc:
		return f, true
	case func(req subscription.Request, args map[string]interface{}, name string) map[string]subscription.TriggerConfig:
		return f, true
	default:
		return nil, false
	}
}

// Ref refers to a module either directly or by path.
type Ref struct {
	// Path is a registered module name or a filesystem path.
	Path string
	// Module is an already loaded module. It takes precedence over Path.
	Module *Module
}

// Path returns a reference resolved by a Loader.
func Path(p string) Ref {
	return Ref{Path: p}
}

// Static returns a reference to an already loaded module.
func Static(m *Module) Ref {
	return Ref{Module: m}
}

// String returns the module name or path.
func (r Ref) String() string {
	if r.Module != nil {
		return r.Module.Name
	}
	return r.Path
}

// Env carries the shared services a module factory may use.
type Env struct {
	// DB is the GORM database instance. Nil when no database is configured.
	DB *gorm.DB

	// PubSub publishes subscription payloads.
	PubSub *pubsub.PubSub

	// Logger is the logger modules should log through.
	Logger zerolog.Logger
}
