// Package resolver defines the resolver map modules contribute and the
// strategy used to merge maps from many modules.
//
// A Map is keyed by type name. Values are nested maps keyed by field name
// for object types, enum value maps for enums, *graphql.Scalar
// implementations for scalars, and plain values for the special
// SubscriptionFilter and SubscriptionMap entries.
package resolver

import (
	"github.com/graphql-go/graphql"
)

// TypeResolverKey is the entry of a type map holding the TypeResolveFunc of
// an interface or union.
const TypeResolverKey = "__resolveType"

// Map is a resolver map.
type Map map[string]any

// Field carries a resolve and a subscribe function for one field. A plain
// graphql.FieldResolveFn may be used instead when no subscribe function is
// needed.
type Field struct {
	Resolve   graphql.FieldResolveFn
	Subscribe graphql.FieldResolveFn
}

// TypeResolveFunc names the concrete object type of an interface or union
// value. Returning "" falls back to the default type resolution.
type TypeResolveFunc func(p graphql.ResolveTypeParams) string

// Undefined may be returned by a resolver to report that it produced no
// value. It is rejected at execution time unless undefined results are
// allowed.
var Undefined = undefined{}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Strategy merges src into dst in place.
type Strategy func(dst, src Map)

// LastWins deep-merges src into dst. Nested maps are merged recursively and
// any other value in src overwrites the one in dst. A nil value in src does
// not overwrite an existing entry. Maps taken from src are copied, so dst
// never shares nested maps with src.
//
// Parameters:
//   - dst (Map): map merged into
//   - src (Map): map merged from
func LastWins(dst, src Map) {
	for key, value := range src {
		if value == nil {
			if _, exists := dst[key]; exists {
				continue
			}
			dst[key] = nil
			continue
		}

		srcMap, srcIsMap := AsMap(value)
		if !srcIsMap {
			dst[key] = value
			continue
		}

		dstMap, dstIsMap := AsMap(dst[key])
		if !dstIsMap {
			dstMap = Map{}
		} else {
			dstMap = dstMap.Clone()
		}
		LastWins(dstMap, srcMap)
		dst[key] = dstMap
	}
}

// Merge combines maps left to right with the given strategy into a new map.
// None of the inputs are modified.
//
// Parameters:
//   - strategy (Strategy): merge strategy, LastWins when nil
//   - maps (...Map): maps in increasing priority
//
// Returns:
//   - Map: merged map
func Merge(strategy Strategy, maps ...Map) Map {
	if strategy == nil {
		strategy = LastWins
	}
	out := Map{}
	for _, m := range maps {
		strategy(out, m)
	}
	return out
}

// Clone returns a deep copy of the nested maps of m. Leaf values are shared.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for key, value := range m {
		if nested, ok := AsMap(value); ok {
			out[key] = nested.Clone()
			continue
		}
		out[key] = value
	}
	return out
}

// Type returns the nested map stored under a type name.
func (m Map) Type(name string) (Map, bool) {
	return AsMap(m[name])
}

// AsMap reports whether v is a Map or a map[string]any and returns it as a
// Map.
func AsMap(v any) (Map, bool) {
	switch x := v.(type) {
	case Map:
		return x, true
	case map[string]any:
		return Map(x), true
	default:
		return nil, false
	}
}
