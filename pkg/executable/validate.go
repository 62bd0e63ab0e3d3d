package executable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
)

// validateResolvers checks the resolver map against the type system.
func validateResolvers(doc *ast.Schema, resolvers resolver.Map, rv ResolverValidation) error {
	for _, typeName := range sortedKeys(resolvers) {
		value := resolvers[typeName]

		def := doc.Types[typeName]
		if def == nil {
			if rv.AllowResolversNotInSchema {
				continue
			}
			return fmt.Errorf("%q defined in resolvers, but not in schema", typeName)
		}

		switch def.Kind {
		case ast.Scalar:
			if _, ok := value.(*graphql.Scalar); !ok {
				return fmt.Errorf("resolver for scalar %q must be a *graphql.Scalar, got %T", typeName, value)
			}

		case ast.Enum:
			values, ok := resolver.AsMap(value)
			if !ok {
				return fmt.Errorf("resolver for enum %q must be a map of values, got %T", typeName, value)
			}
			for name := range values {
				if def.EnumValues.ForName(name) == nil && !rv.AllowResolversNotInSchema {
					return fmt.Errorf("%s.%s defined in resolvers, but not in schema", typeName, name)
				}
			}

		case ast.Object, ast.Interface, ast.Union:
			fields, ok := resolver.AsMap(value)
			if !ok {
				return fmt.Errorf("resolver for type %q must be a map of fields, got %T", typeName, value)
			}
			if err := validateFields(def, fields, rv); err != nil {
				return err
			}

		default:
			if !rv.AllowResolversNotInSchema {
				return fmt.Errorf("%q is an input type and cannot have resolvers", typeName)
			}
		}
	}

	return requireResolvers(doc, resolvers, rv)
}

func validateFields(def *ast.Definition, fields resolver.Map, rv ResolverValidation) error {
	for _, name := range sortedKeys(fields) {
		value := fields[name]

		if strings.HasPrefix(name, "__") {
			if name == resolver.TypeResolverKey {
				if _, ok := typeResolver(value); !ok {
					return fmt.Errorf("%s.%s must be a type resolve function, got %T", def.Name, name, value)
				}
			}
			continue
		}

		if def.Fields.ForName(name) == nil {
			if rv.AllowResolversNotInSchema {
				continue
			}
			return fmt.Errorf("%s.%s defined in resolvers, but not in schema", def.Name, name)
		}

		if _, _, ok := fieldFuncs(value); !ok {
			return fmt.Errorf("resolver %s.%s must be a function, got %T", def.Name, name, value)
		}
	}
	return nil
}

// requireResolvers enforces the Require* options on object types.
func requireResolvers(doc *ast.Schema, resolvers resolver.Map, rv ResolverValidation) error {
	if !rv.RequireResolversForArgs && !rv.RequireResolversForNonScalar && !rv.RequireResolversForAllFields {
		return nil
	}

	for _, typeName := range sortedKeys(doc.Types) {
		def := doc.Types[typeName]
		if def.Kind != ast.Object || isBuiltin(def) {
			continue
		}
		fields, _ := resolvers.Type(typeName)

		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			if _, ok := fields[f.Name]; ok {
				continue
			}

			target := doc.Types[f.Type.Name()]
			nonScalar := target != nil && (target.Kind == ast.Object || target.Kind == ast.Interface || target.Kind == ast.Union)

			if rv.RequireResolversForAllFields ||
				(rv.RequireResolversForArgs && len(f.Arguments) > 0) ||
				(rv.RequireResolversForNonScalar && nonScalar) {
				return fmt.Errorf("resolve function missing for %q", typeName+"."+f.Name)
			}
		}
	}
	return nil
}

func isBuiltin(def *ast.Definition) bool {
	if def.BuiltIn || strings.HasPrefix(def.Name, "__") {
		return true
	}
	return def.Position != nil && def.Position.Src != nil && def.Position.Src.BuiltIn
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
