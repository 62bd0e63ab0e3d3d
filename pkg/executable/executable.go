// Package executable turns a type definition document and a resolver map
// into an executable graphql-go schema.
//
// The document is parsed and validated with gqlparser. Redeclarations of
// the built-in scalars (for example "scalar String") are accepted: when the
// resolver map carries an implementation for such a scalar it is applied to
// inline argument literals of that type, since graphql-go does not allow the
// built-in scalars themselves to be replaced.
package executable

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
)

// Logger receives errors returned by resolvers.
type Logger interface {
	Log(err error)
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(err error)

// Log calls f(err).
func (f LoggerFunc) Log(err error) { f(err) }

// ResolverValidation controls the consistency checks run between the
// resolver map and the type definitions.
type ResolverValidation struct {
	// RequireResolversForArgs requires a resolver for every field with
	// arguments.
	RequireResolversForArgs bool
	// RequireResolversForNonScalar requires a resolver for every field
	// returning an object, interface or union.
	RequireResolversForNonScalar bool
	// RequireResolversForAllFields requires a resolver for every field.
	RequireResolversForAllFields bool
	// AllowResolversNotInSchema accepts resolver map entries for types or
	// fields the document does not define.
	AllowResolversNotInSchema bool
}

// Options configures Build.
type Options struct {
	// AllowUndefinedInResolve lets resolvers return resolver.Undefined,
	// which then resolves to null instead of failing the field.
	AllowUndefinedInResolve bool
	ResolverValidation      ResolverValidation
	// Logger receives resolver errors. Defaults to the global zerolog
	// logger.
	Logger Logger
}

// Schema is a validated, executable schema.
type Schema struct {
	// GraphQL is the executable schema.
	GraphQL graphql.Schema
	// Document is the validated type system.
	Document *ast.Schema
	// Overrides holds the implementations of redeclared built-in scalars.
	Overrides map[string]*graphql.Scalar
}

var defaultLogger = LoggerFunc(func(err error) {
	log.Error().Err(err).Msg("Resolver error")
})

// builtinScalars are the scalars graphql-go provides itself.
var builtinScalars = map[string]*graphql.Scalar{
	"Int":     graphql.Int,
	"Float":   graphql.Float,
	"String":  graphql.String,
	"Boolean": graphql.Boolean,
	"ID":      graphql.ID,
}

// Build parses and validates typeDefs, checks resolvers against them and
// creates the executable schema.
//
// Parameters:
//   - typeDefs (string): SDL document
//   - resolvers (resolver.Map): resolver map keyed by type name
//   - opts (Options): build options
//
// Returns:
//   - *Schema: executable schema
//   - error: nil on success, syntax, validation or resolver error on failure
func Build(typeDefs string, resolvers resolver.Map, opts Options) (*Schema, error) {
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}
	if resolvers == nil {
		resolvers = resolver.Map{}
	}

	doc, redeclared, err := parse(typeDefs)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]*graphql.Scalar)
	for _, name := range redeclared {
		if impl, ok := resolvers[name].(*graphql.Scalar); ok {
			overrides[name] = impl
		}
	}

	if err := validateResolvers(doc, resolvers, opts.ResolverValidation); err != nil {
		return nil, err
	}

	b := newBuilder(doc, resolvers, overrides, opts)
	gs, err := b.build()
	if err != nil {
		return nil, err
	}

	return &Schema{
		GraphQL:   gs,
		Document:  doc,
		Overrides: overrides,
	}, nil
}

// parse validates the document against the prelude. Definitions that
// redeclare a built-in scalar are removed first and their names returned.
func parse(typeDefs string) (*ast.Schema, []string, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: "typeDefs", Input: typeDefs})
	if err != nil {
		return nil, nil, err
	}

	var redeclared []string
	kept := doc.Definitions[:0]
	for _, def := range doc.Definitions {
		if _, builtin := builtinScalars[def.Name]; builtin && def.Kind == ast.Scalar {
			redeclared = append(redeclared, def.Name)
			continue
		}
		kept = append(kept, def)
	}
	doc.Definitions = kept

	prelude, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing prelude: %w", err)
	}
	prelude.Merge(doc)

	schema, err := validator.ValidateSchemaDocument(prelude)
	if err != nil {
		return nil, nil, err
	}
	return schema, redeclared, nil
}
