package executable

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"
	goast "github.com/graphql-go/graphql/language/ast"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
)

// fieldResolver is implemented by values that resolve their own fields,
// such as connection resolvers.
type fieldResolver interface {
	Resolve(p graphql.ResolveParams) (interface{}, error)
}

// typeNamer is implemented by values that know their GraphQL type name.
type typeNamer interface {
	GraphQLTypeName() string
}

// fieldFuncs extracts the resolve and subscribe functions of a resolver map
// entry. A nil entry is valid and yields no functions.
func fieldFuncs(v any) (resolve, subscribe graphql.FieldResolveFn, ok bool) {
	switch f := v.(type) {
	case nil:
		return nil, nil, true
	case graphql.FieldResolveFn:
		return f, nil, true
	case func(graphql.ResolveParams) (interface{}, error):
		return f, nil, true
	case resolver.Field:
		return f.Resolve, f.Subscribe, true
	case *resolver.Field:
		if f == nil {
			return nil, nil, true
		}
		return f.Resolve, f.Subscribe, true
	default:
		return nil, nil, false
	}
}

func typeResolver(v any) (resolver.TypeResolveFunc, bool) {
	switch f := v.(type) {
	case resolver.TypeResolveFunc:
		return f, true
	case func(graphql.ResolveTypeParams) string:
		return f, true
	default:
		return nil, false
	}
}

// defaultResolve reads the field from the source value. A key missing from
// a map source is reported as resolver.Undefined.
func defaultResolve(p graphql.ResolveParams) (interface{}, error) {
	switch src := p.Source.(type) {
	case fieldResolver:
		return src.Resolve(p)
	case map[string]interface{}:
		v, ok := src[p.Info.FieldName]
		if !ok {
			return resolver.Undefined, nil
		}
		if fn, ok := v.(func() interface{}); ok {
			return fn(), nil
		}
		return v, nil
	}
	return graphql.DefaultResolveFn(p)
}

// wrapResolve adds built-in scalar overrides, undefined-result checks and
// error logging around a field resolver.
func (b *builder) wrapResolve(typeName string, f *ast.FieldDefinition, resolve graphql.FieldResolveFn) graphql.FieldResolveFn {
	if resolve == nil {
		resolve = defaultResolve
	}
	overrides := b.argOverrides(f)
	path := typeName + "." + f.Name
	logger := b.opts.Logger
	allowUndefined := b.opts.AllowUndefinedInResolve

	return func(p graphql.ResolveParams) (interface{}, error) {
		if len(overrides) > 0 {
			applyOverrides(p, overrides)
		}

		result, err := resolve(p)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Log(fmt.Errorf("resolving %s: %w", path, err))
			}
			return nil, err
		}

		if result == resolver.Undefined {
			if allowUndefined {
				return nil, nil
			}
			err := fmt.Errorf("resolve function for %q returned undefined", path)
			logger.Log(err)
			return nil, err
		}
		return result, nil
	}
}

// argOverrides maps the arguments of f whose named type is a redeclared
// built-in scalar to that scalar's implementation.
func (b *builder) argOverrides(f *ast.FieldDefinition) map[string]*graphql.Scalar {
	if len(b.overrides) == 0 {
		return nil
	}
	var out map[string]*graphql.Scalar
	for _, a := range f.Arguments {
		if impl, ok := b.overrides[a.Type.Name()]; ok {
			if out == nil {
				out = make(map[string]*graphql.Scalar)
			}
			out[a.Name] = impl
		}
	}
	return out
}

// applyOverrides re-parses inline literal arguments with the override
// implementation. Variable values keep their parsed form.
func applyOverrides(p graphql.ResolveParams, overrides map[string]*graphql.Scalar) {
	if len(p.Info.FieldASTs) == 0 || p.Args == nil {
		return
	}
	for _, arg := range p.Info.FieldASTs[0].Arguments {
		if arg == nil || arg.Name == nil {
			continue
		}
		impl, ok := overrides[arg.Name.Value]
		if !ok {
			continue
		}
		switch v := arg.Value.(type) {
		case *goast.StringValue:
			p.Args[arg.Name.Value] = impl.ParseLiteral(v)
		case *goast.ListValue:
			items, ok := p.Args[arg.Name.Value].([]interface{})
			if !ok || len(items) != len(v.Values) {
				continue
			}
			for i, item := range v.Values {
				if s, ok := item.(*goast.StringValue); ok {
					items[i] = impl.ParseLiteral(s)
				}
			}
		}
	}
}

// resolveType resolves the concrete object of an interface or union value.
// A __resolveType entry is consulted first, then a "__typename" key of map
// values, then the GraphQLTypeName method.
func (b *builder) resolveType(def *ast.Definition) graphql.ResolveTypeFn {
	fields, _ := b.resolvers.Type(def.Name)
	custom, _ := typeResolver(fields[resolver.TypeResolverKey])

	return func(p graphql.ResolveTypeParams) *graphql.Object {
		var name string
		if custom != nil {
			name = custom(p)
		}
		if name == "" {
			switch v := p.Value.(type) {
			case map[string]interface{}:
				name, _ = v["__typename"].(string)
			case typeNamer:
				name = v.GraphQLTypeName()
			}
		}
		return b.objects[name]
	}
}
