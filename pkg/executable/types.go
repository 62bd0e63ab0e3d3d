package executable

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/scalars"
)

// builder converts a validated type system into graphql-go types.
type builder struct {
	doc       *ast.Schema
	resolvers resolver.Map
	overrides map[string]*graphql.Scalar
	opts      Options

	types      map[string]graphql.Type
	objects    map[string]*graphql.Object
	interfaces map[string]*graphql.Interface
}

func newBuilder(doc *ast.Schema, resolvers resolver.Map, overrides map[string]*graphql.Scalar, opts Options) *builder {
	return &builder{
		doc:        doc,
		resolvers:  resolvers,
		overrides:  overrides,
		opts:       opts,
		types:      make(map[string]graphql.Type),
		objects:    make(map[string]*graphql.Object),
		interfaces: make(map[string]*graphql.Interface),
	}
}

func (b *builder) build() (graphql.Schema, error) {
	for name, s := range builtinScalars {
		b.types[name] = s
	}

	names := sortedKeys(b.doc.Types)

	// Leaf types first, then composite types whose fields are thunks, then
	// unions, which need their member objects to exist.
	for _, name := range names {
		def := b.doc.Types[name]
		if isBuiltin(def) || b.types[name] != nil {
			continue
		}
		switch def.Kind {
		case ast.Scalar:
			s, err := b.scalar(def)
			if err != nil {
				return graphql.Schema{}, err
			}
			b.types[name] = s
		case ast.Enum:
			b.types[name] = b.enum(def)
		}
	}

	for _, name := range names {
		def := b.doc.Types[name]
		if isBuiltin(def) {
			continue
		}
		switch def.Kind {
		case ast.Object:
			obj := b.object(def)
			b.objects[name] = obj
			b.types[name] = obj
		case ast.Interface:
			iface := b.iface(def)
			b.interfaces[name] = iface
			b.types[name] = iface
		case ast.InputObject:
			b.types[name] = b.inputObject(def)
		}
	}

	for _, name := range names {
		def := b.doc.Types[name]
		if def.Kind == ast.Union && !isBuiltin(def) {
			u, err := b.union(def)
			if err != nil {
				return graphql.Schema{}, err
			}
			b.types[name] = u
		}
	}

	cfg := graphql.SchemaConfig{}
	if b.doc.Query != nil {
		cfg.Query = b.objects[b.doc.Query.Name]
	}
	if b.doc.Mutation != nil {
		cfg.Mutation = b.objects[b.doc.Mutation.Name]
	}
	if b.doc.Subscription != nil {
		cfg.Subscription = b.objects[b.doc.Subscription.Name]
	}
	if cfg.Query == nil {
		return graphql.Schema{}, fmt.Errorf("schema has no query type")
	}

	for _, name := range names {
		if t, ok := b.types[name]; ok {
			if _, builtin := builtinScalars[name]; !builtin {
				cfg.Types = append(cfg.Types, t)
			}
		}
	}

	gs, err := graphql.NewSchema(cfg)
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("creating schema: %w", err)
	}
	return gs, nil
}

func (b *builder) scalar(def *ast.Definition) (*graphql.Scalar, error) {
	if impl, ok := b.resolvers[def.Name].(*graphql.Scalar); ok {
		if impl.Name() != def.Name {
			return nil, fmt.Errorf("scalar %q implemented by %q", def.Name, impl.Name())
		}
		return impl, nil
	}

	// Scalars without an implementation pass values through.
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        def.Name,
		Description: def.Description,
		Serialize: func(value interface{}) interface{} {
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: scalars.LiteralValue,
	}), nil
}

func (b *builder) enum(def *ast.Definition) *graphql.Enum {
	internal, _ := b.resolvers.Type(def.Name)

	values := graphql.EnumValueConfigMap{}
	for _, v := range def.EnumValues {
		var value interface{} = v.Name
		if custom, ok := internal[v.Name]; ok {
			value = custom
		}
		values[v.Name] = &graphql.EnumValueConfig{
			Value:             value,
			Description:       v.Description,
			DeprecationReason: deprecationReason(v.Directives),
		}
	}

	return graphql.NewEnum(graphql.EnumConfig{
		Name:        def.Name,
		Description: def.Description,
		Values:      values,
	})
}

func (b *builder) object(def *ast.Definition) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Interfaces: graphql.InterfacesThunk(func() []*graphql.Interface {
			ifaces := make([]*graphql.Interface, 0, len(def.Interfaces))
			for _, name := range def.Interfaces {
				if iface := b.interfaces[name]; iface != nil {
					ifaces = append(ifaces, iface)
				}
			}
			return ifaces
		}),
		Fields: b.fields(def),
	})
}

func (b *builder) iface(def *ast.Definition) *graphql.Interface {
	return graphql.NewInterface(graphql.InterfaceConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields:      b.fields(def),
		ResolveType: b.resolveType(def),
	})
}

func (b *builder) union(def *ast.Definition) (*graphql.Union, error) {
	members := make([]*graphql.Object, 0, len(def.Types))
	for _, name := range def.Types {
		obj := b.objects[name]
		if obj == nil {
			return nil, fmt.Errorf("union %q member %q is not an object type", def.Name, name)
		}
		members = append(members, obj)
	}

	return graphql.NewUnion(graphql.UnionConfig{
		Name:        def.Name,
		Description: def.Description,
		Types:       members,
		ResolveType: b.resolveType(def),
	}), nil
}

func (b *builder) inputObject(def *ast.Definition) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, f := range def.Fields {
				t := b.inputType(f.Type)
				fields[f.Name] = &graphql.InputObjectFieldConfig{
					Type:         t,
					Description:  f.Description,
					DefaultValue: defaultValue(t, f.DefaultValue),
				}
			}
			return fields
		}),
	})
}

// fields returns the field thunk of an object or interface.
func (b *builder) fields(def *ast.Definition) graphql.FieldsThunk {
	return func() graphql.Fields {
		fieldResolvers, _ := b.resolvers.Type(def.Name)

		fields := graphql.Fields{}
		for _, f := range def.Fields {
			if len(f.Name) > 1 && f.Name[:2] == "__" {
				continue
			}

			args := graphql.FieldConfigArgument{}
			for _, a := range f.Arguments {
				t := b.inputType(a.Type)
				args[a.Name] = &graphql.ArgumentConfig{
					Type:         t,
					Description:  a.Description,
					DefaultValue: defaultValue(t, a.DefaultValue),
				}
			}

			resolve, subscribe, _ := fieldFuncs(fieldResolvers[f.Name])
			fields[f.Name] = &graphql.Field{
				Name:              f.Name,
				Type:              b.outputType(f.Type),
				Description:       f.Description,
				DeprecationReason: deprecationReason(f.Directives),
				Args:              args,
				Resolve:           b.wrapResolve(def.Name, f, resolve),
				Subscribe:         subscribe,
			}
		}
		return fields
	}
}

func (b *builder) outputType(t *ast.Type) graphql.Output {
	var out graphql.Output
	if t.Elem != nil {
		out = graphql.NewList(b.outputType(t.Elem))
	} else {
		out, _ = b.types[t.NamedType].(graphql.Output)
	}
	if t.NonNull {
		return graphql.NewNonNull(out)
	}
	return out
}

func (b *builder) inputType(t *ast.Type) graphql.Input {
	var in graphql.Input
	if t.Elem != nil {
		in = graphql.NewList(b.inputType(t.Elem))
	} else {
		in, _ = b.types[t.NamedType].(graphql.Input)
	}
	if t.NonNull {
		return graphql.NewNonNull(in)
	}
	return in
}

// defaultValue converts an SDL default into the value a resolver would
// receive had the client sent it.
func defaultValue(t graphql.Input, v *ast.Value) interface{} {
	if v == nil {
		return nil
	}
	raw, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return coerceInput(t, raw)
}

func coerceInput(t graphql.Input, raw interface{}) interface{} {
	if raw == nil {
		return nil
	}
	switch tt := t.(type) {
	case *graphql.NonNull:
		in, _ := tt.OfType.(graphql.Input)
		return coerceInput(in, raw)
	case *graphql.List:
		in, _ := tt.OfType.(graphql.Input)
		items, ok := raw.([]interface{})
		if !ok {
			return []interface{}{coerceInput(in, raw)}
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = coerceInput(in, item)
		}
		return out
	case *graphql.Scalar:
		return tt.ParseValue(raw)
	case *graphql.Enum:
		name, _ := raw.(string)
		for _, v := range tt.Values() {
			if v.Name == name {
				return v.Value
			}
		}
		return nil
	case *graphql.InputObject:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		fields := tt.Fields()
		out := make(map[string]interface{}, len(obj))
		for name, value := range obj {
			if f, ok := fields[name]; ok {
				out[name] = coerceInput(f.Type, value)
			}
		}
		return out
	default:
		return raw
	}
}

func deprecationReason(directives ast.DirectiveList) string {
	d := directives.ForName("deprecated")
	if d == nil {
		return ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return graphql.DefaultDeprecationReason
}
