package subscription

import (
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// argumentValues computes the argument map of a field the way the executor
// does: inline literals are parsed by their input type, variables are taken
// from vars and missing arguments fall back to their default value.
func argumentValues(defs []*graphql.Argument, asts []*ast.Argument, vars map[string]interface{}) map[string]interface{} {
	byName := make(map[string]ast.Value, len(asts))
	for _, a := range asts {
		if a != nil && a.Name != nil {
			byName[a.Name.Value] = a.Value
		}
	}

	out := make(map[string]interface{}, len(defs))
	for _, def := range defs {
		var value interface{}
		if v, ok := byName[def.Name()]; ok {
			value = valueFromAST(v, def.Type, vars)
		}
		if value == nil {
			value = def.DefaultValue
		}
		if value != nil {
			out[def.Name()] = value
		}
	}
	return out
}

func valueFromAST(v ast.Value, t graphql.Input, vars map[string]interface{}) interface{} {
	if v == nil {
		return nil
	}
	if variable, ok := v.(*ast.Variable); ok {
		if variable.Name == nil {
			return nil
		}
		return vars[variable.Name.Value]
	}

	switch tt := t.(type) {
	case *graphql.NonNull:
		in, _ := tt.OfType.(graphql.Input)
		return valueFromAST(v, in, vars)

	case *graphql.List:
		in, _ := tt.OfType.(graphql.Input)
		list, ok := v.(*ast.ListValue)
		if !ok {
			return []interface{}{valueFromAST(v, in, vars)}
		}
		out := make([]interface{}, len(list.Values))
		for i, item := range list.Values {
			out[i] = valueFromAST(item, in, vars)
		}
		return out

	case *graphql.InputObject:
		obj, ok := v.(*ast.ObjectValue)
		if !ok {
			return nil
		}
		fields := tt.Fields()
		out := make(map[string]interface{}, len(obj.Fields))
		for _, f := range obj.Fields {
			if f == nil || f.Name == nil {
				continue
			}
			if def, ok := fields[f.Name.Value]; ok {
				out[f.Name.Value] = valueFromAST(f.Value, def.Type, vars)
			}
		}
		for name, def := range fields {
			if _, ok := out[name]; !ok && def.DefaultValue != nil {
				out[name] = def.DefaultValue
			}
		}
		return out

	case *graphql.Scalar:
		return tt.ParseLiteral(v)

	case *graphql.Enum:
		return tt.ParseLiteral(v)

	default:
		return nil
	}
}
