// Package scalars implements the scalar types declared by every aggregated
// schema.
package scalars

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
)

// Builtins returns a fresh resolver map holding every built-in scalar
// implementation, keyed by scalar name.
//
// Returns:
//   - resolver.Map: scalar name to *graphql.Scalar
func Builtins() resolver.Map {
	return resolver.Map{
		JSON.Name():           JSON,
		StringOrInt.Name():    StringOrInt,
		Email.Name():          Email,
		URL.Name():            URL,
		DateTime.Name():       DateTime,
		UUID.Name():           UUID,
		String.Name():         String,
		StringOriginal.Name(): StringOriginal,
	}
}

// JSON accepts any JSON value.
var JSON = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "The `JSON` scalar type represents JSON values as specified by ECMA-404",
	Serialize: func(value interface{}) interface{} {
		return value
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: LiteralValue,
})

// LiteralValue converts an inline GraphQL value into plain Go values:
// strings, ints, float64s, bools, []interface{} and map[string]interface{}.
func LiteralValue(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.Atoi(v.Value); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.ListValue:
		list := make([]interface{}, len(v.Values))
		for i, item := range v.Values {
			list[i] = LiteralValue(item)
		}
		return list
	case *ast.ObjectValue:
		obj := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			obj[field.Name.Value] = LiteralValue(field.Value)
		}
		return obj
	default:
		return nil
	}
}

// StringOrInt accepts either an integer or a string. Cursors use it so
// legacy numeric cursors keep working.
var StringOrInt = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "StringOrInt",
	Description: "Value can be either an integer or a string",
	Serialize: func(value interface{}) interface{} {
		return value
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			n, err := strconv.Atoi(v.Value)
			if err != nil {
				return nil
			}
			return n
		case *ast.StringValue:
			return v.Value
		default:
			return nil
		}
	},
})

var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9!#$%&'*+/=?^_{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_{|}~-]+)*@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// Email accepts RFC 5322 style addresses.
var Email = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "Email",
	Description:  "The Email scalar type represents E-Mail addresses compliant to RFC 822.",
	Serialize:    coerceEmail,
	ParseValue:   coerceEmail,
	ParseLiteral: stringLiteral(coerceEmail),
})

func coerceEmail(value interface{}) interface{} {
	s, ok := stringValue(value)
	if !ok || !emailPattern.MatchString(s) {
		return nil
	}
	return s
}

// URL accepts absolute URLs with a scheme and a host.
var URL = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "URL",
	Description:  "The URL scalar type represents URL addresses.",
	Serialize:    coerceURL,
	ParseValue:   coerceURL,
	ParseLiteral: stringLiteral(coerceURL),
})

func coerceURL(value interface{}) interface{} {
	if u, ok := value.(*url.URL); ok && u != nil {
		value = u.String()
	}
	s, ok := stringValue(value)
	if !ok {
		return nil
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return s
}

// DateTime is an RFC 3339 timestamp. Inputs are parsed into time.Time.
var DateTime = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "The DateTime scalar type represents date time strings complying to ISO-8601.",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano)
		case *time.Time:
			if v == nil {
				return nil
			}
			return v.UTC().Format(time.RFC3339Nano)
		case string:
			if _, err := time.Parse(time.RFC3339Nano, v); err != nil {
				return nil
			}
			return v
		default:
			return nil
		}
	},
	ParseValue:   parseDateTime,
	ParseLiteral: stringLiteral(parseDateTime),
})

func parseDateTime(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		return t
	default:
		return nil
	}
}

// UUID accepts RFC 4122 identifiers. Inputs are parsed into uuid.UUID.
var UUID = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "UUID",
	Description: "The UUID scalar type represents a UUID.",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case uuid.UUID:
			return v.String()
		case *uuid.UUID:
			if v == nil {
				return nil
			}
			return v.String()
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil
			}
			return id.String()
		default:
			return nil
		}
	},
	ParseValue:   parseUUID,
	ParseLiteral: stringLiteral(parseUUID),
})

func parseUUID(value interface{}) interface{} {
	switch v := value.(type) {
	case uuid.UUID:
		return v
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil
		}
		return id
	default:
		return nil
	}
}

// String replaces the built-in String scalar: inline string literals are
// trimmed, variables and output values pass through unchanged.
var String = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "String",
	Description: "Value should be a string, it will be automatically trimmed",
	Serialize:   graphql.String.Serialize,
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return strings.TrimSpace(v.Value)
		}
		return nil
	},
})

// StringOriginal is the untrimmed String scalar.
var StringOriginal = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "StringOriginal",
	Description:  graphql.String.Description(),
	Serialize:    graphql.String.Serialize,
	ParseValue:   graphql.String.ParseValue,
	ParseLiteral: graphql.String.ParseLiteral,
})

func stringLiteral(coerce func(interface{}) interface{}) graphql.ParseLiteralFn {
	return func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return coerce(v.Value)
		}
		return nil
	}
}

func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	default:
		return "", false
	}
}
