// Package paging converts Relay paging arguments into offset/limit windows.
package paging

import (
	"strconv"

	"github.com/pradyumna-smpx/gqutils/pkg/cursor"
)

// DefaultLimit is the page size used when no size argument is supplied.
const DefaultLimit = 20

// Args holds the Relay paging arguments of a connection field.
// A nil pointer, a zero size and an empty cursor all count as unset.
type Args struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// Window is the offset/limit pair a connection query is cut to.
type Window struct {
	Offset int
	Limit  int
}

// Resolve computes the window for a set of paging arguments.
// Forward paging (first/after) takes priority over backward paging
// (last/before). A backward window that would start before the first row is
// clamped to start at 0 and shortened accordingly, which also means that
// last without before always yields an empty window.
//
// Parameters:
//   - args (Args): paging arguments
//
// Returns:
//   - Window: offset and limit to apply to the query
func Resolve(args Args) Window {
	forward := isSet(args.First) || hasCursor(args.After)
	backward := isSet(args.Last) || hasCursor(args.Before)

	switch {
	case forward:
		w := Window{Limit: DefaultLimit}
		if isSet(args.First) {
			w.Limit = *args.First
		}
		if hasCursor(args.After) {
			w.Offset = cursor.Decode(*args.After)
		}
		return w

	case backward:
		last := DefaultLimit
		if isSet(args.Last) {
			last = *args.Last
		}

		before := 0
		if hasCursor(args.Before) {
			before = cursor.Decode(*args.Before)
		}

		w := Window{Limit: last, Offset: before - last}
		if w.Offset < 0 {
			w.Limit = max(last+w.Offset, 0)
			w.Offset = 0
		}
		return w
	}

	return Window{Limit: DefaultLimit}
}

// ArgsFromMap extracts paging arguments from resolved GraphQL field
// arguments. Cursors typed StringOrInt may arrive as integers or strings;
// both are normalised to strings.
//
// Parameters:
//   - m (map[string]any): field arguments
//
// Returns:
//   - Args: paging arguments found in m
func ArgsFromMap(m map[string]any) Args {
	return Args{
		First:  intArg(m["first"]),
		After:  cursorArg(m["after"]),
		Last:   intArg(m["last"]),
		Before: cursorArg(m["before"]),
	}
}

func isSet(n *int) bool {
	return n != nil && *n != 0
}

func hasCursor(c *string) bool {
	return c != nil && *c != ""
}

func intArg(v any) *int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case string:
		parsed, err := strconv.Atoi(x)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

func cursorArg(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return nil
	}
	return &s
}
