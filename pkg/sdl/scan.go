package sdl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies the type of a scanned node.
type Kind int

const (
	// Text is plain SDL text copied through unchanged.
	Text Kind = iota
	// Marker is a section marker such as "# @types".
	Marker
	// ConnectionMacro is an "@connection(Name)" call.
	ConnectionMacro
	// PagingMacro is "@paging.params" or "paging: Default".
	PagingMacro
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Marker:
		return "marker"
	case ConnectionMacro:
		return "connection"
	case PagingMacro:
		return "paging"
	default:
		return "unknown"
	}
}

// Section names carried by Marker nodes.
const (
	SectionTypes         = "types"
	SectionQueries       = "queries"
	SectionMutations     = "mutations"
	SectionSubscriptions = "subscriptions"
)

var sections = []string{SectionTypes, SectionQueries, SectionMutations, SectionSubscriptions}

// Node is one piece of annotated schema text.
type Node struct {
	Kind Kind
	// Raw is the source text the node was scanned from.
	Raw string
	// Value is the section name of a Marker or the type name of a
	// ConnectionMacro.
	Value string
}

// Scan splits annotated schema text into nodes. Markers and macros are
// matched case-insensitively anywhere in the text; everything else is
// returned as Text nodes. Concatenating the Raw fields of the result
// reproduces src.
//
// Parameters:
//   - src (string): annotated schema text
//
// Returns:
//   - []Node: nodes in source order
func Scan(src string) []Node {
	var nodes []Node
	textStart := 0

	for i := 0; i < len(src); {
		n, width := scanAt(src, i)
		if width == 0 {
			i++
			continue
		}

		if textStart < i {
			nodes = append(nodes, Node{Kind: Text, Raw: src[textStart:i]})
		}
		n.Raw = src[i : i+width]
		nodes = append(nodes, n)

		i += width
		textStart = i
	}

	if textStart < len(src) {
		nodes = append(nodes, Node{Kind: Text, Raw: src[textStart:]})
	}
	return nodes
}

// scanAt tries every node pattern at position i and returns the matched
// node with its width, or a zero width when nothing matches.
func scanAt(src string, i int) (Node, int) {
	switch src[i] {
	case '#':
		if value, w := scanMarker(src[i:]); w > 0 {
			return Node{Kind: Marker, Value: value}, w
		}
	case '@':
		if name, w := scanConnection(src[i:]); w > 0 {
			return Node{Kind: ConnectionMacro, Value: name}, w
		}
		if hasPrefixFold(src[i:], "@paging.params") {
			return Node{Kind: PagingMacro}, len("@paging.params")
		}
	case 'p', 'P':
		if w := scanPagingDefault(src[i:]); w > 0 {
			return Node{Kind: PagingMacro}, w
		}
	}
	return Node{}, 0
}

// scanMarker matches `#\s*@(types|queries|mutations|subscriptions)`.
func scanMarker(s string) (string, int) {
	j := skipSpace(s, 1)
	if j >= len(s) || s[j] != '@' {
		return "", 0
	}
	j++
	for _, name := range sections {
		if hasPrefixFold(s[j:], name) {
			return name, j + len(name)
		}
	}
	return "", 0
}

// scanConnection matches `@connection\s*\(\s*([a-zA-Z0-9._-]+)\s*\)`.
func scanConnection(s string) (string, int) {
	const kw = "@connection"
	if !hasPrefixFold(s, kw) {
		return "", 0
	}

	j := skipSpace(s, len(kw))
	if j >= len(s) || s[j] != '(' {
		return "", 0
	}
	j = skipSpace(s, j+1)

	start := j
	for j < len(s) && isNameByte(s[j]) {
		j++
	}
	if j == start {
		return "", 0
	}
	name := s[start:j]

	j = skipSpace(s, j)
	if j >= len(s) || s[j] != ')' {
		return "", 0
	}
	return name, j + 1
}

// scanPagingDefault matches `paging\s*:\s*Default`.
func scanPagingDefault(s string) int {
	if !hasPrefixFold(s, "paging") {
		return 0
	}
	j := skipSpace(s, len("paging"))
	if j >= len(s) || s[j] != ':' {
		return 0
	}
	j = skipSpace(s, j+1)
	if !hasPrefixFold(s[j:], "default") {
		return 0
	}
	return j + len("default")
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += w
	}
	return i
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-'
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
