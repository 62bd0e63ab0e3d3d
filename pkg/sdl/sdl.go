// Package sdl parses annotated module schema text and renders the
// aggregated type definition document.
//
// Module schema text is plain GraphQL SDL split into sections by marker
// comments (# @types, # @queries, # @mutations, # @subscriptions) and may
// use two macros: @connection(Name), which expands into a Relay connection
// and edge type pair, and @paging.params (or paging: Default), which
// expands into the first/after/last/before argument list.
package sdl

import "strings"

// PagingParams is the expansion of the paging macro.
const PagingParams = "first: Int\nafter: StringOrInt\nlast: Int\nbefore: StringOrInt"

// Fragment is the sectioned content of one module's schema text.
type Fragment struct {
	Types         string
	Queries       string
	Mutations     string
	Subscriptions string
}

// ParseSchema expands the paging macro everywhere, extracts the four
// sections and expands connection macros in the types section.
//
// A section runs from the first marker of its kind to the next marker of any
// kind or the end of the text. Later markers of an already seen kind only
// terminate the section before them. Missing sections are empty.
//
// Parameters:
//   - src (string): annotated module schema text
//
// Returns:
//   - Fragment: trimmed section contents
func ParseSchema(src string) Fragment {
	parts := make(map[string]*strings.Builder, len(sections))
	var current *strings.Builder

	for _, n := range Scan(src) {
		switch n.Kind {
		case Marker:
			current = nil
			if _, seen := parts[n.Value]; !seen {
				current = &strings.Builder{}
				parts[n.Value] = current
			}
		case ConnectionMacro:
			if current == nil {
				continue
			}
			if current == parts[SectionTypes] {
				current.WriteString(RelayConnection(n.Value))
			} else {
				current.WriteString(n.Raw)
			}
		case PagingMacro:
			if current != nil {
				current.WriteString(PagingParams)
			}
		default:
			if current != nil {
				current.WriteString(n.Raw)
			}
		}
	}

	section := func(name string) string {
		if b, ok := parts[name]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}

	return Fragment{
		Types:         section(SectionTypes),
		Queries:       section(SectionQueries),
		Mutations:     section(SectionMutations),
		Subscriptions: section(SectionSubscriptions),
	}
}

// ExpandConnections replaces every @connection(Name) macro with the
// connection and edge types for Name. Names are not validated and
// repeated macros produce repeated types.
func ExpandConnections(types string) string {
	return printNodes(Scan(types), func(n Node) string {
		if n.Kind == ConnectionMacro {
			return RelayConnection(n.Value)
		}
		return n.Raw
	})
}

// ExpandPaging replaces every paging macro with PagingParams.
func ExpandPaging(src string) string {
	return printNodes(Scan(src), func(n Node) string {
		if n.Kind == PagingMacro {
			return PagingParams
		}
		return n.Raw
	})
}

// RelayConnection renders the NameConnection and NameEdge types.
//
// Parameters:
//   - name (string): node type name
//
// Returns:
//   - string: SDL for both types, surrounded by newlines
func RelayConnection(name string) string {
	return render("connection", name)
}

func printNodes(nodes []Node, emit func(Node) string) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(emit(n))
	}
	return b.String()
}
