package sdl

// Definitions accumulates schema sections from many modules in order.
type Definitions struct {
	Types         []string
	Queries       []string
	Mutations     []string
	Subscriptions []string
}

// Add appends the non-empty sections of a fragment.
func (d *Definitions) Add(f Fragment) {
	if f.Types != "" {
		d.Types = append(d.Types, f.Types)
	}
	if f.Queries != "" {
		d.Queries = append(d.Queries, f.Queries)
	}
	if f.Mutations != "" {
		d.Mutations = append(d.Mutations, f.Mutations)
	}
	if f.Subscriptions != "" {
		d.Subscriptions = append(d.Subscriptions, f.Subscriptions)
	}
}

// Roots returns the schema block entries for the contributed root types.
func (d Definitions) Roots() []string {
	var roots []string
	if len(d.Queries) > 0 {
		roots = append(roots, "query: Query")
	}
	if len(d.Mutations) > 0 {
		roots = append(roots, "mutation: Mutation")
	}
	if len(d.Subscriptions) > 0 {
		roots = append(roots, "subscription: Subscription")
	}
	return roots
}

// TypeDefs renders the complete type definition document: the built-in
// scalars, a schema block naming only the contributed root types, the
// OrderDirection, PageInfo and DeletedItem types, the accumulated types and
// finally the Query, Mutation and Subscription types.
//
// Parameters:
//   - d (Definitions): accumulated module sections
//
// Returns:
//   - string: SDL document
func TypeDefs(d Definitions) string {
	return render("typedefs", d)
}
