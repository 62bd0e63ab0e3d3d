// Package connection resolves Relay connection fields over ordered queries.
//
// A Resolver is created per field selection. It cuts the underlying query to
// the paging window once, executes it at most once, and serves the nodes,
// edges, totalCount and pageInfo fields of a generated XConnection type from
// that single result.
package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/pradyumna-smpx/gqutils/pkg/cursor"
	"github.com/pradyumna-smpx/gqutils/pkg/paging"
)

// Metrics for connection resolution.
var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gqutils_connection_query_duration_seconds",
		Help:    "Connection query duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// Query is an ordered, lazily executed query.
// Clone, Offset and Limit must not modify the receiver.
type Query[T any] interface {
	Clone() Query[T]
	Offset(n int) Query[T]
	Limit(n int) Query[T]

	// Fetch executes the query and returns its rows in order.
	Fetch(ctx context.Context) ([]T, error)

	// Count returns the number of rows the query matches, ignoring any
	// offset or limit applied to it.
	Count(ctx context.Context) (int, error)
}

// Edge pairs a node with its cursor.
type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

// PageInfo describes the page a connection returned.
type PageInfo struct {
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	EdgeCount       int     `json:"edgeCount"`
}

// Resolver serves the fields of one connection selection.
type Resolver[T any] struct {
	query  Query[T]
	window paging.Window

	nodesSem *semaphore.Weighted
	nodes    []T
	hasNodes bool

	edgesSem *semaphore.Weighted
	edges    []Edge[T]
	hasEdges bool
}

// New creates a resolver for a query and its paging arguments.
//
// Parameters:
//   - q (Query[T]): ordered query, not yet windowed
//   - args (paging.Args): Relay paging arguments
//
// Returns:
//   - *Resolver[T]: resolver bound to the computed window
func New[T any](q Query[T], args paging.Args) *Resolver[T] {
	return &Resolver[T]{
		query:    q,
		window:   paging.Resolve(args),
		nodesSem: semaphore.NewWeighted(1),
		edgesSem: semaphore.NewWeighted(1),
	}
}

// FromArgs creates a resolver from resolved GraphQL field arguments.
//
// Parameters:
//   - q (Query[T]): ordered query, not yet windowed
//   - args (map[string]any): field arguments carrying first/after/last/before
//
// Returns:
//   - *Resolver[T]: resolver bound to the computed window
func FromArgs[T any](q Query[T], args map[string]any) *Resolver[T] {
	return New(q, paging.ArgsFromMap(args))
}

// Window returns the offset/limit window of this resolver.
func (r *Resolver[T]) Window() paging.Window {
	return r.window
}

// Nodes returns the rows of the page. The query runs at most once per
// resolver; concurrent callers wait for the first execution. A failed or
// cancelled execution is not cached.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - []T: rows of the page in query order
//   - error: nil on success, query or cancellation error on failure
func (r *Resolver[T]) Nodes(ctx context.Context) ([]T, error) {
	if err := r.nodesSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.nodesSem.Release(1)

	if r.hasNodes {
		return r.nodes, nil
	}

	start := time.Now()
	rows, err := r.query.Clone().Offset(r.window.Offset).Limit(r.window.Limit).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching connection nodes: %w", err)
	}
	queryDuration.WithLabelValues("nodes").Observe(time.Since(start).Seconds())

	r.nodes = rows
	r.hasNodes = true
	return r.nodes, nil
}

// Edges returns the page rows paired with their cursors. Cursors are the
// window offset plus the 1-based position within the page.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - []Edge[T]: edges of the page
//   - error: nil on success, query or cancellation error on failure
func (r *Resolver[T]) Edges(ctx context.Context) ([]Edge[T], error) {
	if err := r.edgesSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.edgesSem.Release(1)

	if r.hasEdges {
		return r.edges, nil
	}

	nodes, err := r.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge[T], len(nodes))
	for i, node := range nodes {
		edges[i] = Edge[T]{
			Cursor: cursor.Encode(r.window.Offset + i + 1),
			Node:   node,
		}
	}

	r.edges = edges
	r.hasEdges = true
	return r.edges, nil
}

// TotalCount counts the rows of the un-windowed query. It is not cached.
func (r *Resolver[T]) TotalCount(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.query.Clone().Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting connection rows: %w", err)
	}
	queryDuration.WithLabelValues("count").Observe(time.Since(start).Seconds())
	return n, nil
}

// PageInfo derives the page metadata from the edges. hasNextPage reports a
// full page, so a collection ending exactly on a page boundary reports one
// extra, empty page.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - *PageInfo: page metadata
//   - error: nil on success, query or cancellation error on failure
func (r *Resolver[T]) PageInfo(ctx context.Context) (*PageInfo, error) {
	edges, err := r.Edges(ctx)
	if err != nil {
		return nil, err
	}

	info := &PageInfo{
		HasPreviousPage: r.window.Offset > 0,
		HasNextPage:     len(edges) == r.window.Limit,
		EdgeCount:       len(edges),
	}
	if len(edges) > 0 {
		start := edges[0].Cursor
		end := edges[len(edges)-1].Cursor
		info.StartCursor = &start
		info.EndCursor = &end
	}
	return info, nil
}

// Resolve implements graphql.FieldResolver so a field returning a Resolver
// needs no explicit resolvers on its connection type.
func (r *Resolver[T]) Resolve(p graphql.ResolveParams) (interface{}, error) {
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}

	switch p.Info.FieldName {
	case "nodes":
		return r.Nodes(ctx)
	case "edges":
		return r.Edges(ctx)
	case "totalCount":
		return r.TotalCount(ctx)
	case "pageInfo":
		return r.PageInfo(ctx)
	default:
		return nil, fmt.Errorf("connection has no field %q", p.Info.FieldName)
	}
}
