package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pradyumna-smpx/gqutils/pkg/connection"
)

// Query is an ordered GORM query usable as a connection source. Every
// method returns a new query; the base statement is never mutated.
type Query[T any] struct {
	store  *Store
	db     *gorm.DB
	name   string
	offset int
	limit  int
}

var _ connection.Query[AuditEntry] = (*Query[AuditEntry])(nil)

// NewQuery creates a query over a filtered and ordered statement.
//
// Parameters:
//   - s (*Store): store executing the query
//   - name (string): operation name used in metrics (e.g., "audit_entries")
//   - db (*gorm.DB): statement with model, conditions and order applied
//
// Returns:
//   - *Query[T]: query without offset or limit
func NewQuery[T any](s *Store, name string, db *gorm.DB) *Query[T] {
	return &Query[T]{
		store: s,
		db:    db.Session(&gorm.Session{}),
		name:  name,
		limit: -1,
	}
}

// Clone returns a copy of the query.
func (q *Query[T]) Clone() connection.Query[T] {
	c := *q
	return &c
}

// Offset returns a copy skipping the first n rows.
func (q *Query[T]) Offset(n int) connection.Query[T] {
	c := *q
	c.offset = n
	return &c
}

// Limit returns a copy returning at most n rows. A negative n removes the
// limit.
func (q *Query[T]) Limit(n int) connection.Query[T] {
	c := *q
	c.limit = n
	return &c
}

// Fetch runs the query.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - []T: rows in query order
//   - error: nil on success, query or circuit breaker error on failure
func (q *Query[T]) Fetch(ctx context.Context) ([]T, error) {
	var rows []T
	err := q.store.execute(q.name+"_fetch", func() error {
		return q.statement(q.db.WithContext(ctx)).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", q.name, err)
	}
	return rows, nil
}

// Count returns the number of rows the query matches, ignoring offset and
// limit.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - int: row count
//   - error: nil on success, query or circuit breaker error on failure
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	var n int64
	err := q.store.execute(q.name+"_count", func() error {
		return q.countStatement(q.db.WithContext(ctx)).Count(&n).Error
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.name, err)
	}
	return int(n), nil
}

// SQL renders the statement Fetch runs.
func (q *Query[T]) SQL() string {
	return q.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []T
		return q.statement(tx).Find(&rows)
	})
}

// CountSQL renders the statement Count runs.
func (q *Query[T]) CountSQL() string {
	return q.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var n int64
		return q.countStatement(tx).Count(&n)
	})
}

func (q *Query[T]) statement(tx *gorm.DB) *gorm.DB {
	tx = tx.Offset(q.offset)
	if q.limit >= 0 {
		tx = tx.Limit(q.limit)
	}
	return tx
}

func (q *Query[T]) countStatement(tx *gorm.DB) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).Table("(?) AS sub", tx)
}
