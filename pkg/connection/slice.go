package connection

import "context"

// sliceQuery is a Query over an in-memory slice.
type sliceQuery[T any] struct {
	items  []T
	offset int
	limit  int
}

// Slice returns a Query over items, which must already be ordered. The
// slice is not copied and must not be modified while the query is in use.
func Slice[T any](items []T) Query[T] {
	return &sliceQuery[T]{items: items, limit: -1}
}

func (q *sliceQuery[T]) Clone() Query[T] {
	c := *q
	return &c
}

func (q *sliceQuery[T]) Offset(n int) Query[T] {
	c := *q
	c.offset = max(n, 0)
	return &c
}

func (q *sliceQuery[T]) Limit(n int) Query[T] {
	c := *q
	c.limit = max(n, 0)
	return &c
}

func (q *sliceQuery[T]) Fetch(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := min(q.offset, len(q.items))
	end := len(q.items)
	if q.limit >= 0 {
		end = min(start+q.limit, end)
	}
	return q.items[start:end], nil
}

func (q *sliceQuery[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(q.items), nil
}
