package store

import (
	"context"
	"math"

	"github.com/roach88/tinkergo/internal/structure"
)

// pageFunc fetches the rows after key. It returns the items that passed
// any filter, the number of rows read and the key of the last row.
type pageFunc[T any] func(ctx context.Context, after int64, limit int) (items []T, rows int, last int64, err error)

// pageIterator walks a table in key order one page at a time.
type pageIterator[T any] struct {
	fetch pageFunc[T]
	limit int
	after int64
	page  []T
	pos   int
	done  bool
}

func newPageIterator[T any](limit int, fetch pageFunc[T]) *pageIterator[T] {
	return &pageIterator[T]{fetch: fetch, limit: limit, after: math.MinInt64}
}

func (it *pageIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	for it.pos >= len(it.page) {
		if it.done {
			return zero, structure.ErrIteratorDone
		}
		items, rows, last, err := it.fetch(ctx, it.after, it.limit)
		if err != nil {
			return zero, err
		}
		it.page, it.pos, it.after = items, 0, last
		if rows < it.limit {
			it.done = true
		}
	}
	item := it.page[it.pos]
	it.pos++
	return item, nil
}

func (it *pageIterator[T]) Stop() {
	it.done = true
	it.page, it.pos = nil, 0
}

// concatIterator drains its parts in order.
type concatIterator[T any] struct {
	parts []structure.Iterator[T]
}

func (c *concatIterator[T]) Next(ctx context.Context) (T, error) {
	for len(c.parts) > 0 {
		item, err := c.parts[0].Next(ctx)
		if err == structure.ErrIteratorDone {
			c.parts[0].Stop()
			c.parts = c.parts[1:]
			continue
		}
		return item, err
	}
	var zero T
	return zero, structure.ErrIteratorDone
}

func (c *concatIterator[T]) Stop() {
	for _, p := range c.parts {
		p.Stop()
	}
	c.parts = nil
}
