package structure

import (
	"context"
	"errors"
)

// ErrIteratorDone is returned by Iterator.Next when no items remain.
var ErrIteratorDone = errors.New("iterator done")

// Iterator is a lazy pull sequence over items held by a collaborator.
type Iterator[T any] interface {
	// Next returns the next item or ErrIteratorDone.
	Next(ctx context.Context) (T, error)
	// Stop releases resources held by the iterator. Safe to call repeatedly.
	Stop()
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

// NewSliceIterator returns an iterator over items.
func NewSliceIterator[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

func (s *sliceIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos >= len(s.items) {
		return zero, ErrIteratorDone
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

func (s *sliceIterator[T]) Stop() {
	s.pos = len(s.items)
}

type mapIterator[T, U any] struct {
	inner Iterator[T]
	fn    func(T) U
}

// MapIterator adapts an iterator by applying fn to each item.
func MapIterator[T, U any](inner Iterator[T], fn func(T) U) Iterator[U] {
	return &mapIterator[T, U]{inner: inner, fn: fn}
}

func (m *mapIterator[T, U]) Next(ctx context.Context) (U, error) {
	item, err := m.inner.Next(ctx)
	if err != nil {
		var zero U
		return zero, err
	}
	return m.fn(item), nil
}

func (m *mapIterator[T, U]) Stop() {
	m.inner.Stop()
}

type filterIterator[T any] struct {
	inner Iterator[T]
	keep  func(T) bool
}

// FilterIterator adapts an iterator to yield only the items keep accepts.
// Rejected items are skipped as they are pulled.
func FilterIterator[T any](inner Iterator[T], keep func(T) bool) Iterator[T] {
	return &filterIterator[T]{inner: inner, keep: keep}
}

func (f *filterIterator[T]) Next(ctx context.Context) (T, error) {
	for {
		item, err := f.inner.Next(ctx)
		if err != nil {
			return item, err
		}
		if f.keep(item) {
			return item, nil
		}
	}
}

func (f *filterIterator[T]) Stop() {
	f.inner.Stop()
}

type lookupIterator[T any] struct {
	ids []int64
	pos int
	get func(ctx context.Context, id int64) (T, error)
}

// LookupIterator yields get(id) for each id in turn, one lookup per Next.
// Ids that get reports as ErrNotFound are skipped.
func LookupIterator[T any](ids []int64, get func(ctx context.Context, id int64) (T, error)) Iterator[T] {
	return &lookupIterator[T]{ids: ids, get: get}
}

func (l *lookupIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for l.pos < len(l.ids) {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		id := l.ids[l.pos]
		l.pos++
		item, err := l.get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return zero, err
		}
		return item, nil
	}
	return zero, ErrIteratorDone
}

func (l *lookupIterator[T]) Stop() {
	l.pos = len(l.ids)
}

// Collect drains it into a slice and stops it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Stop()
	var out []T
	for {
		item, err := it.Next(ctx)
		if errors.Is(err, ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
}
