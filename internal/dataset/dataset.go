package dataset

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

var shuffledRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tinkergo_dataset_shuffled_records_total",
	Help: "Records moved through a key shuffle, by operation.",
}, []string{"op"})

// Key is the key type of a dataset.
type Key interface {
	int64 | string
}

// Pair is one record.
type Pair[K Key, V any] struct {
	Key   K
	Value V
}

// P is shorthand for constructing a Pair.
func P[K Key, V any](k K, v V) Pair[K, V] { return Pair[K, V]{Key: k, Value: v} }

// Dataset is a fixed number of partitions of pairs.
type Dataset[K Key, V any] struct {
	parts   [][]Pair[K, V]
	workers int
	// placed is set when every pair sits in the partition owning its key and
	// each partition is sorted by key.
	placed bool
}

// Option configures dataset execution.
type Option func(*config)

type config struct {
	workers int
}

// WithWorkers bounds the goroutines used per operation. Zero means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// Partition hashes pairs into n partitions, each sorted by key. Pairs with
// equal keys keep their relative order.
func Partition[K Key, V any](n int, pairs []Pair[K, V], opts ...Option) *Dataset[K, V] {
	if n < 1 {
		n = 1
	}
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}
	d := &Dataset[K, V]{parts: make([][]Pair[K, V], n), workers: c.workers, placed: true}
	for _, p := range pairs {
		i := PartitionOf(p.Key, n)
		d.parts[i] = append(d.parts[i], p)
	}
	d.sortPartitions()
	return d
}

// PartitionOf returns the partition of key among n.
func PartitionOf[K Key](key K, n int) int {
	return int(hashKey(key) % uint64(n))
}

func hashKey[K Key](key K) uint64 {
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	case int64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(k))
		return xxhash.Sum64(b[:])
	}
	panic(fmt.Sprintf("dataset: unsupported key type %T", key))
}

func sortByKey[K Key, V any](part []Pair[K, V]) {
	slices.SortStableFunc(part, func(a, b Pair[K, V]) int { return cmp.Compare(a.Key, b.Key) })
}

// sortPartitions sorts every partition by key, several at a time.
func (d *Dataset[K, V]) sortPartitions() {
	g := new(errgroup.Group)
	g.SetLimit(d.maxGoroutines())
	for _, part := range d.parts {
		g.Go(func() error {
			sortByKey(part)
			return nil
		})
	}
	_ = g.Wait()
}

// NumPartitions returns the partition count.
func (d *Dataset[K, V]) NumPartitions() int { return len(d.parts) }

// Partition returns the pairs of partition i. The slice must not be
// modified.
func (d *Dataset[K, V]) Partition(i int) []Pair[K, V] { return d.parts[i] }

// Len returns the total number of pairs.
func (d *Dataset[K, V]) Len() int {
	n := 0
	for _, p := range d.parts {
		n += len(p)
	}
	return n
}

// Collect returns every pair sorted by key.
func (d *Dataset[K, V]) Collect() []Pair[K, V] {
	out := make([]Pair[K, V], 0, d.Len())
	for _, p := range d.parts {
		out = append(out, p...)
	}
	sortByKey(out)
	return out
}

// Lookup returns the values stored under key. Datasets whose keys were
// rewritten by Map, FlatMap or MapPartitions are scanned in partition order.
func (d *Dataset[K, V]) Lookup(key K) []V {
	var out []V
	if !d.placed {
		for _, part := range d.parts {
			for _, p := range part {
				if p.Key == key {
					out = append(out, p.Value)
				}
			}
		}
		return out
	}
	part := d.parts[PartitionOf(key, len(d.parts))]
	i, _ := slices.BinarySearchFunc(part, key, func(p Pair[K, V], k K) int { return cmp.Compare(p.Key, k) })
	for ; i < len(part) && part[i].Key == key; i++ {
		out = append(out, part[i].Value)
	}
	return out
}

func (d *Dataset[K, V]) maxGoroutines() int {
	if d.workers > 0 {
		return d.workers
	}
	return runtime.GOMAXPROCS(0)
}

// NewPool returns a pool where each task respects context cancellation and
// Wait reports the first error.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// each runs fn on every partition in parallel.
func each[K Key, V any](ctx context.Context, d *Dataset[K, V], fn func(ctx context.Context, i int, part []Pair[K, V]) error) error {
	p := NewPool(ctx, d.maxGoroutines())
	for i, part := range d.parts {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i, part)
		})
	}
	return p.Wait()
}

// MapPartitions applies fn to each partition. The output keeps the input's
// partitioning; keys emitted by fn are not rehashed. fn sees its partition
// index, which callers use for per-partition setup and teardown.
func MapPartitions[K Key, V any, K2 Key, V2 any](ctx context.Context, d *Dataset[K, V], fn func(ctx context.Context, i int, part []Pair[K, V]) ([]Pair[K2, V2], error)) (*Dataset[K2, V2], error) {
	return mapPartitions(ctx, d, false, fn)
}

// mapPartitions is MapPartitions for callers that know whether fn keeps keys
// in their owning partition and in sorted order.
func mapPartitions[K Key, V any, K2 Key, V2 any](ctx context.Context, d *Dataset[K, V], placed bool, fn func(ctx context.Context, i int, part []Pair[K, V]) ([]Pair[K2, V2], error)) (*Dataset[K2, V2], error) {
	out := &Dataset[K2, V2]{parts: make([][]Pair[K2, V2], len(d.parts)), workers: d.workers, placed: placed}
	err := each(ctx, d, func(ctx context.Context, i int, part []Pair[K, V]) error {
		res, err := fn(ctx, i, part)
		if err != nil {
			return err
		}
		out.parts[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Map applies fn to each pair.
func Map[K Key, V any, K2 Key, V2 any](ctx context.Context, d *Dataset[K, V], fn func(Pair[K, V]) (Pair[K2, V2], error)) (*Dataset[K2, V2], error) {
	return MapPartitions(ctx, d, func(_ context.Context, _ int, part []Pair[K, V]) ([]Pair[K2, V2], error) {
		out := make([]Pair[K2, V2], 0, len(part))
		for _, p := range part {
			q, err := fn(p)
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
		return out, nil
	})
}

// FlatMap applies fn to each pair and concatenates the results.
func FlatMap[K Key, V any, K2 Key, V2 any](ctx context.Context, d *Dataset[K, V], fn func(Pair[K, V]) ([]Pair[K2, V2], error)) (*Dataset[K2, V2], error) {
	return MapPartitions(ctx, d, func(_ context.Context, _ int, part []Pair[K, V]) ([]Pair[K2, V2], error) {
		var out []Pair[K2, V2]
		for _, p := range part {
			qs, err := fn(p)
			if err != nil {
				return nil, err
			}
			out = append(out, qs...)
		}
		return out, nil
	})
}

// Filter keeps the pairs accepted by keep.
func Filter[K Key, V any](ctx context.Context, d *Dataset[K, V], keep func(Pair[K, V]) bool) (*Dataset[K, V], error) {
	return mapPartitions(ctx, d, d.placed, func(_ context.Context, _ int, part []Pair[K, V]) ([]Pair[K, V], error) {
		var out []Pair[K, V]
		for _, p := range part {
			if keep(p) {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// shuffle moves every pair to the partition owning its key. Within a key the
// pairs keep source partition order.
func shuffle[K Key, V any](d *Dataset[K, V], op string) *Dataset[K, V] {
	n := len(d.parts)
	out := &Dataset[K, V]{parts: make([][]Pair[K, V], n), workers: d.workers, placed: true}
	for _, part := range d.parts {
		for _, p := range part {
			i := PartitionOf(p.Key, n)
			out.parts[i] = append(out.parts[i], p)
		}
	}
	out.sortPartitions()
	shuffledRecords.WithLabelValues(op).Add(float64(d.Len()))
	return out
}

// runs calls fn for each run of equal keys in a sorted partition.
func runs[K Key, V any](part []Pair[K, V], fn func(key K, vals []Pair[K, V]) error) error {
	for i := 0; i < len(part); {
		j := i + 1
		for j < len(part) && part[j].Key == part[i].Key {
			j++
		}
		if err := fn(part[i].Key, part[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// ReduceByKey folds the values of each key with fn, leaving one pair per
// key. fn must be associative and commutative.
func ReduceByKey[K Key, V any](ctx context.Context, d *Dataset[K, V], fn func(a, b V) (V, error)) (*Dataset[K, V], error) {
	return mapPartitions(ctx, shuffle(d, "reduce_by_key"), true, func(_ context.Context, _ int, part []Pair[K, V]) ([]Pair[K, V], error) {
		var out []Pair[K, V]
		err := runs(part, func(key K, vals []Pair[K, V]) error {
			acc := vals[0].Value
			for _, v := range vals[1:] {
				var err error
				if acc, err = fn(acc, v.Value); err != nil {
					return err
				}
			}
			out = append(out, Pair[K, V]{Key: key, Value: acc})
			return nil
		})
		return out, err
	})
}

// GroupByKey collects the values of each key.
func GroupByKey[K Key, V any](ctx context.Context, d *Dataset[K, V]) (*Dataset[K, []V], error) {
	return mapPartitions(ctx, shuffle(d, "group_by_key"), true, func(_ context.Context, _ int, part []Pair[K, V]) ([]Pair[K, []V], error) {
		var out []Pair[K, []V]
		err := runs(part, func(key K, vals []Pair[K, V]) error {
			vs := make([]V, len(vals))
			for i, v := range vals {
				vs[i] = v.Value
			}
			out = append(out, Pair[K, []V]{Key: key, Value: vs})
			return nil
		})
		return out, err
	})
}

// Joined is one row of a left outer join.
type Joined[V, W any] struct {
	Left V
	// Right holds every right value with the key; it is empty when the key
	// has no match.
	Right []W
}

// LeftOuterJoin pairs every left pair with the right values sharing its
// key. Both datasets must have the same partition count. Right keys with no
// left pair are dropped.
func LeftOuterJoin[K Key, V, W any](ctx context.Context, left *Dataset[K, V], right *Dataset[K, W]) (*Dataset[K, Joined[V, W]], error) {
	if len(left.parts) != len(right.parts) {
		return nil, fmt.Errorf("join of %d and %d partitions", len(left.parts), len(right.parts))
	}
	l := shuffle(left, "left_outer_join")
	r := shuffle(right, "left_outer_join")
	return mapPartitions(ctx, l, true, func(_ context.Context, i int, part []Pair[K, V]) ([]Pair[K, Joined[V, W]], error) {
		rp := r.parts[i]
		out := make([]Pair[K, Joined[V, W]], 0, len(part))
		j := 0
		for _, p := range part {
			for j < len(rp) && rp[j].Key < p.Key {
				j++
			}
			var ws []W
			for k := j; k < len(rp) && rp[k].Key == p.Key; k++ {
				ws = append(ws, rp[k].Value)
			}
			out = append(out, Pair[K, Joined[V, W]]{Key: p.Key, Value: Joined[V, W]{Left: p.Value, Right: ws}})
		}
		return out, nil
	})
}
