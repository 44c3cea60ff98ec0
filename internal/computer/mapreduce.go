package computer

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/roach88/tinkergo/internal/dataset"
	"github.com/roach88/tinkergo/internal/ir"
)

// Stage is a phase of a map/reduce job.
type Stage int

const (
	StageMap Stage = iota
	StageCombine
	StageReduce
)

func (s Stage) String() string {
	switch s {
	case StageCombine:
		return "combine"
	case StageReduce:
		return "reduce"
	default:
		return "map"
	}
}

// KeyValue is one emitted pair.
type KeyValue struct {
	Key   ir.IRValue
	Value ir.IRValue
}

// Emitter receives the pairs a stage produces.
type Emitter interface {
	Emit(key, value ir.IRValue)
}

// MapReduce is a job run over the vertices of a finished vertex program.
// Keys are compared by canonical form. Combine and Reduce see the values of
// one key sorted by ir.Compare, so their output does not depend on how the
// vertices were partitioned.
type MapReduce interface {
	Name() string
	// DoStage reports whether the job has a combine or reduce stage. Every
	// job maps.
	DoStage(s Stage) bool
	Map(ctx context.Context, v *Vertex, e Emitter) error
	Combine(ctx context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error
	Reduce(ctx context.Context, key ir.IRValue, values []ir.IRValue, e Emitter) error
	// GenerateFinalResult turns the reduced pairs, sorted by key, into the
	// job's value.
	GenerateFinalResult(pairs []KeyValue) (ir.IRValue, error)
	// MemoryKey is where the result is stored in the run's memory.
	MemoryKey() string
}

type collector struct {
	pairs []KeyValue
}

func (c *collector) Emit(key, value ir.IRValue) {
	c.pairs = append(c.pairs, KeyValue{Key: key, Value: value})
}

// group buckets pairs by canonical key. Buckets come back in key order with
// their values sorted.
func group(pairs []KeyValue) ([]string, map[string]*KeyValue, map[string][]ir.IRValue) {
	keys := make(map[string]*KeyValue)
	vals := make(map[string][]ir.IRValue)
	for _, p := range pairs {
		k := ir.Key(p.Key)
		if _, ok := keys[k]; !ok {
			keys[k] = &KeyValue{Key: p.Key}
		}
		vals[k] = append(vals[k], p.Value)
	}
	order := make([]string, 0, len(keys))
	for k := range keys {
		order = append(order, k)
		ir.SortValues(vals[k])
	}
	slices.Sort(order)
	return order, keys, vals
}

// RunMapReduce runs job over vertices and returns its final result.
func RunMapReduce(ctx context.Context, job MapReduce, vertices []*Vertex, opts ...Option) (ir.IRValue, error) {
	o := newOptions(opts)
	log := o.logger.With("job", job.Name())
	combine := o.combine && job.DoStage(StageCombine)

	pairs := make([]dataset.Pair[int64, *Vertex], len(vertices))
	for i, v := range vertices {
		pairs[i] = dataset.P(v.ID(), v)
	}
	in := dataset.Partition(o.partitions, pairs, dataset.WithWorkers(o.workers))

	start := time.Now()
	mapped, err := dataset.MapPartitions(ctx, in, func(ctx context.Context, _ int, part []dataset.Pair[int64, *Vertex]) ([]dataset.Pair[string, KeyValue], error) {
		c := &collector{}
		for _, p := range part {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := job.Map(ctx, p.Value, c); err != nil {
				return nil, err
			}
		}
		if combine {
			cc := &collector{}
			order, keys, vals := group(c.pairs)
			for _, k := range order {
				if err := job.Combine(ctx, keys[k].Key, vals[k], cc); err != nil {
					return nil, err
				}
			}
			c = cc
		}
		out := make([]dataset.Pair[string, KeyValue], len(c.pairs))
		for i, kv := range c.pairs {
			out[i] = dataset.P(ir.Key(kv.Key), kv)
		}
		return out, nil
	})
	if err != nil {
		return nil, workerErr(err, -1)
	}
	mapReduceDuration.WithLabelValues(StageMap.String()).Observe(time.Since(start).Seconds())

	var final []KeyValue
	if job.DoStage(StageReduce) {
		start = time.Now()
		grouped, err := dataset.GroupByKey(ctx, mapped)
		if err != nil {
			return nil, err
		}
		reduced, err := dataset.MapPartitions(ctx, grouped, func(ctx context.Context, _ int, part []dataset.Pair[string, []KeyValue]) ([]dataset.Pair[string, KeyValue], error) {
			c := &collector{}
			for _, p := range part {
				vals := make([]ir.IRValue, len(p.Value))
				for i, kv := range p.Value {
					vals[i] = kv.Value
				}
				ir.SortValues(vals)
				if err := job.Reduce(ctx, p.Value[0].Key, vals, c); err != nil {
					return nil, err
				}
			}
			out := make([]dataset.Pair[string, KeyValue], len(c.pairs))
			for i, kv := range c.pairs {
				out[i] = dataset.P(ir.Key(kv.Key), kv)
			}
			return out, nil
		})
		if err != nil {
			return nil, workerErr(err, -1)
		}
		mapReduceDuration.WithLabelValues(StageReduce.String()).Observe(time.Since(start).Seconds())
		mapped = reduced
	}
	for _, p := range mapped.Collect() {
		final = append(final, p.Value)
	}
	slices.SortStableFunc(final, func(a, b KeyValue) int {
		if c := strings.Compare(ir.Key(a.Key), ir.Key(b.Key)); c != 0 {
			return c
		}
		return ir.Compare(a.Value, b.Value)
	})

	res, err := job.GenerateFinalResult(final)
	if err != nil {
		return nil, err
	}
	log.Debug("map reduce complete",
		"pairs", len(final),
		"combine", combine,
	)
	return res, nil
}

// MapReduce runs job over the vertices of r and stores the result in its
// memory under the job's memory key.
func (r *Result) MapReduce(ctx context.Context, job MapReduce, opts ...Option) (ir.IRValue, error) {
	v, err := RunMapReduce(ctx, job, r.Vertices, opts...)
	if err != nil {
		return nil, err
	}
	r.Memory.putResult(job.MemoryKey(), v)
	return v, nil
}
