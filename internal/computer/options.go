package computer

import (
	"log/slog"
	"runtime"
)

// DefaultMaxSupersteps bounds runs that never vote to halt.
const DefaultMaxSupersteps = 100

// ResultGraph selects the graph a run's output is attached to.
type ResultGraph int

const (
	// ResultOriginal writes computed values back into the input graph.
	ResultOriginal ResultGraph = iota
	// ResultNew builds a fresh graph holding the output.
	ResultNew
)

func (r ResultGraph) String() string {
	if r == ResultNew {
		return "new"
	}
	return "original"
}

// Persist selects what of the output is kept.
type Persist int

const (
	PersistNothing Persist = iota
	// PersistVertexProperties keeps vertices with their properties and
	// computed values.
	PersistVertexProperties
	// PersistEdges keeps vertices and edges.
	PersistEdges
)

func (p Persist) String() string {
	switch p {
	case PersistVertexProperties:
		return "vertex_properties"
	case PersistEdges:
		return "edges"
	default:
		return "nothing"
	}
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	partitions    int
	workers       int
	maxSupersteps int
	combine       bool
	persist       Persist
	resultGraph   ResultGraph
	output        OutputWriter
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        slog.Default(),
		partitions:    runtime.GOMAXPROCS(0),
		maxSupersteps: DefaultMaxSupersteps,
		combine:       true,
		persist:       PersistNothing,
		resultGraph:   ResultOriginal,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.partitions < 1 {
		o.partitions = 1
	}
	if o.workers < 1 {
		o.workers = o.partitions
	}
	return o
}

// WithLogger sets the logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPartitions sets the number of graph partitions.
//
// Default: GOMAXPROCS
func WithPartitions(n int) Option {
	return func(o *options) { o.partitions = n }
}

// WithWorkers bounds the partitions processed concurrently.
//
// Default: the partition count
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMaxSupersteps sets the superstep ceiling.
//
// Default: 100 (DefaultMaxSupersteps)
func WithMaxSupersteps(n int) Option {
	return func(o *options) { o.maxSupersteps = n }
}

// WithCombine enables or disables the combine stage of map/reduce jobs.
//
// Default: true
func WithCombine(enabled bool) Option {
	return func(o *options) { o.combine = enabled }
}

// WithPersist selects what output a run keeps.
//
// Default: PersistNothing
func WithPersist(p Persist) Option {
	return func(o *options) { o.persist = p }
}

// WithResultGraph selects where the output is attached.
//
// Default: ResultOriginal
func WithResultGraph(r ResultGraph) Option {
	return func(o *options) { o.resultGraph = r }
}

// WithOutputWriter persists every successful run.
func WithOutputWriter(w OutputWriter) Option {
	return func(o *options) { o.output = w }
}
