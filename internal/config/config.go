// Package config loads job configuration written in CUE.
//
// A job file is a CUE struct checked against the embedded #Job schema;
// omitted fields take the schema defaults and unknown fields are rejected:
//
//	mode:       "computer"
//	partitions: 4
//	persist:    "vertex_properties"
//	strategies: exclude: ["RepeatUnrollStrategy"]
package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/strategy"
	"github.com/roach88/tinkergo/internal/traversal"
)

//go:embed schema.cue
var schemaCUE string

// Job is a decoded job file.
type Job struct {
	Graph         string     `json:"graph"`
	Traversal     string     `json:"traversal,omitempty"`
	Mode          string     `json:"mode"`
	Partitions    int        `json:"partitions"`
	Workers       int        `json:"workers"`
	MaxSupersteps int        `json:"maxSupersteps"`
	Combine       bool       `json:"combine"`
	Persist       string     `json:"persist"`
	ResultGraph   string     `json:"resultGraph"`
	Strategies    Strategies `json:"strategies"`
	Output        string     `json:"output"`
	Seed          *uint64    `json:"seed,omitempty"`
}

// Strategies adjusts the default strategy registry.
type Strategies struct {
	Exclude []string `json:"exclude"`
}

// Load reads and parses the job file at path.
func Load(path string) (*Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidConfig, err, "read job file")
	}
	return Parse(path, src)
}

// Default returns a job with every field at its schema default.
func Default() *Job {
	job, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: schema defaults do not validate: %v", err))
	}
	return job
}

// Parse checks src against #Job and decodes it. filename is only used in
// error positions.
func Parse(filename string, src []byte) (*Job, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeInvalidConfig, err, "compile job schema")
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError(err)
	}
	v = schema.LookupPath(cue.ParsePath("#Job")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(err)
	}

	var job Job
	if err := v.Decode(&job); err != nil {
		return nil, cueError(err)
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// cueError reports the first CUE error with its position.
func cueError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return fault.Wrap(fault.CodeInvalidConfig, err, "invalid job")
	}
	first := errs[0]
	e := fault.New(fault.CodeInvalidConfig, "invalid job: %s", first.Error())
	var at []string
	for _, pos := range errors.Positions(first) {
		at = append(at, fmt.Sprintf("%s:%d:%d", pos.Filename(), pos.Line(), pos.Column()))
	}
	if len(at) > 0 {
		e = e.With("position", strings.Join(at, ","))
	}
	return e
}

func (j *Job) validate() error {
	known := strategy.Default().Names()
	for _, name := range j.Strategies.Exclude {
		if !slices.Contains(known, name) {
			return fault.New(fault.CodeInvalidConfig, "unknown strategy %q in strategies.exclude", name).
				With("known", fmt.Sprint(known))
		}
	}
	return nil
}

// TraversalMode returns the execution mode.
func (j *Job) TraversalMode() traversal.Mode {
	if j.Mode == "computer" {
		return traversal.Computer
	}
	return traversal.Standard
}

// Registry returns the default strategy registry without the excluded
// strategies.
func (j *Job) Registry(opts ...strategy.Option) *strategy.Registry {
	r := strategy.Default(opts...)
	r.Remove(j.Strategies.Exclude...)
	return r
}

// ComputerOptions returns the run options of a computer mode job.
func (j *Job) ComputerOptions() []computer.Option {
	opts := []computer.Option{
		computer.WithMaxSupersteps(j.MaxSupersteps),
		computer.WithCombine(j.Combine),
		computer.WithPersist(j.persist()),
		computer.WithResultGraph(j.resultGraph()),
	}
	if j.Partitions > 0 {
		opts = append(opts, computer.WithPartitions(j.Partitions))
	}
	if j.Workers > 0 {
		opts = append(opts, computer.WithWorkers(j.Workers))
	}
	return opts
}

func (j *Job) persist() computer.Persist {
	switch j.Persist {
	case "vertex_properties":
		return computer.PersistVertexProperties
	case "edges":
		return computer.PersistEdges
	default:
		return computer.PersistNothing
	}
}

func (j *Job) resultGraph() computer.ResultGraph {
	if j.ResultGraph == "new" {
		return computer.ResultNew
	}
	return computer.ResultOriginal
}
