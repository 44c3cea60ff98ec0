package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/config"
	"github.com/roach88/tinkergo/internal/engine"
	"github.com/roach88/tinkergo/internal/strategy"
)

// addJobFlags adds the flags that override fields of a CUE job file.
func addJobFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "CUE job file; flags override its fields")
	flags.String("graph", graphModern, `graph: "modern", a .json graph document or a sqlite database`)
	flags.String("traversal", "", "catalog traversal to run (see tinkergo catalog)")
	flags.String("mode", "standard", "execution mode (standard|computer)")
	flags.Int("partitions", 0, "computer mode partitions (0 for one per CPU)")
	flags.Int("workers", 0, "computer mode workers (0 for one per partition)")
	flags.Int("max-supersteps", 100, "computer mode superstep ceiling")
	flags.String("persist", "nothing", "what a computer run persists into a sqlite graph (nothing|vertex_properties|edges)")
	flags.StringSlice("exclude", nil, "strategies to leave out")
}

// job resolves the job: defaults, then the job file, then any flag or
// TINKERGO_ variable that was set. The result is validated against the
// job schema again so flag values get the same checks as the file.
func (o *RootOptions) job() (*config.Job, error) {
	job := config.Default()
	if path := o.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid job file", err)
		}
		job = loaded
	}

	if o.v.IsSet("graph") {
		job.Graph = o.v.GetString("graph")
	}
	if o.v.IsSet("traversal") {
		job.Traversal = o.v.GetString("traversal")
	}
	if o.v.IsSet("mode") {
		job.Mode = o.v.GetString("mode")
	}
	if o.v.IsSet("partitions") {
		job.Partitions = o.v.GetInt("partitions")
	}
	if o.v.IsSet("workers") {
		job.Workers = o.v.GetInt("workers")
	}
	if o.v.IsSet("max-supersteps") {
		job.MaxSupersteps = o.v.GetInt("max-supersteps")
	}
	if o.v.IsSet("persist") {
		job.Persist = o.v.GetString("persist")
	}
	if o.v.IsSet("exclude") {
		job.Strategies.Exclude = o.v.GetStringSlice("exclude")
	}

	if job.Strategies.Exclude == nil {
		job.Strategies.Exclude = []string{}
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	job, err = config.Parse("flags", data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid job", err)
	}
	if job.Traversal == "" {
		return nil, NewExitError(ExitCommandError, "a traversal is required (--traversal or the job file)")
	}
	return job, nil
}

// engine builds an engine for job over g. Computer runs over a sqlite
// graph write their output back to it unless the job persists nothing.
func (o *RootOptions) engine(job *config.Job, g *openedGraph) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(o.log),
		engine.WithStrategies(job.Registry(strategy.WithLogger(o.log))),
		engine.WithRunOptions(job.ComputerOptions()...),
	}
	if g.st != nil && job.Persist != "nothing" {
		opts = append(opts, engine.WithRunOptions(computer.WithOutputWriter(g.st)))
	}
	if job.Seed != nil {
		opts = append(opts, engine.WithSeed(*job.Seed))
	}
	return engine.New(g.graph, opts...)
}

// formatter returns the output formatter for cmd. A job file can ask for
// json output; an explicit --format wins.
func (o *RootOptions) formatter(cmd *cobra.Command, job *config.Job) *OutputFormatter {
	format := o.Format
	if job != nil && job.Output == "json" && !o.v.IsSet("format") {
		format = "json"
	}
	return &OutputFormatter{Format: format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
}
