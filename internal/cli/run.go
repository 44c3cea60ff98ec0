package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tinkergo/internal/harness"
	"github.com/roach88/tinkergo/internal/ir"
)

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Traversal   string       `json:"traversal"`
	Mode        string       `json:"mode"`
	Submission  string       `json:"submission"`
	Fingerprint string       `json:"fingerprint"`
	Values      []ir.IRValue `json:"values"`
	RunID       string       `json:"run_id,omitempty"`
	Iterations  int          `json:"iterations,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a catalog traversal",
		Long: `Run a named traversal from the catalog over a graph.

In standard mode the traversal is iterated directly. In computer mode it
runs as a vertex program across partitions; over a sqlite graph the run
is persisted unless the job persists nothing.

Examples:
  tinkergo run --traversal out-name-counts
  tinkergo run --traversal people-by-age --mode computer --partitions 4
  tinkergo run --config job.cue --format json
  TINKERGO_GRAPH=graph.db tinkergo run --traversal age-sum`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraversal(rootOpts, cmd)
		},
	}
	addJobFlags(cmd)
	return cmd
}

func runTraversal(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	job, err := opts.job()
	if err != nil {
		return err
	}

	g, err := openGraph(ctx, job.Graph, opts.log)
	if err != nil {
		return err
	}
	defer g.Close()

	eng := opts.engine(job, g)
	t, _, err := harness.Build(job.Traversal, eng.G(job.TraversalMode()))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid traversal", err)
	}

	res, err := eng.Iterate(ctx, t)
	if err != nil {
		return classify("traversal failed", err)
	}

	out := RunResult{
		Traversal:   job.Traversal,
		Mode:        res.Mode.String(),
		Submission:  res.ID,
		Fingerprint: res.Fingerprint,
		Values:      res.Values,
	}
	if out.Values == nil {
		out.Values = []ir.IRValue{}
	}
	if res.Run != nil {
		out.RunID = res.Run.RunID
		out.Iterations = res.Run.Iterations
	}

	f := opts.formatter(cmd, job)
	return f.Success(out, func(w io.Writer) {
		for _, v := range out.Values {
			fmt.Fprintln(w, canonical(v))
		}
		if opts.Verbose {
			fmt.Fprintf(f.errWriter(), "%d results (%s mode)\n", len(out.Values), out.Mode)
		}
	})
}

// ExplainStep is one line of the explain command's JSON payload.
type ExplainStep struct {
	Strategy  string `json:"strategy"`
	Category  string `json:"category,omitempty"`
	Traversal string `json:"traversal"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show a traversal after each strategy",
		Long: `Apply the job's strategies to a catalog traversal and print the
traversal before the first strategy and after each one.

Examples:
  tinkergo explain --traversal repeat-out
  tinkergo explain --traversal people-by-age --mode computer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return explainTraversal(rootOpts, cmd)
		},
	}
	addJobFlags(cmd)
	return cmd
}

func explainTraversal(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	job, err := opts.job()
	if err != nil {
		return err
	}

	g, err := openGraph(ctx, job.Graph, opts.log)
	if err != nil {
		return err
	}
	defer g.Close()

	eng := opts.engine(job, g)
	t, _, err := harness.Build(job.Traversal, eng.G(job.TraversalMode()))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid traversal", err)
	}

	explained, err := eng.Explain(ctx, t)
	if err != nil {
		return classify("strategy application failed", err)
	}

	steps := make([]ExplainStep, len(explained))
	width := 0
	for i, e := range explained {
		steps[i] = ExplainStep{Strategy: e.Strategy, Traversal: e.Traversal}
		if i > 0 {
			steps[i].Category = e.Category.String()
		}
		width = max(width, len(e.Strategy))
	}

	return opts.formatter(cmd, job).Success(steps, func(w io.Writer) {
		for _, s := range steps {
			fmt.Fprintf(w, "%-*s %s\n", width, s.Strategy, s.Traversal)
		}
	})
}
