package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tinkergo/internal/harness"
)

// RunSummary is one persisted run in the runs command output.
type RunSummary struct {
	ID         string    `json:"id"`
	Program    string    `json:"program"`
	Iterations int       `json:"iterations"`
	Started    time.Time `json:"started"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs <db>",
		Short: "List the vertex program runs persisted in a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(rootOpts, cmd, args[0])
		},
	}
}

func listRuns(opts *RootOptions, cmd *cobra.Command, dbPath string) error {
	g, err := openGraph(cmd.Context(), dbPath, opts.log)
	if err != nil {
		return err
	}
	defer g.Close()
	if g.st == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("not a database: %s", dbPath))
	}

	runs, err := g.st.ListRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	out := make([]RunSummary, len(runs))
	for i, r := range runs {
		out[i] = RunSummary(r)
	}
	return opts.formatter(cmd, nil).Success(out, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "No runs.")
			return
		}
		for _, r := range out {
			fmt.Fprintf(w, "%s  %-34s %3d supersteps  %s\n", r.ID, r.Program, r.Iterations, r.Started.Format(time.RFC3339))
		}
	})
}

// CatalogEntry is one traversal in the catalog command output.
type CatalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Ordered     bool   `json:"ordered"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the named traversals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := harness.Catalog()
			out := make([]CatalogEntry, len(entries))
			width := 0
			for i, e := range entries {
				out[i] = CatalogEntry{Name: e.Name, Description: e.Description, Ordered: e.Ordered}
				width = max(width, len(e.Name))
			}
			return rootOpts.formatter(cmd, nil).Success(out, func(w io.Writer) {
				for _, e := range out {
					fmt.Fprintf(w, "%-*s  %s\n", width, e.Name, e.Description)
				}
			})
		},
	}
}
