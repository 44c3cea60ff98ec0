package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tinkergo/internal/store"
	"github.com/roach88/tinkergo/internal/structure"
)

// LoadResult is the JSON payload of the load command.
type LoadResult struct {
	Database string   `json:"database"`
	Vertices int      `json:"vertices"`
	Edges    int      `json:"edges"`
	Indexed  []string `json:"indexed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <graph.json> <db>",
		Short: "Load a JSON graph document into sqlite",
		Long: `Load a JSON graph document into a sqlite database, creating the
database if it does not exist. Element ids are kept.

Examples:
  tinkergo load modern.json graph.db
  tinkergo load social.json graph.db --index name --index email`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return loadGraph(rootOpts, cmd, args[0], args[1])
		},
	}
	cmd.Flags().StringSlice("index", []string{"name"}, "vertex property keys to index")
	return cmd
}

func loadGraph(opts *RootOptions, cmd *cobra.Command, docPath, dbPath string) error {
	ctx := cmd.Context()
	doc, err := readDocument(docPath)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath, store.WithLogger(opts.log))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	for _, key := range opts.v.GetStringSlice("index") {
		if err := st.CreateIndex(ctx, key); err != nil {
			return WrapExitError(ExitFailure, "failed to create index", err)
		}
	}
	if err := structure.Load(ctx, st, doc); err != nil {
		return WrapExitError(ExitFailure, "failed to load graph", err)
	}
	opts.log.Info("graph loaded", "database", dbPath, "vertices", len(doc.Vertices), "edges", len(doc.Edges))

	out := LoadResult{
		Database: dbPath,
		Vertices: len(doc.Vertices),
		Edges:    len(doc.Edges),
		Indexed:  st.IndexedKeys(),
	}
	return opts.formatter(cmd, nil).Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "loaded %d vertices and %d edges into %s\n", out.Vertices, out.Edges, out.Database)
	})
}
