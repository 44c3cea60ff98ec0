package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/tinkergo/internal/store"
	"github.com/roach88/tinkergo/internal/structure"
	"github.com/roach88/tinkergo/internal/testutil"
)

const graphModern = "modern"

// openedGraph is a graph named on the command line. st is set when the
// graph lives in a sqlite database.
type openedGraph struct {
	graph structure.Graph
	st    *store.Store
}

func (g *openedGraph) Close() error {
	if g.st == nil {
		return nil
	}
	return g.st.Close()
}

// openGraph resolves a --graph value: "modern" for the built-in modern
// graph, a .json graph document loaded into memory, or the path of an
// existing sqlite database.
func openGraph(ctx context.Context, name string, log *slog.Logger) (*openedGraph, error) {
	switch {
	case name == graphModern:
		g := structure.NewMemoryGraph(structure.WithIndex("name"))
		if err := structure.Load(ctx, g, testutil.ModernDocument()); err != nil {
			return nil, err
		}
		return &openedGraph{graph: g}, nil

	case filepath.Ext(name) == ".json":
		doc, err := readDocument(name)
		if err != nil {
			return nil, err
		}
		g := structure.NewMemoryGraph(structure.WithIndex("name"))
		if err := structure.Load(ctx, g, doc); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load graph document", err)
		}
		return &openedGraph{graph: g}, nil

	default:
		if _, err := os.Stat(name); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", name), err)
		}
		st, err := store.Open(name, store.WithLogger(log))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		return &openedGraph{graph: st, st: st}, nil
	}
}

func readDocument(path string) (*structure.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open graph document", err)
	}
	defer f.Close()
	doc, err := structure.ReadDocument(f)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read graph document", err)
	}
	return doc, nil
}
