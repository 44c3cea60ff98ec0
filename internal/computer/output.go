package computer

import (
	"context"
	"maps"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// OutputWriter receives every run that votes to halt, after its result
// graph has been built. Runs stopped by the superstep ceiling are not
// written.
type OutputWriter interface {
	WriteRun(ctx context.Context, r *Result) error
}

func (r *runner[M]) output(ctx context.Context) error {
	g, err := buildResultGraph(ctx, r.graph, r.res.Vertices, r.opts.resultGraph, r.opts.persist)
	if err != nil {
		return err
	}
	r.res.Graph = g
	if r.opts.output == nil || r.res.HitCeiling {
		return nil
	}
	if err := r.opts.output.WriteRun(ctx, r.res); err != nil {
		return fault.Wrap(fault.CodeUnreachable, err, "write run %s", r.res.RunID)
	}
	return nil
}

// buildResultGraph attaches the computed views to a graph. With
// ResultOriginal the views are written into src as properties; with
// ResultNew a fresh graph is built from the vertices, plus the edges of src
// when persist is PersistEdges.
func buildResultGraph(ctx context.Context, src structure.Graph, vertices []*Vertex, rg ResultGraph, persist Persist) (structure.Graph, error) {
	if persist == PersistNothing {
		return nil, nil
	}
	if rg == ResultOriginal {
		for _, v := range vertices {
			for _, key := range v.ViewKeys() {
				if err := src.SetProperty(ctx, v.ID(), key, v.view[key]); err != nil {
					return nil, fault.Wrap(fault.CodeUnreachable, err, "write back vertex %d", v.ID())
				}
			}
		}
		return src, nil
	}

	dst := structure.NewMemoryGraph()
	for _, v := range vertices {
		props := v.star.Vertex.Properties.Clone()
		if props == nil {
			props = ir.IRObject{}
		}
		maps.Copy(props, v.view)
		err := dst.PutVertex(ctx, &structure.Vertex{ID: v.ID(), Label: v.Label(), Properties: props})
		if err != nil {
			return nil, fault.Wrap(fault.CodeUnreachable, err, "build result graph")
		}
	}
	if persist != PersistEdges {
		return dst, nil
	}
	for _, v := range vertices {
		for _, e := range v.star.Edges(structure.Out) {
			if err := dst.PutEdge(ctx, e); err != nil {
				return nil, fault.Wrap(fault.CodeUnreachable, err, "build result graph")
			}
		}
	}
	return dst, nil
}
