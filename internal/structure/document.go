package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/tinkergo/internal/ir"
)

// Document is the JSON interchange form of a whole graph.
//
//	{"vertices": [{"id": 1, "label": "person", "properties": {"name": "marko"}}],
//	 "edges":    [{"id": 7, "label": "knows", "outV": 1, "inV": 2, "properties": {}}]}
type Document struct {
	Vertices []DocumentVertex `json:"vertices"`
	Edges    []DocumentEdge   `json:"edges"`
}

// DocumentVertex is one vertex of a Document.
type DocumentVertex struct {
	ID         int64       `json:"id"`
	Label      string      `json:"label"`
	Properties ir.IRObject `json:"properties,omitempty"`
}

// DocumentEdge is one edge of a Document.
type DocumentEdge struct {
	ID         int64       `json:"id"`
	Label      string      `json:"label"`
	OutV       int64       `json:"outV"`
	InV        int64       `json:"inV"`
	Properties ir.IRObject `json:"properties,omitempty"`
}

// ReadDocument decodes a Document. Unknown fields are rejected.
func ReadDocument(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph document: %w", err)
	}
	return &doc, nil
}

// Load writes every element of doc into l, vertices first.
func Load(ctx context.Context, l Loader, doc *Document) error {
	labels := make(map[int64]string, len(doc.Vertices))
	for _, v := range doc.Vertices {
		if err := l.PutVertex(ctx, &Vertex{ID: v.ID, Label: v.Label, Properties: v.Properties}); err != nil {
			return fmt.Errorf("load vertex %d: %w", v.ID, err)
		}
		labels[v.ID] = v.Label
	}
	for _, e := range doc.Edges {
		edge := &Edge{
			ID:         e.ID,
			Label:      e.Label,
			OutV:       ir.IRVertex{ID: e.OutV, Label: labels[e.OutV]},
			InV:        ir.IRVertex{ID: e.InV, Label: labels[e.InV]},
			Properties: e.Properties,
		}
		if err := l.PutEdge(ctx, edge); err != nil {
			return fmt.Errorf("load edge %d: %w", e.ID, err)
		}
	}
	return nil
}

// Export reads g into a Document, elements in id order.
func Export(ctx context.Context, g Graph) (*Document, error) {
	vit, err := g.Vertices(ctx)
	if err != nil {
		return nil, err
	}
	vertices, err := Collect(ctx, vit)
	if err != nil {
		return nil, err
	}
	eit, err := g.Edges(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := Collect(ctx, eit)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	for _, v := range vertices {
		doc.Vertices = append(doc.Vertices, DocumentVertex{ID: v.ID, Label: v.Label, Properties: v.Properties})
	}
	for _, e := range edges {
		doc.Edges = append(doc.Edges, DocumentEdge{ID: e.ID, Label: e.Label, OutV: e.OutV.ID, InV: e.InV.ID, Properties: e.Properties})
	}
	return doc, nil
}
