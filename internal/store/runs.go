package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

var _ computer.OutputWriter = (*Store)(nil)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is a persisted vertex program run.
type Run struct {
	ID         string
	Program    string
	Iterations int
	Persist    string
	Started    time.Time
	Duration   time.Duration
	Memory     ir.IRObject
	// Vertices and Edges hold the persisted output, in id order.
	Vertices []*structure.Vertex
	Edges    []*structure.Edge
}

// WriteRun implements computer.OutputWriter. The run, its final memory and
// its persisted output are written in one transaction. Writing a run id
// that already exists is a no-op.
func (s *Store) WriteRun(ctx context.Context, r *computer.Result) error {
	vertices, edges, err := persisted(ctx, r)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, program, iterations, persist, started_at, duration_ms, ir_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO NOTHING
		`,
			r.RunID,
			r.Program,
			r.Iterations,
			r.Persist.String(),
			r.Started.UTC().Format(time.RFC3339Nano),
			r.Duration.Milliseconds(),
			ir.IRVersion,
		)
		if err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		mem := r.Memory.AsObject()
		for _, key := range mem.SortedKeys() {
			enc, err := marshalValue(mem[key])
			if err != nil {
				return fmt.Errorf("write run memory %q: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO run_memory (run_id, key, value) VALUES (?, ?, ?)`, r.RunID, key, enc); err != nil {
				return fmt.Errorf("write run memory %q: %w", key, err)
			}
		}
		for _, v := range vertices {
			props, err := marshalProps(v.Properties)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_vertices (run_id, vertex_id, label, properties) VALUES (?, ?, ?, ?)
			`, r.RunID, v.ID, v.Label, props)
			if err != nil {
				return fmt.Errorf("write run vertex %d: %w", v.ID, err)
			}
		}
		for _, e := range edges {
			props, err := marshalProps(e.Properties)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_edges (run_id, edge_id, label, out_v, in_v, properties) VALUES (?, ?, ?, ?, ?, ?)
			`, r.RunID, e.ID, e.Label, e.OutV.ID, e.InV.ID, props)
			if err != nil {
				return fmt.Errorf("write run edge %d: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("run persisted",
		"run_id", r.RunID,
		"program", r.Program,
		"vertices", len(vertices),
		"edges", len(edges),
	)
	return nil
}

// persisted selects the output kept by r: vertices with their properties
// and computed views, plus the outgoing edges when the run persists edges.
func persisted(ctx context.Context, r *computer.Result) ([]*structure.Vertex, []*structure.Edge, error) {
	if r.Persist == computer.PersistNothing {
		return nil, nil, nil
	}
	var (
		vertices []*structure.Vertex
		edges    []*structure.Edge
	)
	for _, v := range r.Vertices {
		props := v.Star().Vertex.Properties.Clone()
		if props == nil {
			props = ir.IRObject{}
		}
		maps.Copy(props, v.View())
		vertices = append(vertices, &structure.Vertex{ID: v.ID(), Label: v.Label(), Properties: props})
		if r.Persist == computer.PersistEdges {
			edges = append(edges, v.Star().Edges(structure.Out)...)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return vertices, edges, nil
}

// ReadRun reads a persisted run. Returns ErrRunNotFound for unknown ids.
func (s *Store) ReadRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run      Run
		started  string
		duration int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, program, iterations, persist, started_at, duration_ms
		FROM runs WHERE run_id = ?
	`, runID).Scan(&run.ID, &run.Program, &run.Iterations, &run.Persist, &started, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if run.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("read run %s: started_at: %w", runID, err)
	}
	run.Duration = time.Duration(duration) * time.Millisecond

	if run.Memory, err = s.readRunMemory(ctx, runID); err != nil {
		return nil, err
	}
	if run.Vertices, err = s.readRunVertices(ctx, runID); err != nil {
		return nil, err
	}
	if run.Edges, err = s.readRunEdges(ctx, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) readRunMemory(ctx context.Context, runID string) (ir.IRObject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM run_memory WHERE run_id = ? ORDER BY key`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run memory: %w", err)
	}
	defer rows.Close()
	mem := ir.IRObject{}
	for rows.Next() {
		var key, enc string
		if err := rows.Scan(&key, &enc); err != nil {
			return nil, fmt.Errorf("scan run memory: %w", err)
		}
		v, err := unmarshalValue(enc)
		if err != nil {
			return nil, fmt.Errorf("run memory %q: %w", key, err)
		}
		mem[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run memory: %w", err)
	}
	return mem, nil
}

func (s *Store) readRunVertices(ctx context.Context, runID string) ([]*structure.Vertex, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vertex_id, label, properties FROM run_vertices
		WHERE run_id = ? ORDER BY vertex_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run vertices: %w", err)
	}
	defer rows.Close()
	var out []*structure.Vertex
	for rows.Next() {
		v, err := scanVertex(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run vertices: %w", err)
	}
	return out, nil
}

func (s *Store) readRunEdges(ctx context.Context, runID string) ([]*structure.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.edge_id, e.label, e.out_v, COALESCE(ov.label, ''), e.in_v, COALESCE(iv.label, ''), e.properties
		FROM run_edges e
		LEFT JOIN run_vertices ov ON ov.run_id = e.run_id AND ov.vertex_id = e.out_v
		LEFT JOIN run_vertices iv ON iv.run_id = e.run_id AND iv.vertex_id = e.in_v
		WHERE e.run_id = ? ORDER BY e.edge_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run edges: %w", err)
	}
	defer rows.Close()
	var out []*structure.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run edges: %w", err)
	}
	return out, nil
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID         string
	Program    string
	Iterations int
	Started    time.Time
}

// ListRuns returns every persisted run, oldest first. Run ids are ULIDs,
// so ordering by id is ordering by start time.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, program, iterations, started_at FROM runs
		ORDER BY run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	out := []RunSummary{}
	for rows.Next() {
		var (
			r       RunSummary
			started string
		)
		if err := rows.Scan(&r.ID, &r.Program, &r.Iterations, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
