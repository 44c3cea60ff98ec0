package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

var (
	_ structure.Graph                  = (*Store)(nil)
	_ structure.Loader                 = (*Store)(nil)
	_ structure.ConcurrentMutationSafe = (*Store)(nil)
)

// ConcurrentMutationSafe implements structure.ConcurrentMutationSafe. Every
// read-modify-write runs in a transaction on the single connection.
func (s *Store) ConcurrentMutationSafe() bool { return true }

const edgeColumns = `e.id, e.label, e.out_v, ov.label, e.in_v, iv.label, e.properties`

const edgeJoin = `
	FROM edges e
	JOIN vertices ov ON ov.id = e.out_v
	JOIN vertices iv ON iv.id = e.in_v`

type scanner interface {
	Scan(dest ...any) error
}

func scanVertex(row scanner) (*structure.Vertex, error) {
	var (
		v     structure.Vertex
		props string
	)
	if err := row.Scan(&v.ID, &v.Label, &props); err != nil {
		return nil, err
	}
	p, err := unmarshalProps(props)
	if err != nil {
		return nil, fmt.Errorf("vertex %d: %w", v.ID, err)
	}
	v.Properties = p
	return &v, nil
}

func scanEdge(row scanner) (*structure.Edge, error) {
	var (
		e     structure.Edge
		props string
	)
	if err := row.Scan(&e.ID, &e.Label, &e.OutV.ID, &e.OutV.Label, &e.InV.ID, &e.InV.Label, &props); err != nil {
		return nil, err
	}
	p, err := unmarshalProps(props)
	if err != nil {
		return nil, fmt.Errorf("edge %d: %w", e.ID, err)
	}
	e.Properties = p
	return &e, nil
}

// Vertex implements structure.Graph.
func (s *Store) Vertex(ctx context.Context, id int64) (*structure.Vertex, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, label, properties FROM vertices WHERE id = ?`, id)
	v, err := scanVertex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vertex %d: %w", id, structure.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read vertex %d: %w", id, err)
	}
	return v, nil
}

// Edge implements structure.Graph.
func (s *Store) Edge(ctx context.Context, id int64) (*structure.Edge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+edgeColumns+edgeJoin+` WHERE e.id = ?`, id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edge %d: %w", id, structure.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read edge %d: %w", id, err)
	}
	return e, nil
}

// Vertices implements structure.Graph. Vertices are returned in id order.
// The scan is bounded by the highest id present when it opens, so vertices
// added while it is being pulled are not visited.
func (s *Store) Vertices(ctx context.Context) (structure.Iterator[*structure.Vertex], error) {
	hi, err := s.maxID(ctx, "vertices")
	if err != nil {
		return nil, err
	}
	return s.vertexPages(`SELECT id, label, properties FROM vertices WHERE id <= ? AND id > ? ORDER BY id LIMIT ?`, []any{hi}, nil), nil
}

// Edges implements structure.Graph. Edges are returned in id order, bounded
// like Vertices.
func (s *Store) Edges(ctx context.Context) (structure.Iterator[*structure.Edge], error) {
	hi, err := s.maxID(ctx, "edges")
	if err != nil {
		return nil, err
	}
	return s.edgePages(`SELECT `+edgeColumns+edgeJoin+` WHERE e.id <= ? AND e.id > ? ORDER BY e.id LIMIT ?`, []any{hi}), nil
}

func (s *Store) maxID(ctx context.Context, table string) (int64, error) {
	var hi int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+table).Scan(&hi); err != nil {
		return 0, fmt.Errorf("read %s high-water mark: %w", table, err)
	}
	return hi, nil
}

// VerticesByProperty implements structure.Graph. Indexed keys are answered
// from vertex_index; other keys scan the vertices table.
func (s *Store) VerticesByProperty(ctx context.Context, key string, value ir.IRValue) (structure.Iterator[*structure.Vertex], error) {
	want, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	hi, err := s.maxID(ctx, "vertices")
	if err != nil {
		return nil, err
	}
	if slices.Contains(s.IndexedKeys(), key) {
		return s.vertexPages(`
			SELECT v.id, v.label, v.properties
			FROM vertex_index x
			JOIN vertices v ON v.id = x.vertex_id
			WHERE x.key = ? AND x.value = ? AND v.id <= ? AND v.id > ?
			ORDER BY v.id
			LIMIT ?`, []any{key, want, hi}, nil), nil
	}
	match := func(v *structure.Vertex) bool {
		val, ok := v.Value(key)
		return ok && ir.Key(val) == ir.Key(value)
	}
	return s.vertexPages(`SELECT id, label, properties FROM vertices WHERE id <= ? AND id > ? ORDER BY id LIMIT ?`, []any{hi}, match), nil
}

// IncidentEdges implements structure.Graph. With Both, outgoing edges come
// before incoming ones.
func (s *Store) IncidentEdges(ctx context.Context, vertexID int64, dir structure.Direction, labels ...string) (structure.Iterator[*structure.Edge], error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM vertices WHERE id = ?`, vertexID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vertex %d: %w", vertexID, structure.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read vertex %d: %w", vertexID, err)
	}

	filter := ""
	args := []any{vertexID}
	if len(labels) > 0 {
		filter = " AND e.label IN (" + strings.TrimSuffix(strings.Repeat("?,", len(labels)), ",") + ")"
		for _, l := range labels {
			args = append(args, l)
		}
	}
	side := func(column string) structure.Iterator[*structure.Edge] {
		return s.edgePages(`SELECT `+edgeColumns+edgeJoin+` WHERE e.`+column+` = ?`+filter+` AND e.id > ? ORDER BY e.id LIMIT ?`, args)
	}
	switch dir {
	case structure.Out:
		return side("out_v"), nil
	case structure.In:
		return side("in_v"), nil
	default:
		return &concatIterator[*structure.Edge]{parts: []structure.Iterator[*structure.Edge]{side("out_v"), side("in_v")}}, nil
	}
}

// vertexPages pages through query, whose last two placeholders are the
// keyset cursor and the limit. keep filters rows when not nil.
func (s *Store) vertexPages(query string, args []any, keep func(*structure.Vertex) bool) structure.Iterator[*structure.Vertex] {
	return newPageIterator(s.pageSize, func(ctx context.Context, after int64, limit int) ([]*structure.Vertex, int, int64, error) {
		rows, err := s.db.QueryContext(ctx, query, append(slices.Clone(args), after, limit)...)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("query vertices: %w", err)
		}
		defer rows.Close()

		var (
			out  []*structure.Vertex
			n    int
			last = after
		)
		for rows.Next() {
			v, err := scanVertex(rows)
			if err != nil {
				return nil, 0, 0, err
			}
			n++
			last = v.ID
			if keep == nil || keep(v) {
				out = append(out, v)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, 0, 0, fmt.Errorf("iterate vertices: %w", err)
		}
		return out, n, last, nil
	})
}

func (s *Store) edgePages(query string, args []any) structure.Iterator[*structure.Edge] {
	return newPageIterator(s.pageSize, func(ctx context.Context, after int64, limit int) ([]*structure.Edge, int, int64, error) {
		rows, err := s.db.QueryContext(ctx, query, append(slices.Clone(args), after, limit)...)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("query edges: %w", err)
		}
		defer rows.Close()

		var (
			out  []*structure.Edge
			last = after
		)
		for rows.Next() {
			e, err := scanEdge(rows)
			if err != nil {
				return nil, 0, 0, err
			}
			last = e.ID
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			return nil, 0, 0, fmt.Errorf("iterate edges: %w", err)
		}
		return out, len(out), last, nil
	})
}
