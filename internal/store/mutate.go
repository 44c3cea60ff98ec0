package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/structure"
)

// IndexedKeys implements structure.Graph.
func (s *Store) IndexedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.indexed)
}

func (s *Store) loadIndexedKeys(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM indexed_keys ORDER BY key`)
	if err != nil {
		return fmt.Errorf("query indexed keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return fmt.Errorf("scan indexed key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate indexed keys: %w", err)
	}
	s.mu.Lock()
	s.indexed = keys
	s.mu.Unlock()
	return nil
}

// CreateIndex adds a secondary index on a vertex property key and
// backfills it. Creating an existing index is a no-op.
func (s *Store) CreateIndex(ctx context.Context, key string) error {
	if slices.Contains(s.IndexedKeys(), key) {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO indexed_keys (key) VALUES (?) ON CONFLICT DO NOTHING`, key); err != nil {
			return fmt.Errorf("create index %q: %w", key, err)
		}
		rows, err := tx.QueryContext(ctx, `SELECT id, label, properties FROM vertices ORDER BY id`)
		if err != nil {
			return fmt.Errorf("backfill index %q: %w", key, err)
		}
		var vertices []*structure.Vertex
		for rows.Next() {
			v, err := scanVertex(rows)
			if err != nil {
				rows.Close()
				return err
			}
			vertices = append(vertices, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("backfill index %q: %w", key, err)
		}
		for _, v := range vertices {
			if val, ok := v.Properties[key]; ok {
				if err := indexValue(ctx, tx, key, val, v.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.indexed = append(s.indexed, key)
	slices.Sort(s.indexed)
	s.mu.Unlock()
	s.log.Debug("index created", "key", key)
	return nil
}

func indexValue(ctx context.Context, tx *sql.Tx, key string, val ir.IRValue, vertexID int64) error {
	enc, err := marshalValue(val)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vertex_index (key, value, vertex_id) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, key, enc, vertexID)
	if err != nil {
		return fmt.Errorf("index vertex %d: %w", vertexID, err)
	}
	return nil
}

func unindexValue(ctx context.Context, tx *sql.Tx, key string, vertexID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM vertex_index WHERE key = ? AND vertex_id = ?`, key, vertexID); err != nil {
		return fmt.Errorf("unindex vertex %d: %w", vertexID, err)
	}
	return nil
}

// nextID returns an id unused by any vertex or edge. Vertices and edges
// share one id space.
func nextID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var maxID int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(id), 0) FROM (
			SELECT MAX(id) AS id FROM vertices
			UNION ALL
			SELECT MAX(id) AS id FROM edges
		)
	`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return maxID + 1, nil
}

func (s *Store) insertVertex(ctx context.Context, tx *sql.Tx, v *structure.Vertex) error {
	props, err := marshalProps(v.Properties)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vertices (id, label, properties) VALUES (?, ?, ?)`, v.ID, v.Label, props); err != nil {
		return fmt.Errorf("insert vertex %d: %w", v.ID, err)
	}
	for _, key := range s.IndexedKeys() {
		if val, ok := v.Properties[key]; ok {
			if err := indexValue(ctx, tx, key, val, v.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertEdge(ctx context.Context, tx *sql.Tx, e *structure.Edge) error {
	props, err := marshalProps(e.Properties)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (id, label, out_v, in_v, properties) VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Label, e.OutV.ID, e.InV.ID, props)
	if err != nil {
		return fmt.Errorf("insert edge %d: %w", e.ID, err)
	}
	return nil
}

// vertexRef reads the label of a vertex that must exist.
func vertexRef(ctx context.Context, tx *sql.Tx, id int64, role string) (ir.IRVertex, error) {
	var label string
	err := tx.QueryRowContext(ctx, `SELECT label FROM vertices WHERE id = ?`, id).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.IRVertex{}, fmt.Errorf("%s vertex %d: %w", role, id, structure.ErrNotFound)
	}
	if err != nil {
		return ir.IRVertex{}, fmt.Errorf("read %s vertex %d: %w", role, id, err)
	}
	return ir.IRVertex{ID: id, Label: label}, nil
}

func exists(ctx context.Context, tx *sql.Tx, table string, id int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s %d: %w", table, id, err)
	}
	return true, nil
}

// AddVertex implements structure.Graph.
func (s *Store) AddVertex(ctx context.Context, label string, props ir.IRObject) (*structure.Vertex, error) {
	v := &structure.Vertex{Label: label, Properties: props.Clone()}
	if v.Properties == nil {
		v.Properties = ir.IRObject{}
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx)
		if err != nil {
			return err
		}
		v.ID = id
		return s.insertVertex(ctx, tx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AddEdge implements structure.Graph.
func (s *Store) AddEdge(ctx context.Context, label string, outV, inV int64, props ir.IRObject) (*structure.Edge, error) {
	e := &structure.Edge{Label: label, Properties: props.Clone()}
	if e.Properties == nil {
		e.Properties = ir.IRObject{}
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if e.OutV, err = vertexRef(ctx, tx, outV, "out"); err != nil {
			return err
		}
		if e.InV, err = vertexRef(ctx, tx, inV, "in"); err != nil {
			return err
		}
		if e.ID, err = nextID(ctx, tx); err != nil {
			return err
		}
		return insertEdge(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SetProperty implements structure.Graph.
func (s *Store) SetProperty(ctx context.Context, vertexID int64, key string, value ir.IRValue) error {
	return s.updateProperties(ctx, vertexID, key, func(props ir.IRObject) { props[key] = value })
}

// DropProperty implements structure.Graph.
func (s *Store) DropProperty(ctx context.Context, vertexID int64, key string) error {
	return s.updateProperties(ctx, vertexID, key, func(props ir.IRObject) { delete(props, key) })
}

func (s *Store) updateProperties(ctx context.Context, vertexID int64, key string, fn func(ir.IRObject)) error {
	indexed := slices.Contains(s.IndexedKeys(), key)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, label, properties FROM vertices WHERE id = ?`, vertexID)
		v, err := scanVertex(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("vertex %d: %w", vertexID, structure.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read vertex %d: %w", vertexID, err)
		}
		fn(v.Properties)
		props, err := marshalProps(v.Properties)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE vertices SET properties = ? WHERE id = ?`, props, vertexID); err != nil {
			return fmt.Errorf("update vertex %d: %w", vertexID, err)
		}
		if !indexed {
			return nil
		}
		if err := unindexValue(ctx, tx, key, vertexID); err != nil {
			return err
		}
		if val, ok := v.Properties[key]; ok {
			return indexValue(ctx, tx, key, val, vertexID)
		}
		return nil
	})
}

// PutVertex implements structure.Loader.
func (s *Store) PutVertex(ctx context.Context, v *structure.Vertex) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "vertices", v.ID)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("vertex %d already exists", v.ID)
		}
		return s.insertVertex(ctx, tx, v)
	})
}

// PutEdge implements structure.Loader.
func (s *Store) PutEdge(ctx context.Context, e *structure.Edge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "edges", e.ID)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("edge %d already exists", e.ID)
		}
		c := e.Clone()
		if c.OutV, err = vertexRef(ctx, tx, e.OutV.ID, "out"); err != nil {
			return err
		}
		if c.InV, err = vertexRef(ctx, tx, e.InV.ID, "in"); err != nil {
			return err
		}
		return insertEdge(ctx, tx, c)
	})
}
