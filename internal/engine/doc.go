// Package engine is the entry point for running traversals and vertex
// programs against a graph.
//
// An Engine binds a graph to a strategy registry and a set of run options.
// Traversals created through it carry the registry and are rewritten and
// locked on their first execution request:
//
//	e := engine.New(g)
//	res, err := e.Iterate(ctx, e.G(traversal.Standard).V(1).Out("knows").Values("name"))
//	if err != nil {
//		return err
//	}
//	names := res.Values
//
// Submit runs a computer mode traversal as a TraversalVertexProgram on the
// partitioned BSP executor in internal/computer. Iterate picks the path from
// the traversal's mode, so callers switch modes without changing the query.
//
// Every submission is stamped with a UUIDv7 id and a monotonic sequence
// number from the engine's logical clock; both appear in log records.
package engine
