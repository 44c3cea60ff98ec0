// Package store provides SQLite-backed storage for graphs and for the
// output of vertex program runs.
//
// A Store holds one graph:
//   - vertices and edges with canonical JSON properties
//   - secondary equality indexes on vertex property keys
//   - runs: halted vertex program runs with their final memory and, when
//     the run persisted output, its vertices and edges
//
// # Reading
//
// Element iterators page through the tables with keyset pagination
// (WHERE id > ? ORDER BY id LIMIT n). No rows handle stays open between
// pages, so a traversal may read and write through the same single
// connection while an iterator is in flight.
//
// # Writing runs
//
// Store implements computer.OutputWriter. A run is written in one
// transaction: either every row of the run is committed or none is.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
