// Package computer runs vertex programs as bulk synchronous parallel
// computations over a partitioned graph, and map/combine/reduce jobs over
// the resulting vertices.
//
// A run proceeds setup, then supersteps, then termination. Within a
// superstep every partition executes the program on its vertices in
// parallel against a read-only snapshot of Memory; memory proposals and
// messages are buffered and merged once at the superstep boundary.
package computer
