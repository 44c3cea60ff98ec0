// Package structure defines the graph storage collaborator used by the
// traversal engine, together with an in-memory implementation and the
// star-vertex view used by partition workers in computer mode.
//
// Every lookup is synchronous and every mutation is immediately visible to
// the caller. Iterators follow a pull protocol: Next returns
// ErrIteratorDone once exhausted, and Stop releases held resources. Stop is
// idempotent and must be called on every exit path.
package structure
