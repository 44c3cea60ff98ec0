// Package traversal implements steps, traversals and the fluent builder used
// to assemble them.
//
// A Traversal owns an ordered slice of steps. Until it is locked the slice
// may be edited freely (by the builder and by strategies). Locking selects a
// traverser generator from the steps' requirements, locks every child
// traversal and links the steps into a chain of pipes. Results are then
// pulled lazily from the last pipe: each step asks its upstream pipe for a
// traverser only when it has nothing buffered, and only barrier steps drain
// their upstream before producing output.
//
// Steps are a closed set. Every concrete step embeds stepBase, which seals
// the Step interface to this package.
package traversal
