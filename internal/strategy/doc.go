// Package strategy rewrites traversals before they are locked.
//
// A Registry holds strategies ordered by category and by the Prior and
// Posterior constraints they declare. Apply runs every strategy on the root
// traversal, then on each child traversal, and finally locks the root.
// Strategies are idempotent: applying a registry to a clone of an already
// rewritten traversal leaves it unchanged.
package strategy
