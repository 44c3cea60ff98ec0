// Package traverser implements the token that flows through a traversal.
//
// A Traverser pairs a value with a bulk (how many identical tokens it stands
// for) and, depending on what the traversal's steps require, a path, a loop
// counter and a handle to the traversal's side effects. Traversers are
// produced by a Generator chosen when the traversal locks and are coalesced
// by Set, which sums the bulk of traversers with equal identity.
package traverser
