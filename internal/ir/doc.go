// Package ir provides the value model shared by traversers, graph
// properties, memory keys and side effects.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Element values (IRVertex, IREdge) are references, never live elements
//   - Canonical JSON is the only form used for identity (coalescing keys,
//     group keys, ordering ties, persistence and golden files)
package ir
