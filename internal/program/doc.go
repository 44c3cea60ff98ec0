// Package program holds the vertex programs shipped with tinkergo: the
// traversal program, which runs a computer mode traversal on the BSP
// engine, and connected components.
//
// A traversal program hosts every traverser at the vertex its value refers
// to. Traversers whose value is not an element stay where they are.
// Traversers that finish are kept in the vertex view under
// computer.HaltedTraversers, where the end step's map/reduce job collects
// them after the run.
package program
