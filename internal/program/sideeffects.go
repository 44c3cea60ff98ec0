package program

import (
	"maps"
	"slices"

	"github.com/roach88/tinkergo/internal/computer"
	"github.com/roach88/tinkergo/internal/ir"
)

const sideEffectPrefix = "tinkergo.sideEffect."

func sideEffectKey(key string) string { return sideEffectPrefix + key }

// memorySideEffects exposes memory as the side-effect store of a
// partition's traversal. Reads see the memory at the start of the
// superstep; merges are proposals folded in at its end.
type memorySideEffects struct {
	mem  computer.MemoryView
	keys map[string]ir.Reducer
}

func (s *memorySideEffects) Get(key string) (ir.IRValue, bool) {
	if _, ok := s.keys[key]; !ok {
		return nil, false
	}
	return s.mem.Get(sideEffectKey(key))
}

func (s *memorySideEffects) Merge(key string, value ir.IRValue) error {
	return s.mem.Add(sideEffectKey(key), value)
}

func (s *memorySideEffects) Keys() []string {
	return slices.Sorted(maps.Keys(s.keys))
}
