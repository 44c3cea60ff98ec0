package traverser

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/tinkergo/internal/ir"
)

// SideEffectStore is the handle a traverser uses to read and contribute
// traversal-wide values such as aggregated collections.
type SideEffectStore interface {
	Get(key string) (ir.IRValue, bool)
	// Merge folds value into key with the key's reducer. Keys without a
	// registered reducer are overwritten.
	Merge(key string, value ir.IRValue) error
	Keys() []string
}

// MapSideEffects is the side-effect store of a standard mode traversal.
type MapSideEffects struct {
	mu       sync.Mutex
	values   map[string]ir.IRValue
	reducers map[string]ir.Reducer
}

// NewMapSideEffects creates an empty store.
func NewMapSideEffects() *MapSideEffects {
	return &MapSideEffects{
		values:   make(map[string]ir.IRValue),
		reducers: make(map[string]ir.Reducer),
	}
}

// Register declares key with a reducer. The key starts at the reducer's
// identity. Registering an existing key keeps its current value.
func (s *MapSideEffects) Register(key string, r ir.Reducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reducers[key] = r
	if _, ok := s.values[key]; !ok {
		s.values[key] = r.Identity()
	}
}

// Reducer returns the reducer registered for key.
func (s *MapSideEffects) Reducer(key string) (ir.Reducer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reducers[key]
	return r, ok
}

// Get implements SideEffectStore.
func (s *MapSideEffects) Get(key string) (ir.IRValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Merge implements SideEffectStore.
func (s *MapSideEffects) Merge(key string, value ir.IRValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reducers[key]
	if !ok {
		s.values[key] = value
		return nil
	}
	cur, ok := s.values[key]
	if !ok {
		cur = r.Identity()
	}
	merged, err := r.Reduce(cur, value)
	if err != nil {
		return fmt.Errorf("side effect %q: %w", key, err)
	}
	s.values[key] = merged
	return nil
}

// Set overwrites key regardless of its reducer.
func (s *MapSideEffects) Set(key string, value ir.IRValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Keys implements SideEffectStore. Keys are sorted.
func (s *MapSideEffects) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Clone returns a store with the same registrations reset to their
// identities.
func (s *MapSideEffects) Clone() *MapSideEffects {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := NewMapSideEffects()
	for k, r := range s.reducers {
		out.reducers[k] = r
		out.values[k] = r.Identity()
	}
	return out
}

// Reset drops merged values and restores registered keys to their
// identities.
func (s *MapSideEffects) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]ir.IRValue, len(s.reducers))
	for k, r := range s.reducers {
		s.values[k] = r.Identity()
	}
}
