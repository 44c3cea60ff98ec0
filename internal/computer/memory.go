package computer

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
)

// MemoryComputeKey declares a memory key and how proposals to it merge.
type MemoryComputeKey struct {
	Key     string
	Reducer ir.Reducer
	// Transient keys are removed from the memory returned with a result.
	Transient bool
}

// MemoryView is the memory surface visible to workers: reads see the state
// at the start of the superstep and Add proposals are merged at its end.
type MemoryView interface {
	Get(key string) (ir.IRValue, bool)
	Add(key string, v ir.IRValue) error
	Iteration() int
	IsInitialIteration() bool
}

// Memory is the master's global state of a run.
type Memory struct {
	mu        sync.RWMutex
	keys      map[string]MemoryComputeKey
	values    map[string]ir.IRValue
	iteration int
}

// NewMemory creates a memory with every declared key at its reducer's
// identity.
func NewMemory(keys ...MemoryComputeKey) *Memory {
	m := &Memory{
		keys:   make(map[string]MemoryComputeKey, len(keys)),
		values: make(map[string]ir.IRValue, len(keys)),
	}
	for _, k := range keys {
		m.keys[k.Key] = k
		m.values[k.Key] = k.Reducer.Identity()
	}
	return m
}

func (m *Memory) declared(key string) (MemoryComputeKey, error) {
	k, ok := m.keys[key]
	if !ok {
		return k, fault.New(fault.CodeMessenger, "memory key %q is not declared", key)
	}
	return k, nil
}

// Get returns the value of key.
func (m *Memory) Get(key string) (ir.IRValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set replaces the value of a declared key. Only the master calls Set.
func (m *Memory) Set(key string, v ir.IRValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.declared(key); err != nil {
		return err
	}
	m.values[key] = v
	return nil
}

// Add merges v into a declared key immediately.
func (m *Memory) Add(key string, v ir.IRValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := m.declared(key)
	if err != nil {
		return err
	}
	merged, err := k.Reducer.Reduce(m.values[key], v)
	if err != nil {
		return fault.Wrap(fault.CodeInvalidValue, err, "memory key %q", key)
	}
	m.values[key] = merged
	return nil
}

// Iteration returns the current superstep, starting at 0.
func (m *Memory) Iteration() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.iteration
}

// IsInitialIteration reports whether the run is in its first superstep.
func (m *Memory) IsInitialIteration() bool { return m.Iteration() == 0 }

func (m *Memory) incrIteration() {
	m.mu.Lock()
	m.iteration++
	m.mu.Unlock()
}

// Keys returns the keys holding values, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.values))
}

// AsObject returns the values as an object.
func (m *Memory) AsObject() ir.IRObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ir.IRObject(maps.Clone(m.values))
}

// putResult stores a map/reduce result, which needs no declaration.
func (m *Memory) putResult(key string, v ir.IRValue) {
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
}

func (m *Memory) dropTransient() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, k := range m.keys {
		if k.Transient {
			delete(m.values, name)
		}
	}
}

func (m *Memory) worker() *WorkerMemory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &WorkerMemory{
		keys:      m.keys,
		snapshot:  maps.Clone(m.values),
		iteration: m.iteration,
		buffer:    make(map[string]ir.IRValue),
	}
}

// merge folds partition buffers into the memory in partition order.
func (m *Memory) merge(workers []*WorkerMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range workers {
		if w == nil {
			continue
		}
		for _, key := range slices.Sorted(maps.Keys(w.buffer)) {
			merged, err := m.keys[key].Reducer.Reduce(m.values[key], w.buffer[key])
			if err != nil {
				return fault.Wrap(fault.CodeInvalidValue, err, "merge memory key %q", key)
			}
			m.values[key] = merged
		}
	}
	return nil
}

// WorkerMemory is one partition's view of Memory during a superstep. It is
// used by a single goroutine.
type WorkerMemory struct {
	keys      map[string]MemoryComputeKey
	snapshot  map[string]ir.IRValue
	iteration int
	buffer    map[string]ir.IRValue
}

// Get returns the value of key as of the start of the superstep.
func (w *WorkerMemory) Get(key string) (ir.IRValue, bool) {
	v, ok := w.snapshot[key]
	return v, ok
}

// Add buffers a proposal for key.
func (w *WorkerMemory) Add(key string, v ir.IRValue) error {
	k, ok := w.keys[key]
	if !ok {
		return fault.New(fault.CodeMessenger, "memory key %q is not declared", key)
	}
	cur, ok := w.buffer[key]
	if !ok {
		w.buffer[key] = v
		return nil
	}
	merged, err := k.Reducer.Reduce(cur, v)
	if err != nil {
		return fault.Wrap(fault.CodeInvalidValue, err, "memory key %q", key)
	}
	w.buffer[key] = merged
	return nil
}

// Iteration implements MemoryView.
func (w *WorkerMemory) Iteration() int { return w.iteration }

// IsInitialIteration implements MemoryView.
func (w *WorkerMemory) IsInitialIteration() bool { return w.iteration == 0 }
