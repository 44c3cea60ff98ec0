package traverser

import (
	"fmt"

	"github.com/roach88/tinkergo/internal/ir"
)

type pathMode uint8

const (
	pathNone pathMode = iota
	pathLabeled
	pathFull
)

// Traverser is a value in flight together with its bulk and, when the
// traversal requires them, its path and loop counter. A traverser is owned
// by the step currently processing it.
type Traverser struct {
	value       ir.IRValue
	bulk        int64
	path        *TraversalPath
	mode        pathMode
	unlabeled   bool // labeled-path mode: value changed since the last extension
	loops       int
	stepID      string
	sideEffects SideEffectStore
}

// Value returns the payload.
func (t *Traverser) Value() ir.IRValue { return t.value }

// Bulk returns how many identical traversers this one stands for.
func (t *Traverser) Bulk() int64 { return t.bulk }

// SetBulk rewrites the bulk. Callers discard traversers whose bulk drops
// to zero instead of setting it.
func (t *Traverser) SetBulk(n int64) { t.bulk = n }

// Path returns the tracked path, or nil when the traversal does not track
// paths.
func (t *Traverser) Path() *TraversalPath { return t.path }

// Loops returns the repeat loop counter.
func (t *Traverser) Loops() int { return t.loops }

// IncrLoops increments the loop counter.
func (t *Traverser) IncrLoops() { t.loops++ }

// ResetLoops clears the loop counter on leaving a repeat.
func (t *Traverser) ResetLoops() { t.loops = 0 }

// StepID returns the id of the step the traverser is headed to.
func (t *Traverser) StepID() string { return t.stepID }

// SetStepID records the step the traverser is headed to.
func (t *Traverser) SetStepID(id string) { t.stepID = id }

// SideEffects returns the side-effect store handle.
func (t *Traverser) SideEffects() SideEffectStore { return t.sideEffects }

// SetSideEffects attaches a side-effect store handle.
func (t *Traverser) SetSideEffects(s SideEffectStore) { t.sideEffects = s }

// Split returns a new traverser carrying v, with the path extended when
// paths are tracked. The receiver is not modified.
func (t *Traverser) Split(v ir.IRValue) *Traverser {
	c := t.Clone()
	c.value = v
	switch t.mode {
	case pathFull:
		c.path = t.path.Extend(v)
	case pathLabeled:
		c.unlabeled = true
	}
	return c
}

// Clone returns a copy sharing only immutable state.
func (t *Traverser) Clone() *Traverser {
	c := *t
	return &c
}

// AddLabels records step labels against the current value.
func (t *Traverser) AddLabels(labels ...string) {
	if len(labels) == 0 {
		return
	}
	switch t.mode {
	case pathFull:
		t.path = t.path.AddLabels(labels...)
	case pathLabeled:
		if t.unlabeled || t.path.Len() == 0 {
			t.path = t.path.Extend(t.value, labels...)
			t.unlabeled = false
			return
		}
		t.path = t.path.AddLabels(labels...)
	}
}

// Merge adds other's bulk to t. Callers ensure the two have equal keys.
func (t *Traverser) Merge(other *Traverser) {
	t.bulk += other.bulk
}

// Key identifies traversers that may be coalesced: equal value, path, loop
// count and destination step.
func (t *Traverser) Key() string {
	obj := ir.IRObject{
		"v": t.value,
		"l": ir.IRInt(int64(t.loops)),
		"s": ir.IRString(t.stepID),
	}
	if t.path != nil {
		obj["p"] = t.path.ToIR()
	}
	return ir.Key(obj)
}

func (t *Traverser) String() string {
	if t.bulk == 1 {
		return ir.Key(t.value)
	}
	return fmt.Sprintf("%s x%d", ir.Key(t.value), t.bulk)
}

// ToIR encodes the traverser for vertex views and persistence.
func (t *Traverser) ToIR() ir.IRObject {
	obj := ir.IRObject{
		"value": t.value,
		"bulk":  ir.IRInt(t.bulk),
		"loops": ir.IRInt(int64(t.loops)),
		"step":  ir.IRString(t.stepID),
	}
	if t.path != nil {
		obj["path"] = t.path.ToIR()
		obj["pathMode"] = ir.IRInt(int64(t.mode))
	}
	return obj
}

// FromIR decodes the ToIR form and attaches sideEffects.
func FromIR(v ir.IRValue, sideEffects SideEffectStore) (*Traverser, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("traverser: expected object, got %T", v)
	}
	bulk, ok := obj["bulk"].(ir.IRInt)
	if !ok || bulk < 1 {
		return nil, fmt.Errorf("traverser: invalid bulk %v", obj["bulk"])
	}
	loops, _ := obj["loops"].(ir.IRInt)
	step, _ := obj["step"].(ir.IRString)
	t := &Traverser{
		value:       obj["value"],
		bulk:        int64(bulk),
		loops:       int(loops),
		stepID:      string(step),
		sideEffects: sideEffects,
	}
	if t.value == nil {
		t.value = ir.IRNull{}
	}
	if raw, ok := obj["path"]; ok {
		p, err := PathFromIR(raw)
		if err != nil {
			return nil, err
		}
		t.path = p
		mode, _ := obj["pathMode"].(ir.IRInt)
		t.mode = pathMode(mode)
		if t.mode == pathNone {
			t.mode = pathFull
		}
	}
	return t, nil
}
