package traverser

import (
	"fmt"
	"slices"

	"github.com/roach88/tinkergo/internal/ir"
)

// TraversalPath is the history of values a traverser has visited, each with the
// labels of the steps that produced it. Paths are immutable; Extend and
// AddLabels return new paths sharing nothing mutable with the receiver.
type TraversalPath struct {
	objects []ir.IRValue
	labels  [][]string
}

// NewPath returns an empty path.
func NewPath() *TraversalPath {
	return &TraversalPath{}
}

// Len returns the number of entries.
func (p *TraversalPath) Len() int {
	return len(p.objects)
}

// Objects returns the visited values in order.
func (p *TraversalPath) Objects() []ir.IRValue {
	return slices.Clone(p.objects)
}

// Labels returns the labels of each entry.
func (p *TraversalPath) Labels() [][]string {
	out := make([][]string, len(p.labels))
	for i, l := range p.labels {
		out[i] = slices.Clone(l)
	}
	return out
}

// Extend appends v with labels.
func (p *TraversalPath) Extend(v ir.IRValue, labels ...string) *TraversalPath {
	return &TraversalPath{
		objects: append(slices.Clip(p.objects), v),
		labels:  append(slices.Clip(p.labels), slices.Clone(labels)),
	}
}

// AddLabels attaches labels to the last entry. It is a no-op on an empty
// path.
func (p *TraversalPath) AddLabels(labels ...string) *TraversalPath {
	if len(p.objects) == 0 || len(labels) == 0 {
		return p
	}
	out := &TraversalPath{objects: p.objects, labels: slices.Clone(p.labels)}
	last := slices.Clone(out.labels[len(out.labels)-1])
	for _, l := range labels {
		if !slices.Contains(last, l) {
			last = append(last, l)
		}
	}
	out.labels[len(out.labels)-1] = last
	return out
}

// Get returns the most recent value labeled label.
func (p *TraversalPath) Get(label string) (ir.IRValue, bool) {
	for i := len(p.labels) - 1; i >= 0; i-- {
		if slices.Contains(p.labels[i], label) {
			return p.objects[i], true
		}
	}
	return nil, false
}

// HasLabel reports whether any entry carries label.
func (p *TraversalPath) HasLabel(label string) bool {
	_, ok := p.Get(label)
	return ok
}

// ToIR encodes the path as {"objects": [...], "labels": [[...], ...]}.
func (p *TraversalPath) ToIR() ir.IRValue {
	labels := make(ir.IRArray, len(p.labels))
	for i, ls := range p.labels {
		arr := make(ir.IRArray, len(ls))
		for j, l := range ls {
			arr[j] = ir.IRString(l)
		}
		labels[i] = arr
	}
	return ir.IRObject{"objects": ir.IRArray(slices.Clone(p.objects)), "labels": labels}
}

// PathFromIR decodes the ToIR form.
func PathFromIR(v ir.IRValue) (*TraversalPath, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("path: expected object, got %T", v)
	}
	objects, _ := obj["objects"].(ir.IRArray)
	labels, _ := obj["labels"].(ir.IRArray)
	if len(objects) != len(labels) {
		return nil, fmt.Errorf("path: %d objects but %d label sets", len(objects), len(labels))
	}
	p := &TraversalPath{objects: slices.Clone([]ir.IRValue(objects)), labels: make([][]string, len(labels))}
	for i, raw := range labels {
		arr, ok := raw.(ir.IRArray)
		if !ok {
			return nil, fmt.Errorf("path: labels %d: expected array, got %T", i, raw)
		}
		for _, l := range arr {
			s, ok := l.(ir.IRString)
			if !ok {
				return nil, fmt.Errorf("path: labels %d: expected string, got %T", i, l)
			}
			p.labels[i] = append(p.labels[i], string(s))
		}
	}
	return p, nil
}
