package strategy

import (
	"context"

	"github.com/roach88/tinkergo/internal/traversal"
)

// Event attaches listeners to every mutating step, in order. A listener
// is attached to a step at most once, so reapplying adds nothing.
type Event struct {
	Listeners []traversal.Listener
}

// NewEvent creates an event strategy notifying ls.
func NewEvent(ls ...traversal.Listener) *Event {
	return &Event{Listeners: ls}
}

func (*Event) Name() string       { return "EventStrategy" }
func (*Event) Category() Category { return Decoration }

func (e *Event) Apply(_ context.Context, t *traversal.Traversal) error {
	for _, s := range t.Steps() {
		m, ok := s.(traversal.Mutating)
		if !ok {
			continue
		}
		for _, l := range e.Listeners {
			m.AddListener(l)
		}
	}
	return nil
}
