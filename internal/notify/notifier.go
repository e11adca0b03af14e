package notify

import (
	"context"
	"errors"
	"fmt"

	"moonshot-watcher/internal/observability"
)

// Notifier delivers a launch to one sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, l *Launch) error
}

// Multi fans a launch out to every notifier.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi over notifiers.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Name returns "multi".
func (m *Multi) Name() string { return "multi" }

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify delivers to every sink, continuing past failures.
// Returns the joined sink errors.
func (m *Multi) Notify(ctx context.Context, l *Launch) error {
	var errs []error
	for _, n := range m.notifiers {
		err := n.Notify(ctx, l)
		observability.RecordNotification(n.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
