// Package notify delivers outage and recovery alerts to external sinks.
package notify

import (
	"context"
	"time"

	"github.com/connwatch/connwatch/internal/domain"
)

type EventKind string

const (
	EventDown      EventKind = "down"
	EventRecovered EventKind = "recovered"
)

// Event is one alert-worthy transition, ready for formatting by a sink.
type Event struct {
	Kind        EventKind
	Target      domain.Target
	Reason      string
	At          time.Time
	DurationSec float64 // set on recoveries, length of the closed outage
}

type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

type Multi []Notifier

func (m Multi) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
