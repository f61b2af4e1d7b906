// Package events carries domain events from the scan pipeline to whoever
// listens for them.
package events

import (
	"context"
	"time"
)

// Event is one domain event. Payload holds JSON-friendly values only.
type Event struct {
	Name       string         `json:"name"`
	TenantID   string         `json:"tenantId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload"`
}

// Sink accepts events. Publish must not block the caller for long and
// reports no error: delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Handler consumes events delivered by a Bus.
type Handler func(ctx context.Context, e Event)

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
