package events

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/metrics"
)

const DefaultBuffer = 256

type subscription struct {
	name    string
	ch      chan Event
	handler Handler
}

// Bus is an in-process Sink fanning events out to subscribers. Each
// subscriber owns a buffered channel drained by its own goroutine; when the
// buffer is full the event is dropped for that subscriber only.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup
	logger logging.Logger
}

func NewBus(logger logging.Logger) *Bus {
	return &Bus{logger: logger.With("module", "events")}
}

// Subscribe registers h for events called name, or for every event when
// name is "". buffer <= 0 selects DefaultBuffer.
func (b *Bus) Subscribe(name string, buffer int, h Handler) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &subscription{name: name, ch: make(chan Event, buffer), handler: h}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs = append(b.subs, s)

	b.wg.Add(1)
	go b.run(s)
}

func (b *Bus) run(s *subscription) {
	defer b.wg.Done()
	for e := range s.ch {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), "event handler panicked", "event", e.Name, "panic", r)
		}
	}()
	s.handler(context.Background(), e)
}

// Publish hands e to every matching subscriber without blocking.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.name != "" && s.name != e.Name {
			continue
		}
		select {
		case s.ch <- e:
		default:
			metrics.EventsDroppedTotal.Inc()
			b.logger.Warn(ctx, "event dropped, subscriber buffer full", "event", e.Name, "tenant_id", e.TenantID)
		}
	}
}

// Close stops accepting events and waits until subscribers have drained
// what is already buffered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// LogHandler writes every event it receives to logger.
func LogHandler(logger logging.Logger) Handler {
	return func(ctx context.Context, e Event) {
		args := []any{"event", e.Name, "tenant_id", e.TenantID}
		for _, k := range []string{"findingId", "severity", "title", "resourceId"} {
			if v, ok := e.Payload[k]; ok {
				args = append(args, k, v)
			}
		}
		logger.Info(ctx, "event", args...)
	}
}
