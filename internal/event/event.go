// Package event is a small synchronous publish/subscribe bus used to react
// to model lifecycle changes.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/pagecraft/internal/logging"
)

// Lifecycle topics published by the persistence layer.
const (
	TopicCreated = "model.created"
	TopicUpdated = "model.updated"
	TopicDeleted = "model.deleted"
)

// Event describes a change to one row (ID is 0 for bulk statements).
type Event struct {
	Topic string
	Table string
	ID    uint
}

// Listener reacts to an event.
type Listener func(ctx context.Context, e Event) error

// Bus dispatches events to listeners in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// Subscribe registers l for every given topic.
func (b *Bus) Subscribe(l Listener, topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		b.listeners[topic] = append(b.listeners[topic], l)
	}
}

// Publish runs every listener of e.Topic. A failing listener does not stop
// the others; all errors are logged and returned joined.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[e.Topic]...)
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l(ctx, e); err != nil {
			logging.L().Warn().Err(err).
				Str("topic", e.Topic).
				Str("table", e.Table).
				Uint("id", e.ID).
				Msg("event listener failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForTables wraps l so it only sees events for the given tables.
func ForTables(l Listener, tables ...string) Listener {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	return func(ctx context.Context, e Event) error {
		if _, ok := set[e.Table]; !ok {
			return nil
		}
		return l(ctx, e)
	}
}
