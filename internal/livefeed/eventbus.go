package livefeed

import (
	"sync"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/scanner"
)

// EventBus fans scanner events out to subscribers. Publish delivers
// synchronously and in subscription order, so every subscriber sees events
// in the order the service produced them.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]func(scanner.Event)
	order       []uint64
	nextID      uint64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]func(scanner.Event)),
	}
}

// Subscribe registers a handler and returns its cancel function. Cancel is
// idempotent and may be called from inside a handler.
func (eb *EventBus) Subscribe(h func(scanner.Event)) func() {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = h
	eb.order = append(eb.order, id)
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			delete(eb.subscribers, id)
			for i, v := range eb.order {
				if v == id {
					eb.order = append(eb.order[:i:i], eb.order[i+1:]...)
					break
				}
			}
			eb.mu.Unlock()
		})
	}
}

// Publish delivers the event to every current subscriber.
func (eb *EventBus) Publish(e scanner.Event) {
	eb.mu.RLock()
	handlers := make([]uint64, len(eb.order))
	copy(handlers, eb.order)
	eb.mu.RUnlock()

	metrics.EventsPublishedTotal.Inc()

	for _, id := range handlers {
		eb.mu.RLock()
		h, ok := eb.subscribers[id]
		eb.mu.RUnlock()
		if ok {
			h(e)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}
