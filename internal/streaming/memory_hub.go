package streaming

import (
	"context"
	"sync"
)

const defaultChannelBuffer = 64

// subscription is one subscriber's channel plus its decoded filter. A nil
// eventTypes set means every event type.
type subscription struct {
	ch         chan TurnEvent
	eventTypes map[string]struct{}
}

func (s *subscription) wants(eventType string) bool {
	if s.eventTypes == nil {
		return true
	}
	_, ok := s.eventTypes[eventType]
	return ok
}

// MemoryHub is an in-memory EventHub. Subscribers are indexed by the thread
// they filter on, so publishing touches only the subscribers that could
// match: the event's own thread bucket plus the unfiltered bucket (keyed by
// the empty string).
type MemoryHub struct {
	mu      sync.RWMutex
	nextID  uint64
	threads map[string]map[uint64]*subscription
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		threads: make(map[string]map[uint64]*subscription),
	}
}

// Publish sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *MemoryHub) Publish(ctx context.Context, event TurnEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	h.deliver(h.threads[""], event)
	if event.ThreadID != "" {
		h.deliver(h.threads[event.ThreadID], event)
	}
	return nil
}

func (h *MemoryHub) deliver(bucket map[uint64]*subscription, event TurnEvent) {
	for _, sub := range bucket {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// backpressure: drop event for slow subscriber
		}
	}
}

// Subscribe creates a new subscription filtered by the given EventFilter.
// Returns a receive-only channel, a cancel function, and any error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan TurnEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{ch: make(chan TurnEvent, defaultChannelBuffer)}
	if len(filter.EventTypes) > 0 {
		sub.eventTypes = make(map[string]struct{}, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			sub.eventTypes[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	bucket, ok := h.threads[filter.ThreadID]
	if !ok {
		bucket = make(map[uint64]*subscription)
		h.threads[filter.ThreadID] = bucket
	}
	bucket[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if bucket, ok := h.threads[filter.ThreadID]; ok {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(h.threads, filter.ThreadID)
			}
		}
		h.mu.Unlock()
	}

	return sub.ch, cancel, nil
}

var _ EventHub = (*MemoryHub)(nil)
