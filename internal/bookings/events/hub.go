package events

import (
	"context"
	"prayerroom/pkg/model"
	"sync"
)

// Filter narrows a subscription. Empty fields match everything.
type Filter struct {
	ResourceID string
	Date       string
}

// Match reports whether the event touches a booking in the filter. A
// reschedule matches both the old and the new day.
func (f Filter) Match(event ChangeEvent) bool {
	for _, b := range []*model.Booking{event.Before, event.After} {
		if b == nil {
			continue
		}
		if (f.ResourceID == "" || b.ResourceID == f.ResourceID) && (f.Date == "" || b.Date == f.Date) {
			return true
		}
	}
	return false
}

type subscription struct {
	filter   Filter
	onChange func(ChangeEvent)
}

// Hub delivers change events to live subscribers. Callbacks run on the
// publishing goroutine and must not block.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscription)}
}

// Subscribe registers onChange and returns the function that removes it.
func (h *Hub) Subscribe(filter Filter, onChange func(ChangeEvent)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscription{filter: filter, onChange: onChange}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(_ context.Context, event ChangeEvent) error {
	h.mu.RLock()
	targets := make([]func(ChangeEvent), 0, len(h.subs))
	for _, s := range h.subs {
		if s.filter.Match(event) {
			targets = append(targets, s.onChange)
		}
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
