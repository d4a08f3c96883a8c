package notifications

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue keeps enqueued notifications in memory.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Notification
	err   error
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, n Notification) error {
	if n.To == "" {
		return ErrNoRecipient
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	n.CreatedAt = time.Now().UTC()
	q.items = append(q.items, n)
	return nil
}

// FailWith makes every later Enqueue return err. Nil restores success.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *MemoryQueue) Items() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// ByTemplate returns the items enqueued with the named template.
func (q *MemoryQueue) ByTemplate(name string) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Notification
	for _, n := range q.items {
		if n.Template.Name == name {
			out = append(out, n)
		}
	}
	return out
}
