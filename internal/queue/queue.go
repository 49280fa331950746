// Package queue provides the bounded buffer between the tick loop and the
// recorder's flush loop.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. When a capacity is set and the queue
// is full, Push discards the oldest items so the producer never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// New creates a new empty queue. capacity <= 0 means unbounded.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		items:    make([]T, 0),
		capacity: capacity,
	}
}

// Push appends items, evicting the oldest ones beyond capacity.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.capacity > 0 && len(q.items) > q.capacity {
		over := len(q.items) - q.capacity
		q.dropped += uint64(over)
		q.items = append(q.items[:0], q.items[over:]...)
	}
}

// PushFront puts items back ahead of everything queued, keeping their
// order. Capacity is enforced the same way as Push, so the oldest items go
// first.
func (q *Queue[T]) PushFront(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	if q.capacity > 0 && len(q.items) > q.capacity {
		over := len(q.items) - q.capacity
		q.dropped += uint64(over)
		q.items = append(q.items[:0], q.items[over:]...)
	}
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted since creation.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
