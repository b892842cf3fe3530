package router

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO ring that doubles its backing array once it is
// 70% full. Push never blocks, so a slow subscriber cannot stall the read
// loop that publishes into it.
type Queue[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int
	count  int
	closed bool

	// signalled (non-blocking) on every push and on close
	notify chan struct{}

	pushed  int64
	popped  int64
	resizes int
}

// QueueStats is a point-in-time view of a Queue.
type QueueStats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Resizes  int
}

// NewQueue creates a queue with the given starting capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Queue[T]{
		ring:   make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends item. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	if (q.count+1)*10 >= len(q.ring)*7 {
		q.resize(len(q.ring) * 2)
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.pushed++
	q.mu.Unlock()

	q.wake()
	return true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop waits for an item. It returns false when ctx is done, or when the
// queue is closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		item, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return item, true
		}
		if closed {
			return item, false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Drain removes up to max items (all of them if max <= 0).
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := q.popLocked()
		out = append(out, item)
	}
	return out
}

// Close stops further pushes. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      q.count,
		Capacity: len(q.ring),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Resizes:  q.resizes,
	}
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++
	return item, true
}

// resize moves the live items to the front of a new ring. Must be called
// with q.mu held.
func (q *Queue[T]) resize(capacity int) {
	ring := make([]T, capacity)
	for i := 0; i < q.count; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
	q.resizes++
}
