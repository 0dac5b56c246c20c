package utils

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a goroutine-safe FIFO. Once closed it hands out the remaining
// items and then reports ErrQueueClosed.
type Queue[T any] struct {
	items  []T
	closed bool
	mutex  sync.Mutex
	cond   *sync.Cond
}

func NewQueue[T any](items ...T) *Queue[T] {
	q := &Queue[T]{items: append(make([]T, 0, len(items)), items...)}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// Enqueue adds an item to the end of the queue. Items added after Close are dropped.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// TryDequeue removes the front item without blocking.
func (q *Queue[T]) TryDequeue() (T, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	var zero T
	if len(q.items) == 0 {
		if q.closed {
			return zero, ErrQueueClosed
		}
		return zero, ErrQueueEmpty
	}
	return q.pop(), nil
}

// Dequeue blocks until an item is available, the queue is closed and drained,
// or ctx is done. A done ctx wins over queued items.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mutex.Lock()
		defer q.mutex.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mutex.Lock()
	defer q.mutex.Unlock()
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if len(q.items) > 0 {
			return q.pop(), nil
		}
		if q.closed {
			return zero, ErrQueueClosed
		}
		q.cond.Wait()
	}
}

// pop must be called with q.mutex held.
func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item
}

// Close wakes every waiting consumer.
func (q *Queue[T]) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue[T]) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
