// File: internal/readyqueue/readyqueue.go
// Author: clustersched
//
// Package readyqueue backs the messaging Adapter's AwaitNextMessage:
// a FIFO of channels that have become readable, so waiting callers are
// served in the order their channel became ready rather than by
// unspecified map/slice iteration order. Built on eapache/queue.
package readyqueue

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is a thread-safe FIFO of values, with at-most-once membership
// tracked by the caller (see messaging.Adapter, which only enqueues a
// back-channel if it is not already queued).
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	inner *queue.Queue
}

// New returns an empty Queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{inner: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues v and wakes one waiter blocked in Pop, if any.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.inner.Add(v)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until the queue is non-empty, then removes and returns the
// oldest value.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.inner.Length() == 0 {
		q.cond.Wait()
	}
	v := q.inner.Remove().(T)
	return v
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inner.Length()
}
