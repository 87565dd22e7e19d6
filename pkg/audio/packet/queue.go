// ABOUTME: Lock-free single-producer/single-consumer packet queue
// ABOUTME: Hands packets between realtime audio callbacks and pipeline goroutines
package packet

import "sync/atomic"

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Queue is an unbounded FIFO safe for exactly one producer and one consumer
// running concurrently. Neither side ever takes a lock, so a realtime
// callback can sit on either end. Nodes the consumer has moved past are
// reused by the producer, so a queue in steady state does not allocate.
type Queue[T any] struct {
	head atomic.Pointer[node[T]] // consumer side, always a consumed stub

	// producer side
	tail     *node[T]
	first    *node[T] // oldest node, free if it is not head
	headCopy *node[T]

	length atomic.Int64
}

// NewQueue creates an empty queue
func NewQueue[T any]() *Queue[T] {
	stub := &node[T]{}
	q := &Queue[T]{tail: stub, first: stub, headCopy: stub}
	q.head.Store(stub)
	return q
}

// Push appends v. Must only be called from the producer.
func (q *Queue[T]) Push(v T) {
	n := q.alloc()
	n.value = v
	q.tail.next.Store(n)
	q.tail = n
	q.length.Add(1)
}

// alloc takes a node the consumer is done with, or makes one
func (q *Queue[T]) alloc() *node[T] {
	if q.first == q.headCopy {
		q.headCopy = q.head.Load()
	}
	if q.first != q.headCopy {
		n := q.first
		q.first = n.next.Load()
		n.next.Store(nil)
		return n
	}
	return &node[T]{}
}

// Pop removes the oldest value. Must only be called from the consumer.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T

	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}

	v := next.value
	next.value = zero
	q.head.Store(next)
	q.length.Add(-1)
	return v, true
}

// Len returns an approximate number of queued values
func (q *Queue[T]) Len() int {
	return int(q.length.Load())
}
