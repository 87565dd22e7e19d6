// ABOUTME: Unbounded single-hop mailbox between two pipeline stages
// ABOUTME: Sends never wait for the receiver; closing ends the receiving loop
package mailbox

import (
	"sync"
	"sync/atomic"
)

// Sender is the writing end of a mailbox. A Sender has exactly one owner;
// Send after Close panics.
type Sender[T any] struct {
	in      chan T
	pending *atomic.Int64
	once    sync.Once
}

// Receiver is the reading end of a mailbox
type Receiver[T any] struct {
	out     chan T
	pending *atomic.Int64
	abandon chan struct{}
	once    sync.Once
}

// New creates a mailbox and starts its pump
func New[T any]() (*Sender[T], *Receiver[T]) {
	pending := &atomic.Int64{}
	in := make(chan T)
	out := make(chan T)
	abandon := make(chan struct{})

	go pump(in, out, abandon, pending)

	return &Sender[T]{in: in, pending: pending},
		&Receiver[T]{out: out, pending: pending, abandon: abandon}
}

// pump buffers everything sent on in until the receiver takes it from out.
// out is closed once in is closed and the buffer is drained.
func pump[T any](in <-chan T, out chan<- T, abandon <-chan struct{}, pending *atomic.Int64) {
	defer close(out)

	var queue []T
	var zero T

	for {
		if in == nil && len(queue) == 0 {
			return
		}

		var send chan<- T
		var head T
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, v)

		case send <- head:
			queue[0] = zero
			queue = queue[1:]

		case <-abandon:
			queue = nil
			pending.Store(0)
			if in != nil {
				for range in {
					pending.Add(-1)
				}
			}
			return
		}
	}
}

// Send queues v for the receiver
func (s *Sender[T]) Send(v T) {
	s.pending.Add(1)
	s.in <- v
}

// Close marks the end of the stream. Items already sent are still delivered.
func (s *Sender[T]) Close() {
	s.once.Do(func() { close(s.in) })
}

// C returns the delivery channel. It is closed after the sender closed and
// every queued item was received, or after Abandon.
func (r *Receiver[T]) C() <-chan T {
	return r.out
}

// Recv blocks for the next item; ok is false once the mailbox is closed and drained
func (r *Receiver[T]) Recv() (v T, ok bool) {
	v, ok = <-r.out
	if ok {
		r.pending.Add(-1)
	}
	return v, ok
}

// TryRecv returns the next item without waiting for a sender. An item that
// was already sent is always returned, even if the pump is still moving it.
// closed reports that the mailbox is closed and drained.
func (r *Receiver[T]) TryRecv() (v T, ok bool, closed bool) {
	if r.pending.Load() > 0 {
		v, ok = <-r.out
	} else {
		select {
		case v, ok = <-r.out:
		default:
			return v, false, false
		}
	}
	if ok {
		r.pending.Add(-1)
	}
	return v, ok, !ok
}

// Pending returns the number of items sent but not yet taken through Recv
// or TryRecv. Items read from C are not subtracted.
func (r *Receiver[T]) Pending() int {
	return int(max(r.pending.Load(), 0))
}

// Abandon discards everything queued now and sent later. Used by a receiver
// that stops reading so its senders never pile up work.
func (r *Receiver[T]) Abandon() {
	r.once.Do(func() { close(r.abandon) })
}
