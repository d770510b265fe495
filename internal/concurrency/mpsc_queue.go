// File: internal/concurrency/mpsc_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Intrusive multi-producer single-consumer queue (Vyukov).
// Push is wait-free for producers, PopFront is for the single consumer.

package concurrency

import (
	"runtime"
	"sync/atomic"
)

// MpscNode is the link embedded in a queued value.
type MpscNode[T any] struct {
	next     atomic.Pointer[MpscNode[T]]
	value    *T
	enqueued atomic.Bool
}

// Enqueued reports whether the node is currently in a queue.
func (n *MpscNode[T]) Enqueued() bool {
	return n.enqueued.Load()
}

// MpscQueue links MpscNodes owned by the caller. It never allocates.
type MpscQueue[T any] struct {
	head atomic.Pointer[MpscNode[T]] // producers
	_    [56]byte
	tail *MpscNode[T] // consumer
	stub MpscNode[T]
}

// NewMpscQueue returns an empty queue.
func NewMpscQueue[T any]() *MpscQueue[T] {
	q := &MpscQueue[T]{}
	q.head.Store(&q.stub)
	q.tail = &q.stub
	return q
}

// Push appends v using its embedded node n. Safe from any goroutine.
// Panics if n is already enqueued.
func (q *MpscQueue[T]) Push(v *T, n *MpscNode[T]) {
	if !n.enqueued.CompareAndSwap(false, true) {
		panic("concurrency: node is already enqueued")
	}
	n.value = v
	q.push(n)
}

func (q *MpscQueue[T]) push(n *MpscNode[T]) {
	n.next.Store(nil)
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// PopFront removes the oldest value, or returns nil when the queue is empty
// or a producer is in the middle of publishing. Consumer only.
func (q *MpscQueue[T]) PopFront() *T {
	return q.pop(false)
}

// PopFrontExclusive is like PopFront but waits out an in-progress publish,
// so nil means the queue was really empty. Consumer only.
func (q *MpscQueue[T]) PopFrontExclusive() *T {
	return q.pop(true)
}

func (q *MpscQueue[T]) pop(wait bool) *T {
	tail := q.tail
	next := q.loadNext(tail, wait)

	if tail == &q.stub {
		if next == nil {
			return nil
		}
		q.tail = next
		tail = next
		next = q.loadNext(tail, wait)
	}

	if next != nil {
		q.tail = next
		return q.release(tail)
	}

	if tail != q.head.Load() {
		if !wait {
			return nil
		}
		next = q.spinNext(tail)
		q.tail = next
		return q.release(tail)
	}

	q.push(&q.stub)

	next = q.loadNext(tail, wait)
	if next != nil {
		q.tail = next
		return q.release(tail)
	}
	return nil
}

// loadNext reads n.next. When waiting and n is not the last node it spins.
func (q *MpscQueue[T]) loadNext(n *MpscNode[T], wait bool) *MpscNode[T] {
	next := n.next.Load()
	if next == nil && wait && n != q.head.Load() {
		next = q.spinNext(n)
	}
	return next
}

func (q *MpscQueue[T]) spinNext(n *MpscNode[T]) *MpscNode[T] {
	for i := 0; ; i++ {
		if next := n.next.Load(); next != nil {
			return next
		}
		if i > 64 {
			runtime.Gosched()
		}
	}
}

func (q *MpscQueue[T]) release(n *MpscNode[T]) *T {
	v := n.value
	n.value = nil
	n.enqueued.Store(false)
	return v
}
