// File: packet/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packet writer/reader interfaces and a concurrent FIFO implementing both.

package packet

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-netio/api"
)

// Writer consumes packets. Write takes ownership of p, also on error.
// Implementations used as port sinks are called on the reactor goroutine
// and must not block.
type Writer interface {
	Write(p *Packet) error
}

// Reader produces packets.
type Reader interface {
	Read() (*Packet, error)
}

// QueueMode selects Read behaviour on an empty queue.
type QueueMode int

const (
	// Blocking makes Read wait for a packet.
	Blocking QueueMode = iota
	// NonBlocking makes Read return (nil, nil) when empty.
	NonBlocking
)

// ConcurrentQueue is an unbounded packet FIFO usable from any goroutine.
type ConcurrentQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       *queue.Queue
	mode    QueueMode
	drained bool
}

// NewConcurrentQueue creates an empty queue.
func NewConcurrentQueue(mode QueueMode) *ConcurrentQueue {
	cq := &ConcurrentQueue{q: queue.New(), mode: mode}
	cq.cond = sync.NewCond(&cq.mu)
	return cq
}

// Write appends p. After Drain it releases p and returns ErrQueueDrained.
func (cq *ConcurrentQueue) Write(p *Packet) error {
	cq.mu.Lock()
	if cq.drained {
		cq.mu.Unlock()
		p.Release()
		return api.ErrQueueDrained
	}
	cq.q.Add(p)
	cq.mu.Unlock()
	cq.cond.Signal()
	return nil
}

// Read pops the oldest packet.
func (cq *ConcurrentQueue) Read() (*Packet, error) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	for cq.q.Length() == 0 {
		if cq.drained {
			return nil, api.ErrQueueDrained
		}
		if cq.mode == NonBlocking {
			return nil, nil
		}
		cq.cond.Wait()
	}
	return cq.q.Remove().(*Packet), nil
}

// Len returns the number of queued packets.
func (cq *ConcurrentQueue) Len() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return cq.q.Length()
}

// Drain wakes blocked readers; queued packets remain readable.
func (cq *ConcurrentQueue) Drain() {
	cq.mu.Lock()
	cq.drained = true
	cq.mu.Unlock()
	cq.cond.Broadcast()
}

var (
	_ Writer = (*ConcurrentQueue)(nil)
	_ Reader = (*ConcurrentQueue)(nil)
)
