// File: pool/buffer_factory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded factory of fixed-size byte buffers.

package pool

import (
	"sync/atomic"
)

// Buffer is a fixed-size byte slab owned by a BufferFactory.
type Buffer struct {
	data     []byte
	factory  *BufferFactory
	released atomic.Bool
}

// Bytes returns the whole slab.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Cap returns the slab size.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Release returns the buffer to its factory. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	if b.factory != nil {
		b.factory.put(b)
	}
}

// BufferStats is a snapshot of factory counters.
type BufferStats struct {
	Allocated int64
	InUse     int64
	Exhausted uint64
}

// BufferFactory hands out buffers of one size. When maxBuffers is positive
// at most that many buffers exist at once and NewBuffer returns nil once all
// of them are in use.
type BufferFactory struct {
	size       int
	maxBuffers int64
	free       chan *Buffer

	allocated atomic.Int64
	inUse     atomic.Int64
	exhausted atomic.Uint64
}

const defaultFreeListCap = 1024

// NewBufferFactory creates a factory. maxBuffers <= 0 means unbounded.
func NewBufferFactory(bufSize, maxBuffers int) *BufferFactory {
	if bufSize <= 0 {
		panic("pool: buffer size must be positive")
	}
	freeCap := maxBuffers
	if freeCap <= 0 {
		freeCap = defaultFreeListCap
	}
	return &BufferFactory{
		size:       bufSize,
		maxBuffers: int64(maxBuffers),
		free:       make(chan *Buffer, freeCap),
	}
}

// BufferSize returns the size of every buffer produced.
func (f *BufferFactory) BufferSize() int {
	return f.size
}

// NewBuffer returns a recycled or fresh buffer, or nil when exhausted.
func (f *BufferFactory) NewBuffer() *Buffer {
	select {
	case b := <-f.free:
		b.released.Store(false)
		f.inUse.Add(1)
		return b
	default:
	}

	if f.maxBuffers > 0 {
		for {
			n := f.allocated.Load()
			if n >= f.maxBuffers {
				f.exhausted.Add(1)
				return nil
			}
			if f.allocated.CompareAndSwap(n, n+1) {
				break
			}
		}
	} else {
		f.allocated.Add(1)
	}

	f.inUse.Add(1)
	return &Buffer{data: make([]byte, f.size), factory: f}
}

func (f *BufferFactory) put(b *Buffer) {
	f.inUse.Add(-1)
	select {
	case f.free <- b:
	default:
		// Free list full (unbounded mode only); let GC reclaim it.
		f.allocated.Add(-1)
	}
}

// Stats returns current counters.
func (f *BufferFactory) Stats() BufferStats {
	return BufferStats{
		Allocated: f.allocated.Load(),
		InUse:     f.inUse.Load(),
		Exhausted: f.exhausted.Load(),
	}
}
