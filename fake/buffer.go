// Package fake
// Author: momentics <momentics@gmail.com>
//
// Buffer factory with switchable exhaustion.

package fake

import (
	"sync/atomic"

	"github.com/momentics/hioload-netio/pool"
)

// BufferFactory wraps a pool.BufferFactory; while Exhausted is set it
// behaves as if the pool were empty.
type BufferFactory struct {
	*pool.BufferFactory
	Exhausted atomic.Bool
	refused   atomic.Int64
}

// NewBufferFactory creates a factory of size-byte buffers.
func NewBufferFactory(size, max int) *BufferFactory {
	return &BufferFactory{BufferFactory: pool.NewBufferFactory(size, max)}
}

// NewBuffer returns nil while exhausted.
func (f *BufferFactory) NewBuffer() *pool.Buffer {
	if f.Exhausted.Load() {
		f.refused.Add(1)
		return nil
	}
	return f.BufferFactory.NewBuffer()
}

// Refused returns the number of refused allocations.
func (f *BufferFactory) Refused() int64 { return f.refused.Load() }
