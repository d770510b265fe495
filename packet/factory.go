// File: packet/factory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packet

import (
	"sync/atomic"

	"github.com/momentics/hioload-netio/pool"
)

// Factory produces Packets. It is safe for concurrent use.
type Factory struct {
	pool  *pool.SyncPool[*Packet]
	limit int64
	live  atomic.Int64
}

// NewFactory creates a factory. limit <= 0 means unbounded; otherwise
// NewPacket returns nil while limit packets are live.
func NewFactory(limit int) *Factory {
	f := &Factory{limit: int64(limit)}
	f.pool = pool.NewSyncPool(func() *Packet { return &Packet{} }, func(p *Packet) { p.reset() })
	return f
}

// NewPacket returns an empty packet or nil if the limit is reached.
func (f *Factory) NewPacket() *Packet {
	if f.limit > 0 {
		if f.live.Add(1) > f.limit {
			f.live.Add(-1)
			return nil
		}
	} else {
		f.live.Add(1)
	}
	p := f.pool.Get()
	p.factory = f
	return p
}

// Live returns the number of packets not yet released.
func (f *Factory) Live() int64 {
	return f.live.Load()
}

func (f *Factory) put(p *Packet) {
	p.factory = nil
	f.pool.Put(p)
	f.live.Add(-1)
}
