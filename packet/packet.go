// File: packet/packet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Network packet carried between ports and the pipeline.

package packet

import (
	"time"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/pool"
)

// Flags describe which parts of a Packet are populated.
type Flags uint32

const (
	// FlagUDP is set when the UDP header part is valid.
	FlagUDP Flags = 1 << iota
	// FlagPrepared is set once Data is attached.
	FlagPrepared
)

// UDP holds datagram addressing.
type UDP struct {
	SrcAddr address.SocketAddr
	DstAddr address.SocketAddr
	// QueueTimestamp is when the datagram was taken off the socket, or
	// queued for sending.
	QueueTimestamp time.Time
}

// Packet is a datagram with its addressing. A Packet is not safe for
// concurrent mutation; ownership passes with Write.
type Packet struct {
	flags   Flags
	udp     UDP
	buf     *pool.Buffer
	data    []byte
	factory *Factory
}

// Flags returns the populated parts.
func (p *Packet) Flags() Flags { return p.flags }

// AddFlags marks parts as populated.
func (p *Packet) AddFlags(f Flags) { p.flags |= f }

// HasFlags reports whether all of f are set.
func (p *Packet) HasFlags(f Flags) bool { return p.flags&f == f }

// UDP returns the UDP part, nil unless FlagUDP is set.
func (p *Packet) UDP() *UDP {
	if p.flags&FlagUDP == 0 {
		return nil
	}
	return &p.udp
}

// SetUDP fills the UDP part and sets FlagUDP.
func (p *Packet) SetUDP(u UDP) {
	p.udp = u
	p.flags |= FlagUDP
}

// Data returns the payload.
func (p *Packet) Data() []byte { return p.data }

// SetData attaches a payload that is not backed by a pool buffer.
func (p *Packet) SetData(b []byte) {
	p.releaseBuffer()
	p.data = b
	p.flags |= FlagPrepared
}

// SetBuffer attaches a pool buffer, using its first n bytes as payload.
// The packet takes ownership of buf.
func (p *Packet) SetBuffer(buf *pool.Buffer, n int) {
	p.releaseBuffer()
	p.buf = buf
	p.data = buf.Bytes()[:n]
	p.flags |= FlagPrepared
}

// Release drops the payload buffer and returns the packet to its factory.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	p.releaseBuffer()
	if p.factory != nil {
		p.factory.put(p)
	}
}

func (p *Packet) releaseBuffer() {
	if p.buf != nil {
		p.buf.Release()
		p.buf = nil
	}
	p.data = nil
}

func (p *Packet) reset() {
	p.releaseBuffer()
	p.flags = 0
	p.udp = UDP{}
}
