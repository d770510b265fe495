// File: netio/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interfaces between TCP ports and their users, and the factories ports
// draw memory from.

package netio

import (
	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/packet"
	"github.com/momentics/hioload-netio/pool"
)

// PacketFactory allocates packets. NewPacket returns nil when exhausted.
type PacketFactory interface {
	NewPacket() *packet.Packet
}

// BufferFactory allocates receive buffers. NewBuffer returns nil when exhausted.
type BufferFactory interface {
	NewBuffer() *pool.Buffer
}

// Conn is an established or connecting TCP stream. Its methods may be
// called from any goroutine.
type Conn interface {
	LocalAddress() address.SocketAddr
	RemoteAddress() address.SocketAddr

	// IsFailed reports a refused, reset or otherwise broken connection.
	IsFailed() bool
	// IsWritable reports whether TryWrite may make progress.
	IsWritable() bool
	// IsReadable reports whether TryRead may make progress.
	IsReadable() bool

	// TryRead reads what is available without blocking. It returns (0, nil)
	// when nothing is available and io.EOF once the peer has shut down.
	TryRead(buf []byte) (int, error)
	// TryWrite writes what fits without blocking, returning (0, nil) when
	// the socket buffer is full.
	TryWrite(buf []byte) (int, error)
}

// ConnHandler receives connection notifications on the network loop
// goroutine. Implementations must not block.
type ConnHandler interface {
	// ConnectionRefused is reported to client connections that failed to connect.
	ConnectionRefused(conn Conn)
	ConnectionEstablished(conn Conn)
	ConnectionWritable(conn Conn)
	ConnectionReadable(conn Conn)
	// ConnectionTerminated follows a terminate request; no further I/O
	// notifications are delivered afterwards.
	ConnectionTerminated(conn Conn)
	// ConnectionUnbound is the last notification; the socket is closed.
	ConnectionUnbound(conn Conn)
}

// ConnAcceptor decides on connections accepted by a TCP server port.
type ConnAcceptor interface {
	// AddConnection returns the handler for conn, or nil to reject it.
	AddConnection(conn Conn) ConnHandler
	// RemoveConnection is called after the handler's ConnectionUnbound.
	RemoveConnection(handler ConnHandler)
}

// TerminationMode selects how a connection is terminated.
type TerminationMode int

const (
	// TerminateNormal shuts down the write side, letting queued data drain.
	TerminateNormal TerminationMode = iota
	// TerminateFailure resets the connection.
	TerminateFailure
)

func (m TerminationMode) String() string {
	if m == TerminateFailure {
		return "failure"
	}
	return "normal"
}
