// File: netio/basic_port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// State shared by all port kinds: identity, lifecycle state, registry
// membership and reference counting.

package netio

import (
	"container/list"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/control"
	"github.com/momentics/hioload-netio/internal/logging"
	"github.com/momentics/hioload-netio/reactor"
)

// PortKind identifies the port implementation.
type PortKind int

const (
	PortUDPReceiver PortKind = iota + 1
	PortUDPSender
	PortTCPServer
	PortTCPClient
	PortTCPConnection
)

func (k PortKind) String() string {
	switch k {
	case PortUDPReceiver:
		return "udp_receiver"
	case PortUDPSender:
		return "udp_sender"
	case PortTCPServer:
		return "tcp_server"
	case PortTCPClient:
		return "tcp_client"
	case PortTCPConnection:
		return "tcp_connection"
	default:
		return "unknown"
	}
}

// PortState is the lifecycle state of a port.
type PortState int

const (
	PortOpen PortState = iota
	PortTerminating
	PortClosingAsync
	PortClosed
)

func (s PortState) String() string {
	switch s {
	case PortOpen:
		return "open"
	case PortTerminating:
		return "terminating"
	case PortClosingAsync:
		return "closing"
	default:
		return "closed"
	}
}

// PortHandle is an opaque reference to a port owned by a NetworkLoop.
type PortHandle interface {
	fmt.Stringer
	ID() uuid.UUID
	Kind() PortKind
	// Address is the bound local address.
	Address() address.SocketAddr

	base() *basicPort
}

// port is the loop-side contract of every port kind. All methods run on
// the loop goroutine.
type port interface {
	PortHandle

	// open creates the native handles. On error nothing is left behind.
	open() error
	// asyncTerminate asks a connection to stop. It returns false when no
	// termination is needed, otherwise done runs later on the loop.
	asyncTerminate(mode TerminationMode, done func()) bool
	// asyncClose starts closing the native handles. It returns false when
	// nothing is left to close, otherwise done runs later on the loop.
	asyncClose(done func()) bool
}

// portEnv is what the loop lends to its ports.
type portEnv struct {
	loop      *reactor.Loop
	log       *logging.Logger
	metrics   *control.Metrics
	packets   PacketFactory
	buffers   BufferFactory
	recvBatch atomic.Int32

	livePorts atomic.Int64
	// unsolicitedClose asks the engine to close a port that failed on its own.
	unsolicitedClose func(p port)
}

type basicPort struct {
	env  *portEnv
	self port
	id   uuid.UUID
	kind PortKind
	addr address.SocketAddr

	state PortState
	elem  *list.Element
	owner *list.List

	refs            atomic.Int32
	removeScheduled atomic.Bool
	removeTask      *Task
}

func (b *basicPort) init(env *portEnv, self port, kind PortKind) {
	b.env = env
	b.self = self
	b.id = uuid.New()
	b.kind = kind
	b.state = PortOpen
	b.refs.Store(1)
	env.livePorts.Add(1)
}

func (b *basicPort) ID() uuid.UUID               { return b.id }
func (b *basicPort) Kind() PortKind              { return b.kind }
func (b *basicPort) Address() address.SocketAddr { return b.addr }
func (b *basicPort) base() *basicPort            { return b }

func (b *basicPort) String() string {
	return fmt.Sprintf("%s %s id=%s", b.kind, b.addr, b.id.String()[:8])
}

func (b *basicPort) asyncTerminate(TerminationMode, func()) bool { return false }

func (b *basicPort) ref() {
	b.refs.Add(1)
}

func (b *basicPort) unref() {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.env.livePorts.Add(-1)
		b.env.log.Debug().Str("port", b.String()).Log("port destroyed")
	case n < 0:
		panic("netio: port reference count underflow")
	}
}
