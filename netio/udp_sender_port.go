// File: netio/udp_sender_port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netio

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/packet"
	"github.com/momentics/hioload-netio/reactor"
)

// UDPSenderConfig describes a sending datagram port.
type UDPSenderConfig struct {
	// BindAddress is required; port 0 is replaced with the actual port.
	BindAddress address.SocketAddr
	// ReuseAddress sets SO_REUSEADDR.
	ReuseAddress bool
	// NonBlockingEnabled lets Write try sendto directly on the caller's
	// goroutine; otherwise every packet goes through the network loop.
	NonBlockingEnabled bool
}

// udpSenderPort implements packet.Writer. Write is safe from any goroutine.
type udpSenderPort struct {
	basicPort

	config UDPSenderConfig
	poll   *reactor.Poll
	async  *reactor.Async

	mu      sync.Mutex
	fd      int
	pending *queue.Queue
	closed  bool

	// loop only
	closesLeft int
}

func newUDPSenderPort(env *portEnv, config UDPSenderConfig) *udpSenderPort {
	p := &udpSenderPort{config: config, fd: -1, pending: queue.New()}
	p.init(env, p, PortUDPSender)
	return p
}

func (p *udpSenderPort) open() error {
	bind := p.config.BindAddress
	if !bind.HasHostPort() {
		return api.NewError(api.ErrCodeInvalidArgument, "udp sender: bind address is not set")
	}
	fd, bound, err := openUDPSocket(bind, p.config.ReuseAddress)
	if err != nil {
		return err
	}
	poll, err := p.env.loop.NewPoll(fd, 0, p.onEvents)
	if err != nil {
		sysClose(fd)
		return api.NewError(api.ErrCodeInternal, "udp sender: register poll").WithCause(err)
	}
	async, err := p.env.loop.NewAsync(p.flush)
	if err != nil {
		_ = poll.Close(nil)
		return api.NewError(api.ErrCodeInternal, "udp sender: create async").WithCause(err)
	}

	p.poll, p.async, p.fd = poll, async, fd
	p.addr = bound
	p.config.BindAddress = bound

	p.env.log.Debug().
		Str("port", p.String()).
		Bool("non_blocking", p.config.NonBlockingEnabled).
		Log("udp sender opened")
	return nil
}

// Write sends p to its UDP destination. It never blocks: when the socket
// is busy the packet is queued and sent from the network loop.
func (p *udpSenderPort) Write(pkt *packet.Packet) error {
	udp := pkt.UDP()
	if udp == nil || !udp.DstAddr.HasHostPort() {
		pkt.Release()
		return fmt.Errorf("udp sender: packet has no destination: %w", api.ErrInvalidArgument)
	}
	if udp.DstAddr.Family() != p.addr.Family() {
		pkt.Release()
		return fmt.Errorf("udp sender: destination %s does not match %s: %w", udp.DstAddr, p.addr.Family(), api.ErrInvalidArgument)
	}
	if !udp.SrcAddr.HasHostPort() {
		udp.SrcAddr = p.addr
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pkt.Release()
		return api.ErrPortClosed
	}
	if p.config.NonBlockingEnabled && p.pending.Length() == 0 {
		err := sysSendTo(p.fd, pkt.Data(), udp.DstAddr)
		if err == nil {
			p.mu.Unlock()
			pkt.Release()
			p.env.metrics.PacketSent()
			return nil
		}
		if !isWouldBlock(err) {
			p.mu.Unlock()
			pkt.Release()
			return fmt.Errorf("udp sender: sendto %s: %w", udp.DstAddr, err)
		}
	}
	udp.QueueTimestamp = time.Now()
	p.pending.Add(pkt)
	wake := p.pending.Length() == 1
	p.mu.Unlock()

	if wake {
		_ = p.async.Send()
	}
	return nil
}

// flush runs on the loop and sends queued packets until the socket blocks.
func (p *udpSenderPort) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.flushLocked() {
		_ = p.poll.Modify(reactor.EventWrite)
		return
	}
	_ = p.poll.Modify(0)
}

// flushLocked sends queued packets and reports whether the socket blocked.
func (p *udpSenderPort) flushLocked() bool {
	for p.pending.Length() != 0 {
		pkt := p.pending.Peek().(*packet.Packet)
		err := sysSendTo(p.fd, pkt.Data(), pkt.UDP().DstAddr)
		if err != nil && isWouldBlock(err) {
			return true
		}
		p.pending.Remove()
		if err != nil {
			p.env.metrics.PacketDropped("send_error")
			p.env.log.Warning().Str("port", p.String()).Stringer("dst", pkt.UDP().DstAddr).Err(err).Limit().Log("sendto failed")
		} else {
			p.env.metrics.PacketSent()
		}
		pkt.Release()
	}
	return false
}

func (p *udpSenderPort) onEvents(ev reactor.Events) {
	if ev&reactor.EventWrite != 0 {
		p.flush()
	}
	if ev&reactor.EventError != 0 {
		p.env.log.Warning().Str("port", p.String()).Stringer("events", ev).Limit().Log("udp sender socket error")
	}
}

// asyncClose sends what the socket still accepts, drops the rest and closes
// both the socket poll and the async handle; done runs after both report
// closed.
func (p *udpSenderPort) asyncClose(done func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.flushLocked()
	p.closed = true
	p.fd = -1
	for p.pending.Length() != 0 {
		p.pending.Remove().(*packet.Packet).Release()
		p.env.metrics.PacketDropped("port_closed")
	}
	p.mu.Unlock()

	p.closesLeft = 2
	closed := func() {
		p.closesLeft--
		if p.closesLeft == 0 {
			p.env.log.Debug().Str("port", p.String()).Log("udp sender closed")
			done()
		}
	}
	_ = p.poll.Close(closed)
	_ = p.async.Close(closed)
	return true
}

var _ packet.Writer = (*udpSenderPort)(nil)
