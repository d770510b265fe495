// File: netio/udp_receiver_port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netio

import (
	"time"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/packet"
	"github.com/momentics/hioload-netio/reactor"
)

// UDPReceiverConfig describes a receiving datagram port.
type UDPReceiverConfig struct {
	// BindAddress is required; port 0 picks an ephemeral port and is
	// replaced with the actual address on success.
	BindAddress address.SocketAddr
	// MulticastInterface is the IP of the interface used to join the group
	// when BindAddress is a multicast address. Empty means no join.
	MulticastInterface string
	// ReuseAddress sets SO_REUSEADDR. Implied for multicast groups.
	ReuseAddress bool
}

type udpReceiverPort struct {
	basicPort

	config  UDPReceiverConfig
	sink    packet.Writer
	poll    *reactor.Poll
	scratch []byte
}

func newUDPReceiverPort(env *portEnv, config UDPReceiverConfig, sink packet.Writer) *udpReceiverPort {
	p := &udpReceiverPort{config: config, sink: sink}
	p.init(env, p, PortUDPReceiver)
	return p
}

func (p *udpReceiverPort) open() error {
	bind := p.config.BindAddress
	if !bind.HasHostPort() {
		return api.NewError(api.ErrCodeInvalidArgument, "udp receiver: bind address is not set")
	}
	if p.config.MulticastInterface != "" && !bind.IsMulticast() {
		return api.NewError(api.ErrCodeInvalidArgument, "udp receiver: multicast interface given for unicast address").
			WithContext("address", bind.String())
	}

	reuse := p.config.ReuseAddress || bind.IsMulticast()
	fd, bound, err := openUDPSocket(bind, reuse)
	if err != nil {
		return err
	}
	if p.config.MulticastInterface != "" {
		if err := joinMulticast(fd, bind, p.config.MulticastInterface); err != nil {
			sysClose(fd)
			return err
		}
	}

	poll, err := p.env.loop.NewPoll(fd, reactor.EventRead, p.onEvents)
	if err != nil {
		sysClose(fd)
		return api.NewError(api.ErrCodeInternal, "udp receiver: register poll").WithCause(err)
	}
	p.poll = poll
	p.addr = bound
	p.config.BindAddress = bound

	p.env.log.Debug().
		Str("port", p.String()).
		Str("multicast_iface", p.config.MulticastInterface).
		Log("udp receiver opened")
	return nil
}

func (p *udpReceiverPort) onEvents(ev reactor.Events) {
	if ev&reactor.EventRead != 0 {
		p.receive()
	}
	if ev&(reactor.EventError|reactor.EventHangup) != 0 && !p.poll.IsClosed() {
		p.env.log.Err().Str("port", p.String()).Stringer("events", ev).Log("udp receiver socket failed")
		p.env.unsolicitedClose(p)
	}
}

func (p *udpReceiverPort) receive() {
	batch := int(p.env.recvBatch.Load())
	for i := 0; i < batch && !p.poll.IsClosed(); i++ {
		buf := p.env.buffers.NewBuffer()
		if buf == nil {
			if !p.discard() {
				return
			}
			p.drop("no_buffer", api.ErrNoBuffer.Error())
			continue
		}

		n, from, truncated, err := sysRecvFrom(p.poll.Fd(), buf.Bytes())
		if err != nil {
			buf.Release()
			switch {
			case isWouldBlock(err):
				return
			case isInterrupted(err), isTransientRecvError(err):
				continue
			default:
				p.env.log.Err().Str("port", p.String()).Err(err).Log("recvfrom failed")
				p.env.unsolicitedClose(p)
				return
			}
		}
		if truncated {
			buf.Release()
			p.drop("truncated", "dropping datagram: larger than buffer")
			continue
		}

		pkt := p.env.packets.NewPacket()
		if pkt == nil {
			buf.Release()
			p.drop("no_packet", "dropping datagram: packet factory exhausted")
			continue
		}
		pkt.SetUDP(packet.UDP{
			SrcAddr:        from,
			DstAddr:        p.addr,
			QueueTimestamp: time.Now(),
		})
		pkt.SetBuffer(buf, n)

		if err := p.sink.Write(pkt); err != nil {
			p.drop("sink", "sink rejected datagram")
			continue
		}
		p.env.metrics.PacketReceived()
	}
}

// discard consumes one datagram into the scratch buffer. It returns false
// when the socket is drained.
func (p *udpReceiverPort) discard() bool {
	if p.scratch == nil {
		p.scratch = make([]byte, 64)
	}
	_, _, _, err := sysRecvFrom(p.poll.Fd(), p.scratch)
	return err == nil || !isWouldBlock(err)
}

func (p *udpReceiverPort) drop(reason, msg string) {
	p.env.metrics.PacketDropped(reason)
	p.env.log.Warning().Str("port", p.String()).Str("reason", reason).Limit().Log(msg)
}

func (p *udpReceiverPort) asyncClose(done func()) bool {
	if p.poll == nil || p.poll.IsClosed() {
		return false
	}
	_ = p.poll.Close(func() {
		p.env.log.Debug().Str("port", p.String()).Log("udp receiver closed")
		done()
	})
	return true
}
