// File: netio/tcp_conn_port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP stream port: outgoing client connections and connections accepted by
// a server port.

package netio

import (
	"fmt"
	"io"
	"sync"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/reactor"
)

// TCPClientConfig describes an outgoing connection.
type TCPClientConfig struct {
	// LocalAddress is optional; on success it holds the local address.
	LocalAddress address.SocketAddr
	// RemoteAddress is required.
	RemoteAddress address.SocketAddr
}

type connState int

const (
	connConnecting connState = iota
	connEstablished
	connRefused
	connTerminated
	connClosed
)

type tcpConnPort struct {
	basicPort

	config  TCPClientConfig
	handler ConnHandler
	poll    *reactor.Poll
	// onFailure is set for accepted connections; the owning server closes them.
	onFailure func(c *tcpConnPort)

	mu       sync.Mutex
	fd       int
	remote   address.SocketAddr
	state    connState
	failed   bool
	readable bool
	writable bool
}

func newTCPClientPort(env *portEnv, config TCPClientConfig, handler ConnHandler) *tcpConnPort {
	c := &tcpConnPort{config: config, handler: handler, fd: -1, state: connConnecting}
	c.init(env, c, PortTCPClient)
	return c
}

func newTCPAcceptedPort(env *portEnv, fd int, remote address.SocketAddr, onFailure func(c *tcpConnPort)) *tcpConnPort {
	c := &tcpConnPort{fd: fd, remote: remote, state: connEstablished, writable: true, onFailure: onFailure}
	c.init(env, c, PortTCPConnection)
	return c
}

func (c *tcpConnPort) open() error {
	if c.kind == PortTCPConnection {
		return c.openAccepted()
	}
	remote, local := c.config.RemoteAddress, c.config.LocalAddress
	if !remote.HasHostPort() {
		return api.NewError(api.ErrCodeInvalidArgument, "tcp client: remote address is not set")
	}
	if remote.Port() == 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "tcp client: remote port is zero").
			WithContext("address", remote.String())
	}
	if local.HasHostPort() && local.Family() != remote.Family() {
		return api.NewError(api.ErrCodeInvalidArgument, "tcp client: address family mismatch").
			WithContext("local", local.String()).
			WithContext("remote", remote.String())
	}

	fd, bound, err := openTCPClient(local, remote)
	if err != nil {
		return err
	}
	poll, err := c.env.loop.NewPoll(fd, reactor.EventRead|reactor.EventWrite|reactor.EventEdgeTriggered, c.onEvents)
	if err != nil {
		sysClose(fd)
		return api.NewError(api.ErrCodeInternal, "tcp client: register poll").WithCause(err)
	}
	c.poll = poll
	c.fd = fd
	c.remote = remote
	c.addr = bound
	c.config.LocalAddress = bound

	c.env.log.Debug().Str("port", c.String()).Stringer("remote", remote).Log("tcp connect started")
	return nil
}

func (c *tcpConnPort) openAccepted() error {
	local, err := sockLocalAddr(c.fd)
	if err != nil {
		sysClose(c.fd)
		c.fd = -1
		return err
	}
	poll, err := c.env.loop.NewPoll(c.fd, reactor.EventRead|reactor.EventWrite|reactor.EventEdgeTriggered, c.onEvents)
	if err != nil {
		sysClose(c.fd)
		c.fd = -1
		return api.NewError(api.ErrCodeInternal, "tcp connection: register poll").WithCause(err)
	}
	c.poll = poll
	c.addr = local
	return nil
}

func (c *tcpConnPort) onEvents(ev reactor.Events) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case connConnecting:
		c.completeConnect(ev)
		return
	case connEstablished:
	default:
		return
	}

	broken := ev&(reactor.EventError|reactor.EventHangup) != 0
	c.mu.Lock()
	if broken {
		c.failed = true
	}
	if ev&reactor.EventRead != 0 || broken {
		c.readable = true
	}
	if ev&reactor.EventWrite != 0 || broken {
		c.writable = true
	}
	c.mu.Unlock()

	if c.handler != nil {
		if ev&reactor.EventRead != 0 || broken {
			c.handler.ConnectionReadable(c)
		}
		if ev&reactor.EventWrite != 0 || broken {
			c.handler.ConnectionWritable(c)
		}
	}
	if broken {
		c.env.log.Debug().Str("port", c.String()).Stringer("events", ev).Log("tcp connection failed")
		if c.onFailure != nil {
			c.onFailure(c)
		}
	}
}

func (c *tcpConnPort) completeConnect(ev reactor.Events) {
	if ev&(reactor.EventWrite|reactor.EventError|reactor.EventHangup) == 0 {
		return
	}
	err := sockConnectError(c.fd)
	if err == nil && ev&reactor.EventError != 0 {
		err = api.ErrConnFailed
	}

	c.mu.Lock()
	if err != nil {
		c.state = connRefused
		c.failed = true
	} else {
		c.state = connEstablished
		c.writable = true
		c.readable = ev&reactor.EventRead != 0
	}
	c.mu.Unlock()

	if err != nil {
		c.env.log.Debug().Str("port", c.String()).Err(err).Log("tcp connection refused")
		c.handler.ConnectionRefused(c)
		return
	}
	c.env.log.Debug().Str("port", c.String()).Log("tcp connection established")
	c.handler.ConnectionEstablished(c)
	if c.readable {
		c.handler.ConnectionReadable(c)
	}
}

func (c *tcpConnPort) asyncTerminate(mode TerminationMode, done func()) bool {
	c.mu.Lock()
	if c.state == connTerminated || c.state == connClosed || c.fd < 0 {
		c.mu.Unlock()
		return false
	}
	if c.failed {
		mode = TerminateFailure
	}
	if mode == TerminateFailure {
		_ = sysLingerReset(c.fd)
	} else {
		_ = sysShutdownWrite(c.fd)
	}
	c.state = connTerminated
	c.readable, c.writable = false, false
	c.mu.Unlock()

	c.env.loop.Post(func() {
		c.env.log.Debug().Str("port", c.String()).Stringer("mode", mode).Log("tcp connection terminated")
		if c.handler != nil {
			c.handler.ConnectionTerminated(c)
		}
		done()
	})
	return true
}

func (c *tcpConnPort) asyncClose(done func()) bool {
	if c.poll == nil || c.poll.IsClosed() {
		return false
	}
	c.mu.Lock()
	c.fd = -1
	c.state = connClosed
	c.readable, c.writable = false, false
	c.mu.Unlock()

	_ = c.poll.Close(func() {
		if c.handler != nil {
			c.handler.ConnectionUnbound(c)
		}
		done()
	})
	return true
}

func (c *tcpConnPort) LocalAddress() address.SocketAddr { return c.addr }

func (c *tcpConnPort) RemoteAddress() address.SocketAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *tcpConnPort) IsFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *tcpConnPort) IsWritable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable && c.state == connEstablished
}

func (c *tcpConnPort) IsReadable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readable && c.state == connEstablished
}

func (c *tcpConnPort) TryRead(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		n, err := sysRead(c.fd, buf)
		switch {
		case err == nil && n == 0:
			c.readable = false
			return 0, io.EOF
		case err == nil:
			return n, nil
		case isInterrupted(err):
			continue
		case isWouldBlock(err):
			c.readable = false
			return 0, nil
		default:
			c.failed = true
			return 0, fmt.Errorf("%w: read: %v", api.ErrConnFailed, err)
		}
	}
}

func (c *tcpConnPort) TryWrite(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		n, err := sysWrite(c.fd, buf)
		switch {
		case err == nil:
			return n, nil
		case isInterrupted(err):
			continue
		case isWouldBlock(err):
			c.writable = false
			return 0, nil
		default:
			c.failed = true
			return 0, fmt.Errorf("%w: write: %v", api.ErrConnFailed, err)
		}
	}
}

func (c *tcpConnPort) usableLocked() error {
	if c.failed {
		return api.ErrConnFailed
	}
	if c.state != connEstablished || c.fd < 0 {
		return api.ErrConnNotReady
	}
	return nil
}

var _ Conn = (*tcpConnPort)(nil)
