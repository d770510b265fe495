// File: netio/tcp_server_port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netio

import (
	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/reactor"
)

const defaultBacklog = 128

// TCPServerConfig describes a listening port.
type TCPServerConfig struct {
	// BindAddress is required; port 0 is replaced with the actual port.
	BindAddress address.SocketAddr
	// Backlog is the listen queue length; 0 means 128.
	Backlog int
}

// tcpServerPort owns its accepted connections. They are not visible in the
// engine registry and are closed together with the server.
type tcpServerPort struct {
	basicPort

	config   TCPServerConfig
	acceptor ConnAcceptor
	poll     *reactor.Poll

	conns     map[*tcpConnPort]struct{}
	closing   int
	stopping  bool
	closeDone func()
}

func newTCPServerPort(env *portEnv, config TCPServerConfig, acceptor ConnAcceptor) *tcpServerPort {
	s := &tcpServerPort{config: config, acceptor: acceptor, conns: make(map[*tcpConnPort]struct{})}
	s.init(env, s, PortTCPServer)
	return s
}

func (s *tcpServerPort) open() error {
	bind := s.config.BindAddress
	if !bind.HasHostPort() {
		return api.NewError(api.ErrCodeInvalidArgument, "tcp server: bind address is not set")
	}
	if bind.IsMulticast() {
		return api.NewError(api.ErrCodeInvalidArgument, "tcp server: multicast bind address").
			WithContext("address", bind.String())
	}
	backlog := s.config.Backlog
	if backlog <= 0 {
		backlog = defaultBacklog
	}

	fd, bound, err := openTCPListener(bind, backlog)
	if err != nil {
		return err
	}
	poll, err := s.env.loop.NewPoll(fd, reactor.EventRead, s.onEvents)
	if err != nil {
		sysClose(fd)
		return api.NewError(api.ErrCodeInternal, "tcp server: register poll").WithCause(err)
	}
	s.poll = poll
	s.addr = bound
	s.config.BindAddress = bound

	s.env.log.Debug().Str("port", s.String()).Int("backlog", backlog).Log("tcp server listening")
	return nil
}

func (s *tcpServerPort) onEvents(ev reactor.Events) {
	if ev&reactor.EventRead != 0 {
		s.accept()
	}
	if ev&reactor.EventError != 0 && !s.stopping {
		s.env.log.Err().Str("port", s.String()).Stringer("events", ev).Log("tcp listener failed")
		s.env.unsolicitedClose(s)
	}
}

func (s *tcpServerPort) accept() {
	for !s.stopping && !s.poll.IsClosed() {
		fd, remote, err := acceptConn(s.poll.Fd())
		if err != nil {
			switch {
			case isWouldBlock(err):
			case isInterrupted(err):
				continue
			default:
				s.env.log.Warning().Str("port", s.String()).Err(err).Limit().Log("accept failed")
			}
			return
		}

		conn := newTCPAcceptedPort(s.env, fd, remote, s.connFailed)
		if err := conn.open(); err != nil {
			s.env.log.Warning().Str("port", s.String()).Err(err).Log("accepted connection setup failed")
			conn.unref()
			continue
		}

		handler := s.acceptor.AddConnection(conn)
		if handler == nil {
			s.env.log.Debug().Str("port", s.String()).Stringer("remote", remote).Log("connection rejected")
			conn.asyncClose(conn.unref)
			continue
		}
		conn.handler = handler
		s.conns[conn] = struct{}{}

		s.env.log.Debug().Str("port", s.String()).Stringer("remote", remote).Log("connection accepted")
		handler.ConnectionEstablished(conn)
	}
}

func (s *tcpServerPort) connFailed(c *tcpConnPort) {
	if _, ok := s.conns[c]; ok {
		s.closeConn(c, TerminateFailure)
	}
}

// closeConn terminates c if needed, then closes it and hands its handler
// back to the acceptor.
func (s *tcpServerPort) closeConn(c *tcpConnPort, mode TerminationMode) {
	delete(s.conns, c)
	s.closing++

	closeNow := func() {
		closed := func() {
			s.acceptor.RemoveConnection(c.handler)
			c.unref()
			s.closing--
			s.maybeFinishClose()
		}
		if !c.asyncClose(closed) {
			closed()
		}
	}
	if !c.asyncTerminate(mode, closeNow) {
		closeNow()
	}
}

func (s *tcpServerPort) asyncClose(done func()) bool {
	if s.poll == nil || s.poll.IsClosed() || s.stopping {
		return false
	}
	s.stopping = true
	s.closeDone = done
	for c := range s.conns {
		s.closeConn(c, TerminateNormal)
	}
	s.maybeFinishClose()
	return true
}

func (s *tcpServerPort) maybeFinishClose() {
	if s.closeDone == nil || s.closing > 0 || len(s.conns) > 0 {
		return
	}
	done := s.closeDone
	s.closeDone = nil
	_ = s.poll.Close(func() {
		s.env.log.Debug().Str("port", s.String()).Log("tcp server closed")
		done()
	})
}

// numConns returns the number of open accepted connections.
func (s *tcpServerPort) numConns() int { return len(s.conns) }
