//go:build linux
// +build linux

// File: netio/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking socket syscalls used by ports.

package netio

import (
	"errors"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
)

const sockFlags = unix.SOCK_NONBLOCK | unix.SOCK_CLOEXEC

func toSockaddr(a address.SocketAddr) (unix.Sockaddr, int) {
	ap := a.AddrPort()
	if a.Family() == address.FamilyIPv4 {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		sa.Addr = ap.Addr().Unmap().As4()
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As16()
	if zone := ap.Addr().Zone(); zone != "" {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6
}

func fromSockaddr(sa unix.Sockaddr) address.SocketAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return address.FromAddrPort(netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port)))
	case *unix.SockaddrInet6:
		return address.FromAddrPort(netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port)))
	}
	return address.SocketAddr{}
}

func sockError(code api.ErrorCode, msg string, addr address.SocketAddr, cause error) error {
	return api.NewError(code, msg).WithContext("address", addr.String()).WithCause(cause)
}

func newSocket(domain, typ, proto int, addr address.SocketAddr) (int, error) {
	fd, err := unix.Socket(domain, typ|sockFlags, proto)
	if err != nil {
		return -1, sockError(api.ErrCodeResourceExhausted, "create socket", addr, err)
	}
	if domain == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return -1, sockError(api.ErrCodeInternal, "set IPV6_V6ONLY", addr, err)
		}
	}
	return fd, nil
}

func bindSocket(fd int, addr address.SocketAddr, reuse bool) (address.SocketAddr, error) {
	if reuse {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return address.SocketAddr{}, sockError(api.ErrCodeInternal, "set SO_REUSEADDR", addr, err)
		}
	}
	sa, _ := toSockaddr(addr)
	if err := unix.Bind(fd, sa); err != nil {
		return address.SocketAddr{}, sockError(api.ErrCodeBindFailed, "bind socket", addr, err)
	}
	return sockLocalAddr(fd)
}

func sockLocalAddr(fd int) (address.SocketAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return address.SocketAddr{}, api.NewError(api.ErrCodeInternal, "getsockname").WithCause(err)
	}
	return fromSockaddr(sa), nil
}

func sockRemoteAddr(fd int) address.SocketAddr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return address.SocketAddr{}
	}
	return fromSockaddr(sa)
}

// openUDPSocket creates and binds a datagram socket.
func openUDPSocket(bind address.SocketAddr, reuse bool) (int, address.SocketAddr, error) {
	_, domain := toSockaddr(bind)
	fd, err := newSocket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP, bind)
	if err != nil {
		return -1, address.SocketAddr{}, err
	}
	bound, err := bindSocket(fd, bind, reuse)
	if err != nil {
		unix.Close(fd)
		return -1, address.SocketAddr{}, err
	}
	return fd, bound, nil
}

// joinMulticast joins group on the interface that owns iface (an IP literal).
func joinMulticast(fd int, group address.SocketAddr, iface string) error {
	ifaddr, err := netip.ParseAddr(iface)
	if err != nil {
		return sockError(api.ErrCodeInvalidArgument, "bad multicast interface", group, err)
	}
	if group.Family() == address.FamilyIPv4 {
		if !ifaddr.Is4() {
			return sockError(api.ErrCodeInvalidArgument, "multicast interface family mismatch", group, api.ErrInvalidArgument)
		}
		mreq := &unix.IPMreq{Multiaddr: group.Addr().As4(), Interface: ifaddr.As4()}
		if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			return sockError(api.ErrCodeInternal, "join multicast group", group, err)
		}
		return nil
	}
	index, err := interfaceIndexOf(ifaddr)
	if err != nil {
		return sockError(api.ErrCodeNotFound, "multicast interface", group, err)
	}
	mreq := &unix.IPv6Mreq{Multiaddr: group.Addr().As16(), Interface: uint32(index)}
	if err := unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq); err != nil {
		return sockError(api.ErrCodeInternal, "join multicast group", group, err)
	}
	return nil
}

func interfaceIndexOf(ip netip.Addr) (int, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok {
				if cand, ok := netip.AddrFromSlice(n.IP); ok && cand.Unmap() == ip.Unmap() {
					return ifi.Index, nil
				}
			}
		}
	}
	return 0, errors.New("no interface with address " + ip.String())
}

// openTCPListener creates a listening stream socket.
func openTCPListener(bind address.SocketAddr, backlog int) (int, address.SocketAddr, error) {
	_, domain := toSockaddr(bind)
	fd, err := newSocket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP, bind)
	if err != nil {
		return -1, address.SocketAddr{}, err
	}
	bound, err := bindSocket(fd, bind, true)
	if err != nil {
		unix.Close(fd)
		return -1, address.SocketAddr{}, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, address.SocketAddr{}, sockError(api.ErrCodeBindFailed, "listen", bind, err)
	}
	return fd, bound, nil
}

// openTCPClient starts a non-blocking connect. The connection outcome is
// reported later by write readiness plus sockConnectError.
func openTCPClient(local, remote address.SocketAddr) (int, address.SocketAddr, error) {
	rsa, domain := toSockaddr(remote)
	fd, err := newSocket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP, remote)
	if err != nil {
		return -1, address.SocketAddr{}, err
	}
	if local.HasHostPort() {
		if _, err := bindSocket(fd, local, false); err != nil {
			unix.Close(fd)
			return -1, address.SocketAddr{}, err
		}
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	if err := unix.Connect(fd, rsa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, address.SocketAddr{}, sockError(api.ErrCodeConnectFailed, "connect", remote, err)
	}
	bound, err := sockLocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return -1, address.SocketAddr{}, err
	}
	return fd, bound, nil
}

func sockConnectError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// acceptConn accepts one pending connection, non-blocking.
func acceptConn(fd int) (int, address.SocketAddr, error) {
	nfd, sa, err := unix.Accept4(fd, sockFlags)
	if err != nil {
		return -1, address.SocketAddr{}, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, fromSockaddr(sa), nil
}

// sysRecvFrom reads one datagram. truncated reports a datagram larger than buf.
func sysRecvFrom(fd int, buf []byte) (n int, from address.SocketAddr, truncated bool, err error) {
	n, sa, err := unix.Recvfrom(fd, buf, unix.MSG_TRUNC)
	if err != nil {
		return 0, address.SocketAddr{}, false, err
	}
	if n > len(buf) {
		return len(buf), fromSockaddr(sa), true, nil
	}
	return n, fromSockaddr(sa), false, nil
}

func sysSendTo(fd int, b []byte, to address.SocketAddr) error {
	sa, _ := toSockaddr(to)
	return unix.Sendto(fd, b, unix.MSG_NOSIGNAL, sa)
}

func sysRead(fd int, b []byte) (int, error) {
	return unix.Read(fd, b)
}

func sysWrite(fd int, b []byte) (int, error) {
	return unix.SendmsgN(fd, b, nil, nil, unix.MSG_NOSIGNAL)
}

func sysShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func sysLingerReset(fd int) error {
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
}

func sysClose(fd int) {
	_ = unix.Close(fd)
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func isInterrupted(err error) bool {
	return err == unix.EINTR
}

// isTransientRecvError covers ICMP errors surfaced on datagram sockets.
func isTransientRecvError(err error) bool {
	return err == unix.ECONNREFUSED || err == unix.EHOSTUNREACH || err == unix.ENETUNREACH
}
