//go:build !linux
// +build !linux

// File: netio/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub socket layer; NewNetworkLoop already fails on these platforms.

package netio

import (
	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
)

func openUDPSocket(address.SocketAddr, bool) (int, address.SocketAddr, error) {
	return -1, address.SocketAddr{}, api.ErrNotSupported
}

func joinMulticast(int, address.SocketAddr, string) error { return api.ErrNotSupported }

func openTCPListener(address.SocketAddr, int) (int, address.SocketAddr, error) {
	return -1, address.SocketAddr{}, api.ErrNotSupported
}

func openTCPClient(address.SocketAddr, address.SocketAddr) (int, address.SocketAddr, error) {
	return -1, address.SocketAddr{}, api.ErrNotSupported
}

func sockConnectError(int) error { return api.ErrNotSupported }

func sockRemoteAddr(int) address.SocketAddr { return address.SocketAddr{} }

func acceptConn(int) (int, address.SocketAddr, error) {
	return -1, address.SocketAddr{}, api.ErrNotSupported
}

func sysRecvFrom(int, []byte) (int, address.SocketAddr, bool, error) {
	return 0, address.SocketAddr{}, false, api.ErrNotSupported
}

func sysSendTo(int, []byte, address.SocketAddr) error { return api.ErrNotSupported }
func sysRead(int, []byte) (int, error)                { return 0, api.ErrNotSupported }
func sysWrite(int, []byte) (int, error)               { return 0, api.ErrNotSupported }
func sysShutdownWrite(int) error                      { return api.ErrNotSupported }
func sysLingerReset(int) error                        { return api.ErrNotSupported }
func sysClose(int)                                    {}
func isWouldBlock(error) bool                         { return false }
func isInterrupted(error) bool                        { return false }
func isTransientRecvError(error) bool                 { return false }

func sockLocalAddr(int) (address.SocketAddr, error) {
	return address.SocketAddr{}, api.ErrNotSupported
}
