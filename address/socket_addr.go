// File: address/socket_addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket address value type shared by ports, packets and the resolver.

package address

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/momentics/hioload-netio/api"
)

// Family is an IP address family.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

// String returns a short family name.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// SocketAddr is an IP address plus port. The zero value has no host/port.
// SocketAddr is comparable with ==.
type SocketAddr struct {
	ap netip.AddrPort
}

// FromAddrPort wraps a netip.AddrPort. IPv4-mapped IPv6 addresses are unmapped.
func FromAddrPort(ap netip.AddrPort) SocketAddr {
	if !ap.IsValid() {
		return SocketAddr{}
	}
	return SocketAddr{ap: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// SetHostPort parses host as a literal of the given family and stores it
// together with port. Returns false and leaves a unchanged on failure.
func (a *SocketAddr) SetHostPort(family Family, host string, port int) bool {
	ip, err := netip.ParseAddr(host)
	if err != nil || port < 0 || port > 0xffff {
		return false
	}
	if familyOf(ip) != family {
		return false
	}
	a.ap = netip.AddrPortFrom(ip, uint16(port))
	return true
}

// Clear resets the address to the zero value.
func (a *SocketAddr) Clear() {
	a.ap = netip.AddrPort{}
}

// HasHostPort reports whether the address is set.
func (a SocketAddr) HasHostPort() bool {
	return a.ap.IsValid()
}

// Family returns the address family.
func (a SocketAddr) Family() Family {
	if !a.ap.IsValid() {
		return FamilyUnknown
	}
	return familyOf(a.ap.Addr())
}

// Addr returns the IP part.
func (a SocketAddr) Addr() netip.Addr {
	return a.ap.Addr()
}

// AddrPort returns the underlying netip value.
func (a SocketAddr) AddrPort() netip.AddrPort {
	return a.ap
}

// Port returns the port, or -1 if the address is not set.
func (a SocketAddr) Port() int {
	if !a.ap.IsValid() {
		return -1
	}
	return int(a.ap.Port())
}

// WithPort returns a copy of a with a different port.
func (a SocketAddr) WithPort(port int) SocketAddr {
	if !a.ap.IsValid() || port < 0 || port > 0xffff {
		return a
	}
	return SocketAddr{ap: netip.AddrPortFrom(a.ap.Addr(), uint16(port))}
}

// IsMulticast reports whether the IP is a multicast group address.
func (a SocketAddr) IsMulticast() bool {
	return a.ap.IsValid() && a.ap.Addr().IsMulticast()
}

// String formats as "1.2.3.4:5" or "[::1]:5"; "<none>" when unset.
func (a SocketAddr) String() string {
	if !a.ap.IsValid() {
		return "<none>"
	}
	return a.ap.String()
}

// ParseSocketAddr parses host in one of the forms "1.2.3.4" or "[::1]" and
// combines it with port.
func ParseSocketAddr(host string, port int) (SocketAddr, error) {
	if port < 0 || port > 0xffff {
		return SocketAddr{}, fmt.Errorf("address: port %d out of range: %w", port, api.ErrInvalidArgument)
	}
	literal := host
	bracketed := strings.HasPrefix(host, "[")
	if bracketed {
		if !strings.HasSuffix(host, "]") || len(host) < 3 {
			return SocketAddr{}, fmt.Errorf("address: malformed IPv6 literal %q: %w", host, api.ErrInvalidArgument)
		}
		literal = host[1 : len(host)-1]
	}
	ip, err := netip.ParseAddr(literal)
	if err != nil {
		return SocketAddr{}, fmt.Errorf("address: bad host %q: %w", host, api.ErrInvalidArgument)
	}
	if bracketed != ip.Is6() {
		return SocketAddr{}, fmt.Errorf("address: IPv6 literal must be bracketed, got %q: %w", host, api.ErrInvalidArgument)
	}
	return SocketAddr{ap: netip.AddrPortFrom(ip, uint16(port))}, nil
}

// ParseHostPort parses "1.2.3.4:5" or "[::1]:5".
func ParseHostPort(s string) (SocketAddr, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return SocketAddr{}, fmt.Errorf("address: missing port in %q: %w", s, api.ErrInvalidArgument)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return SocketAddr{}, fmt.Errorf("address: bad port in %q: %w", s, api.ErrInvalidArgument)
	}
	return ParseSocketAddr(s[:i], port)
}

func familyOf(ip netip.Addr) Family {
	if ip.Is4() || ip.Is4In6() {
		return FamilyIPv4
	}
	if ip.Is6() {
		return FamilyIPv6
	}
	return FamilyUnknown
}
