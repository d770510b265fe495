// File: address/endpoint_uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Network endpoint URIs: "<proto>://<host>[:<port>][/<path>][?<query>]".

package address

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/hioload-netio/api"
)

// Protocol identifies the transport protocol of an endpoint.
type Protocol int

const (
	ProtoNone Protocol = iota
	ProtoRTSP
	ProtoRTP
	ProtoRTPRS8MSource
	ProtoRS8MRepair
	ProtoRTPLDPCSource
	ProtoLDPCRepair
	ProtoRTCP
)

type protocolAttrs struct {
	proto       Protocol
	scheme      string
	defaultPort int
	pathAllowed bool
}

var protocolTable = []protocolAttrs{
	{proto: ProtoRTSP, scheme: "rtsp", defaultPort: 554, pathAllowed: true},
	{proto: ProtoRTP, scheme: "rtp", defaultPort: -1},
	{proto: ProtoRTPRS8MSource, scheme: "rtp+rs8m", defaultPort: -1},
	{proto: ProtoRS8MRepair, scheme: "rs8m", defaultPort: -1},
	{proto: ProtoRTPLDPCSource, scheme: "rtp+ldpc", defaultPort: -1},
	{proto: ProtoLDPCRepair, scheme: "ldpc", defaultPort: -1},
	{proto: ProtoRTCP, scheme: "rtcp", defaultPort: -1},
}

func lookupProtocol(p Protocol) (protocolAttrs, bool) {
	for _, a := range protocolTable {
		if a.proto == p {
			return a, true
		}
	}
	return protocolAttrs{}, false
}

// ProtocolFromScheme maps a URI scheme to a Protocol.
func ProtocolFromScheme(scheme string) (Protocol, bool) {
	for _, a := range protocolTable {
		if a.scheme == scheme {
			return a.proto, true
		}
	}
	return ProtoNone, false
}

// String returns the URI scheme.
func (p Protocol) String() string {
	if a, ok := lookupProtocol(p); ok {
		return a.scheme
	}
	return "none"
}

// DefaultPort returns the protocol's standard port, or -1 if it has none.
func (p Protocol) DefaultPort() int {
	if a, ok := lookupProtocol(p); ok {
		return a.defaultPort
	}
	return -1
}

// EndpointURI is a parsed network endpoint.
type EndpointURI struct {
	proto Protocol
	host  string
	port  int
	path  string
	query string
}

// ParseEndpointURI parses a full endpoint URI.
func ParseEndpointURI(s string) (*EndpointURI, error) {
	bad := func(why string) (*EndpointURI, error) {
		return nil, fmt.Errorf("address: bad endpoint uri %q: %s: %w", s, why, api.ErrInvalidArgument)
	}

	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return bad("missing scheme")
	}
	proto, ok := ProtocolFromScheme(scheme)
	if !ok {
		return bad("unknown scheme")
	}
	attrs, _ := lookupProtocol(proto)

	u := &EndpointURI{proto: proto, port: -1}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		u.query = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		u.path = rest[i:]
		rest = rest[:i]
	}
	if (u.path != "" || u.query != "") && !attrs.pathAllowed {
		return bad("path or query not allowed for " + scheme)
	}

	hostport := rest
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return bad("unterminated IPv6 literal")
		}
		u.host = hostport[:end+1]
		hostport = hostport[end+1:]
		if hostport != "" && hostport[0] != ':' {
			return bad("garbage after IPv6 literal")
		}
	} else {
		i := strings.IndexByte(hostport, ':')
		if i < 0 {
			u.host = hostport
			hostport = ""
		} else {
			u.host = hostport[:i]
			hostport = hostport[i:]
		}
	}
	if u.host == "" || u.host == "[]" {
		return bad("empty host")
	}
	if strings.ContainsAny(u.host, "@ ") {
		return bad("illegal character in host")
	}

	if hostport != "" {
		port, err := strconv.Atoi(hostport[1:])
		if err != nil || port < 1 || port > 0xffff {
			return bad("bad port")
		}
		u.port = port
	}
	if u.port < 0 && attrs.defaultPort < 0 {
		return bad("port is required for " + scheme)
	}

	return u, nil
}

// Proto returns the endpoint protocol.
func (u *EndpointURI) Proto() Protocol { return u.proto }

// Host returns the host as written, IPv6 literals keep their brackets.
func (u *EndpointURI) Host() string { return u.host }

// Hostname returns the host with IPv6 brackets removed.
func (u *EndpointURI) Hostname() string {
	if strings.HasPrefix(u.host, "[") && strings.HasSuffix(u.host, "]") {
		return u.host[1 : len(u.host)-1]
	}
	return u.host
}

// Port returns the explicit port or -1.
func (u *EndpointURI) Port() int { return u.port }

// PortOrDefault returns the explicit port, else the protocol default.
func (u *EndpointURI) PortOrDefault() (int, bool) {
	if u.port >= 0 {
		return u.port, true
	}
	if p := u.proto.DefaultPort(); p >= 0 {
		return p, true
	}
	return -1, false
}

// Path returns the resource path, including the leading slash.
func (u *EndpointURI) Path() string { return u.path }

// Query returns the raw query string.
func (u *EndpointURI) Query() string { return u.query }

// String formats the URI back.
func (u *EndpointURI) String() string {
	if u == nil || u.proto == ProtoNone {
		return "<bad>"
	}
	var b strings.Builder
	b.WriteString(u.proto.String())
	b.WriteString("://")
	b.WriteString(u.host)
	if u.port >= 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.port))
	}
	b.WriteString(u.path)
	if u.query != "" {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	return b.String()
}
