package address_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/address"
)

func TestSocketAddrSetHostPort(t *testing.T) {
	var a address.SocketAddr
	assert.False(t, a.HasHostPort())
	assert.Equal(t, "<none>", a.String())
	assert.Equal(t, -1, a.Port())

	require.True(t, a.SetHostPort(address.FamilyIPv4, "127.0.0.1", 123))
	assert.Equal(t, address.FamilyIPv4, a.Family())
	assert.Equal(t, "127.0.0.1:123", a.String())

	require.True(t, a.SetHostPort(address.FamilyIPv6, "::1", 123))
	assert.Equal(t, "[::1]:123", a.String())

	assert.False(t, a.SetHostPort(address.FamilyIPv4, "::1", 1))
	assert.False(t, a.SetHostPort(address.FamilyIPv4, "300.0.0.1", 1))
	assert.False(t, a.SetHostPort(address.FamilyIPv4, "1.2.3.4", 70000))
	assert.Equal(t, "[::1]:123", a.String(), "failed set must not modify")

	a.Clear()
	assert.False(t, a.HasHostPort())
}

func TestParseSocketAddr(t *testing.T) {
	a, err := address.ParseSocketAddr("1.2.3.4", 5)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:5", a.String())

	a, err = address.ParseSocketAddr("[::1]", 5)
	require.NoError(t, err)
	assert.Equal(t, address.FamilyIPv6, a.Family())

	for _, host := range []string{"::1", "[1.2.3.4]", "300.0.0.1", "[11::22::]", "host", "["} {
		_, err := address.ParseSocketAddr(host, 1)
		assert.Error(t, err, host)
	}

	a, err = address.ParseHostPort("[::1]:0")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Port())

	m, err := address.ParseHostPort("239.1.2.3:4000")
	require.NoError(t, err)
	assert.True(t, m.IsMulticast())
	assert.Equal(t, "239.1.2.3:4001", m.WithPort(4001).String())
}

func TestParseEndpointURI(t *testing.T) {
	tests := []struct {
		in       string
		proto    address.Protocol
		host     string
		hostname string
		port     int
		str      string
	}{
		{"rtp://127.0.0.1:123", address.ProtoRTP, "127.0.0.1", "127.0.0.1", 123, "rtp://127.0.0.1:123"},
		{"rtp://[::1]:123", address.ProtoRTP, "[::1]", "::1", 123, "rtp://[::1]:123"},
		{"rtp+rs8m://localhost:10001", address.ProtoRTPRS8MSource, "localhost", "localhost", 10001, "rtp+rs8m://localhost:10001"},
		{"rtsp://127.0.0.1", address.ProtoRTSP, "127.0.0.1", "127.0.0.1", -1, "rtsp://127.0.0.1"},
		{"rtsp://host:8554/live/stream?a=1", address.ProtoRTSP, "host", "host", 8554, "rtsp://host:8554/live/stream?a=1"},
		{"rtp://_:123", address.ProtoRTP, "_", "_", 123, "rtp://_:123"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := address.ParseEndpointURI(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.proto, u.Proto())
			assert.Equal(t, tt.host, u.Host())
			assert.Equal(t, tt.hostname, u.Hostname())
			assert.Equal(t, tt.port, u.Port())
			assert.Equal(t, tt.str, u.String())
		})
	}

	u, err := address.ParseEndpointURI("rtsp://127.0.0.1")
	require.NoError(t, err)
	port, ok := u.PortOrDefault()
	require.True(t, ok)
	assert.Equal(t, 554, port)
}

func TestParseEndpointURIErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"127.0.0.1:123",
		"foo://127.0.0.1:123",
		"rtp://127.0.0.1",
		"rtp://:123",
		"rtp://127.0.0.1:0",
		"rtp://127.0.0.1:99999",
		"rtp://127.0.0.1:123/path",
		"rtp://[::1:123",
		"rtp://[::1]x:123",
	} {
		_, err := address.ParseEndpointURI(in)
		assert.Error(t, err, in)
	}
}
