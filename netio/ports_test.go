//go:build linux

package netio_test

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/fake"
	"github.com/momentics/hioload-netio/netio"
	"github.com/momentics/hioload-netio/packet"
)

func TestUDPRoundTrip(t *testing.T) {
	for _, nonBlocking := range []bool{false, true} {
		env := newTestLoop(t)
		sink := packet.NewConcurrentQueue(packet.NonBlocking)
		_, recvCfg := addUDPReceiver(t, env.loop, sink)

		sendCfg := &netio.UDPSenderConfig{BindAddress: loopback(t), NonBlockingEnabled: nonBlocking}
		sender := netio.NewAddUDPSenderPort(sendCfg)
		require.True(t, env.loop.ScheduleAndWait(sender))
		require.NotNil(t, sender.Writer())
		assert.Greater(t, sendCfg.BindAddress.Port(), 0)

		payloads := []string{"first", "second", "third"}
		for _, s := range payloads {
			pkt := env.packets.NewPacket()
			pkt.SetUDP(packet.UDP{DstAddr: recvCfg.BindAddress})
			pkt.SetData([]byte(s))
			require.NoError(t, sender.Writer().Write(pkt))
		}

		require.Eventually(t, func() bool { return sink.Len() == len(payloads) }, waitTimeout, 5*time.Millisecond,
			"non_blocking=%v", nonBlocking)
		for _, s := range payloads {
			pkt, err := sink.Read()
			require.NoError(t, err)
			require.True(t, pkt.HasFlags(packet.FlagUDP|packet.FlagPrepared))
			assert.Equal(t, s, string(pkt.Data()))
			assert.Equal(t, sendCfg.BindAddress, pkt.UDP().SrcAddr)
			assert.Equal(t, recvCfg.BindAddress, pkt.UDP().DstAddr)
			assert.False(t, pkt.UDP().QueueTimestamp.IsZero())
			pkt.Release()
		}

		require.NoError(t, env.loop.Close())
		assert.Equal(t, int64(0), env.packets.Live())
		assert.Equal(t, int64(0), env.buffers.Stats().InUse)
	}
}

func TestUDPSenderRejectsBadDestination(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	sender := netio.NewAddUDPSenderPort(&netio.UDPSenderConfig{BindAddress: loopback(t)})
	require.True(t, env.loop.ScheduleAndWait(sender))
	w := sender.Writer()

	noDst := env.packets.NewPacket()
	noDst.SetData([]byte("x"))
	assert.ErrorIs(t, w.Write(noDst), api.ErrInvalidArgument)

	v6, err := address.ParseSocketAddr("[::1]", 9)
	require.NoError(t, err)
	wrongFamily := env.packets.NewPacket()
	wrongFamily.SetUDP(packet.UDP{DstAddr: v6})
	assert.ErrorIs(t, w.Write(wrongFamily), api.ErrInvalidArgument)

	assert.Equal(t, int64(0), env.packets.Live())
}

func TestUDPSenderWriteAfterRemove(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	sender := netio.NewAddUDPSenderPort(&netio.UDPSenderConfig{BindAddress: loopback(t)})
	require.True(t, env.loop.ScheduleAndWait(sender))
	require.True(t, env.loop.ScheduleAndWait(netio.NewRemovePort(sender.Handle())))

	pkt := env.packets.NewPacket()
	pkt.SetUDP(packet.UDP{DstAddr: sender.Handle().Address()})
	assert.ErrorIs(t, sender.Writer().Write(pkt), api.ErrPortClosed)
	assert.Equal(t, int64(0), env.packets.Live())
}

func TestUDPReceiverDropsWithoutBuffers(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	sink := packet.NewConcurrentQueue(packet.NonBlocking)
	_, cfg := addUDPReceiver(t, env.loop, sink)
	env.buffers.Exhausted.Store(true)

	conn, err := net.Dial("udp", cfg.BindAddress.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("dropped"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return env.buffers.Refused() > 0 }, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(env.metrics.Registry(), "netio_packets_dropped_total")
		return err == nil && n == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 0, sink.Len())

	env.buffers.Exhausted.Store(false)
	_, err = conn.Write([]byte("kept"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.Len() == 1 }, waitTimeout, 5*time.Millisecond)
	pkt, err := sink.Read()
	require.NoError(t, err)
	assert.Equal(t, "kept", string(pkt.Data()))
	pkt.Release()
}

func TestRecvBatchSizeIsAdjustable(t *testing.T) {
	env := newTestLoop(t, netio.WithRecvBatchSize(1))
	defer func() { require.NoError(t, env.loop.Close()) }()

	sink := packet.NewConcurrentQueue(packet.NonBlocking)
	_, cfg := addUDPReceiver(t, env.loop, sink)
	env.loop.SetRecvBatchSize(2)

	conn, err := net.Dial("udp", cfg.BindAddress.String())
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 10; i++ {
		_, err = conn.Write([]byte{byte(i)})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return sink.Len() == 10 }, waitTimeout, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		pkt, err := sink.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, pkt.Data())
		pkt.Release()
	}
}

func connectTCP(t *testing.T, env *testEnv, remote address.SocketAddr) (*netio.Task, *fake.ConnHandler, *netio.TCPClientConfig) {
	t.Helper()
	handler := fake.NewConnHandler()
	cfg := &netio.TCPClientConfig{RemoteAddress: remote}
	task := netio.NewAddTCPClientPort(cfg, handler)
	require.True(t, env.loop.ScheduleAndWait(task), "add tcp client: %v", task.Err())
	return task, handler, cfg
}

func TestTCPClientServerExchange(t *testing.T) {
	env := newTestLoop(t)
	acceptor := fake.NewAcceptor()
	acceptor.Echo = true
	_, srvCfg := addTCPServer(t, env.loop, acceptor)

	client, handler, cliCfg := connectTCP(t, env, srvCfg.BindAddress)
	assert.Equal(t, netio.PortTCPClient, client.Handle().Kind())
	assert.Greater(t, cliCfg.LocalAddress.Port(), 0)
	assert.Equal(t, 2, env.loop.NumPorts())

	require.True(t, handler.WaitFor(func() bool { return handler.Has(fake.EventEstablished) }, waitTimeout))
	require.Eventually(t, func() bool { return len(acceptor.Handlers()) == 1 }, waitTimeout, 5*time.Millisecond)
	server := acceptor.Handlers()[0]
	assert.True(t, server.Has(fake.EventEstablished))

	conn := handler.Conn()
	require.NotNil(t, conn)
	assert.Equal(t, srvCfg.BindAddress, conn.RemoteAddress())
	assert.Equal(t, cliCfg.LocalAddress, conn.LocalAddress())
	assert.False(t, conn.IsFailed())
	require.Eventually(t, conn.IsWritable, waitTimeout, 5*time.Millisecond)

	n, err := conn.TryWrite([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.True(t, handler.WaitFor(func() bool { return string(handler.Data()) == "ping" }, waitTimeout),
		"echo not received: %q", handler.Data())
	assert.Equal(t, "ping", string(server.Data()))

	require.True(t, env.loop.ScheduleAndWait(netio.NewRemovePort(client.Handle())))
	events := handler.Events()
	terminated, unbound := handler.Index(fake.EventTerminated), handler.Index(fake.EventUnbound)
	require.GreaterOrEqual(t, terminated, 0)
	assert.Less(t, terminated, unbound)
	assert.Equal(t, fake.EventUnbound, events[len(events)-1])
	assert.Equal(t, 1, env.loop.NumPorts())

	_, err = conn.TryWrite([]byte("late"))
	assert.ErrorIs(t, err, api.ErrConnNotReady)

	require.True(t, server.WaitFor(server.EOF, waitTimeout))

	require.NoError(t, env.loop.Close())
	assert.True(t, server.Has(fake.EventUnbound))
	assert.Equal(t, 1, acceptor.Removed())
}

func TestTCPClientRefused(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	remote, err := address.ParseHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	handler := fake.NewConnHandler()
	client := netio.NewAddTCPClientPort(&netio.TCPClientConfig{RemoteAddress: remote}, handler)
	if !env.loop.ScheduleAndWait(client) {
		// refused before connect returned
		assert.Equal(t, api.ErrCodeConnectFailed, api.CodeOf(client.Err()))
		assert.Equal(t, 0, env.loop.NumPorts())
		return
	}
	require.True(t, handler.WaitFor(func() bool { return handler.Has(fake.EventRefused) }, waitTimeout))
	assert.False(t, handler.Has(fake.EventEstablished))
	assert.True(t, handler.Conn().IsFailed())
	assert.Equal(t, 1, env.loop.NumPorts())

	_, err = handler.Conn().TryRead(make([]byte, 8))
	assert.ErrorIs(t, err, api.ErrConnFailed)

	require.True(t, env.loop.ScheduleAndWait(netio.NewRemovePort(client.Handle())))
	assert.True(t, handler.Has(fake.EventUnbound))
	assert.Equal(t, 0, env.loop.NumPorts())
}

func TestTCPClientRejectsBadConfig(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	task := netio.NewAddTCPClientPort(&netio.TCPClientConfig{}, fake.NewConnHandler())
	assert.False(t, env.loop.ScheduleAndWait(task))
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(task.Err()))

	v6, err := address.ParseSocketAddr("[::1]", 9)
	require.NoError(t, err)
	mixed := netio.NewAddTCPClientPort(&netio.TCPClientConfig{LocalAddress: loopback(t), RemoteAddress: v6}, fake.NewConnHandler())
	assert.False(t, env.loop.ScheduleAndWait(mixed))
	assert.Equal(t, 0, env.loop.NumPorts())
}

func TestTCPServerRejectsConnection(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	acceptor := fake.NewAcceptor()
	acceptor.Reject = true
	_, cfg := addTCPServer(t, env.loop, acceptor)

	conn, err := net.Dial("tcp", cfg.BindAddress.String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return acceptor.Rejected() == 1 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Empty(t, acceptor.Handlers())
}

func TestRemoveTCPServerClosesConnections(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	acceptor := fake.NewAcceptor()
	srv, cfg := addTCPServer(t, env.loop, acceptor)

	peer, err := net.Dial("tcp", cfg.BindAddress.String())
	require.NoError(t, err)
	defer peer.Close()
	require.Eventually(t, func() bool { return len(acceptor.Handlers()) == 1 }, waitTimeout, 5*time.Millisecond)
	child := acceptor.Handlers()[0]

	require.True(t, env.loop.ScheduleAndWait(netio.NewRemovePort(srv)))
	assert.Less(t, child.Index(fake.EventTerminated), child.Index(fake.EventUnbound))
	assert.GreaterOrEqual(t, child.Index(fake.EventTerminated), 0)
	assert.Equal(t, 1, acceptor.Removed())
	assert.Equal(t, 0, env.loop.NumPorts())

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err = peer.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestFailedConnectionIsClosedByServer(t *testing.T) {
	env := newTestLoop(t)
	defer func() { require.NoError(t, env.loop.Close()) }()

	acceptor := fake.NewAcceptor()
	_, cfg := addTCPServer(t, env.loop, acceptor)

	peer, err := net.Dial("tcp", cfg.BindAddress.String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(acceptor.Handlers()) == 1 }, waitTimeout, 5*time.Millisecond)
	child := acceptor.Handlers()[0]

	// An abortive close makes the accepted connection fail.
	require.NoError(t, peer.(*net.TCPConn).SetLinger(0))
	require.NoError(t, peer.Close())

	require.True(t, child.WaitFor(func() bool { return child.Has(fake.EventUnbound) }, waitTimeout))
	assert.Equal(t, 1, acceptor.Removed())
	assert.Equal(t, 1, env.loop.NumPorts())
}
