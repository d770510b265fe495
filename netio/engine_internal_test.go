//go:build linux

package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/internal/logging"
	"github.com/momentics/hioload-netio/packet"
	"github.com/momentics/hioload-netio/pool"
)

func newInternalLoop(t *testing.T) *NetworkLoop {
	t.Helper()
	nl, err := NewNetworkLoop(packet.NewFactory(0), pool.NewBufferFactory(2048, 0), WithLogger(logging.Discard()))
	require.NoError(t, err)
	return nl
}

func TestRemoveAfterUnsolicitedClose(t *testing.T) {
	nl := newInternalLoop(t)

	bind, err := address.ParseSocketAddr("127.0.0.1", 0)
	require.NoError(t, err)
	add := NewAddUDPReceiverPort(&UDPReceiverConfig{BindAddress: bind}, packet.NewConcurrentQueue(packet.NonBlocking))
	require.True(t, nl.ScheduleAndWait(add))
	p := add.Handle().(port)

	nl.loop.Post(func() { nl.env.unsolicitedClose(p) })
	require.Eventually(t, func() bool { return nl.NumPorts() == 0 }, 5*time.Second, 5*time.Millisecond)

	remove := NewRemovePort(add.Handle())
	require.True(t, nl.ScheduleAndWait(remove))
	assert.Equal(t, PortClosed, p.base().state)

	require.NoError(t, nl.Close())
	assert.Equal(t, int64(0), nl.env.livePorts.Load())
	assert.Equal(t, 0, nl.loop.NumHandles())
}

func TestRemoveWhileClosingWaitsForClose(t *testing.T) {
	nl := newInternalLoop(t)
	defer func() { require.NoError(t, nl.Close()) }()

	bind, err := address.ParseSocketAddr("127.0.0.1", 0)
	require.NoError(t, err)
	add := NewAddUDPSenderPort(&UDPSenderConfig{BindAddress: bind})
	require.True(t, nl.ScheduleAndWait(add))
	p := add.Handle().(port)

	remove := NewRemovePort(add.Handle())
	done := make(chan PortState, 1)
	nl.loop.Post(func() {
		nl.unsolicitedClose(p)
		// closing has started; the remove must wait for it
		nl.Schedule(remove, CompleterFunc(func(*Task) { done <- p.base().state }))
	})
	select {
	case st := <-done:
		assert.Equal(t, PortClosed, st)
	case <-time.After(5 * time.Second):
		t.Fatal("remove did not complete")
	}
	assert.True(t, remove.Success())
}

func TestRemoveForeignPortFails(t *testing.T) {
	a, b := newInternalLoop(t), newInternalLoop(t)
	defer func() { require.NoError(t, a.Close()) }()
	defer func() { require.NoError(t, b.Close()) }()

	bind, err := address.ParseSocketAddr("127.0.0.1", 0)
	require.NoError(t, err)
	add := NewAddUDPSenderPort(&UDPSenderConfig{BindAddress: bind})
	require.True(t, a.ScheduleAndWait(add))

	assert.False(t, b.ScheduleAndWait(NewRemovePort(add.Handle())))
	assert.Equal(t, 1, a.NumPorts())
}

func TestHostnameValidation(t *testing.T) {
	valid := []string{"localhost", "example.com", "a-b.c-d.example.", "x1.y2"}
	for _, h := range valid {
		assert.True(t, isValidHostname(h), h)
	}
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	invalid := []string{"", "_", "-a", "a-", "a..b", "a b", string(long) + ".com", "ex_ample.com"}
	for _, h := range invalid {
		assert.False(t, isValidHostname(h), h)
	}

	assert.True(t, isNumericHost("300.0.0.1"))
	assert.True(t, isNumericHost("1.2.3"))
	assert.False(t, isNumericHost("1.2.3.x"))
}

func TestRecvBatchClamp(t *testing.T) {
	assert.Equal(t, defaultRecvBatchSize, clampRecvBatch(0))
	assert.Equal(t, defaultRecvBatchSize, clampRecvBatch(-5))
	assert.Equal(t, 7, clampRecvBatch(7))
	assert.Equal(t, maxRecvBatchSize, clampRecvBatch(1<<20))
}

func TestTaskKindAndStateNames(t *testing.T) {
	assert.Equal(t, "remove_port", TaskRemovePort.String())
	assert.Equal(t, "unknown", TaskKind(99).String())
	assert.Equal(t, "pending", TaskPending.String())
	assert.Equal(t, "failed", TaskFailed.String())
	assert.Equal(t, "tcp_connection", PortTCPConnection.String())
	assert.Equal(t, "terminating", PortTerminating.String())
	assert.Equal(t, "failure", TerminateFailure.String())
}
