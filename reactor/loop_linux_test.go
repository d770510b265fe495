//go:build linux

package reactor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-netio/reactor"
)

func runLoop(t *testing.T, l *reactor.Loop) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestAsyncSendAndClose(t *testing.T) {
	l, err := reactor.NewLoop()
	require.NoError(t, err)

	var fired atomic.Int32
	got := make(chan struct{}, 16)
	a, err := l.NewAsync(func() {
		fired.Add(1)
		got <- struct{}{}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, l.NumHandles())

	done := runLoop(t, l)
	require.NoError(t, a.Send())
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("async callback not invoked")
	}

	closed := make(chan struct{})
	l.Post(func() {
		assert.NoError(t, a.Close(func() { close(closed) }))
		assert.ErrorIs(t, a.Close(nil), reactor.ErrHandleClosed)
	})
	<-closed
	assert.ErrorIs(t, a.Send(), reactor.ErrHandleClosed)
	assert.Equal(t, 0, l.NumHandles())

	l.Stop()
	waitDone(t, done)
	require.NoError(t, l.Close())
}

func TestCloseCallbackIsDeferred(t *testing.T) {
	l, err := reactor.NewLoop()
	require.NoError(t, err)
	a, err := l.NewAsync(func() {})
	require.NoError(t, err)

	done := runLoop(t, l)
	result := make(chan bool, 1)
	l.Post(func() {
		invoked := false
		assert.NoError(t, a.Close(func() { invoked = true; l.Post(func() { result <- invoked }) }))
		if invoked {
			result <- false
		}
	})
	assert.True(t, <-result)
	l.Stop()
	waitDone(t, done)
	require.NoError(t, l.Close())
}

func TestPollReadable(t *testing.T) {
	l, err := reactor.NewLoop()
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	readable := make(chan []byte, 1)
	var p *reactor.Poll
	p, err = l.NewPoll(fds[0], reactor.EventRead, func(ev reactor.Events) {
		if ev&reactor.EventRead == 0 {
			return
		}
		buf := make([]byte, 16)
		n, err := unix.Read(p.Fd(), buf)
		if err == nil {
			readable <- buf[:n]
		}
	})
	require.NoError(t, err)

	done := runLoop(t, l)
	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)
	select {
	case b := <-readable:
		assert.Equal(t, "ping", string(b))
	case <-time.After(5 * time.Second):
		t.Fatal("poll not readable")
	}

	closed := make(chan struct{})
	l.Post(func() { _ = p.Close(func() { close(closed) }) })
	<-closed
	assert.Equal(t, -1, p.Fd())

	l.Stop()
	waitDone(t, done)
	require.NoError(t, l.Close())
}

func TestCloseBusyLoop(t *testing.T) {
	l, err := reactor.NewLoop()
	require.NoError(t, err)
	a, err := l.NewAsync(func() {})
	require.NoError(t, err)
	assert.ErrorIs(t, l.Close(), reactor.ErrLoopBusy)

	done := runLoop(t, l)
	l.Post(func() { _ = a.Close(func() { l.Stop() }) })
	waitDone(t, done)
	require.NoError(t, l.Close())
}

func TestPanicHandler(t *testing.T) {
	l, err := reactor.NewLoop()
	require.NoError(t, err)
	recovered := make(chan any, 1)
	l.SetPanicHandler(func(v any) { recovered <- v })

	done := runLoop(t, l)
	l.Post(func() { panic("boom") })
	assert.Equal(t, "boom", <-recovered)
	l.Stop()
	waitDone(t, done)
	require.NoError(t, l.Close())
}

func TestEventsString(t *testing.T) {
	assert.Equal(t, "none", reactor.Events(0).String())
	assert.Equal(t, "read|write", (reactor.EventRead | reactor.EventWrite).String())
}
