//go:build linux
// +build linux

// File: reactor/async_linux.go
// Author: momentics <momentics@gmail.com>
//
// Cross-goroutine wakeup handle backed by eventfd.

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Async runs a callback on the loop after Send. Multiple Sends before the
// loop notices coalesce into one callback.
type Async struct {
	loop *Loop
	cb   func()

	mu     sync.Mutex
	fd     int
	tok    uint64
	closed bool
}

// NewAsync registers a new async handle on l.
func (l *Loop) NewAsync(cb func()) (*Async, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	a := &Async{loop: l, cb: cb, fd: fd}
	tok, err := l.register(fd, unix.EPOLLIN, a)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	a.tok = tok
	return a, nil
}

// Send wakes the loop. Safe from any goroutine.
func (a *Async) Send() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrHandleClosed
	}
	var one = [8]byte{1}
	if _, err := unix.Write(a.fd, one[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close deregisters the handle; cb runs on a later loop iteration.
// Must be called on the loop. Closing twice returns ErrHandleClosed.
func (a *Async) Close(cb CloseCallback) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrHandleClosed
	}
	a.closed = true
	fd := a.fd
	a.fd = -1
	a.mu.Unlock()

	a.loop.unregister(fd, a.tok, cb)
	return nil
}

// IsClosed reports whether Close was called.
func (a *Async) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Async) dispatch(uint32) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	var buf [8]byte
	_, _ = unix.Read(a.fd, buf[:])
	a.mu.Unlock()
	a.cb()
}
