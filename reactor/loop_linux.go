//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll loop.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	maxEvents = 128
	epollET   = 1 << 31
)

// handle is the loop side of an Async or Poll.
type handle interface {
	dispatch(ev uint32)
}

// Loop is a single-threaded epoll event loop. Run must be called from one
// goroutine; Post, Stop and Async.Send are safe from any goroutine.
type Loop struct {
	epfd   int
	wakefd int

	mu      sync.Mutex
	handles map[uint64]handle
	nextTok uint64
	posted  []func()

	numHandles atomic.Int64
	stopping   atomic.Bool
	running    atomic.Bool
	closed     atomic.Bool

	panicHandler func(v any)
}

// NewLoop creates an epoll instance and the internal wakeup eventfd.
func NewLoop() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN}
	setToken(&ev, 0)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}
	return &Loop{
		epfd:    epfd,
		wakefd:  wakefd,
		handles: make(map[uint64]handle),
		nextTok: 1,
	}, nil
}

// SetPanicHandler installs a handler for panics escaping callbacks. With no
// handler such panics propagate out of Run.
func (l *Loop) SetPanicHandler(fn func(v any)) {
	l.panicHandler = fn
}

// NumHandles returns the number of open handles.
func (l *Loop) NumHandles() int {
	return int(l.numHandles.Load())
}

// Run dispatches events until Stop. Posted callbacks still pending at Stop
// are run before Run returns.
func (l *Loop) Run() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	defer l.running.Store(false)

	var events [maxEvents]unix.EpollEvent
	for {
		hasPosted := l.runPosted()
		if l.stopping.Load() {
			for l.runPosted() {
			}
			return nil
		}

		timeout := -1
		if hasPosted {
			timeout = 0
		}
		n, err := unix.EpollWait(l.epfd, events[:], timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			tok := token(&events[i])
			if tok == 0 {
				l.drainWakeup()
				continue
			}
			l.mu.Lock()
			h := l.handles[tok]
			l.mu.Unlock()
			if h == nil {
				// closed earlier in this batch
				continue
			}
			l.safeCall(func() { h.dispatch(events[i].Events) })
		}
	}
}

// Stop makes Run return after the current iteration.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	l.wakeup()
}

// Post schedules fn to run on the loop during the next iteration.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.wakeup()
}

// Close releases the epoll instance. It fails with ErrLoopBusy while any
// handle is still open.
func (l *Loop) Close() error {
	if l.running.Load() {
		return ErrAlreadyActive
	}
	if n := l.NumHandles(); n != 0 {
		return fmt.Errorf("%w: %d", ErrLoopBusy, n)
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Close(l.wakefd)
	return unix.Close(l.epfd)
}

func (l *Loop) runPosted() bool {
	l.mu.Lock()
	batch := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range batch {
		l.safeCall(fn)
	}
	l.mu.Lock()
	more := len(l.posted) != 0
	l.mu.Unlock()
	return more
}

func (l *Loop) safeCall(fn func()) {
	if l.panicHandler == nil {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.panicHandler(r)
		}
	}()
	fn()
}

func (l *Loop) wakeup() {
	var one = [8]byte{1}
	_, _ = unix.Write(l.wakefd, one[:])
}

func (l *Loop) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(l.wakefd, buf[:])
}

func (l *Loop) register(fd int, events uint32, h handle) (uint64, error) {
	l.mu.Lock()
	tok := l.nextTok
	l.nextTok++
	l.handles[tok] = h
	l.mu.Unlock()

	ev := unix.EpollEvent{Events: events}
	setToken(&ev, tok)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		l.mu.Lock()
		delete(l.handles, tok)
		l.mu.Unlock()
		return 0, fmt.Errorf("epoll ctl add: %w", err)
	}
	l.numHandles.Add(1)
	return tok, nil
}

func (l *Loop) modify(fd int, tok uint64, events uint32) error {
	ev := unix.EpollEvent{Events: events}
	setToken(&ev, tok)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// unregister removes the fd from epoll, closes it and defers cb.
func (l *Loop) unregister(fd int, tok uint64, cb CloseCallback) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	l.mu.Lock()
	delete(l.handles, tok)
	l.mu.Unlock()
	_ = unix.Close(fd)
	l.Post(func() {
		l.numHandles.Add(-1)
		if cb != nil {
			cb()
		}
	})
}

// The 64-bit user token occupies the Fd and Pad words of the event.
func setToken(ev *unix.EpollEvent, tok uint64) {
	*(*uint64)(unsafe.Pointer(&ev.Fd)) = tok
}

func token(ev *unix.EpollEvent) uint64 {
	return *(*uint64)(unsafe.Pointer(&ev.Fd))
}

func toEpoll(ev Events) uint32 {
	var e uint32
	if ev&EventRead != 0 {
		e |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ev&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if ev&EventEdgeTriggered != 0 {
		e |= epollET
	}
	return e
}

func fromEpoll(e uint32) Events {
	var ev Events
	if e&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		ev |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		ev |= EventHangup
	}
	return ev
}
