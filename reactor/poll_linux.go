//go:build linux
// +build linux

// File: reactor/poll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Readiness watcher over an owned file descriptor.

package reactor

// Poll watches one file descriptor. The Poll owns the fd and closes it.
// All methods must be called on the loop.
type Poll struct {
	loop   *Loop
	fd     int
	tok    uint64
	events Events
	cb     PollCallback
	closed bool
}

// NewPoll registers fd with the given interest. The fd must be non-blocking.
// On error the fd is not closed.
func (l *Loop) NewPoll(fd int, events Events, cb PollCallback) (*Poll, error) {
	p := &Poll{loop: l, fd: fd, events: events, cb: cb}
	tok, err := l.register(fd, toEpoll(events), p)
	if err != nil {
		return nil, err
	}
	p.tok = tok
	return p, nil
}

// Fd returns the watched descriptor, -1 after Close.
func (p *Poll) Fd() int {
	if p.closed {
		return -1
	}
	return p.fd
}

// Events returns the current interest mask.
func (p *Poll) Events() Events {
	return p.events
}

// Modify replaces the interest mask.
func (p *Poll) Modify(events Events) error {
	if p.closed {
		return ErrHandleClosed
	}
	if events == p.events {
		return nil
	}
	if err := p.loop.modify(p.fd, p.tok, toEpoll(events)); err != nil {
		return err
	}
	p.events = events
	return nil
}

// Close deregisters and closes the fd immediately; cb runs on a later
// loop iteration. Closing twice returns ErrHandleClosed.
func (p *Poll) Close(cb CloseCallback) error {
	if p.closed {
		return ErrHandleClosed
	}
	p.closed = true
	p.loop.unregister(p.fd, p.tok, cb)
	return nil
}

// IsClosed reports whether Close was called.
func (p *Poll) IsClosed() bool {
	return p.closed
}

func (p *Poll) dispatch(e uint32) {
	if p.closed {
		return
	}
	p.cb(fromEpoll(e))
}
