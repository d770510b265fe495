//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

// Loop is unavailable on this platform.
type Loop struct{}

// NewLoop returns ErrNotSupported on this platform.
func NewLoop() (*Loop, error) {
	return nil, ErrNotSupported
}

func (l *Loop) SetPanicHandler(func(v any))                      {}
func (l *Loop) NumHandles() int                                  { return 0 }
func (l *Loop) Run() error                                       { return ErrNotSupported }
func (l *Loop) Stop()                                            {}
func (l *Loop) Post(func())                                      {}
func (l *Loop) Close() error                                     { return ErrNotSupported }
func (l *Loop) NewAsync(func()) (*Async, error)                  { return nil, ErrNotSupported }
func (l *Loop) NewPoll(int, Events, PollCallback) (*Poll, error) { return nil, ErrNotSupported }

// Async is unavailable on this platform.
type Async struct{}

func (a *Async) Send() error                  { return ErrNotSupported }
func (a *Async) Close(cb CloseCallback) error { return ErrNotSupported }
func (a *Async) IsClosed() bool               { return true }

// Poll is unavailable on this platform.
type Poll struct{}

func (p *Poll) Fd() int                      { return -1 }
func (p *Poll) Events() Events               { return 0 }
func (p *Poll) Modify(Events) error          { return ErrNotSupported }
func (p *Poll) Close(cb CloseCallback) error { return ErrNotSupported }
func (p *Poll) IsClosed() bool               { return true }
