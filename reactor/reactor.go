// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral definitions shared by the loop implementations.

package reactor

import "errors"

// Events is a readiness mask.
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	EventError
	EventHangup
	// EventEdgeTriggered requests edge-triggered delivery; it is never reported.
	EventEdgeTriggered
)

// String renders the mask like "read|write".
func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	names := []string{"read", "write", "error", "hangup", "et"}
	s := ""
	for i, n := range names {
		if e&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += n
		}
	}
	return s
}

// PollCallback receives readiness for a Poll handle. Runs on the loop.
type PollCallback func(ev Events)

// CloseCallback is invoked on the loop once a handle is fully closed.
type CloseCallback func()

var (
	ErrLoopClosed    = errors.New("reactor: loop is closed")
	ErrLoopBusy      = errors.New("reactor: loop still has active handles")
	ErrHandleClosed  = errors.New("reactor: handle is closed")
	ErrNotSupported  = errors.New("reactor: this platform is not supported")
	ErrAlreadyActive = errors.New("reactor: loop is already running")
)
