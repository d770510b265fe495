// Package fake
// Author: momentics <momentics@gmail.com>
//
// Connection handler recording notifications and the bytes it reads.

package fake

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/momentics/hioload-netio/netio"
)

// ConnEvent names a ConnHandler notification.
type ConnEvent string

const (
	EventRefused     ConnEvent = "refused"
	EventEstablished ConnEvent = "established"
	EventWritable    ConnEvent = "writable"
	EventReadable    ConnEvent = "readable"
	EventTerminated  ConnEvent = "terminated"
	EventUnbound     ConnEvent = "unbound"
)

// ConnHandler records notifications in order. On readable it drains the
// connection into an internal buffer; Echo writes what it read back.
type ConnHandler struct {
	Echo bool

	mu     sync.Mutex
	events []ConnEvent
	data   []byte
	eof    bool
	conn   netio.Conn
	notify chan struct{}
}

// NewConnHandler creates an empty recorder.
func NewConnHandler() *ConnHandler {
	return &ConnHandler{notify: make(chan struct{}, 1)}
}

func (h *ConnHandler) record(conn netio.Conn, ev ConnEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.conn = conn
	h.mu.Unlock()
	h.signal()
}

func (h *ConnHandler) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *ConnHandler) ConnectionRefused(conn netio.Conn)     { h.record(conn, EventRefused) }
func (h *ConnHandler) ConnectionEstablished(conn netio.Conn) { h.record(conn, EventEstablished) }
func (h *ConnHandler) ConnectionWritable(conn netio.Conn)    { h.record(conn, EventWritable) }
func (h *ConnHandler) ConnectionTerminated(conn netio.Conn)  { h.record(conn, EventTerminated) }
func (h *ConnHandler) ConnectionUnbound(conn netio.Conn)     { h.record(conn, EventUnbound) }

// ConnectionReadable reads everything available.
func (h *ConnHandler) ConnectionReadable(conn netio.Conn) {
	var buf [4096]byte
	for {
		n, err := conn.TryRead(buf[:])
		if n > 0 {
			h.mu.Lock()
			h.data = append(h.data, buf[:n]...)
			h.mu.Unlock()
			if h.Echo {
				_, _ = conn.TryWrite(buf[:n])
			}
		}
		if errors.Is(err, io.EOF) {
			h.mu.Lock()
			h.eof = true
			h.mu.Unlock()
		}
		if n == 0 || err != nil {
			break
		}
	}
	h.record(conn, EventReadable)
}

// Events returns the notifications seen so far.
func (h *ConnHandler) Events() []ConnEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConnEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Has reports whether ev was seen.
func (h *ConnHandler) Has(ev ConnEvent) bool {
	return h.Index(ev) >= 0
}

// Index returns the position of the first ev, or -1.
func (h *ConnHandler) Index(ev ConnEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.events {
		if e == ev {
			return i
		}
	}
	return -1
}

// Data returns a copy of the bytes read.
func (h *ConnHandler) Data() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.data...)
}

// EOF reports whether the peer shut down its write side.
func (h *ConnHandler) EOF() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eof
}

// Conn returns the connection of the latest notification.
func (h *ConnHandler) Conn() netio.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

// WaitFor polls until cond holds or timeout elapses.
func (h *ConnHandler) WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-h.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return cond()
		}
	}
	return true
}

var _ netio.ConnHandler = (*ConnHandler)(nil)
