// Package fake
// Author: momentics <momentics@gmail.com>
//
// Acceptor handing out recording handlers.

package fake

import (
	"sync"

	"github.com/momentics/hioload-netio/netio"
)

// Acceptor creates a ConnHandler per accepted connection. With Reject set
// every connection is refused.
type Acceptor struct {
	Reject bool
	Echo   bool

	mu       sync.Mutex
	handlers []*ConnHandler
	removed  int
	rejected int
}

// NewAcceptor creates an acceptor that accepts everything.
func NewAcceptor() *Acceptor { return &Acceptor{} }

// AddConnection implements netio.ConnAcceptor.
func (a *Acceptor) AddConnection(conn netio.Conn) netio.ConnHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Reject {
		a.rejected++
		return nil
	}
	h := NewConnHandler()
	h.Echo = a.Echo
	h.conn = conn
	a.handlers = append(a.handlers, h)
	return h
}

// RemoveConnection implements netio.ConnAcceptor.
func (a *Acceptor) RemoveConnection(netio.ConnHandler) {
	a.mu.Lock()
	a.removed++
	a.mu.Unlock()
}

// Handlers returns the handlers created so far.
func (a *Acceptor) Handlers() []*ConnHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*ConnHandler, len(a.handlers))
	copy(out, a.handlers)
	return out
}

// Removed returns how many connections were handed back.
func (a *Acceptor) Removed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removed
}

// Rejected returns how many connections were refused.
func (a *Acceptor) Rejected() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rejected
}

var _ netio.ConnAcceptor = (*Acceptor)(nil)
