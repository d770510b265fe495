// Package fake
// Author: momentics <momentics@gmail.com>
//
// Completer that records finished tasks.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-netio/netio"
)

// Completer records every task it is notified about. OnComplete, when set,
// runs on the network loop goroutine after recording.
type Completer struct {
	OnComplete func(t *netio.Task)

	mu    sync.Mutex
	tasks []*netio.Task
	ch    chan *netio.Task
}

// NewCompleter creates a completer buffering up to 1024 notifications.
func NewCompleter() *Completer {
	return &Completer{ch: make(chan *netio.Task, 1024)}
}

// NetworkTaskCompleted implements netio.Completer.
func (c *Completer) NetworkTaskCompleted(t *netio.Task) {
	c.mu.Lock()
	c.tasks = append(c.tasks, t)
	c.mu.Unlock()
	if c.OnComplete != nil {
		c.OnComplete(t)
	}
	select {
	case c.ch <- t:
	default:
	}
}

// Wait returns the next completed task or nil after timeout.
func (c *Completer) Wait(timeout time.Duration) *netio.Task {
	select {
	case t := <-c.ch:
		return t
	case <-time.After(timeout):
		return nil
	}
}

// Count returns the number of completions seen.
func (c *Completer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Tasks returns the completed tasks in notification order.
func (c *Completer) Tasks() []*netio.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*netio.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}
