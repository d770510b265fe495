// File: internal/concurrency/semaphore.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"sync"
)

// Semaphore is a one-shot completion signal: Post once, Wait any number of times.
type Semaphore struct {
	once sync.Once
	ch   chan struct{}
}

// NewSemaphore returns an unposted semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{})}
}

// Post releases all current and future waiters. Extra posts are ignored.
func (s *Semaphore) Post() {
	s.once.Do(func() { close(s.ch) })
}

// Wait blocks until Post.
func (s *Semaphore) Wait() {
	<-s.ch
}

// WaitContext blocks until Post or ctx is done.
func (s *Semaphore) WaitContext(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the signal as a channel.
func (s *Semaphore) Done() <-chan struct{} {
	return s.ch
}
