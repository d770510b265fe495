// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded event loop the network engine
// runs on: epoll readiness watchers over owned descriptors, eventfd async
// handles for cross-goroutine wakeups, deferred callbacks and asynchronous
// handle close. Only Linux is implemented; other platforms get a stub.
package reactor
