// File: netio/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package netio is the asynchronous network task engine.
//
// A NetworkLoop owns one reactor goroutine locked to its OS thread. Callers
// on any goroutine build Tasks (add a UDP receiver or sender, a TCP server
// or client, remove a port, resolve an endpoint) and hand them over with
// Schedule, which reports completion through a Completer on the loop
// goroutine, or ScheduleAndWait, which blocks until the task finishes.
//
// Ports are closed asynchronously. A RemovePort task completes only once
// the native socket is closed; TCP connections are terminated first and
// their handler sees ConnectionTerminated before ConnectionUnbound. Close
// executes pending tasks, closes every port and stops the goroutine.
//
// Failures are reported through Task.Success and Task.Err. Ownership
// violations, such as scheduling a task that is still in flight or
// removing a port twice, panic.
package netio
