// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the hioload-netio reactor: an intrusive
// multi-producer single-consumer task queue, a one-shot semaphore,
// goroutine identity and OS thread pinning.
package concurrency
