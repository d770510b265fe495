// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-netio.
// Fixed-size recyclable byte buffers for datagram receive and a generic
// sync.Pool wrapper for packet headers. Both are safe for concurrent use.
// See buffer_factory.go and objpool.go.
package pool
