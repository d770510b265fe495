//go:build !linux

// hioload-netio/internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning is Linux-only; elsewhere the thread is only locked.

package concurrency

import "runtime"

// PinCurrentThread locks the calling goroutine to its OS thread.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	return nil
}
