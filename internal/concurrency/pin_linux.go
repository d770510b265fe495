//go:build linux

// hioload-netio/internal/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux thread pinning through sched_setaffinity.

package concurrency

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its OS thread and, when
// cpuID >= 0, binds that thread to the given CPU. The lock is kept even if
// setting the affinity fails.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin: sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}
