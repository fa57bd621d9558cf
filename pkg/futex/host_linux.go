// Copyright 2019 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/futexlock/pkg/abi/linux"
	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/log"
)

// warnLog reports futex(2) failures that should never happen. They are
// treated as spurious wakeups, so a broken word cannot wedge a caller, but
// logging every one of them from a spinning lock would flood the log.
var warnLog = log.BasicRateLimitedLogger(time.Minute)

// Host implements Futex with the host's futex(2), using private futexes.
//
// A blocked Wait occupies an OS thread for its duration; the Go runtime hands
// the caller's P to another thread while the syscall is in progress.
type Host struct{}

// deadline converts a relative timeout into an absolute CLOCK_MONOTONIC
// time. It returns nil for no timeout, including timeouts so large that the
// deadline is not representable.
func deadline(timeout time.Duration) *unix.Timespec {
	if timeout < 0 {
		return nil
	}
	var now unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err != nil {
		// CLOCK_MONOTONIC is always available on Linux.
		panic(err)
	}
	ns := now.Nano() + timeout.Nanoseconds()
	if ns < now.Nano() {
		return nil
	}
	ts := unix.NsecToTimespec(ns)
	return &ts
}

// Wait implements Futex.Wait.
//
// EINTR restarts the wait against the same absolute deadline, so a signal
// delivered to the waiting thread neither shortens a timed wait nor shows up
// as a wakeup.
func (Host) Wait(w *atomicbitops.Uint32, val uint32, timeout time.Duration) bool {
	ts := deadline(timeout)
	for {
		// No need to wait if the value already changed.
		if w.Load() != val {
			return true
		}
		_, _, e := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(w.Ptr())), linux.FUTEX_WAIT_BITSET_PRIVATE, uintptr(val), uintptr(unsafe.Pointer(ts)), 0, linux.FUTEX_BITSET_MATCH_ANY)
		switch e {
		case 0, unix.EAGAIN:
			// Woken, or the word no longer held val.
			return true
		case unix.EINTR:
			continue
		case unix.ETIMEDOUT:
			return false
		default:
			warnLog.Warningf("FUTEX_WAIT_BITSET on %p failed: %v", w, e)
			return true
		}
	}
}

// Wake implements Futex.Wake.
func (Host) Wake(w *atomicbitops.Uint32) {
	hostWake(w, 1)
}

// WakeAll implements Futex.WakeAll.
func (Host) WakeAll(w *atomicbitops.Uint32) {
	hostWake(w, linux.FUTEX_WAKE_ALL)
}

func hostWake(w *atomicbitops.Uint32, n uintptr) {
	if _, _, e := unix.RawSyscall(unix.SYS_FUTEX, uintptr(unsafe.Pointer(w.Ptr())), linux.FUTEX_WAKE_PRIVATE, n); e != 0 {
		warnLog.Warningf("FUTEX_WAKE on %p failed: %v", w, e)
	}
}
