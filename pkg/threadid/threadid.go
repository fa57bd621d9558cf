// Copyright 2018 The gVisor Authors.
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

// Package threadid provides identities for the owners of reentrant locks.
//
// An identity is a non-zero uint64 that is stable for the lifetime of its
// owner and distinct from the identity of every other live owner. Zero is
// reserved to mean "no owner".
package threadid

import (
	"fmt"
	"runtime"
)

// Provider returns the identity of the caller.
type Provider func() uint64

// Default is the Provider used when none is configured.
var Default Provider = Goroutine

// Goroutine returns the ID of the calling goroutine.
//
// Goroutines move freely between OS threads, so the goroutine, not the
// thread, is the unit that owns a lock in Go. Goroutine IDs are never reused
// while the process runs, which makes them collision-free.
//
// Goroutine reads the ID from the header of the caller's stack trace, and
// costs on the order of a microsecond.
func Goroutine() uint64 {
	// "goroutine 123 [running]:\n", and we only need the first line.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	id := parseGoroutineID(buf[:n])
	if id == 0 {
		panic(fmt.Sprintf("unable to parse goroutine ID from %q", buf[:n]))
	}
	return id
}

// parseGoroutineID returns the ID from a stack trace header, or 0 if buf is
// not one.
func parseGoroutineID(buf []byte) uint64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id uint64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
