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

// Package futexlock provides a mutex, a condition variable and a reentrant
// mutex built directly on futex wait and wake operations.
//
// The zero value of each type is ready to use. Init may be called before
// first use to override the defaults; it must not be called concurrently
// with any other method.
//
// All atomic operations in this package are sequentially consistent. Where
// an operation needs only a weaker ordering, the comment at the call site
// names the ordering it relies on.
package futexlock

import (
	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/sync"
)

// Values of Mutex.state.
const (
	// unlocked means no goroutine holds the mutex.
	unlocked = 0

	// locked means the mutex is held and, as far as the holder knows, no one
	// is blocked waiting for it.
	locked = 1

	// contended means the mutex is held and waiters may be blocked in the
	// futex. Unlock must wake one of them.
	contended = 2
)

// Mutex is a mutual exclusion lock.
//
// Unlike sync.Mutex, Mutex is not fair: a goroutine calling Lock may acquire
// the mutex ahead of goroutines that are already blocked.
type Mutex struct {
	_ sync.NoCopy

	// state is the lock word; see the values above. state == unlocked iff no
	// goroutine holds the mutex.
	state atomicbitops.Uint32

	// f, spinLimit and spinSet are set by Init and immutable afterwards.
	f         futex.Futex
	spinLimit int
	spinSet   bool
}

var _ sync.Locker = (*Mutex)(nil)

// Init configures the mutex. Recognized options are WithFutex and
// WithSpinLimit.
func (m *Mutex) Init(opts ...Option) {
	m.init(newConfig(opts))
}

func (m *Mutex) init(c config) {
	m.f = c.futex
	m.spinLimit = c.spinLimit
	m.spinSet = c.spinSet
}

func (m *Mutex) futex() futex.Futex {
	if m.f == nil {
		return futex.Default()
	}
	return m.f
}

// TryLock acquires the mutex if it is unlocked, and reports whether it did.
// It never blocks.
func (m *Mutex) TryLock() bool {
	// Acquire on success.
	return m.state.CompareAndSwap(unlocked, locked)
}

// Lock acquires the mutex, blocking until it is available.
func (m *Mutex) Lock() {
	// Uncontended case. Acquire on success.
	if m.state.CompareAndSwap(unlocked, locked) {
		return
	}
	m.lockContended()
}

func (m *Mutex) lockContended() {
	// Spin first, in case the holder is about to release.
	state := m.spin()

	// If it's unlocked now, attempt to take the lock without marking it
	// contended.
	if state == unlocked {
		if m.state.CompareAndSwap(unlocked, locked) {
			return
		}
		state = m.state.Load()
	}

	for {
		// Put the lock in the contended state. Since we don't know whether
		// there are other waiters, we must keep it contended even if we get
		// the lock: the swap from unlocked straight to contended is our
		// acquisition, with acquire ordering.
		if state != contended && m.state.Swap(contended) == unlocked {
			return
		}

		// Wait for the word to change from contended. This returns
		// immediately if it already has, and may return spuriously.
		m.futex().Wait(&m.state, contended, futex.Forever)

		// Spin again after waking up.
		state = m.spin()
	}
}

func (m *Mutex) spinLimitOrDefault() int {
	if !m.spinSet {
		return DefaultSpinLimit
	}
	return m.spinLimit
}

// spin re-reads the lock word until it is no longer locked or the spin limit
// is exhausted, and returns the last value read. It never writes the word.
// Relaxed loads suffice; the acquisition that follows orders the access.
func (m *Mutex) spin() uint32 {
	n := m.spinLimitOrDefault()
	for {
		// Stop while the mutex is unlocked or contended. Spinning on a
		// contended mutex is pointless: its waiters will be woken first.
		state := m.state.Load()
		if state != locked || n == 0 {
			return state
		}
		n--
	}
}

// Unlock releases the mutex. The caller must hold it.
func (m *Mutex) Unlock() {
	// Release, so the critical section happens before the next acquisition.
	if m.state.Swap(unlocked) == contended {
		// Someone may be blocked. Wake one of them; the woken goroutine
		// marks the lock contended again when it takes it, which covers
		// any remaining waiters.
		m.futex().Wake(&m.state)
	}
}
