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

package futexlock

import (
	"time"

	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/sync"
)

// Condvar is a condition variable. Each wait is paired with a Mutex that the
// caller holds; different waits may use different mutexes.
//
// Waits may return spuriously, so callers must re-check their condition in
// a loop.
type Condvar struct {
	_ sync.NoCopy

	// seq is incremented, wrapping, by every notification. Waiters only
	// compare it for inequality against an earlier snapshot.
	seq atomicbitops.Uint32

	// f is set by Init and immutable afterwards.
	f futex.Futex
}

// Init configures the condition variable. The recognized option is
// WithFutex.
func (c *Condvar) Init(opts ...Option) {
	c.f = newConfig(opts).futex
}

func (c *Condvar) futex() futex.Futex {
	if c.f == nil {
		return futex.Default()
	}
	return c.f
}

// NotifyOne wakes at most one goroutine waiting on c.
func (c *Condvar) NotifyOne() {
	// Relaxed suffices for the increment; the futex orders the wake.
	c.seq.Add(1)
	c.futex().Wake(&c.seq)
}

// NotifyAll wakes every goroutine waiting on c.
func (c *Condvar) NotifyAll() {
	c.seq.Add(1)
	c.futex().WakeAll(&c.seq)
}

// Wait atomically unlocks m and blocks until c is notified, then re-locks m
// before returning. The caller must hold m. Wait may return without a
// notification.
func (c *Condvar) Wait(m *Mutex) {
	c.wait(m, futex.Forever)
}

// WaitTimeout is like Wait, but gives up after d. It returns false iff the
// wait timed out; m is held on return either way. A negative d is treated as
// zero.
func (c *Condvar) WaitTimeout(m *Mutex, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	return c.wait(m, d)
}

func (c *Condvar) wait(m *Mutex, timeout time.Duration) bool {
	// Examine the notification counter before unlocking the mutex. A
	// notification issued after this point changes the word, so the futex
	// wait below cannot sleep through it. Relaxed suffices; the unlock that
	// follows is a release.
	seq := c.seq.Load()

	m.Unlock()

	// Wait, but only if there hasn't been any notification since the
	// snapshot.
	woken := c.futex().Wait(&c.seq, seq, timeout)

	m.Lock()
	return woken
}
