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

package futex

import (
	"time"

	"gvisor.dev/futexlock/pkg/atomicbitops"
)

// Stats is a snapshot of the counters kept by Counting.
type Stats struct {
	// Waits is the number of calls to Wait.
	Waits uint64 `json:"waits"`

	// Timeouts is the number of calls to Wait that returned false.
	Timeouts uint64 `json:"timeouts"`

	// Wakes is the number of calls to Wake.
	Wakes uint64 `json:"wakes"`

	// WakeAlls is the number of calls to WakeAll.
	WakeAlls uint64 `json:"wake_alls"`

	// Blocked is the number of callers inside Wait when the snapshot was
	// taken.
	Blocked uint64 `json:"blocked"`
}

// Counting wraps a Futex and counts the calls made through it.
type Counting struct {
	// Futex is the wrapped implementation. Futex is immutable.
	Futex Futex

	waits    atomicbitops.Uint64
	timeouts atomicbitops.Uint64
	wakes    atomicbitops.Uint64
	wakeAlls atomicbitops.Uint64
	blocked  atomicbitops.Uint64
}

// NewCounting returns a Counting wrapping f. If f is nil, Default() is
// wrapped.
func NewCounting(f Futex) *Counting {
	if f == nil {
		f = Default()
	}
	return &Counting{Futex: f}
}

// Wait implements Futex.Wait.
func (c *Counting) Wait(w *atomicbitops.Uint32, val uint32, timeout time.Duration) bool {
	c.waits.Add(1)
	c.blocked.Add(1)
	woken := c.Futex.Wait(w, val, timeout)
	c.blocked.Add(^uint64(0))
	if !woken {
		c.timeouts.Add(1)
	}
	return woken
}

// Wake implements Futex.Wake.
func (c *Counting) Wake(w *atomicbitops.Uint32) {
	c.wakes.Add(1)
	c.Futex.Wake(w)
}

// WakeAll implements Futex.WakeAll.
func (c *Counting) WakeAll(w *atomicbitops.Uint32) {
	c.wakeAlls.Add(1)
	c.Futex.WakeAll(w)
}

// Stats returns a snapshot of the counters. The counters are read
// individually, so a snapshot taken while calls are in flight may be
// inconsistent across fields.
func (c *Counting) Stats() Stats {
	return Stats{
		Waits:    c.waits.Load(),
		Timeouts: c.timeouts.Load(),
		Wakes:    c.wakes.Load(),
		WakeAlls: c.wakeAlls.Load(),
		Blocked:  c.blocked.Load(),
	}
}

// Reset zeroes the call counters. Blocked is left alone, since it tracks
// callers that are still inside Wait.
func (c *Counting) Reset() {
	c.waits.Store(0)
	c.timeouts.Store(0)
	c.wakes.Store(0)
	c.wakeAlls.Store(0)
}
