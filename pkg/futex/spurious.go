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

// Spurious wraps a Futex and turns every Every'th call to Wait into an
// immediate spurious wakeup. Users of a Futex are required to tolerate such
// wakeups; Spurious makes them frequent enough to test.
type Spurious struct {
	// Futex is the wrapped implementation. Futex is immutable.
	Futex Futex

	// Every is the period of injected wakeups. If Every is 0, no wakeups are
	// injected. Every is immutable.
	Every uint64

	calls atomicbitops.Uint64
}

// NewSpurious returns a Spurious that wraps f. If f is nil, Default() is
// wrapped.
func NewSpurious(f Futex, every uint64) *Spurious {
	if f == nil {
		f = Default()
	}
	return &Spurious{Futex: f, Every: every}
}

// Wait implements Futex.Wait.
func (s *Spurious) Wait(w *atomicbitops.Uint32, val uint32, timeout time.Duration) bool {
	if s.Every != 0 && s.calls.Add(1)%s.Every == 0 {
		return true
	}
	return s.Futex.Wait(w, val, timeout)
}

// Wake implements Futex.Wake.
func (s *Spurious) Wake(w *atomicbitops.Uint32) {
	s.Futex.Wake(w)
}

// WakeAll implements Futex.WakeAll.
func (s *Spurious) WakeAll(w *atomicbitops.Uint32) {
	s.Futex.WakeAll(w)
}
