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

// Package futex provides the wait/wake primitive that the locks in package
// futexlock are built on.
//
// A futex word is a 32-bit atomic value that is used both as ordinary shared
// state and as the key for a queue of blocked waiters. Wait blocks only if the
// word still holds the expected value at the moment the waiter is queued, and
// Wake releases waiters queued on the same word. Neither operation modifies
// the word.
//
// Two backends are provided. Host issues futex(2) directly and is the default
// on Linux. Manager keeps the waiter queues in user space and is the default
// everywhere else; it is also useful in tests, since it never blocks an OS
// thread.
package futex

import (
	"time"

	"gvisor.dev/futexlock/pkg/atomicbitops"
)

// Forever may be passed as the timeout to Futex.Wait to wait without a
// deadline.
const Forever time.Duration = -1

// Futex is a wait/wake primitive keyed on the address of a 32-bit word.
type Futex interface {
	// Wait blocks the caller while w holds val, until it is woken by Wake or
	// WakeAll on the same word, returns spuriously, or the timeout elapses.
	// A negative timeout (see Forever) means no timeout.
	//
	// The check of w against val is atomic with respect to queueing the
	// caller, so a Wake that happens after the word changed is never missed.
	//
	// Wait returns false iff the wait definitely timed out. A true result
	// does not imply that a Wake happened; callers must re-check the word.
	Wait(w *atomicbitops.Uint32, val uint32, timeout time.Duration) bool

	// Wake wakes at most one waiter blocked on w.
	Wake(w *atomicbitops.Uint32)

	// WakeAll wakes all waiters blocked on w.
	WakeAll(w *atomicbitops.Uint32)
}
