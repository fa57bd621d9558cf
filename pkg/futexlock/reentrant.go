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
	"errors"
	"fmt"
	"math"

	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/sync"
	"gvisor.dev/futexlock/pkg/threadid"
)

// ErrLockCountOverflow is wrapped by the value ReentrantMutex panics with
// when its owner acquires it more than math.MaxUint32 times.
var ErrLockCountOverflow = errors.New("lock count overflow in reentrant mutex")

// ReentrantMutex is a mutex that may be locked repeatedly by the goroutine
// that holds it. It is released when Unlock has been called once for every
// successful Lock and TryLock.
//
// By default the owner is identified by its goroutine; see WithIdentity.
type ReentrantMutex struct {
	_ sync.NoCopy

	mu Mutex

	// owner is the identity of the holder, or 0 if the mutex is not held.
	// owner != 0 iff count > 0.
	owner atomicbitops.Uint64

	// count is the number of unreleased acquisitions. It is only accessed by
	// the owner while it holds mu, which is what makes a plain field safe.
	count uint32

	// identity is set by Init and immutable afterwards.
	identity threadid.Provider
}

var _ sync.Locker = (*ReentrantMutex)(nil)

// Init configures the mutex. Recognized options are WithFutex, WithSpinLimit
// and WithIdentity.
func (r *ReentrantMutex) Init(opts ...Option) {
	c := newConfig(opts)
	r.mu.init(c)
	r.identity = c.identity
}

func (r *ReentrantMutex) currentID() uint64 {
	if r.identity == nil {
		return threadid.Default()
	}
	return r.identity()
}

// Lock acquires the mutex, blocking unless it is already held by the caller.
// Lock panics with an error wrapping ErrLockCountOverflow if the caller
// already holds it math.MaxUint32 times.
func (r *ReentrantMutex) Lock() {
	id := r.currentID()
	// Relaxed suffices: only the caller can have stored its own identity,
	// so a match cannot be stale. A mismatch may be stale, but can never
	// turn into a match before the caller stores it.
	if r.owner.Load() == id {
		r.incrementCount(id)
		return
	}
	r.mu.Lock()
	r.owner.Store(id)
	r.count = 1
}

// TryLock acquires the mutex if it is unlocked or already held by the
// caller, and reports whether it did. It never blocks. TryLock panics like
// Lock on overflow.
func (r *ReentrantMutex) TryLock() bool {
	id := r.currentID()
	if r.owner.Load() == id {
		r.incrementCount(id)
		return true
	}
	if !r.mu.TryLock() {
		return false
	}
	r.owner.Store(id)
	r.count = 1
	return true
}

func (r *ReentrantMutex) incrementCount(id uint64) {
	if r.count == math.MaxUint32 {
		panic(fmt.Errorf("owner %d: %w", id, ErrLockCountOverflow))
	}
	r.count++
}

// Unlock releases one acquisition. The mutex is unlocked when the last one
// is released. The caller must hold the mutex.
func (r *ReentrantMutex) Unlock() {
	r.count--
	if r.count == 0 {
		// Clear the owner before releasing mu, so the next holder never
		// sees a stale identity.
		r.owner.Store(0)
		r.mu.Unlock()
	}
}
