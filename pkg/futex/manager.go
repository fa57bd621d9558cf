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
	"errors"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/sync"
)

// ErrAgain is returned by WaitPrepare when the futex word no longer holds
// the expected value. It plays the role of EAGAIN from futex(2).
var ErrAgain = errors.New("futex word does not hold the expected value")

// Waiter is the struct which gets enqueued into buckets for wake up routines
// to scan and notify. Once a Waiter has been enqueued by WaitPrepare(),
// callers may listen on C for wake up events.
type Waiter struct {
	// Synchronization:
	//
	// - A Waiter that is not enqueued in a bucket is exclusively owned (no
	// synchronization applies).
	//
	// - A Waiter is enqueued in a bucket by calling WaitPrepare(). After this,
	// waiterEntry, bucket, and key are protected by the bucket.mu ("bucket
	// lock") of the containing bucket. Note that since bucket is mutated
	// using atomic memory operations, bucket.Load() may be called without
	// holding the bucket lock, although it may change racily. See
	// WaitComplete().
	//
	// - A Waiter is only guaranteed to be no longer queued after calling
	// WaitComplete().

	// waiterEntry links Waiter into bucket.waiters.
	waiterEntry

	// bucket is the bucket this waiter is queued in. If bucket is nil, the
	// waiter is not waiting and is not in any bucket.
	bucket atomic.Pointer[bucket]

	// C is sent to when the Waiter is woken.
	C chan struct{}

	// key is the futex word this waiter is waiting on. Holding it as a
	// pointer keeps the word alive while the waiter is queued.
	key unsafe.Pointer
}

// NewWaiter returns a new unqueued Waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		C: make(chan struct{}, 1),
	}
}

// woken returns true if w has been woken since the last call to WaitPrepare.
func (w *Waiter) woken() bool {
	return len(w.C) != 0
}

// bucket holds a list of waiters for a given address hash.
type bucket struct {
	// mu protects waiters and contained Waiter state. See comment in Waiter.
	mu sync.Mutex

	waiters waiterList
}

// wakeLocked wakes up to n waiters queued on key and returns the number of
// waiters woken.
//
// Preconditions: b.mu must be locked.
func (b *bucket) wakeLocked(key unsafe.Pointer, n int) int {
	done := 0
	for w := b.waiters.Front(); done < n && w != nil; {
		if w.key != key {
			// Not matching.
			w = w.Next()
			continue
		}

		// Remove from the bucket and wake the waiter.
		woke := w
		w = w.Next() // Next iteration.
		b.waiters.Remove(woke)
		woke.C <- struct{}{}

		// NOTE: The above channel write establishes a write barrier according
		// to the memory model, so nothing may be ordered around it. Since
		// we've dequeued woke and will never touch it again, we can safely
		// store nil to woke.bucket here and allow the WaitComplete() to
		// short-circuit grabbing the bucket lock. If they somehow miss the
		// store, we are still holding the lock, so we can know that they won't
		// dequeue woke, assume it's free and have the below operation
		// afterwards.
		woke.bucket.Store(nil)
		done++
	}
	return done
}

const (
	// bucketCount is the number of buckets per Manager. By having many of
	// these we reduce contention when concurrent yet unrelated calls are made.
	bucketCount     = 1 << bucketCountBits
	bucketCountBits = 10
)

// bucketIndexForAddr returns the index into Manager.buckets for addr.
func bucketIndexForAddr(addr uintptr) uintptr {
	// The bottom 2 bits of addr are always 0 for a 32-bit word. The hash
	// below uses the remaining bits, and usually maps adjacent words to
	// adjacent buckets, which helps when a structure embeds several locks.
	//
	// h1 and h2 are grouped separately so that the critical path is one
	// shift plus three additions.
	h1 := (addr >> 2) + (addr >> 12) + (addr >> 22)
	h2 := (addr >> 32) + (addr >> 42)
	return (h1 + h2) % bucketCount
}

// Manager queues futex waiters in user space. It implements Futex for any
// word in the process.
//
// The zero value is not usable; create Managers with NewManager.
type Manager struct {
	buckets [bucketCount]bucket
}

// NewManager returns an initialized futex manager.
func NewManager() *Manager {
	return &Manager{}
}

// lockBucket returns the locked bucket for the given key.
func (m *Manager) lockBucket(key unsafe.Pointer) *bucket {
	b := &m.buckets[bucketIndexForAddr(uintptr(key))]
	b.mu.Lock()
	return b
}

// WaitPrepare atomically checks that word contains val, then enqueues w to be
// woken by a send to w.C. If WaitPrepare returns nil, the Waiter must be
// subsequently removed by calling WaitComplete, whether or not a wakeup is
// received on w.C. If word does not contain val, WaitPrepare returns ErrAgain
// and w is not enqueued.
func (m *Manager) WaitPrepare(w *Waiter, word *atomicbitops.Uint32, val uint32) error {
	key := unsafe.Pointer(word)

	// Prepare the Waiter before taking the bucket lock.
	select {
	case <-w.C:
	default:
	}
	w.key = key

	b := m.lockBucket(key)
	// This function is very hot; avoid defer.

	// Perform our atomic check. Wakers change the word before taking the
	// bucket lock, so either we see their change here or they see us in
	// the bucket.
	if word.Load() != val {
		b.mu.Unlock()
		w.key = nil
		return ErrAgain
	}

	// Add the waiter to the bucket.
	b.waiters.PushBack(w)
	w.bucket.Store(b)

	b.mu.Unlock()
	return nil
}

// WaitComplete must be called when a Waiter previously added by WaitPrepare is
// no longer eligible to be woken.
func (m *Manager) WaitComplete(w *Waiter) {
	// Remove w from the bucket it's in.
	for {
		b := w.bucket.Load()

		// If b is nil, the waiter isn't in any bucket anymore.
		if b == nil {
			break
		}

		// Take the bucket lock. Waiters are never moved between buckets, but
		// a concurrent wake may dequeue w between the load above and the
		// lock, so recheck under the lock.
		b.mu.Lock()
		if b != w.bucket.Load() {
			b.mu.Unlock()
			continue
		}

		// Remove w from b.
		b.waiters.Remove(w)
		w.bucket.Store(nil)
		b.mu.Unlock()
		break
	}
	w.key = nil
}

// WakeN wakes up to n waiters queued on word. The number of waiters woken is
// returned.
func (m *Manager) WakeN(word *atomicbitops.Uint32, n int) int {
	// This function is very hot; avoid defer.
	key := unsafe.Pointer(word)
	b := m.lockBucket(key)
	r := b.wakeLocked(key, n)
	b.mu.Unlock()
	return r
}

// Wait implements Futex.Wait.
func (m *Manager) Wait(word *atomicbitops.Uint32, val uint32, timeout time.Duration) bool {
	w := NewWaiter()
	if err := m.WaitPrepare(w, word, val); err != nil {
		// The word already changed; this is not a timeout.
		return true
	}

	if timeout < 0 {
		<-w.C
		m.WaitComplete(w)
		return true
	}
	if timeout > 0 {
		t := time.NewTimer(timeout)
		select {
		case <-w.C:
			t.Stop()
			m.WaitComplete(w)
			return true
		case <-t.C:
		}
	}

	// A wakeup may be racing with the timeout. Once WaitComplete returns, w
	// was either dequeued unwoken, or a waker dequeued it and has
	// already sent on w.C.
	m.WaitComplete(w)
	return w.woken()
}

// Wake implements Futex.Wake.
func (m *Manager) Wake(word *atomicbitops.Uint32) {
	m.WakeN(word, 1)
}

// WakeAll implements Futex.WakeAll.
func (m *Manager) WakeAll(word *atomicbitops.Uint32) {
	m.WakeN(word, math.MaxInt32)
}
