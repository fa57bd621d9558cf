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
	"testing"
	"time"
	"unsafe"

	"gvisor.dev/futexlock/pkg/atomicbitops"
)

func newPreparedTestWaiter(t *testing.T, m *Manager, word *atomicbitops.Uint32, val uint32) *Waiter {
	w := NewWaiter()
	if err := m.WaitPrepare(w, word, val); err != nil {
		t.Fatalf("WaitPrepare failed: %v", err)
	}
	return w
}

func TestFutexWake(t *testing.T) {
	m := NewManager()
	var word atomicbitops.Uint32

	// Start waiting for wakeup.
	w := newPreparedTestWaiter(t, m, &word, 0)
	defer m.WaitComplete(w)

	// Perform a wakeup.
	if n := m.WakeN(&word, 1); n != 1 {
		t.Errorf("WakeN: got %d, wanted 1", n)
	}

	// Expect the waiter to have been woken.
	if !w.woken() {
		t.Error("waiter not woken")
	}
}

func TestFutexWakeUnrelated(t *testing.T) {
	m := NewManager()
	var words [2]atomicbitops.Uint32

	// Start waiting for wakeup.
	w := newPreparedTestWaiter(t, m, &words[0], 0)
	defer m.WaitComplete(w)

	// Perform a wakeup on an unrelated word.
	if n := m.WakeN(&words[1], 1); n != 0 {
		t.Errorf("WakeN: got %d, wanted 0", n)
	}

	// Expect the waiter to still be waiting.
	if w.woken() {
		t.Error("waiter woken unexpectedly")
	}
}

func TestFutexWaitPrepareMismatch(t *testing.T) {
	m := NewManager()
	word := atomicbitops.FromUint32(1)

	w := NewWaiter()
	if err := m.WaitPrepare(w, &word, 0); err != ErrAgain {
		t.Fatalf("WaitPrepare: got %v, wanted %v", err, ErrAgain)
	}
	m.WaitComplete(w)

	// Nothing was queued, so there is nothing to wake.
	if n := m.WakeN(&word, 1); n != 0 {
		t.Errorf("WakeN: got %d, wanted 0", n)
	}
}

func TestFutexWakeN(t *testing.T) {
	m := NewManager()
	var word atomicbitops.Uint32

	ws := make([]*Waiter, 4)
	for i := range ws {
		ws[i] = newPreparedTestWaiter(t, m, &word, 0)
		defer m.WaitComplete(ws[i])
	}

	// Wake two; they are woken in FIFO order.
	if n := m.WakeN(&word, 2); n != 2 {
		t.Errorf("WakeN: got %d, wanted 2", n)
	}
	for i, w := range ws {
		if got, want := w.woken(), i < 2; got != want {
			t.Errorf("waiter %d woken: got %t, wanted %t", i, got, want)
		}
	}

	// Wake the rest; only two remain.
	if n := m.WakeN(&word, 10); n != 2 {
		t.Errorf("WakeN: got %d, wanted 2", n)
	}
	for i, w := range ws {
		if !w.woken() {
			t.Errorf("waiter %d not woken", i)
		}
	}
}

func TestFutexWaitCompleteDequeues(t *testing.T) {
	m := NewManager()
	var word atomicbitops.Uint32

	w := newPreparedTestWaiter(t, m, &word, 0)
	m.WaitComplete(w)

	// A completed waiter must not absorb a wakeup.
	if n := m.WakeN(&word, 1); n != 0 {
		t.Errorf("WakeN: got %d, wanted 0", n)
	}
	if w.woken() {
		t.Error("waiter woken after WaitComplete")
	}
}

func TestFutexWaiterReuse(t *testing.T) {
	m := NewManager()
	var word atomicbitops.Uint32

	w := NewWaiter()
	for i := 0; i < 3; i++ {
		if err := m.WaitPrepare(w, &word, 0); err != nil {
			t.Fatalf("WaitPrepare failed: %v", err)
		}
		if n := m.WakeN(&word, 1); n != 1 {
			t.Errorf("iteration %d: WakeN: got %d, wanted 1", i, n)
		}
		m.WaitComplete(w)
		if !w.woken() {
			t.Errorf("iteration %d: waiter not woken", i)
		}
	}
}

func TestWaitTimeoutRacingWake(t *testing.T) {
	m := NewManager()
	for i := 0; i < 2000; i++ {
		var word atomicbitops.Uint32
		res := make(chan bool, 1)
		go func() {
			res <- m.Wait(&word, 0, 20*time.Microsecond)
		}()
		time.Sleep(time.Duration(i%40) * time.Microsecond)

		// A wake that dequeued the waiter must be reported as a wakeup
		// even when the timeout fires at the same time.
		n := m.WakeN(&word, 1)
		if woken := <-res; n == 1 && !woken {
			t.Fatalf("iteration %d: WakeN dequeued the waiter but Wait reported a timeout", i)
		}
	}
}

func TestWaitCompleteAfterWake(t *testing.T) {
	m := NewManager()
	var word atomicbitops.Uint32
	w := newPreparedTestWaiter(t, m, &word, 0)
	if n := m.WakeN(&word, 1); n != 1 {
		t.Fatalf("WakeN: got %d, wanted 1", n)
	}
	m.WaitComplete(w)
	if !w.woken() {
		t.Errorf("waiter woken before WaitComplete is not reported after it")
	}
	if b := w.bucket.Load(); b != nil {
		t.Errorf("waiter still in a bucket after WaitComplete")
	}
}

func TestBucketIndexForAddr(t *testing.T) {
	var words [bucketCount]atomicbitops.Uint32
	seen := make(map[uintptr]struct{})
	for i := range words {
		idx := bucketIndexForAddr(uintptr(unsafe.Pointer(&words[i])))
		if idx >= bucketCount {
			t.Fatalf("bucket index %d out of range", idx)
		}
		seen[idx] = struct{}{}
	}
	// Adjacent words should spread over many buckets.
	if len(seen) < bucketCount/4 {
		t.Errorf("%d words hashed to only %d buckets", len(words), len(seen))
	}
}
