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
	"math"
	"testing"
	"time"

	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/sync"
	"gvisor.dev/futexlock/pkg/threadid"
)

// tryLockFrom calls TryLock on r from a new goroutine and returns the result.
// A successful acquisition is released before returning.
func tryLockFrom(r *ReentrantMutex) bool {
	ch := make(chan bool)
	go func() {
		ok := r.TryLock()
		if ok {
			r.Unlock()
		}
		ch <- ok
	}()
	return <-ch
}

func TestReentrantRecursion(t *testing.T) {
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		c := futex.NewCounting(f)
		var r ReentrantMutex
		r.Init(WithFutex(c))

		r.Lock()
		r.Lock()
		if !r.TryLock() {
			t.Fatalf("TryLock by owner failed")
		}
		if r.count != 3 {
			t.Errorf("count: got %d, wanted 3", r.count)
		}

		r.Unlock()
		r.Unlock()

		// Still held once.
		if tryLockFrom(&r) {
			t.Fatalf("TryLock by another goroutine succeeded while held")
		}

		// Block another goroutine in Lock, then release the last hold.
		ch := make(chan struct{})
		go func() {
			r.Lock()
			r.Unlock()
			close(ch)
		}()
		waitBlocked(t, c, 1)
		r.Unlock()

		select {
		case <-ch:
		case <-time.After(10 * time.Second):
			t.Fatalf("Lock by another goroutine failed after last Unlock")
		}

		if got := r.owner.Load(); got != 0 {
			t.Errorf("owner after release: got %d, wanted 0", got)
		}
	})
}

func TestReentrantZeroValue(t *testing.T) {
	var r ReentrantMutex
	r.Lock()
	r.Lock()
	r.Unlock()
	r.Unlock()
	if !tryLockFrom(&r) {
		t.Fatalf("TryLock failed on released mutex")
	}
}

func TestReentrantIdentity(t *testing.T) {
	var id uint64 = 1
	var r ReentrantMutex
	r.Init(WithIdentity(func() uint64 { return id }))

	r.Lock()
	if got := r.owner.Load(); got != 1 {
		t.Errorf("owner: got %d, wanted 1", got)
	}

	// Same goroutine, different identity: not the owner.
	id = 2
	if r.TryLock() {
		t.Fatalf("TryLock by a different identity succeeded")
	}

	id = 1
	if !r.TryLock() {
		t.Fatalf("TryLock by owner failed")
	}
	r.Unlock()
	r.Unlock()

	id = 2
	if !r.TryLock() {
		t.Fatalf("TryLock failed on released mutex")
	}
	r.Unlock()
}

func TestReentrantOverflow(t *testing.T) {
	for _, tc := range []struct {
		name string
		lock func(r *ReentrantMutex)
	}{
		{name: "Lock", lock: (*ReentrantMutex).Lock},
		{name: "TryLock", lock: func(r *ReentrantMutex) { r.TryLock() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var r ReentrantMutex
			r.Lock()
			r.count = math.MaxUint32

			func() {
				defer func() {
					v := recover()
					err, ok := v.(error)
					if !ok {
						t.Fatalf("got panic value %v, wanted an error", v)
					}
					if !errors.Is(err, ErrLockCountOverflow) {
						t.Errorf("got %v, wanted an error wrapping %v", err, ErrLockCountOverflow)
					}
				}()
				tc.lock(&r)
			}()

			// The count is left unchanged.
			if r.count != math.MaxUint32 {
				t.Errorf("count after overflow: got %d, wanted %d", r.count, uint32(math.MaxUint32))
			}

			r.count = 1
			r.Unlock()
			if !tryLockFrom(&r) {
				t.Errorf("TryLock failed after release")
			}
		})
	}
}

func TestReentrantOwnerExclusive(t *testing.T) {
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		var r ReentrantMutex
		r.Init(WithFutex(f))

		// Each goroutine takes the lock at several depths. At every depth
		// it must be the only owner. A goroutine stops at its first
		// failure, and only the first reported failure is kept.
		const gr = 16
		const iters = 500
		var inside int32
		var wg WaitGroupErr
		for i := 0; i < gr; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := threadid.Goroutine()
				for j := 0; j < iters; j++ {
					depth := 1 + j%3
					for d := 0; d < depth; d++ {
						r.Lock()
					}
					inside++
					var err error
					switch {
					case inside != 1:
						err = errors.New("two goroutines inside the critical section")
					case r.owner.Load() != id:
						err = errors.New("owner does not match holder")
					case r.count != uint32(depth):
						err = errors.New("count does not match depth")
					}
					inside--
					for d := 0; d < depth; d++ {
						r.Unlock()
					}
					if err != nil {
						wg.ReportError(err)
						return
					}
				}
			}()
		}
		if err := wg.Error(); err != nil {
			t.Fatal(err)
		}
	})
}

func BenchmarkReentrantMutex(b *testing.B) {
	benchmarkLocker(b, func() sync.Locker { return new(ReentrantMutex) })
}
