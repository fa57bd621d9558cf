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
	"testing"
	"time"

	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/sync"
)

func TestCondvarNotifyOne(t *testing.T) {
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		var (
			m     Mutex
			cv    Condvar
			ready bool
		)
		m.Init(WithFutex(f))
		cv.Init(WithFutex(f))

		done := make(chan struct{})
		go func() {
			m.Lock()
			for !ready {
				cv.Wait(&m)
			}
			m.Unlock()
			close(done)
		}()

		m.Lock()
		ready = true
		cv.NotifyOne()
		m.Unlock()

		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatalf("waiter missed notification")
		}
	})
}

func TestCondvarNotifyAll(t *testing.T) {
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		c := futex.NewCounting(f)
		var (
			m     Mutex
			cv    Condvar
			ready bool
		)
		m.Init(WithFutex(f))
		cv.Init(WithFutex(c))

		const waiters = 8
		var wg sync.WaitGroup
		for i := 0; i < waiters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Lock()
				for !ready {
					cv.Wait(&m)
				}
				m.Unlock()
			}()
		}

		// Let every waiter reach the condition variable before notifying,
		// so that NotifyAll really has several to wake.
		waitBlocked(t, c, waiters)

		m.Lock()
		ready = true
		cv.NotifyAll()
		m.Unlock()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatalf("NotifyAll did not wake every waiter")
		}
	})
}

// TestCondvarNotifyBeforeBlock delivers a notification after the waiter has
// released the mutex but before it blocks in the futex. The wait must not
// sleep through it.
func TestCondvarNotifyBeforeBlock(t *testing.T) {
	var (
		m  Mutex
		cv Condvar
	)
	h := &hookFutex{Futex: futex.NewManager()}
	h.beforeWait = func() {
		// m is unlocked here; a notifier could have taken it.
		if !m.TryLock() {
			t.Errorf("mutex held during futex wait")
			return
		}
		cv.NotifyOne()
		m.Unlock()
	}
	cv.Init(WithFutex(h))

	done := make(chan bool, 1)
	go func() {
		m.Lock()
		// Without a timeout, a lost notification would hang here.
		woken := cv.WaitTimeout(&m, time.Hour)
		m.Unlock()
		done <- woken
	}()
	select {
	case woken := <-done:
		if !woken {
			t.Errorf("WaitTimeout timed out")
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("notification between unlock and wait was lost")
	}
}

func TestCondvarWaitTimeout(t *testing.T) {
	const timeout = 20 * time.Millisecond
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		var (
			m  Mutex
			cv Condvar
		)
		m.Init(WithFutex(f))
		// Spurious wakeups would make the timeout result nondeterministic.
		cv.Init(WithFutex(futex.NewManager()))

		m.Lock()
		start := time.Now()
		if cv.WaitTimeout(&m, timeout) {
			t.Errorf("WaitTimeout with no notifier returned true")
		}
		if elapsed := time.Since(start); elapsed < timeout {
			t.Errorf("WaitTimeout returned after %v, wanted at least %v", elapsed, timeout)
		}

		// The mutex is held on return.
		if m.TryLock() {
			t.Errorf("mutex not held after WaitTimeout")
		}
		m.Unlock()
	})
}

func TestCondvarNegativeTimeout(t *testing.T) {
	var (
		m  Mutex
		cv Condvar
	)
	done := make(chan bool, 1)
	go func() {
		m.Lock()
		woken := cv.WaitTimeout(&m, -time.Second)
		m.Unlock()
		done <- woken
	}()
	select {
	case woken := <-done:
		if woken {
			t.Errorf("WaitTimeout with negative timeout returned true")
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("WaitTimeout with negative timeout blocked")
	}
}

func TestCondvarNotifyWithoutWaiters(t *testing.T) {
	c := futex.NewCounting(futex.NewManager())
	var cv Condvar
	cv.Init(WithFutex(c))

	before := cv.seq.Load()
	cv.NotifyOne()
	cv.NotifyAll()
	if got := cv.seq.Load() - before; got != 2 {
		t.Errorf("counter advanced by %d, wanted 2", got)
	}
	if s := c.Stats(); s.Wakes != 1 || s.WakeAlls != 1 {
		t.Errorf("got %d wakes and %d wake-alls, wanted 1 each", s.Wakes, s.WakeAlls)
	}
}

func TestCondvarCounterWraps(t *testing.T) {
	var (
		m  Mutex
		cv Condvar
	)
	cv.seq.Store(^uint32(0))
	cv.NotifyOne()
	if got := cv.seq.Load(); got != 0 {
		t.Fatalf("counter after wrap: got %d, wanted 0", got)
	}

	// A snapshot taken after the wrap still detects the next notification.
	done := make(chan bool, 1)
	go func() {
		m.Lock()
		woken := cv.WaitTimeout(&m, 10*time.Second)
		m.Unlock()
		done <- woken
	}()
	for {
		// Notify repeatedly; only notifications issued while the waiter is
		// waiting count.
		m.Lock()
		cv.NotifyOne()
		m.Unlock()
		select {
		case woken := <-done:
			if !woken {
				t.Errorf("WaitTimeout timed out after wrap")
			}
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// TestCondvarHandoff hands a token back and forth between two goroutines,
// checking that no notification is lost under repeated use.
func TestCondvarHandoff(t *testing.T) {
	forEachFutex(t, func(t *testing.T, f futex.Futex) {
		var (
			m    Mutex
			cv   Condvar
			turn int
		)
		m.Init(WithFutex(f))
		cv.Init(WithFutex(f))

		const rounds = 1000
		var wg sync.WaitGroup
		for p := 0; p < 2; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					m.Lock()
					for turn%2 != p {
						cv.Wait(&m)
					}
					turn++
					cv.NotifyAll()
					m.Unlock()
				}
			}(p)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			t.Fatalf("handoff stalled at turn %d", turn)
		}
		if turn != 2*rounds {
			t.Errorf("got %d turns, wanted %d", turn, 2*rounds)
		}
	})
}
