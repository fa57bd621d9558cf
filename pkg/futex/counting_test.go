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

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/futexlock/pkg/atomicbitops"
)

func TestCounting(t *testing.T) {
	c := NewCounting(NewManager())
	var word atomicbitops.Uint32

	c.Wait(&word, 1, Forever) // Mismatch returns immediately.
	c.Wait(&word, 0, time.Millisecond)
	c.Wake(&word)
	c.Wake(&word)
	c.WakeAll(&word)

	want := Stats{
		Waits:    2,
		Timeouts: 1,
		Wakes:    2,
		WakeAlls: 1,
	}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}

	c.Reset()
	if diff := cmp.Diff(Stats{}, c.Stats()); diff != "" {
		t.Errorf("Stats after Reset mismatch (-want +got):\n%s", diff)
	}
}

func TestCountingBlocked(t *testing.T) {
	c := NewCounting(NewManager())
	var word atomicbitops.Uint32

	done := make(chan struct{})
	go func() {
		c.Wait(&word, 0, Forever)
		close(done)
	}()

	for c.Stats().Blocked == 0 {
		time.Sleep(time.Millisecond)
	}

	word.Store(1)
	c.WakeAll(&word)
	<-done

	if got := c.Stats().Blocked; got != 0 {
		t.Errorf("Blocked after wakeup: got %d, wanted 0", got)
	}
}

func TestCountingDefault(t *testing.T) {
	if c := NewCounting(nil); c.Futex == nil {
		t.Errorf("NewCounting(nil) has no underlying Futex")
	}
}

func TestSpurious(t *testing.T) {
	s := NewSpurious(NewManager(), 2)
	var word atomicbitops.Uint32

	// Every second wait returns true without anyone waking it; the others
	// time out.
	for i := 1; i <= 4; i++ {
		got := s.Wait(&word, 0, time.Millisecond)
		if want := i%2 == 0; got != want {
			t.Errorf("Wait %d: got %t, wanted %t", i, got, want)
		}
	}
}

func TestSpuriousDisabled(t *testing.T) {
	s := NewSpurious(NewManager(), 0)
	var word atomicbitops.Uint32
	for i := 0; i < 3; i++ {
		if s.Wait(&word, 0, 0) {
			t.Errorf("Wait %d returned true", i)
		}
	}
}
