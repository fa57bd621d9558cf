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

package lockstress

import (
	"context"
	"fmt"
	"time"

	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/futexlock"
	"gvisor.dev/futexlock/pkg/sync"
)

// exclusion detects overlapping critical sections.
type exclusion struct {
	inside atomicbitops.Bool
}

func (e *exclusion) enter() error {
	if e.inside.Swap(true) {
		return ErrMutualExclusion
	}
	return nil
}

func (e *exclusion) exit() {
	e.inside.Store(false)
}

// lockerLoop runs c.Iterations acquisitions of l in each goroutine,
// incrementing a counter protected by l, and checks the final count.
func lockerLoop(ctx context.Context, name string, c Config, l sync.Locker) (*Result, error) {
	var (
		ex      exclusion
		counter uint64
	)
	elapsed, err := run(ctx, name, c, func(ctx context.Context, _ int) error {
		for j := 0; j < c.Iterations; j++ {
			if err := canceled(ctx, j); err != nil {
				return err
			}
			l.Lock()
			if err := ex.enter(); err != nil {
				l.Unlock()
				return err
			}
			counter++
			ex.exit()
			l.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	want := uint64(c.Goroutines) * uint64(c.Iterations)
	if counter != want {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", name, ErrLostUpdate, counter, want)
	}
	r := newResult(name, c)
	r.Acquisitions = counter
	r.Elapsed = elapsed
	return r, nil
}

// Mutex has every goroutine lock and unlock one futexlock.Mutex.
func Mutex(ctx context.Context, c Config) (*Result, error) {
	opts, counting := c.lockOptions()
	var m futexlock.Mutex
	m.Init(opts...)
	r, err := lockerLoop(ctx, "mutex", c, &m)
	if err != nil {
		return nil, err
	}
	r.Futex = counting.Stats()
	return r, nil
}

// Baseline is like Mutex, but uses l. It gives a point of comparison, such as
// sync.Mutex.
func Baseline(ctx context.Context, c Config, l sync.Locker) (*Result, error) {
	return lockerLoop(ctx, "baseline", c, l)
}

// TryLock runs Lock in even goroutines and TryLock in odd ones.
func TryLock(ctx context.Context, c Config) (*Result, error) {
	opts, counting := c.lockOptions()
	var (
		m        futexlock.Mutex
		ex       exclusion
		counter  uint64
		locks    atomicbitops.Uint64
		tries    atomicbitops.Uint64
		failures atomicbitops.Uint64
	)
	m.Init(opts...)
	elapsed, err := run(ctx, "trylock", c, func(ctx context.Context, i int) error {
		for j := 0; j < c.Iterations; j++ {
			if err := canceled(ctx, j); err != nil {
				return err
			}
			if i%2 == 0 {
				m.Lock()
				locks.Add(1)
			} else if m.TryLock() {
				tries.Add(1)
			} else {
				failures.Add(1)
				continue
			}
			if err := ex.enter(); err != nil {
				m.Unlock()
				return err
			}
			counter++
			ex.exit()
			m.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	want := locks.Load() + tries.Load()
	if counter != want {
		return nil, fmt.Errorf("trylock: %w: got %d, want %d", ErrLostUpdate, counter, want)
	}
	r := newResult("trylock", c)
	r.Acquisitions = counter
	r.TryFailures = failures.Load()
	r.Elapsed = elapsed
	r.Futex = counting.Stats()
	return r, nil
}

// Reentrant has every goroutine take one futexlock.ReentrantMutex at nesting
// depths cycling from 1 to Config.Depth, checking at each level that it is
// the only holder.
func Reentrant(ctx context.Context, c Config) (*Result, error) {
	opts, counting := c.lockOptions()
	var (
		rm           futexlock.ReentrantMutex
		ex           exclusion
		counter      uint64
		acquisitions atomicbitops.Uint64
	)
	rm.Init(opts...)
	depth := c.depth()
	elapsed, err := run(ctx, "reentrant", c, func(ctx context.Context, _ int) error {
		for j := 0; j < c.Iterations; j++ {
			if err := canceled(ctx, j); err != nil {
				return err
			}
			d := 1 + j%depth
			rm.Lock()
			if err := ex.enter(); err != nil {
				rm.Unlock()
				return err
			}
			for k := 1; k < d; k++ {
				if !rm.TryLock() {
					ex.exit()
					rm.Unlock()
					return fmt.Errorf("%w: owner failed to reacquire", ErrMutualExclusion)
				}
			}
			counter++
			ex.exit()
			for k := 0; k < d; k++ {
				rm.Unlock()
			}
			acquisitions.Add(uint64(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	want := uint64(c.Goroutines) * uint64(c.Iterations)
	if counter != want {
		return nil, fmt.Errorf("reentrant: %w: got %d, want %d", ErrLostUpdate, counter, want)
	}
	r := newResult("reentrant", c)
	r.Acquisitions = acquisitions.Load()
	r.Elapsed = elapsed
	r.Futex = counting.Stats()
	return r, nil
}

// condvarPoll is how long a Condvar workload goroutine waits before checking
// for cancellation.
const condvarPoll = 10 * time.Millisecond

// Condvar hands items from producers to consumers through a bounded queue
// guarded by a futexlock.Mutex, with one futexlock.Condvar for each
// direction. Half of the goroutines (at least one) produce Iterations items
// each, and the rest (at least one) consume them.
func Condvar(ctx context.Context, c Config) (*Result, error) {
	// Goroutines is rewritten below, so it must be checked first.
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("condvar: %w", err)
	}
	opts, counting := c.lockOptions()
	var (
		m        futexlock.Mutex
		notEmpty futexlock.Condvar
		notFull  futexlock.Condvar
		queue    []uint64
		consumed uint64
		sum      uint64
	)
	m.Init(opts...)
	notEmpty.Init(opts...)
	notFull.Init(opts...)

	producers := (c.Goroutines + 1) / 2
	consumers := c.Goroutines - producers
	if consumers == 0 {
		consumers = 1
	}
	capacity := producers
	total := uint64(producers) * uint64(c.Iterations)
	c.Goroutines = producers + consumers

	// wait waits on cv, returning an error only if ctx is done.
	wait := func(ctx context.Context, cv *futexlock.Condvar) error {
		if !cv.WaitTimeout(&m, condvarPoll) {
			return ctx.Err()
		}
		return nil
	}

	produce := func(ctx context.Context, p int) error {
		for j := 0; j < c.Iterations; j++ {
			if err := canceled(ctx, j); err != nil {
				return err
			}
			m.Lock()
			for len(queue) == capacity {
				if err := wait(ctx, &notFull); err != nil {
					m.Unlock()
					return err
				}
			}
			queue = append(queue, uint64(p*c.Iterations+j))
			notEmpty.NotifyOne()
			m.Unlock()
		}
		return nil
	}

	consume := func(ctx context.Context) error {
		for {
			m.Lock()
			for len(queue) == 0 && consumed < total {
				if err := wait(ctx, &notEmpty); err != nil {
					m.Unlock()
					return err
				}
			}
			if consumed == total {
				m.Unlock()
				return nil
			}
			sum += queue[0]
			queue = queue[1:]
			consumed++
			if consumed == total {
				// Release the consumers that are still waiting.
				notEmpty.NotifyAll()
			}
			notFull.NotifyOne()
			m.Unlock()
		}
	}

	elapsed, err := run(ctx, "condvar", c, func(ctx context.Context, i int) error {
		if i < producers {
			return produce(ctx, i)
		}
		return consume(ctx)
	})
	if err != nil {
		return nil, err
	}

	// Every item is distinct, from 0 to total-1.
	if want := total * (total - 1) / 2; consumed != total || sum != want {
		return nil, fmt.Errorf("condvar: %w: consumed %d items summing to %d, want %d summing to %d", ErrLostUpdate, consumed, sum, total, want)
	}
	r := newResult("condvar", c)
	r.Acquisitions = total
	r.Elapsed = elapsed
	r.Futex = counting.Stats()
	return r, nil
}
