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

// Package lockstress runs concurrent workloads against the locks in
// futexlock and checks their invariants while measuring them.
package lockstress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/futexlock"
	"gvisor.dev/futexlock/pkg/log"
)

var (
	// ErrMutualExclusion is returned when two goroutines were observed
	// inside a critical section at once.
	ErrMutualExclusion = errors.New("mutual exclusion violated")

	// ErrLostUpdate is returned when the protected counter does not match
	// the number of acquisitions at the end of a run.
	ErrLostUpdate = errors.New("protected counter does not match acquisitions")

	// ErrStalled is returned when a run does not finish before its timeout.
	// Goroutines blocked in a lock cannot be interrupted, so they are left
	// behind.
	ErrStalled = errors.New("workload stalled")
)

// Config configures a run.
type Config struct {
	// Goroutines is the number of concurrent goroutines.
	Goroutines int

	// Iterations is the number of acquisitions made by each goroutine.
	Iterations int

	// Futex is used by every lock in the run. If nil, futex.Default() is
	// used.
	Futex futex.Futex

	// SpinLimit is passed to futexlock.WithSpinLimit. If negative, the
	// default spin limit is used.
	SpinLimit int

	// Depth is the maximum nesting of acquisitions in the Reentrant
	// workload. If zero, 3 is used.
	Depth int

	// Timeout bounds the run. If zero, the run is bounded only by its
	// context.
	Timeout time.Duration
}

func (c *Config) validate() error {
	if c.Goroutines <= 0 {
		return fmt.Errorf("goroutines must be positive, got %d", c.Goroutines)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Depth < 0 {
		return fmt.Errorf("depth must not be negative, got %d", c.Depth)
	}
	return nil
}

func (c *Config) depth() int {
	if c.Depth == 0 {
		return 3
	}
	return c.Depth
}

// lockOptions returns the options for the locks of a run, along with the
// counting futex they share.
func (c *Config) lockOptions() ([]futexlock.Option, *futex.Counting) {
	counting := futex.NewCounting(c.Futex)
	opts := []futexlock.Option{futexlock.WithFutex(counting)}
	if c.SpinLimit >= 0 {
		opts = append(opts, futexlock.WithSpinLimit(c.SpinLimit))
	}
	return opts, counting
}

// Result describes a completed run.
type Result struct {
	// Workload is the name of the workload that ran.
	Workload string `json:"workload"`

	// Goroutines and Iterations are copied from the Config.
	Goroutines int `json:"goroutines"`
	Iterations int `json:"iterations"`

	// SpinLimit is the effective spin limit.
	SpinLimit int `json:"spin_limit"`

	// Acquisitions is the number of times a lock was taken, counting each
	// nested acquisition of a reentrant lock.
	Acquisitions uint64 `json:"acquisitions"`

	// TryFailures is the number of TryLock calls that failed.
	TryFailures uint64 `json:"try_failures"`

	// Elapsed is the wall time of the run.
	Elapsed time.Duration `json:"elapsed_ns"`

	// Futex holds the futex calls made by the run's locks. It is zero for
	// the Baseline workload.
	Futex futex.Stats `json:"futex"`
}

// PerSecond returns the acquisition rate of the run.
func (r *Result) PerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Acquisitions) / r.Elapsed.Seconds()
}

// A Workload exercises a lock under a Config.
type Workload func(ctx context.Context, c Config) (*Result, error)

// Workloads maps workload names to their implementation.
var Workloads = map[string]Workload{
	"mutex":     Mutex,
	"trylock":   TryLock,
	"condvar":   Condvar,
	"reentrant": Reentrant,
}

// Run runs the named workload.
func Run(ctx context.Context, name string, c Config) (*Result, error) {
	w, ok := Workloads[name]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q", name)
	}
	return w(ctx, c)
}

// run starts fn in c.Goroutines goroutines and waits for them. fn receives
// the index of its goroutine. The elapsed time of the run is returned.
func run(ctx context.Context, name string, c Config, fn func(ctx context.Context, i int) error) (time.Duration, error) {
	if err := c.validate(); err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	log.Debugf("Starting %s workload: %d goroutines, %d iterations", name, c.Goroutines, c.Iterations)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := 0; i < c.Goroutines; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()
	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			return elapsed, fmt.Errorf("%s: %w", name, err)
		}
		log.Debugf("Finished %s workload in %v", name, elapsed)
		return elapsed, nil
	case <-ctx.Done():
		return time.Since(start), fmt.Errorf("%s: %w: %v", name, ErrStalled, ctx.Err())
	}
}

// checkEvery is how many iterations a goroutine runs between checks of its
// context.
const checkEvery = 1024

func canceled(ctx context.Context, iteration int) error {
	if iteration%checkEvery != 0 {
		return nil
	}
	return ctx.Err()
}

func effectiveSpinLimit(c Config) int {
	if c.SpinLimit < 0 {
		return futexlock.DefaultSpinLimit
	}
	return c.SpinLimit
}

func newResult(name string, c Config) *Result {
	return &Result{
		Workload:   name,
		Goroutines: c.Goroutines,
		Iterations: c.Iterations,
		SpinLimit:  effectiveSpinLimit(c),
	}
}
