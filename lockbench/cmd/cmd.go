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

// Package cmd holds implementations of the lockbench commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
	"gvisor.dev/futexlock/lockbench/config"
	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/lockstress"
	"gvisor.dev/futexlock/pkg/log"
)

// newFutex returns the futex implementation selected by conf.
func newFutex(conf *config.Config) futex.Futex {
	var f futex.Futex
	switch conf.Futex {
	case config.FutexEmulated:
		f = futex.NewManager()
	default:
		f = futex.Default()
	}
	if conf.SpuriousEvery > 0 {
		f = futex.NewSpurious(f, conf.SpuriousEvery)
	}
	return f
}

// newStressConfig returns the workload configuration described by conf.
func newStressConfig(conf *config.Config) lockstress.Config {
	return lockstress.Config{
		Goroutines: conf.Goroutines,
		Iterations: conf.Iterations,
		Futex:      newFutex(conf),
		SpinLimit:  conf.SpinLimit,
		Timeout:    conf.Timeout,
	}
}

// runWorkload runs the named workload and logs its outcome.
func runWorkload(ctx context.Context, name string, c lockstress.Config) (*lockstress.Result, error) {
	log.Infof("Running %s workload, spin limit %d", name, c.SpinLimit)
	progressf("%s: %d goroutines x %d iterations...", name, c.Goroutines, c.Iterations)
	r, err := lockstress.Run(ctx, name, c)
	if err != nil {
		return nil, err
	}
	progressf("%s: done in %v", name, r.Elapsed)
	log.Infof("Workload %s: %d acquisitions in %v, %d futex waits", name, r.Acquisitions, r.Elapsed, r.Futex.Waits)
	return r, nil
}

// progressf reports progress on stderr if it is a terminal. Runs can take a
// while, and the results are only written at the end.
func progressf(format string, args ...any) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// splitNames splits a comma-separated list, dropping empty elements.
func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseInts parses a comma-separated list of non-negative integers.
func parseInts(s string) ([]int, error) {
	var ints []int
	for _, name := range splitNames(s) {
		n, err := strconv.Atoi(name)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", name, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid integer %q: must not be negative", name)
		}
		ints = append(ints, n)
	}
	if len(ints) == 0 {
		return nil, fmt.Errorf("empty list %q", s)
	}
	return ints, nil
}
