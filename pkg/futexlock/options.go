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
	"fmt"

	"gvisor.dev/futexlock/pkg/futex"
	"gvisor.dev/futexlock/pkg/threadid"
)

// DefaultSpinLimit is the number of times a contended Lock re-reads the lock
// word before it blocks in the futex.
const DefaultSpinLimit = 100

// config holds the values set by Options.
type config struct {
	futex     futex.Futex
	spinLimit int
	spinSet   bool
	identity  threadid.Provider
}

// Option configures a Mutex, Condvar or ReentrantMutex in its Init method.
// Options that do not apply to a type are ignored by it.
type Option func(*config)

// WithFutex sets the futex implementation used to block and wake. The
// default is futex.Default().
func WithFutex(f futex.Futex) Option {
	return func(c *config) {
		c.futex = f
	}
}

// WithSpinLimit sets the number of times a contended Lock re-reads the lock
// word before it blocks. Zero disables spinning. WithSpinLimit panics if n is
// negative.
func WithSpinLimit(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("invalid spin limit %d", n))
	}
	return func(c *config) {
		c.spinLimit = n
		c.spinSet = true
	}
}

// WithIdentity sets how a ReentrantMutex identifies its owner. The default is
// threadid.Default.
func WithIdentity(p threadid.Provider) Option {
	return func(c *config) {
		c.identity = p
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
