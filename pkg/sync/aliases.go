// Copyright 2020 The gVisor Authors.
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

// Package sync holds the small set of synchronization helpers shared by the
// other packages in this module. The futex based locks themselves live in
// package futexlock.
package sync

import (
	"sync"
)

// Aliases of standard library types.
type (
	// Locker is an alias of sync.Locker. futexlock.Mutex and
	// futexlock.ReentrantMutex both implement it.
	Locker = sync.Locker

	// Mutex is an alias of sync.Mutex. It is the runtime's own lock, used as
	// the baseline when comparing the futex locks and for state that is not
	// on any futex path.
	Mutex = sync.Mutex

	// WaitGroup is an alias of sync.WaitGroup.
	WaitGroup = sync.WaitGroup
)

// OnceValue is a wrapper around sync.OnceValue.
func OnceValue[T any](f func() T) func() T {
	return sync.OnceValue(f)
}
