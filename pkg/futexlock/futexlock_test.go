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

	"gvisor.dev/futexlock/pkg/atomicbitops"
	"gvisor.dev/futexlock/pkg/futex"
)

// futexes returns the futex implementations each test runs against.
func futexes() map[string]func() futex.Futex {
	return map[string]func() futex.Futex{
		"default":  futex.Default,
		"emulated": func() futex.Futex { return futex.NewManager() },
		"spurious": func() futex.Futex { return futex.NewSpurious(nil, 3) },
	}
}

func forEachFutex(t *testing.T, fn func(t *testing.T, f futex.Futex)) {
	for name, newFutex := range futexes() {
		t.Run(name, func(t *testing.T) {
			fn(t, newFutex())
		})
	}
}

// hookFutex runs beforeWait at the start of every Wait.
type hookFutex struct {
	futex.Futex
	beforeWait func()
}

func (h *hookFutex) Wait(w *atomicbitops.Uint32, val uint32, timeout time.Duration) bool {
	if h.beforeWait != nil {
		h.beforeWait()
	}
	return h.Futex.Wait(w, val, timeout)
}
