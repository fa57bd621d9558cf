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

//go:build linux
// +build linux

package threadid

import (
	"runtime"
	"testing"
)

func TestOSThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := OSThread()
	if tid == 0 {
		t.Fatalf("OSThread returned 0")
	}
	if again := OSThread(); again != tid {
		t.Errorf("OSThread changed from %d to %d while locked", tid, again)
	}

	other := make(chan uint64)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		other <- OSThread()
	}()
	if o := <-other; o == tid {
		t.Errorf("two locked goroutines share thread ID %d", tid)
	}
}
