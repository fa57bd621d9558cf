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
	"golang.org/x/sys/unix"
)

// OSThread returns the kernel thread ID of the calling thread.
//
// The result identifies the caller only while it is locked to its thread
// with runtime.LockOSThread. Thread IDs are reused by the kernel once a
// thread exits.
func OSThread() uint64 {
	return uint64(unix.Gettid())
}
