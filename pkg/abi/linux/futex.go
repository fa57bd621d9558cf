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

// Package linux contains the subset of Linux ABI definitions used by the
// host futex backend.
package linux

// From <linux/futex.h>.
// Operations used in syscall futex(2).
const (
	FUTEX_WAIT        = 0
	FUTEX_WAKE        = 1
	FUTEX_WAIT_BITSET = 9

	// FUTEX_PRIVATE_FLAG restricts the futex to the calling process, which
	// lets the kernel skip the shared mapping lookup.
	FUTEX_PRIVATE_FLAG = 128

	// FUTEX_WAIT_BITSET_PRIVATE and FUTEX_WAKE_PRIVATE are the only
	// operations the locks issue. FUTEX_WAIT_BITSET is used instead of
	// FUTEX_WAIT because it takes an absolute CLOCK_MONOTONIC deadline,
	// which survives restarting the wait after EINTR.
	FUTEX_WAIT_BITSET_PRIVATE = FUTEX_WAIT_BITSET | FUTEX_PRIVATE_FLAG
	FUTEX_WAKE_PRIVATE        = FUTEX_WAKE | FUTEX_PRIVATE_FLAG
)

// FUTEX_BITSET_MATCH_ANY has all bits set.
const FUTEX_BITSET_MATCH_ANY = 0xffffffff

// FUTEX_WAKE_ALL is the waiter count passed to FUTEX_WAKE to wake every
// waiter on a word.
const FUTEX_WAKE_ALL = 1<<31 - 1
