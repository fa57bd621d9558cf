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

//go:build !linux
// +build !linux

package futex

import (
	"gvisor.dev/futexlock/pkg/sync"
)

var processManager = sync.OnceValue(NewManager)

// Default returns the Futex used by locks that were not given one
// explicitly. Without a host futex this is a process-wide Manager.
func Default() Futex {
	return processManager()
}
