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

package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/futexlock/lockbench/cmd/util"
	"gvisor.dev/futexlock/lockbench/config"
	"gvisor.dev/futexlock/pkg/lockstress"
	"gvisor.dev/futexlock/pkg/sync"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	workloads string
	baseline  bool
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "run lock workloads and check their invariants"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - run one or more lock workloads.

Workloads are mutex, trylock, condvar and reentrant. Each one fails if it
observes two goroutines inside a critical section or a lost update.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.workloads, "workloads", "mutex,trylock", "comma-separated list of workloads to run.")
	f.BoolVar(&s.baseline, "baseline", false, "also run the mutex workload on sync.Mutex for comparison.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	names := splitNames(s.workloads)
	if len(names) == 0 {
		return util.Errorf("no workloads given")
	}
	c := newStressConfig(conf)
	var results []*lockstress.Result
	for _, name := range names {
		r, err := runWorkload(ctx, name, c)
		if err != nil {
			return util.Errorf("%v", err)
		}
		results = append(results, r)
	}
	if s.baseline {
		r, err := lockstress.Baseline(ctx, c, new(sync.Mutex))
		if err != nil {
			return util.Errorf("%v", err)
		}
		results = append(results, r)
	}

	if err := writeResults(os.Stdout, conf.Format, results); err != nil {
		return util.Errorf("writing results: %v", err)
	}
	return subcommands.ExitSuccess
}
