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
)

// Condvar implements subcommands.Command for the "condvar" command.
type Condvar struct{}

// Name implements subcommands.Command.Name.
func (*Condvar) Name() string {
	return "condvar"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Condvar) Synopsis() string {
	return "hand items between producers and consumers through a condition variable"
}

// Usage implements subcommands.Command.Usage.
func (*Condvar) Usage() string {
	return `condvar - run the producer/consumer workload.

Half of --goroutines produce --iterations items each into a bounded queue,
and the rest consume them. The run fails if any item is lost or duplicated.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Condvar) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Condvar) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	r, err := runWorkload(ctx, "condvar", newStressConfig(conf))
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := writeResults(os.Stdout, conf.Format, []*lockstress.Result{r}); err != nil {
		return util.Errorf("writing results: %v", err)
	}
	return subcommands.ExitSuccess
}
