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

// Reentrant implements subcommands.Command for the "reentrant" command.
type Reentrant struct {
	depth int
}

// Name implements subcommands.Command.Name.
func (*Reentrant) Name() string {
	return "reentrant"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Reentrant) Synopsis() string {
	return "take a reentrant mutex at varying nesting depths"
}

// Usage implements subcommands.Command.Usage.
func (*Reentrant) Usage() string {
	return `reentrant [flags] - run the nested acquisition workload.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Reentrant) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.depth, "depth", 3, "maximum nesting depth; each goroutine cycles through depths 1 to this.")
}

// Execute implements subcommands.Command.Execute.
func (r *Reentrant) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if r.depth <= 0 {
		return util.Errorf("depth must be positive, got %d", r.depth)
	}
	conf := args[0].(*config.Config)

	c := newStressConfig(conf)
	c.Depth = r.depth
	res, err := runWorkload(ctx, "reentrant", c)
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := writeResults(os.Stdout, conf.Format, []*lockstress.Result{res}); err != nil {
		return util.Errorf("writing results: %v", err)
	}
	return subcommands.ExitSuccess
}
