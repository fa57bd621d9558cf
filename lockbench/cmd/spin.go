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

// Spin implements subcommands.Command for the "spin" command.
type Spin struct {
	limits   string
	workload string
}

// Name implements subcommands.Command.Name.
func (*Spin) Name() string {
	return "spin"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Spin) Synopsis() string {
	return "compare a workload across spin limits"
}

// Usage implements subcommands.Command.Usage.
func (*Spin) Usage() string {
	return `spin [flags] - run a workload once per spin limit.

The --spin-limit flag is ignored; the limits come from --limits.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Spin) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.limits, "limits", "0,10,100,1000", "comma-separated spin limits to run with.")
	f.StringVar(&s.workload, "workload", "mutex", "workload to run.")
}

// Execute implements subcommands.Command.Execute.
func (s *Spin) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	limits, err := parseInts(s.limits)
	if err != nil {
		return util.Errorf("invalid --limits: %v", err)
	}
	var results []*lockstress.Result
	for _, limit := range limits {
		c := newStressConfig(conf)
		c.SpinLimit = limit
		r, err := runWorkload(ctx, s.workload, c)
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
