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

// Package cli is the main entrypoint for lockbench.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/futexlock/lockbench/cmd"
	"gvisor.dev/futexlock/lockbench/cmd/util"
	"gvisor.dev/futexlock/lockbench/config"
	"gvisor.dev/futexlock/pkg/log"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	// Set up logging.
	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	var logFile io.Writer
	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logFile = f
		util.ErrorLogger = f
	}
	log.SetTarget(newLogTarget(conf, logFile, os.Stderr))

	const delimString = `**************** lockbench ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, GOMAXPROCS %d, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, runtime.GOMAXPROCS(0), os.Getpid())
	log.Infof("Args: %v", os.Args)
	log.Debugf("Non-default flags: %v", conf.ToFlags())
	conf.Log()
	log.Infof(delimString)

	// Interrupting a run cancels the workload's context. Goroutines blocked in
	// a lock are abandoned when the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(ctx, conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		return
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	stop()
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// lockbench.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	// Workload commands.
	cb(new(cmd.Stress), "")
	cb(new(cmd.Condvar), "")
	cb(new(cmd.Reentrant), "")

	const tuningGroup = "tuning"
	cb(new(cmd.Spin), tuningGroup)
}

// newLogTarget returns the emitter for the process logs. Logs go to logFile
// if it is not nil, and to stderr otherwise or also when
// --alsologtostderr is set.
func newLogTarget(conf *config.Config, logFile, stderr io.Writer) log.Emitter {
	if logFile == nil {
		return newEmitter(conf.LogFormat, stderr)
	}
	e := newEmitter(conf.LogFormat, logFile)
	if !conf.AlsoLogToStderr {
		return e
	}
	return &log.MultiEmitter{e, newEmitter(conf.LogFormat, stderr)}
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
