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

// Package config provides basic infrastructure to set configuration settings
// for lockbench. The configuration is set by flags to the command line, and
// may be preset from a TOML or YAML file given with --config.
package config

import (
	"fmt"
	"reflect"
	"time"

	"gvisor.dev/futexlock/pkg/log"
)

// Config holds configuration that is not part of any single subcommand.
//
// Fields with a "flag" tag are populated from the flag of that name. The
// "toml" and "yaml" tags name the same setting in a config file.
type Config struct {
	// ConfigFile is the path of a TOML (.toml) or YAML (.yaml, .yml) file
	// holding default settings. Flags given on the command line take
	// precedence over it.
	ConfigFile string `flag:"config" toml:"-" yaml:"-"`

	// Goroutines is the number of goroutines contending in a workload.
	Goroutines int `flag:"goroutines" toml:"goroutines" yaml:"goroutines"`

	// Iterations is the number of lock acquisitions per goroutine.
	Iterations int `flag:"iterations" toml:"iterations" yaml:"iterations"`

	// SpinLimit is the number of times a contended lock re-reads its word
	// before blocking. Negative selects the library default.
	SpinLimit int `flag:"spin-limit" toml:"spin-limit" yaml:"spin-limit"`

	// Futex selects the futex implementation.
	Futex FutexBackend `flag:"futex" toml:"futex" yaml:"futex"`

	// SpuriousEvery injects a spurious wakeup into every Nth futex wait. Zero
	// disables injection.
	SpuriousEvery uint64 `flag:"spurious-every" toml:"spurious-every" yaml:"spurious-every"`

	// Timeout bounds each workload. Zero means no bound.
	Timeout time.Duration `flag:"timeout" toml:"timeout" yaml:"timeout"`

	// Format is the format results are written in.
	Format OutputFormat `flag:"format" toml:"format" yaml:"format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// LogFormat is the log format: "text" or "json".
	LogFormat string `flag:"log-format" toml:"log-format" yaml:"log-format"`

	// LogFilename is the filename to log to, if not empty. Logs go to
	// stderr otherwise.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// AlsoLogToStderr also sends logs to stderr when LogFilename is set.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr" yaml:"alsologtostderr"`
}

func (c *Config) validate() error {
	if c.Goroutines <= 0 {
		return fmt.Errorf("goroutines must be positive, got %d", c.Goroutines)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}

// FutexBackend selects the futex implementation used by the locks.
type FutexBackend int

const (
	// FutexHost uses the platform futex: futex(2) on Linux, and the
	// process-wide emulation elsewhere.
	FutexHost FutexBackend = iota

	// FutexEmulated uses a private user-space emulation of futexes.
	FutexEmulated
)

func futexBackendPtr(v FutexBackend) *FutexBackend {
	return &v
}

// Set implements flag.Value.
func (f *FutexBackend) Set(v string) error {
	switch v {
	case "host":
		*f = FutexHost
	case "emulated":
		*f = FutexEmulated
	default:
		return fmt.Errorf("invalid futex backend %q, must be 'host' or 'emulated'", v)
	}
	return nil
}

// Get implements flag.Getter.
func (f *FutexBackend) Get() any {
	return *f
}

// String implements flag.Value.
func (f FutexBackend) String() string {
	switch f {
	case FutexHost:
		return "host"
	case FutexEmulated:
		return "emulated"
	}
	panic(fmt.Sprintf("Invalid futex backend %d", f))
}

// UnmarshalText implements encoding.TextUnmarshaler, for config files.
func (f *FutexBackend) UnmarshalText(text []byte) error {
	return f.Set(string(text))
}

// OutputFormat is the format lockbench writes results in.
type OutputFormat int

const (
	// OutputText is a table for humans.
	OutputText OutputFormat = iota

	// OutputJSON is one JSON object per result.
	OutputJSON

	// OutputPrometheus is the Prometheus text exposition format.
	OutputPrometheus
)

func outputFormatPtr(v OutputFormat) *OutputFormat {
	return &v
}

// Set implements flag.Value.
func (o *OutputFormat) Set(v string) error {
	switch v {
	case "text":
		*o = OutputText
	case "json":
		*o = OutputJSON
	case "prometheus":
		*o = OutputPrometheus
	default:
		return fmt.Errorf("invalid output format %q, must be 'text', 'json' or 'prometheus'", v)
	}
	return nil
}

// Get implements flag.Getter.
func (o *OutputFormat) Get() any {
	return *o
}

// String implements flag.Value.
func (o OutputFormat) String() string {
	switch o {
	case OutputText:
		return "text"
	case OutputJSON:
		return "json"
	case OutputPrometheus:
		return "prometheus"
	}
	panic(fmt.Sprintf("Invalid output format %d", o))
}

// UnmarshalText implements encoding.TextUnmarshaler, for config files.
func (o *OutputFormat) UnmarshalText(text []byte) error {
	return o.Set(string(text))
}
