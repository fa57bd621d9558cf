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
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"gvisor.dev/futexlock/lockbench/config"
	"gvisor.dev/futexlock/pkg/log"
)

func TestNewLogTarget(t *testing.T) {
	for _, tc := range []struct {
		name       string
		useFile    bool
		alsoStderr bool
		wantFile   bool
		wantStderr bool
	}{
		{name: "stderr", wantStderr: true},
		{name: "file", useFile: true, wantFile: true},
		{name: "file and stderr", useFile: true, alsoStderr: true, wantFile: true, wantStderr: true},
		{name: "alsologtostderr without file", alsoStderr: true, wantStderr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, format := range []string{"text", "json"} {
				conf := &config.Config{LogFormat: format, AlsoLogToStderr: tc.alsoStderr}
				var file, stderr bytes.Buffer
				var logFile io.Writer
				if tc.useFile {
					logFile = &file
				}
				e := newLogTarget(conf, logFile, &stderr)
				e.Emit(0, log.Info, time.Now(), "hello %d", 7)

				if got := strings.Contains(file.String(), "hello 7"); got != tc.wantFile {
					t.Errorf("%s: message in file: got %t, wanted %t (%q)", format, got, tc.wantFile, file.String())
				}
				if got := strings.Contains(stderr.String(), "hello 7"); got != tc.wantStderr {
					t.Errorf("%s: message on stderr: got %t, wanted %t (%q)", format, got, tc.wantStderr, stderr.String())
				}
			}
		})
	}
}
