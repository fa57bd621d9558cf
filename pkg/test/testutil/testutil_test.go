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

package testutil

import (
	"errors"
	"testing"
	"time"
)

func TestPoll(t *testing.T) {
	calls := 0
	err := Poll(func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, wanted 3", calls)
	}
}

func TestPollTimeout(t *testing.T) {
	want := errors.New("never")
	err := Poll(func() error { return want }, 20*time.Millisecond)
	if err != want {
		t.Errorf("Poll: got %v, wanted %v", err, want)
	}
}

func TestPollPermanent(t *testing.T) {
	want := errors.New("stop")
	calls := 0
	err := Poll(func() error {
		calls++
		return Permanent(want)
	}, 10*time.Second)
	if err != want {
		t.Errorf("Poll: got %v, wanted %v", err, want)
	}
	if calls != 1 {
		t.Errorf("got %d calls, wanted 1", calls)
	}
}

type recordingLogger struct {
	name  string
	lines []string
}

func (r *recordingLogger) Name() string { return r.name }

func (r *recordingLogger) Logf(fmt string, args ...any) {
	r.lines = append(r.lines, fmt)
}

func TestMultiLogger(t *testing.T) {
	a := &recordingLogger{name: "a"}
	b := &recordingLogger{name: "b"}
	m := NewMultiLogger(a, b)
	if got, want := m.Name(), "a+b"; got != want {
		t.Errorf("Name: got %q, wanted %q", got, want)
	}
	m.Logf("hello")
	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Errorf("got %d and %d lines, wanted 1 each", len(a.lines), len(b.lines))
	}
}
