// Copyright 2026 The Gamevisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gamevisor

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

func logger(t *testing.T) *log.Logger {
	return log.New(&testLog{t: t}, "", 0)
}

// recorder is a Broadcaster, Notifier and Renderer that remembers
// everything it is given.
type recorder struct {
	lines []LogRecord
	ids   []string
	mx    sync.Mutex
}

func (r *recorder) Broadcast(id string, text string, cat Category) {
	r.mx.Lock()
	r.ids = append(r.ids, id)
	r.lines = append(r.lines, LogRecord{Text: text, Category: cat, Time: time.Now()})
	r.mx.Unlock()
}

func (r *recorder) Notify(id string, text string, cat Category) {
	r.Broadcast(id, text, cat)
}

func (r *recorder) Render(rec LogRecord) {
	r.mx.Lock()
	r.ids = append(r.ids, "")
	r.lines = append(r.lines, rec)
	r.mx.Unlock()
}

// texts returns the text of every line recorded for id.
func (r *recorder) texts(id string) []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	var rv []string
	for i, l := range r.lines {
		if r.ids[i] == id {
			rv = append(rv, l.Text)
		}
	}
	return rv
}

func (r *recorder) find(id string, text string) (LogRecord, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for i, l := range r.lines {
		if r.ids[i] == id && strings.Contains(l.Text, text) {
			return l, true
		}
	}
	return LogRecord{}, false
}

func (r *recorder) has(id string, text string) bool {
	_, ok := r.find(id, text)
	return ok
}

func (r *recorder) reset() {
	r.mx.Lock()
	r.lines = nil
	r.ids = nil
	r.mx.Unlock()
}

// eventually polls cond until it holds or d passes.
func eventually(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// chanSource is a LineSource fed by a channel.  Closing the channel is
// end of input.
type chanSource chan string

func (c chanSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c:
		if !ok {
			return "", io.EOF
		}
		return l, nil
	}
}

func bg() context.Context {
	return context.Background()
}

func fakeServer() string {
	dir, _ := os.Getwd()
	return filepath.Join(dir, "testdata", "fakeserver.sh")
}

func fakeSpec(args ...string) ProcessSpec {
	return ProcessSpec{Command: append([]string{"/bin/sh", fakeServer()}, args...)}
}

func WithSupervisor(t *testing.T, name string, fn func(s *Supervisor, r *recorder)) func() {
	return func() {
		s := NewSupervisor(name)
		So(s, ShouldNotBeNil)
		s.SetLogWriter(&testLog{t: t})
		r := &recorder{}
		s.SetBroadcaster(r)
		Reset(func() {
			s.Shutdown()
		})
		fn(s, r)
	}
}
