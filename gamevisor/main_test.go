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

package main

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/rest"
)

func TestCLI(t *testing.T) {
	Convey("The command line client", t, func() {
		g, e := gamevisor.New("cli", t.TempDir(), io.Discard, gamevisor.MonitorConfig{})
		So(e, ShouldBeNil)
		g.Supervisor.SetLogWriter(io.Discard)
		srv := httptest.NewServer(rest.NewHandler(g))
		Reset(func() {
			srv.Close()
			g.Shutdown()
		})
		out := &bytes.Buffer{}
		run := func(args ...string) error {
			out.Reset()
			cmd := newRootCmd(out)
			cmd.SetArgs(append([]string{"--addr", srv.URL}, args...))
			return cmd.Execute()
		}
		dir := t.TempDir()

		So(run("servers"), ShouldBeNil)
		So(out.String(), ShouldEqual, "")

		So(run("add", "lobby", "paper", dir), ShouldBeNil)
		So(run("add", "hub", "velocity", dir), ShouldBeNil)
		So(run("servers"), ShouldBeNil)
		So(out.String(), ShouldEqual, "hub\nlobby\n")

		Convey("Status and info", func() {
			So(run("status", "lobby"), ShouldBeNil)
			So(out.String(), ShouldStartWith, "lobby ")
			So(out.String(), ShouldContainSubstring, "stopped")

			e := run("status", "lobby", "nope")
			So(e, ShouldNotBeNil)
			So(e.Error(), ShouldContainSubstring, "nope")

			So(run("info", "hub"), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "Type:         velocity")
			So(out.String(), ShouldContainSubstring, "Auto restart: true")

			So(rest.IsNotFound(run("info", "nope")), ShouldBeTrue)
		})

		Convey("Policy changes", func() {
			So(run("disable", "lobby"), ShouldBeNil)
			So(run("status"), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "disabled")
			So(run("enable", "lobby"), ShouldBeNil)

			So(run("autorestart", "lobby", "off"), ShouldBeNil)
			s, _ := g.Servers.Store().Get("lobby")
			So(s.AutoRestart, ShouldBeFalse)
			So(run("autorestart", "lobby", "maybe"), ShouldNotBeNil)
		})

		Convey("Failures are reported", func() {
			e := run("start", "lobby")
			So(e, ShouldNotBeNil)
			So(e.Error(), ShouldContainSubstring, "No start script found")
			So(run("send", "lobby"), ShouldNotBeNil)
			So(run("send", "lobby", "say", "hi"), ShouldNotBeNil)
			So(run("remove", "lobby"), ShouldBeNil)
			So(rest.IsNotFound(run("remove", "lobby")), ShouldBeTrue)
		})

		Convey("Monitor and screens", func() {
			So(run("monitor", "--poll"), ShouldBeNil)
			So(run("screens"), ShouldBeNil)
			So(out.String(), ShouldEqual, "")
			So(run("log"), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "Added server configuration lobby")
		})
	})
}

func TestNewRecords(t *testing.T) {
	Convey("Only unseen records are printed", t, func() {
		recs := func(ids ...int64) []gamevisor.LogRecord {
			rv := []gamevisor.LogRecord{}
			for _, id := range ids {
				rv = append(rv, gamevisor.LogRecord{Id: id})
			}
			return rv
		}
		So(newRecords(nil, recs(1, 2)), ShouldResemble, recs(1, 2))
		So(newRecords(recs(1, 2, 3), recs(2, 3, 4, 5)), ShouldResemble, recs(4, 5))
		So(newRecords(recs(1, 2, 3), recs(2, 3)), ShouldResemble, recs())
	})
}
