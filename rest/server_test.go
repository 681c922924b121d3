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

//go:build unix

package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/gamevisor"
	. "github.com/smartystreets/goconvey/convey"
)

func ctx() context.Context {
	return context.Background()
}

func addServer(t *testing.T, c *Client, dir, id string) {
	script, _ := filepath.Abs(filepath.Join("..", "testdata", "fakeserver.sh"))
	sdir := filepath.Join(dir, id)
	if e := os.MkdirAll(sdir, 0755); e != nil {
		t.Fatal(e)
	}
	body := "#!/bin/sh\nexec /bin/sh " + script + " echo\n"
	if e := os.WriteFile(filepath.Join(sdir, "start.sh"), []byte(body), 0755); e != nil {
		t.Fatal(e)
	}
	So(c.AddServer(ctx(), gamevisor.NewServerConfig(id, "paper", sdir, "")), ShouldBeNil)
}

func hasLine(li *LogInfo, text string) bool {
	if li == nil {
		return false
	}
	for _, r := range li.Records {
		if r.Text == text {
			return true
		}
	}
	return false
}

func code(e error) int {
	if re, ok := e.(*Error); ok {
		return re.Code
	}
	return 0
}

func TestREST(t *testing.T) {
	Convey("With a daemon behind the REST API", t, func() {
		dir := t.TempDir()
		g, e := gamevisor.New("rest", dir, io.Discard, gamevisor.MonitorConfig{})
		So(e, ShouldBeNil)
		g.Supervisor.SetLogWriter(io.Discard)
		g.Servers.SetShutdownGrace(2 * time.Second)
		srv := httptest.NewServer(NewHandler(g))
		c := NewClient(nil, srv.URL)
		Reset(func() {
			srv.Close()
			g.Shutdown()
		})

		addServer(t, c, dir, "lobby")

		Convey("Servers are listed", func() {
			list, e := c.Servers(ctx())
			So(e, ShouldBeNil)
			So(len(list), ShouldEqual, 1)
			So(list[0].Config.ID, ShouldEqual, "lobby")
			So(list[0].Alive, ShouldBeFalse)

			st, e := c.Server(ctx(), "lobby")
			So(e, ShouldBeNil)
			So(st.Config.Type, ShouldEqual, "paper")
			So(st.Config.AutoRestart, ShouldBeTrue)
		})

		Convey("Errors map to statuses", func() {
			_, e := c.Server(ctx(), "nosuch")
			So(IsNotFound(e), ShouldBeTrue)
			_, e = c.Process(ctx(), "nosuch")
			So(IsNotFound(e), ShouldBeTrue)
			_, e = c.GetHistory(ctx(), "nosuch")
			So(IsNotFound(e), ShouldBeTrue)
			So(code(c.StopServer(ctx(), "lobby")), ShouldEqual, http.StatusConflict)
			e = c.AddServer(ctx(), gamevisor.NewServerConfig("lobby", "paper", dir, ""))
			So(code(e), ShouldEqual, http.StatusConflict)
			e = c.AddServer(ctx(), gamevisor.NewServerConfig("../up", "paper", dir, ""))
			So(code(e), ShouldEqual, http.StatusBadRequest)
			So(e.Error(), ShouldContainSubstring, "invalid server id")

			res, e := http.Post(srv.URL+"/processes/lobby/input", mimeJson,
				strings.NewReader("{not json"))
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Disabled servers do not start", func() {
			So(c.DisableServer(ctx(), "lobby"), ShouldBeNil)
			So(code(c.StartServer(ctx(), "lobby")), ShouldEqual, http.StatusConflict)
			So(c.EnableServer(ctx(), "lobby"), ShouldBeNil)
			So(c.StartServer(ctx(), "lobby"), ShouldBeNil)
		})

		Convey("Auto restart can be toggled", func() {
			So(c.SetAutoRestart(ctx(), "lobby", false), ShouldBeNil)
			st, _ := c.Server(ctx(), "lobby")
			So(st.Config.AutoRestart, ShouldBeFalse)
			So(c.SetAutoRestart(ctx(), "lobby", true), ShouldBeNil)
			st, _ = c.Server(ctx(), "lobby")
			So(st.Config.AutoRestart, ShouldBeTrue)
		})

		Convey("Watch sees a server start", func() {
			etag, e := c.Watch(ctx(), "")
			So(e, ShouldBeNil)
			So(etag, ShouldNotEqual, "")

			go func() {
				time.Sleep(50 * time.Millisecond)
				c.StartServer(ctx(), "lobby")
			}()
			ntag, e := c.Watch(ctx(), etag)
			So(e, ShouldBeNil)
			So(ntag, ShouldNotEqual, etag)
		})

		Convey("A started server", func() {
			So(c.StartServer(ctx(), "lobby"), ShouldBeNil)
			So(code(c.StartServer(ctx(), "lobby")), ShouldEqual, http.StatusConflict)

			procs, e := c.Processes(ctx())
			So(e, ShouldBeNil)
			So(len(procs), ShouldEqual, 1)
			So(procs[0].Alive, ShouldBeTrue)

			p, e := c.Process(ctx(), "lobby")
			So(e, ShouldBeNil)
			So(p.Pid, ShouldBeGreaterThan, 0)
			So(p.Instance, ShouldNotEqual, "")

			mon, e := c.PollMonitor(ctx())
			So(e, ShouldBeNil)
			So(len(mon), ShouldEqual, 1)
			So(mon[0].Running, ShouldBeTrue)

			Convey("Has a screen for its output", func() {
				So(c.CreateScreen(ctx(), "lobby"), ShouldBeNil)
				So(code(c.CreateScreen(ctx(), "lobby")), ShouldEqual, http.StatusConflict)

				scrs, e := c.Screens(ctx())
				So(e, ShouldBeNil)
				So(len(scrs), ShouldEqual, 1)
				So(scrs[0].Alive, ShouldBeTrue)

				first, e := c.GetHistory(ctx(), "lobby")
				So(e, ShouldBeNil)

				So(c.SendInput(ctx(), "lobby", "hello"), ShouldBeNil)
				li := first
				for i := 0; i < 10 && !hasLine(li, "got: hello"); i++ {
					li, e = c.WatchHistory(ctx(), "lobby", li)
					So(e, ShouldBeNil)
				}
				So(hasLine(li, "got: hello"), ShouldBeTrue)

				So(c.RemoveScreen(ctx(), "lobby"), ShouldBeNil)
				_, e = c.GetHistory(ctx(), "lobby")
				So(IsNotFound(e), ShouldBeTrue)
			})

			Convey("Cannot be removed while running", func() {
				So(code(c.RemoveServer(ctx(), "lobby")), ShouldEqual, http.StatusConflict)
				So(c.StopServer(ctx(), "lobby"), ShouldBeNil)
				So(c.RemoveServer(ctx(), "lobby"), ShouldBeNil)
				list, _ := c.Servers(ctx())
				So(len(list), ShouldEqual, 0)
			})

			Convey("Can be stopped outright", func() {
				So(c.StopProcess(ctx(), "lobby"), ShouldBeNil)
				_, e := c.Process(ctx(), "lobby")
				So(IsNotFound(e), ShouldBeTrue)

				mon, e := c.PollMonitor(ctx())
				So(e, ShouldBeNil)
				for _, m := range mon {
					So(m.Crashes, ShouldEqual, 0)
					So(m.Pending, ShouldBeFalse)
				}
				So(code(c.StopProcess(ctx(), "lobby")), ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("The daemon log is served", func() {
			li, e := c.GetLog(ctx())
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldBeGreaterThan, 0)

			wctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_, e = c.WatchLog(wctx, li)
			So(e, ShouldNotBeNil)
		})
	})
}
