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

package gamevisor

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeScript(t *testing.T, dir, name, mode string) {
	body := "#!/bin/sh\nexec /bin/sh " + fakeServer() + " " + mode + "\n"
	if e := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); e != nil {
		t.Fatal(e)
	}
}

func TestResolveStartCommand(t *testing.T) {
	Convey("Resolving start scripts", t, func() {
		dir := t.TempDir()

		Convey("Nothing there", func() {
			_, e := ResolveStartCommand("paper", dir, "")
			So(errors.Is(e, ErrNoStartScript), ShouldBeTrue)
			So(e.Error(), ShouldContainSubstring, "start.sh, run.sh")
		})

		Convey("Falls back to run.sh", func() {
			writeScript(t, dir, "run.sh", "echo")
			cmd, e := ResolveStartCommand("paper", dir, "")
			So(e, ShouldBeNil)
			So(cmd, ShouldResemble, []string{"bash", "run.sh"})
			st, _ := os.Stat(filepath.Join(dir, "run.sh"))
			So(st.Mode()&0100, ShouldNotEqual, 0)
		})

		Convey("Prefers the type's own script", func() {
			writeScript(t, dir, "start.sh", "echo")
			writeScript(t, dir, "run.sh", "echo")
			cmd, _ := ResolveStartCommand("forge", dir, "")
			So(cmd, ShouldResemble, []string{"bash", "run.sh"})
			cmd, _ = ResolveStartCommand("vanilla", dir, "")
			So(cmd, ShouldResemble, []string{"bash", "start.sh"})
		})

		Convey("Prefers a custom script over all", func() {
			writeScript(t, dir, "start.sh", "echo")
			writeScript(t, dir, "mine.sh", "echo")
			cmd, _ := ResolveStartCommand("vanilla", dir, "mine.sh")
			So(cmd, ShouldResemble, []string{"bash", "mine.sh"})
		})

		Convey("Server types", func() {
			So(LookupServerType("NeoForge").Script, ShouldEqual, "run")
			So(LookupServerType("bogus").Name, ShouldEqual, "vanilla")
			So(LookupServerType("velocity").IsProxy(), ShouldBeTrue)
			So(LookupServerType("quilt").IsModded(), ShouldBeTrue)
			So(LookupServerType("Velocity").Label(), ShouldEqual, "velocity (proxy)")
			So(LookupServerType("fabric").Label(), ShouldEqual, "fabric (modded)")
			So(LookupServerType("paper").Label(), ShouldEqual, "paper")
			So(len(ServerTypes()), ShouldEqual, 9)
		})
	})
}

func withGamevisor(t *testing.T, fn func(g *Gamevisor, dir string)) func() {
	return func() {
		dir := t.TempDir()
		g, e := New("test", dir, io.Discard, MonitorConfig{
			RestartDelay: time.Millisecond,
			Cooldown:     time.Millisecond,
		})
		So(e, ShouldBeNil)
		g.Supervisor.SetLogWriter(&testLog{t: t})
		g.Servers.SetShutdownGrace(2 * time.Second)
		Reset(g.Shutdown)
		fn(g, dir)
	}
}

func addServer(t *testing.T, g *Gamevisor, dir, id, mode string) {
	sdir := filepath.Join(dir, id)
	if e := os.MkdirAll(sdir, 0755); e != nil {
		t.Fatal(e)
	}
	writeScript(t, sdir, "start.sh", mode)
	So(g.Servers.Store().Add(NewServerConfig(id, "paper", sdir, "")), ShouldBeNil)
}

func TestServers(t *testing.T) {
	Convey("Managing configured servers", t,
		withGamevisor(t, func(g *Gamevisor, dir string) {
			addServer(t, g, dir, "srv1", "echo")

			Convey("Unknown servers are refused", func() {
				So(g.Servers.StartServer("nosuch"), ShouldEqual, ErrNoServer)
			})

			Convey("Disabled servers are refused", func() {
				So(g.Servers.Store().SetEnabled("srv1", false), ShouldBeNil)
				So(g.Servers.StartServer("srv1"), ShouldEqual, ErrDisabled)
			})

			Convey("Start registers with the monitor", func() {
				So(g.Servers.StartServer("srv1"), ShouldBeNil)
				So(g.Supervisor.IsAlive("srv1"), ShouldBeTrue)
				ms, ok := g.Monitor.StatusOf("srv1")
				So(ok, ShouldBeTrue)
				So(ms.Running, ShouldBeTrue)

				cfg, _ := g.Servers.Store().Get("srv1")
				So(cfg.LastStart.IsZero(), ShouldBeFalse)

				st := g.Servers.Status()
				So(len(st), ShouldEqual, 1)
				So(st[0].Alive, ShouldBeTrue)
				So(st[0].Pid, ShouldBeGreaterThan, 0)
				So(st[0].Monitor, ShouldNotBeNil)

				Convey("Input reaches the server", func() {
					So(g.Screens.CreateScreen("srv1"), ShouldBeNil)
					So(g.Supervisor.SendInput("srv1", "hi"), ShouldBeNil)
					So(eventually(2*time.Second, func() bool {
						recs, _, _ := g.Screens.History("srv1", 0)
						return len(recs) > 0 && recs[len(recs)-1].Text == "got: hi"
					}), ShouldBeTrue)
				})

				Convey("Stop asks nicely and unregisters", func() {
					So(g.Servers.StopServer("srv1"), ShouldBeNil)
					So(g.Supervisor.IsAlive("srv1"), ShouldBeFalse)
					_, ok := g.Monitor.StatusOf("srv1")
					So(ok, ShouldBeFalse)
					So(g.Servers.StopServer("srv1"), ShouldEqual, ErrNotRunning)
				})
			})

			Convey("A poll during the grace period does not undo a stop", func() {
				addServer(t, g, dir, "slow", "stubborn")
				g.Supervisor.SetStopTimeout(100 * time.Millisecond)
				So(g.Servers.StartServer("slow"), ShouldBeNil)

				done := make(chan error, 1)
				go func() { done <- g.Servers.StopServer("slow") }()
				time.Sleep(500 * time.Millisecond)
				So(g.Supervisor.IsAlive("slow"), ShouldBeTrue)
				So(g.Servers.RestartTargets(), ShouldNotContain, "slow")
				g.Monitor.Poll()

				So(<-done, ShouldBeNil)
				So(g.Servers.RestartTargets(), ShouldContain, "slow")
				g.Monitor.Poll()
				time.Sleep(50 * time.Millisecond)
				g.Monitor.Poll()

				So(g.Supervisor.IsAlive("slow"), ShouldBeFalse)
				ms, ok := g.Monitor.StatusOf("slow")
				So(ok, ShouldBeTrue)
				So(ms.Crashes, ShouldEqual, 0)
				So(ms.Attempts, ShouldEqual, 0)
				So(ms.Pending, ShouldBeFalse)
			})

			Convey("Kill stops at once and the monitor leaves it down", func() {
				So(g.Servers.StartServer("srv1"), ShouldBeNil)
				So(g.Servers.Kill("srv1"), ShouldBeNil)
				So(g.Supervisor.IsAlive("srv1"), ShouldBeFalse)
				g.Monitor.Poll()
				time.Sleep(50 * time.Millisecond)
				So(g.Supervisor.IsAlive("srv1"), ShouldBeFalse)
				ms, _ := g.Monitor.StatusOf("srv1")
				So(ms.Crashes, ShouldEqual, 0)
				So(g.Servers.Kill("srv1"), ShouldEqual, ErrNotFound)
			})

			Convey("StopAll stops every server", func() {
				addServer(t, g, dir, "srv2", "echo")
				So(g.Servers.StartServer("srv1"), ShouldBeNil)
				So(g.Servers.StartServer("srv2"), ShouldBeNil)
				g.Servers.StopAll()
				So(g.Supervisor.IsAlive("srv1"), ShouldBeFalse)
				So(g.Supervisor.IsAlive("srv2"), ShouldBeFalse)
				So(len(g.Monitor.Status()), ShouldEqual, 0)
			})

			Convey("AutoStart starts the marked servers", func() {
				addServer(t, g, dir, "manual", "echo")
				So(g.Servers.Store().SetAutoStart("manual", false), ShouldBeNil)
				started := g.Servers.AutoStart()
				So(started, ShouldResemble, []string{"srv1"})
				So(g.Supervisor.IsAlive("manual"), ShouldBeFalse)
			})
		}))
}

func TestServersCrashRestart(t *testing.T) {
	Convey("A crashed server is restarted by the monitor", t,
		withGamevisor(t, func(g *Gamevisor, dir string) {
			addServer(t, g, dir, "srv1", "echo")
			So(g.Servers.StartServer("srv1"), ShouldBeNil)
			first, _ := g.Supervisor.Info("srv1")

			So(g.Supervisor.SendInput("srv1", "crash"), ShouldBeNil)
			So(eventually(2*time.Second, func() bool {
				return !g.Supervisor.IsAlive("srv1")
			}), ShouldBeTrue)

			g.Monitor.Poll()
			So(eventually(2*time.Second, func() bool {
				return g.Supervisor.IsAlive("srv1")
			}), ShouldBeTrue)
			second, _ := g.Supervisor.Info("srv1")
			So(second.Instance, ShouldNotEqual, first.Instance)

			ms, _ := g.Monitor.StatusOf("srv1")
			So(ms.Crashes, ShouldEqual, 1)
			So(ms.Attempts, ShouldEqual, 1)

			Convey("The budget survives restarts, then auto restart is turned off", func() {
				for i := 0; i < DefaultMaxAttempts; i++ {
					So(eventually(2*time.Second, func() bool {
						ms, _ := g.Monitor.StatusOf("srv1")
						return ms.Running && !ms.Pending
					}), ShouldBeTrue)
					g.Supervisor.SendInput("srv1", "crash")
					So(eventually(2*time.Second, func() bool {
						return !g.Supervisor.IsAlive("srv1")
					}), ShouldBeTrue)
					time.Sleep(5 * time.Millisecond)
					g.Monitor.Poll()
				}
				ms, _ := g.Monitor.StatusOf("srv1")
				So(ms.Disabled, ShouldBeTrue)
				cfg, _ := g.Servers.Store().Get("srv1")
				So(cfg.AutoRestart, ShouldBeFalse)
				So(len(g.Servers.RestartTargets()), ShouldEqual, 0)
			})
		}))
}

func TestNewWiring(t *testing.T) {
	Convey("New wires the pieces together", t,
		withGamevisor(t, func(g *Gamevisor, dir string) {
			So(g.Servers.Store().Dir(), ShouldEqual, filepath.Join(dir, "servers"))
			So(g.Monitor.Config().MaxAttempts, ShouldEqual, DefaultMaxAttempts)

			e := g.Supervisor.Start("plain", fakeSpec("echo"), "")
			So(e, ShouldBeNil)
			So(g.Screens.CreateScreen("plain"), ShouldBeNil)
			So(g.Supervisor.SendInput("plain", "hello"), ShouldBeNil)
			So(eventually(2*time.Second, func() bool {
				recs, _, _ := g.Screens.History("plain", 0)
				for _, r := range recs {
					if r.Text == "got: hello" {
						return true
					}
				}
				return false
			}), ShouldBeTrue)
		}))
}
