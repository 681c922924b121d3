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
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeProcs stands in for the Supervisor.
type fakeProcs struct {
	alive map[string]bool
	sent  []string
	fail  bool
	mx    sync.Mutex
}

func newFakeProcs(ids ...string) *fakeProcs {
	fp := &fakeProcs{alive: make(map[string]bool)}
	for _, id := range ids {
		fp.alive[id] = true
	}
	return fp
}

func (fp *fakeProcs) set(id string, alive bool) {
	fp.mx.Lock()
	fp.alive[id] = alive
	fp.mx.Unlock()
}

func (fp *fakeProcs) IsAlive(id string) bool {
	fp.mx.Lock()
	defer fp.mx.Unlock()
	return fp.alive[id]
}

func (fp *fakeProcs) SendInput(id string, line string) error {
	fp.mx.Lock()
	defer fp.mx.Unlock()
	if !fp.alive[id] {
		return ErrNotRunning
	}
	if fp.fail {
		return ErrNotFound
	}
	fp.sent = append(fp.sent, id+":"+line)
	return nil
}

func (fp *fakeProcs) inputs() []string {
	fp.mx.Lock()
	defer fp.mx.Unlock()
	return append([]string{}, fp.sent...)
}

// rendered returns the text of everything shown to the operator.
func rendered(r *recorder) []string {
	return r.texts("")
}

func contains(lines []string, text string) bool {
	for _, l := range lines {
		if strings.Contains(l, text) {
			return true
		}
	}
	return false
}

func TestScreenCreate(t *testing.T) {
	Convey("Creating screens", t, func() {
		fp := newFakeProcs()
		out := &recorder{}
		m := NewMultiplexer(fp, out, nil)

		Convey("Fails while the process is not running", func() {
			So(m.CreateScreen("srv1"), ShouldEqual, ErrNotRunning)
			So(contains(rendered(out), "'srv1' is not running"), ShouldBeTrue)
			So(len(m.Screens()), ShouldEqual, 0)

			Convey("And works once it is", func() {
				fp.set("srv1", true)
				So(m.CreateScreen("srv1"), ShouldBeNil)
				scrs := m.Screens()
				So(len(scrs), ShouldEqual, 1)
				So(scrs[0].Cap, ShouldEqual, ScreenHistorySize)
			})
		})

		Convey("Only once per id", func() {
			fp.set("srv1", true)
			So(m.CreateScreen("srv1"), ShouldBeNil)
			So(m.CreateScreen("srv1"), ShouldEqual, ErrScreenExists)
			So(len(m.Screens()), ShouldEqual, 1)
		})
	})
}

func TestScreenHistory(t *testing.T) {
	Convey("Screen history is bounded", t, func() {
		fp := newFakeProcs("srv1")
		out := &recorder{}
		m := NewMultiplexer(fp, out, nil)
		So(m.CreateScreen("srv1"), ShouldBeNil)

		for i := 1; i <= 150; i++ {
			m.Broadcast("srv1", fmt.Sprintf("line %d", i), CategoryInfo)
		}
		recs, etag, e := m.History("srv1", 0)
		So(e, ShouldBeNil)
		So(len(recs), ShouldEqual, ScreenHistorySize)
		So(recs[0].Text, ShouldEqual, "line 51")
		So(recs[99].Text, ShouldEqual, "line 150")
		for i := 1; i < len(recs); i++ {
			So(recs[i].Id, ShouldEqual, recs[i-1].Id+1)
		}

		Convey("An unchanged etag returns nothing", func() {
			recs, etag2, e := m.History("srv1", etag)
			So(e, ShouldBeNil)
			So(recs, ShouldBeNil)
			So(etag2, ShouldEqual, etag)
		})

		Convey("Watchers wake on new lines", func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				m.Broadcast("srv1", "late", CategoryInfo)
			}()
			next, e := m.WatchHistory("srv1", etag, 2*time.Second)
			So(e, ShouldBeNil)
			So(next, ShouldNotEqual, etag)
		})

		Convey("Lines for other ids are dropped", func() {
			m.Broadcast("other", "nobody listens", CategoryInfo)
			_, _, e := m.History("other", 0)
			So(e, ShouldEqual, ErrNoScreen)
		})

		Convey("Nothing is rendered from the main console", func() {
			So(contains(rendered(out), "line 150"), ShouldBeFalse)
		})
	})
}

func TestScreenSwitch(t *testing.T) {
	Convey("Switching screens", t, func() {
		fp := newFakeProcs("srv1", "srv2")
		out := &recorder{}
		m := NewMultiplexer(fp, out, nil)
		So(m.CreateScreen("srv1"), ShouldBeNil)
		So(m.CreateScreen("srv2"), ShouldBeNil)
		for i := 1; i <= 20; i++ {
			m.Broadcast("srv1", fmt.Sprintf("old %d", i), CategoryInfo)
		}
		out.reset()

		Convey("Starts on the main console", func() {
			id, ok := m.Current()
			So(ok, ShouldBeFalse)
			So(id, ShouldEqual, "")
		})

		Convey("To a missing screen leaves the selection alone", func() {
			So(m.SwitchTo("srv1"), ShouldBeNil)
			So(m.SwitchTo("nosuch"), ShouldEqual, ErrNoScreen)
			id, _ := m.Current()
			So(id, ShouldEqual, "srv1")
		})

		Convey("To a dead process leaves the selection alone", func() {
			fp.set("srv2", false)
			So(m.SwitchTo("srv2"), ShouldEqual, ErrNotRunning)
			_, ok := m.Current()
			So(ok, ShouldBeFalse)
		})

		Convey("Replays the last lines", func() {
			So(m.SwitchTo("srv1"), ShouldBeNil)
			lines := rendered(out)
			So(contains(lines, "old 10"), ShouldBeFalse)
			So(contains(lines, "old 11"), ShouldBeTrue)
			So(contains(lines, "old 20"), ShouldBeTrue)
			So(lines[len(lines)-1], ShouldEqual, "Switched from main console to srv1")

			Convey("Live lines are rendered", func() {
				m.Broadcast("srv1", "live", CategoryInfo)
				m.Broadcast("srv2", "elsewhere", CategoryInfo)
				So(contains(rendered(out), "live"), ShouldBeTrue)
				So(contains(rendered(out), "elsewhere"), ShouldBeFalse)
			})

			Convey("And names the previous screen", func() {
				So(m.SwitchTo("srv2"), ShouldBeNil)
				lines := rendered(out)
				So(lines[len(lines)-1], ShouldEqual, "Switched from srv1 to srv2")
			})

			Convey("Back to main", func() {
				m.SwitchToMain()
				_, ok := m.Current()
				So(ok, ShouldBeFalse)
				So(contains(rendered(out), "Switched from srv1 to main console"), ShouldBeTrue)
				m.SwitchToMain()
				So(contains(rendered(out), "Already in main console"), ShouldBeTrue)
			})

			Convey("Removing the selected screen goes back to main", func() {
				So(m.RemoveScreen("srv1"), ShouldBeNil)
				_, ok := m.Current()
				So(ok, ShouldBeFalse)
				So(m.RemoveScreen("srv1"), ShouldEqual, ErrNoScreen)
			})
		})
	})
}

func TestScreenRouteInput(t *testing.T) {
	Convey("Routing operator input", t, func() {
		fp := newFakeProcs("srv1", "srv2")
		out := &recorder{}
		m := NewMultiplexer(fp, out, nil)
		So(m.CreateScreen("srv1"), ShouldBeNil)

		Convey("Nothing is consumed on the main console", func() {
			So(m.RouteInput("say hi"), ShouldBeFalse)
			So(len(fp.inputs()), ShouldEqual, 0)
		})

		Convey("While viewing a screen", func() {
			So(m.SwitchTo("srv1"), ShouldBeNil)

			Convey("Lines go to the process and are echoed", func() {
				So(m.RouteInput("say hi"), ShouldBeTrue)
				So(fp.inputs(), ShouldResemble, []string{"srv1:say hi"})
				recs, _, _ := m.History("srv1", 0)
				last := recs[len(recs)-1]
				So(last.Text, ShouldEqual, "[INPUT] say hi")
				So(last.Category, ShouldEqual, CategoryInput)
			})

			Convey("A failed send is not consumed", func() {
				fp.fail = true
				So(m.RouteInput("say hi"), ShouldBeFalse)
			})

			Convey("exit returns to main", func() {
				So(m.RouteInput("exit"), ShouldBeTrue)
				_, ok := m.Current()
				So(ok, ShouldBeFalse)
				So(len(fp.inputs()), ShouldEqual, 0)
			})

			Convey("detach returns to main", func() {
				So(m.RouteInput("detach"), ShouldBeTrue)
				_, ok := m.Current()
				So(ok, ShouldBeFalse)
			})

			Convey("screen commands are handled locally", func() {
				So(m.RouteInput("screen list"), ShouldBeTrue)
				So(contains(rendered(out), "srv1: RUNNING (current)"), ShouldBeTrue)

				So(m.RouteInput("screen create srv2"), ShouldBeTrue)
				So(len(m.Screens()), ShouldEqual, 2)

				So(m.RouteInput("screen s srv2"), ShouldBeTrue)
				id, _ := m.Current()
				So(id, ShouldEqual, "srv2")

				So(m.RouteInput("screen status"), ShouldBeTrue)
				So(contains(rendered(out), "Screens: srv1, srv2"), ShouldBeTrue)

				So(m.RouteInput("screen bogus"), ShouldBeTrue)
				So(contains(rendered(out), "Unknown screen command: bogus"), ShouldBeTrue)

				So(m.RouteInput("screen main"), ShouldBeTrue)
				_, ok := m.Current()
				So(ok, ShouldBeFalse)
				So(len(fp.inputs()), ShouldEqual, 0)
			})
		})
	})
}

func TestScreenNotifyAndClose(t *testing.T) {
	Convey("Notices and teardown", t, func() {
		fp := newFakeProcs("srv1")
		out := &recorder{}
		m := NewMultiplexer(fp, out, nil)
		So(m.CreateScreen("srv1"), ShouldBeNil)

		Convey("Notify reaches the main console", func() {
			m.Notify("srv1", "Server crashed", CategoryError)
			So(contains(rendered(out), "[srv1] Server crashed"), ShouldBeTrue)
			recs, _, _ := m.History("srv1", 0)
			So(recs[len(recs)-1].Text, ShouldEqual, "Server crashed")
		})

		Convey("Close forgets everything but leaves processes", func() {
			So(m.SwitchTo("srv1"), ShouldBeNil)
			m.Close()
			_, ok := m.Current()
			So(ok, ShouldBeFalse)
			So(len(m.Screens()), ShouldEqual, 0)
			So(fp.IsAlive("srv1"), ShouldBeTrue)
		})
	})
}
