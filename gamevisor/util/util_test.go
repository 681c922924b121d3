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

package util

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/gamevisor"
)

func server(id string, alive bool, m *gamevisor.MonitorStatus) gamevisor.ServerStatus {
	return gamevisor.ServerStatus{
		Config:  gamevisor.NewServerConfig(id, "paper", "/srv/"+id, ""),
		Alive:   alive,
		Monitor: m,
	}
}

func TestStatus(t *testing.T) {
	Convey("Server status words", t, func() {
		s := server("a", true, nil)
		So(Status(&s), ShouldEqual, "running")

		s = server("a", false, nil)
		So(Status(&s), ShouldEqual, "stopped")
		So(Restarts(&s), ShouldEqual, "not watched")

		s.Config.Enabled = false
		So(Status(&s), ShouldEqual, "disabled")

		s = server("a", false, &gamevisor.MonitorStatus{Pending: true, Attempts: 1})
		So(Status(&s), ShouldEqual, "restarting")
		So(Restarts(&s), ShouldEqual, "1 tried")

		s = server("a", false, &gamevisor.MonitorStatus{Disabled: true, Attempts: 3})
		So(Status(&s), ShouldEqual, "crashed")
		So(Faulted(&s), ShouldBeTrue)
		So(Restarts(&s), ShouldEqual, "gave up after 3")
	})

	Convey("Durations", t, func() {
		So(FormatDuration(26*time.Hour+3*time.Minute+9*time.Second), ShouldEqual, "26:03:09")

		now := time.Now()
		s := server("a", true, nil)
		s.Started = now.Add(-90*time.Second - 300*time.Millisecond)
		So(Uptime(&s, now), ShouldEqual, 90*time.Second)
		s.Alive = false
		So(Uptime(&s, now), ShouldEqual, 0)
	})

	Convey("Sorting", t, func() {
		off := server("b", false, nil)
		off.Config.Enabled = false
		items := []gamevisor.ServerStatus{
			off,
			server("c", true, nil),
			server("a", false, nil),
			server("d", false, &gamevisor.MonitorStatus{Disabled: true}),
		}
		SortServers(items)
		ids := []string{}
		for _, i := range items {
			ids = append(ids, i.Config.ID)
		}
		So(ids, ShouldResemble, []string{"d", "a", "c", "b"})
	})
}
