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

package ui

import (
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/gamevisor"
)

func TestMarkup(t *testing.T) {
	Convey("Key names are highlighted", t, func() {
		So(markup("[Q] Quit"), ShouldEqual, "[%AQ%N] Quit")
		So(markup("100%"), ShouldEqual, "100%%")
	})
}

func TestInfoLines(t *testing.T) {
	Convey("Server details", t, func() {
		now := time.Now()
		s := &gamevisor.ServerStatus{
			Config:  gamevisor.NewServerConfig("lobby", "PAPER", "/srv/lobby", ""),
			Alive:   true,
			Pid:     42,
			Started: now.Add(-time.Hour),
			Monitor: &gamevisor.MonitorStatus{ID: "lobby", Crashes: 2, Running: true},
		}
		text := strings.Join(infoLines(s, now), "\n")
		So(text, ShouldContainSubstring, "Type: paper")
		So(text, ShouldContainSubstring, "Pid: 42")
		So(text, ShouldContainSubstring, "Up: 1:00:00")
		So(text, ShouldContainSubstring, "Crashes: 2")
		So(text, ShouldNotContainSubstring, "Next:")

		s.Alive = false
		s.Monitor.Pending = true
		text = strings.Join(infoLines(s, now), "\n")
		So(text, ShouldNotContainSubstring, "Pid:")
		So(text, ShouldContainSubstring, "restart pending")

		st, h := serverStyle(s)
		So(st, ShouldEqual, StyleWarn)
		So(h, ShouldEqual, HealthWarn)
	})
}

func TestFormatRecord(t *testing.T) {
	Convey("Records are stamped and marked", t, func() {
		when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
		So(formatRecord(gamevisor.LogRecord{Time: when, Text: "hi"}),
			ShouldEqual, "[03:04:05] hi")
		So(formatRecord(gamevisor.LogRecord{Time: when, Text: "oops",
			Category: gamevisor.CategoryError}), ShouldEqual, "[03:04:05] ! oops")
	})
}

func TestClamp(t *testing.T) {
	Convey("Cursor positions are clamped", t, func() {
		So(clamp(5, 3), ShouldEqual, 3)
		So(clamp(-1, 3), ShouldEqual, 0)
		So(clamp(2, -1), ShouldEqual, 0)
	})
}
