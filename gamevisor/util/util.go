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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/gamevisor"
)

// Status sums up a server in one word.
func Status(s *gamevisor.ServerStatus) string {
	m := s.Monitor
	switch {
	case s.Alive:
		return "running"
	case !s.Config.Enabled:
		return "disabled"
	case m != nil && m.Disabled:
		return "crashed"
	case m != nil && (m.Pending || m.Deferred):
		return "restarting"
	}
	return "stopped"
}

// Faulted is true for servers that need someone to look at them.
func Faulted(s *gamevisor.ServerStatus) bool {
	return Status(s) == "crashed"
}

// Uptime is how long a running server has been up, to the second.
func Uptime(s *gamevisor.ServerStatus, now time.Time) time.Duration {
	if !s.Alive || s.Started.IsZero() {
		return 0
	}
	d := now.Sub(s.Started)
	return d - d%time.Second
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Restarts describes the crash monitor's view of a server.
func Restarts(s *gamevisor.ServerStatus) string {
	m := s.Monitor
	if m == nil {
		if s.Config.AutoRestart {
			return "not watched"
		}
		return "off"
	}
	if m.Disabled {
		return fmt.Sprintf("gave up after %d", m.Attempts)
	}
	if m.Attempts != 0 {
		return fmt.Sprintf("%d tried", m.Attempts)
	}
	return fmt.Sprintf("%d crashes", m.Crashes)
}

// SortServers puts faulted servers first, then enabled ones, then the
// rest, each group by id.
func SortServers(items []gamevisor.ServerStatus) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		if fa, fb := Faulted(a), Faulted(b); fa != fb {
			return fa
		}
		if a.Config.Enabled != b.Config.Enabled {
			return a.Config.Enabled
		}
		return a.Config.ID < b.Config.ID
	})
}
