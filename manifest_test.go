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
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const yamlManifest = `id: lobby
type: paper
directory: /srv/lobby
autoStart: true
autoRestart: false
minMemory: 512M
maxMemory: 1G
enabled: true
`

const tomlManifest = `id = "modded"
type = "forge"
directory = "/srv/modded"
script = "launch.sh"
autoStart = false
autoRestart = true
minMemory = "4G"
maxMemory = "8G"
enabled = true
`

func TestConfigStore(t *testing.T) {
	Convey("A config store", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "lobby.yaml"), []byte(yamlManifest), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "modded.toml"), []byte(tomlManifest), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0644), ShouldBeNil)

		cs, e := OpenConfigStore(dir, logger(t))
		So(e, ShouldBeNil)

		Convey("Loads every format and skips junk", func() {
			all := cs.All()
			So(len(all), ShouldEqual, 2)
			So(all[0].ID, ShouldEqual, "lobby")
			So(all[1].ID, ShouldEqual, "modded")

			lobby, e := cs.Get("lobby")
			So(e, ShouldBeNil)
			So(lobby.Type, ShouldEqual, "paper")
			So(lobby.MinMemory, ShouldEqual, "512M")
			So(lobby.AutoRestart, ShouldBeFalse)

			modded, _ := cs.Get("modded")
			So(modded.Script, ShouldEqual, "launch.sh")
			So(modded.MaxMemory, ShouldEqual, "8G")
		})

		Convey("Filters by policy", func() {
			auto := cs.AutoStartConfigs()
			So(len(auto), ShouldEqual, 1)
			So(auto[0].ID, ShouldEqual, "lobby")
			re := cs.AutoRestartConfigs()
			So(len(re), ShouldEqual, 1)
			So(re[0].ID, ShouldEqual, "modded")
		})

		Convey("Writes changes back in the file's own format", func() {
			So(cs.SetAutoRestart("lobby", true), ShouldBeNil)
			So(cs.SetAutoStart("modded", true), ShouldBeNil)

			cs2, e := OpenConfigStore(dir, logger(t))
			So(e, ShouldBeNil)
			lobby, _ := cs2.Get("lobby")
			So(lobby.AutoRestart, ShouldBeTrue)
			So(lobby.MinMemory, ShouldEqual, "512M")
			modded, _ := cs2.Get("modded")
			So(modded.AutoStart, ShouldBeTrue)

			_, e = os.Stat(filepath.Join(dir, "lobby.json"))
			So(os.IsNotExist(e), ShouldBeTrue)
		})

		Convey("Adds new servers as JSON", func() {
			cfg := NewServerConfig("survival", "Vanilla", "/srv/survival", "")
			So(cfg.Type, ShouldEqual, "vanilla")
			So(cfg.AutoStart, ShouldBeTrue)
			So(cfg.AutoRestart, ShouldBeTrue)
			So(cfg.MinMemory, ShouldEqual, DefaultMinMemory)
			So(cfg.MaxMemory, ShouldEqual, DefaultMaxMemory)
			So(cs.Add(cfg), ShouldBeNil)
			So(cs.Add(cfg), ShouldEqual, ErrServerExists)
			_, e := os.Stat(filepath.Join(dir, "survival.json"))
			So(e, ShouldBeNil)

			So(cs.Remove("survival"), ShouldBeNil)
			_, e = cs.Get("survival")
			So(e, ShouldEqual, ErrNoServer)
			_, e = os.Stat(filepath.Join(dir, "survival.json"))
			So(os.IsNotExist(e), ShouldBeTrue)
		})

		Convey("Refuses bad ids", func() {
			e := cs.Add(NewServerConfig("../escape", "paper", "/tmp", ""))
			So(errors.Is(e, ErrBadManifest), ShouldBeTrue)
			So(cs.SetEnabled("nosuch", false), ShouldEqual, ErrNoServer)
		})

		Convey("Exports and imports", func() {
			out := filepath.Join(t.TempDir(), "export.yaml")
			So(cs.Export(out), ShouldBeNil)

			other, e := OpenConfigStore(t.TempDir(), logger(t))
			So(e, ShouldBeNil)
			n, e := other.Import(out)
			So(e, ShouldBeNil)
			So(n, ShouldEqual, 2)
			modded, e := other.Get("modded")
			So(e, ShouldBeNil)
			So(modded.Type, ShouldEqual, "forge")
			So(modded.MinMemory, ShouldEqual, "4G")

			n, e = other.Import(out)
			So(e, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(len(other.All()), ShouldEqual, 2)
		})
	})
}
