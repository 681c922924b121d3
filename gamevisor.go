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
	"io"
	"path/filepath"
)

// Gamevisor bundles the pieces wired together the usual way.
type Gamevisor struct {
	Supervisor *Supervisor
	Screens    *Multiplexer
	Monitor    *Monitor
	Servers    *Servers
	Console    *Console
}

// New builds a Gamevisor whose server manifests live in dir/servers and
// whose operator output goes to out.  The Restart, Targets, Disable,
// Alive and Notify hooks of mcfg are filled in unless already set.  The
// monitor is not started.
func New(name string, dir string, out io.Writer, mcfg MonitorConfig) (*Gamevisor, error) {
	sup := NewSupervisor(name)
	if dir == "" {
		dir = sup.BaseDir()
	}
	store, e := OpenConfigStore(filepath.Join(dir, "servers"), sup.Logger("config"))
	if e != nil {
		return nil, e
	}
	con := NewConsole(out)
	mux := NewMultiplexer(sup, con, sup.Logger("screen"))
	sup.SetBroadcaster(mux)

	srv := NewServers(sup, store, sup.Logger("servers"))
	srv.SetNotifier(mux)

	if mcfg.Alive == nil {
		mcfg.Alive = sup
	}
	if mcfg.Restart == nil {
		mcfg.Restart = srv.Restart
	}
	if mcfg.Targets == nil {
		mcfg.Targets = srv.RestartTargets
	}
	if mcfg.Disable == nil {
		mcfg.Disable = srv.DisableAutoRestart
	}
	if mcfg.Notify == nil {
		mcfg.Notify = mux
	}
	if mcfg.Logger == nil {
		mcfg.Logger = sup.Logger("monitor")
	}
	mon := NewMonitor(mcfg)
	srv.SetMonitor(mon)

	return &Gamevisor{
		Supervisor: sup,
		Screens:    mux,
		Monitor:    mon,
		Servers:    srv,
		Console:    con,
	}, nil
}

// Shutdown stops the monitor first, so that stopping the servers is not
// mistaken for crashes, then every process, then forgets the screens.
func (g *Gamevisor) Shutdown() {
	g.Monitor.Stop()
	g.Supervisor.Shutdown()
	g.Screens.Close()
}
