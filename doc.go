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

// Package gamevisor supervises long running game server processes on a
// single host.  It is similar in spirit to screen(1) plus a watchdog:
// every server runs as a child of the Supervisor, which owns its process
// handle and its standard streams; a Multiplexer gives each server an
// attachable virtual screen with bounded scrollback; and a Monitor polls
// liveness and restarts servers that crash, within a budget.
//
// Servers and ConfigStore sit on top of these, turning persisted server
// manifests (JSON, YAML or TOML) into start commands, and the rest
// package exposes the lot over HTTP.
//
// The usual wiring is done by New:
//
//	g, err := gamevisor.New("myhost", "/var/lib/gamevisor", os.Stdout, gamevisor.MonitorConfig{})
//	...
//	g.Servers.AutoStart()
//	g.Monitor.Start()
//	defer g.Shutdown()
package gamevisor
