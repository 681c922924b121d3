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
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// ShutdownGrace is how long a server gets to act on "stop" before
	// it is stopped the hard way.
	ShutdownGrace = 10 * time.Second

	// ShutdownCommand is what game servers understand as "save and quit".
	ShutdownCommand = "stop"
)

// ServerType names a kind of game server and the script it ships with.
type ServerType struct {
	Name   string
	Jar    string
	Script string
}

var serverTypes = []ServerType{
	{"vanilla", "server.jar", "start"},
	{"spigot", "spigot.jar", "start"},
	{"paper", "paper.jar", "start"},
	{"velocity", "velocity.jar", "start"},
	{"bungeecord", "bungeecord.jar", "start"},
	{"forge", "forge.jar", "run"},
	{"fabric", "fabric-server-launch.jar", "start"},
	{"neoforge", "neoforge.jar", "run"},
	{"quilt", "quilt-server-launch.jar", "start"},
}

// LookupServerType finds a type by name, ignoring case.  Unknown names
// are vanilla.
func LookupServerType(name string) ServerType {
	for _, t := range serverTypes {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return serverTypes[0]
}

// ServerTypes returns the known types.
func ServerTypes() []ServerType {
	return append([]ServerType{}, serverTypes...)
}

func (t ServerType) IsProxy() bool {
	return t.Name == "velocity" || t.Name == "bungeecord"
}

func (t ServerType) IsModded() bool {
	switch t.Name {
	case "forge", "fabric", "neoforge", "quilt":
		return true
	}
	return false
}

// Label is the type name as shown to the operator, e.g. "velocity
// (proxy)".
func (t ServerType) Label() string {
	switch {
	case t.IsProxy():
		return t.Name + " (proxy)"
	case t.IsModded():
		return t.Name + " (modded)"
	}
	return t.Name
}

func scriptExt() string {
	if runtime.GOOS == "windows" {
		return ".bat"
	}
	return ".sh"
}

func (t ServerType) StartScript() string {
	return t.Script + scriptExt()
}

func scriptCandidates(t ServerType, custom string) []string {
	ext := scriptExt()
	names := []string{}
	if custom != "" {
		names = append(names, custom)
	}
	names = append(names, t.StartScript(), "start"+ext, "run"+ext)
	seen := map[string]bool{}
	rv := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			rv = append(rv, n)
		}
	}
	return rv
}

// ResolveStartCommand finds the script that starts a server of type typ
// in dir, preferring custom, and returns the command that runs it from
// dir.  On POSIX systems the script is run by bash, and made executable
// if it is not already.
func ResolveStartCommand(typ, dir, custom string) ([]string, error) {
	t := LookupServerType(typ)
	names := scriptCandidates(t, custom)
	for _, n := range names {
		path := filepath.Join(dir, n)
		st, e := os.Stat(path)
		if e != nil || st.IsDir() {
			continue
		}
		if runtime.GOOS == "windows" {
			return []string{"cmd", "/c", n}, nil
		}
		if st.Mode()&0111 == 0 {
			os.Chmod(path, st.Mode()|0111)
		}
		return []string{"bash", n}, nil
	}
	return nil, fmt.Errorf("%w in %s (looked for %s)", ErrNoStartScript, dir,
		strings.Join(names, ", "))
}

// ServerStatus joins a config with what the supervisor and the monitor
// know about it.
type ServerStatus struct {
	Config   ServerConfig   `json:"config"`
	Alive    bool           `json:"alive"`
	Pid      int            `json:"pid,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Started  time.Time      `json:"started,omitempty"`
	Monitor  *MonitorStatus `json:"monitor,omitempty"`
}

// Servers starts and stops configured game servers through the
// Supervisor, and is the restart callback of the Monitor.
type Servers struct {
	sup    *Supervisor
	store  *ConfigStore
	mon    *Monitor
	notify Notifier
	grace  time.Duration
	logger *log.Logger

	// stopping counts the deliberate stops in progress per id.  Those
	// ids are not restart targets.
	stopping map[string]int
	mx       sync.Mutex
}

func NewServers(sup *Supervisor, store *ConfigStore, logger *log.Logger) *Servers {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Servers{
		sup:    sup,
		store:  store,
		grace:    ShutdownGrace,
		logger:   logger,
		stopping: make(map[string]int),
	}
}

// SetMonitor connects the crash monitor, which is built after us since
// it calls back into Restart.
func (s *Servers) SetMonitor(m *Monitor) {
	s.mx.Lock()
	s.mon = m
	s.mx.Unlock()
}

func (s *Servers) SetNotifier(n Notifier) {
	s.mx.Lock()
	s.notify = n
	s.mx.Unlock()
}

// SetShutdownGrace changes how long StopServer waits after "stop".
func (s *Servers) SetShutdownGrace(d time.Duration) {
	s.mx.Lock()
	if d <= 0 {
		d = ShutdownGrace
	}
	s.grace = d
	s.mx.Unlock()
}

func (s *Servers) monitor() *Monitor {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.mon
}

func (s *Servers) tell(id string, cat Category, format string, v ...any) {
	s.mx.Lock()
	n := s.notify
	s.mx.Unlock()
	if n != nil {
		n.Notify(id, fmt.Sprintf(format, v...), cat)
	}
}

func (s *Servers) Store() *ConfigStore {
	return s.store
}

func (s *Servers) start(id string) error {
	cfg, e := s.store.Get(id)
	if e != nil {
		s.logger.Printf("Cannot start %s: %v", id, e)
		return e
	}
	if !cfg.Enabled {
		s.logger.Printf("Cannot start %s: disabled", id)
		return ErrDisabled
	}
	cmd, e := ResolveStartCommand(cfg.Type, cfg.Directory, cfg.Script)
	if e != nil {
		s.logger.Printf("Cannot start %s: %v", id, e)
		return e
	}
	env := append([]string{}, cfg.Env...)
	env = append(env,
		"GAMEVISOR_ID="+id,
		"GAMEVISOR_TYPE="+cfg.Type,
		"MIN_MEMORY="+cfg.MinMemory,
		"MAX_MEMORY="+cfg.MaxMemory)
	if e := s.sup.Start(id, ProcessSpec{Command: cmd, Env: env}, cfg.Directory); e != nil {
		return e
	}
	if e := s.store.Touch(id, time.Now()); e != nil {
		s.logger.Printf("Cannot record start of %s: %v", id, e)
	}
	t := LookupServerType(cfg.Type)
	s.tell(id, CategorySystem, "Started %s server '%s' using %s", t.Name, id, cmd[len(cmd)-1])
	if t.Name == "vanilla" {
		if _, e := os.Stat(filepath.Join(cfg.Directory, "eula.txt")); e != nil {
			s.tell(id, CategoryWarning, "Remember to accept the EULA in eula.txt")
		}
	}
	return nil
}

// StartServer starts a configured server and puts it under watch of the
// crash monitor.
func (s *Servers) StartServer(id string) error {
	if e := s.start(id); e != nil {
		return e
	}
	if m := s.monitor(); m != nil {
		m.RegisterRunning(id)
	}
	return nil
}

// Restart is the crash monitor's restart callback.  It leaves the
// monitor's bookkeeping alone, so that the restart budget holds.
func (s *Servers) Restart(id string) error {
	if s.sup.IsAlive(id) {
		return ErrAlreadyRunning
	}
	return s.start(id)
}

// hold takes id away from the crash monitor until the returned func is
// called, once the process is gone.  A poll running meanwhile may have
// picked the id up again, so it is forgotten at both ends.
func (s *Servers) hold(id string) func() {
	s.mx.Lock()
	s.stopping[id]++
	m := s.mon
	s.mx.Unlock()
	if m != nil {
		m.Unregister(id)
	}
	return func() {
		if m != nil {
			m.Unregister(id)
		}
		s.mx.Lock()
		if s.stopping[id]--; s.stopping[id] <= 0 {
			delete(s.stopping, id)
		}
		s.mx.Unlock()
	}
}

// StopServer asks a server to shut down with "stop", and stops it
// outright if it is still running after the grace period.  The exit is
// not taken for a crash.
func (s *Servers) StopServer(id string) error {
	if !s.sup.IsAlive(id) {
		s.logger.Printf("Cannot stop %s: not running", id)
		return ErrNotRunning
	}
	release := s.hold(id)
	defer release()

	s.mx.Lock()
	grace := s.grace
	s.mx.Unlock()

	s.tell(id, CategorySystem, "Stopping server '%s'", id)
	if e := s.sup.SendInput(id, ShutdownCommand); e != nil {
		s.logger.Printf("Cannot send %q to %s: %v", ShutdownCommand, id, e)
	}
	if s.sup.WaitExit(id, grace) {
		s.logger.Printf("%s shut down cleanly", id)
		return nil
	}
	s.logger.Printf("%s still running after %v, stopping", id, grace)
	if e := s.sup.Stop(id); e != nil && !errors.Is(e, ErrNotFound) {
		return e
	}
	return nil
}

// Kill stops a process at once, without asking it first.  As with
// StopServer, the crash monitor leaves it down.
func (s *Servers) Kill(id string) error {
	release := s.hold(id)
	defer release()
	return s.sup.Stop(id)
}

// StopAll asks every running configured server to shut down, all at
// once, and returns when they have.
func (s *Servers) StopAll() {
	var wg sync.WaitGroup
	for _, cfg := range s.store.All() {
		if !s.sup.IsAlive(cfg.ID) {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.StopServer(id)
		}(cfg.ID)
	}
	wg.Wait()
}

// AutoStart starts every enabled server marked for auto start, and
// returns the ids that started.
func (s *Servers) AutoStart() []string {
	var started []string
	for _, cfg := range s.store.AutoStartConfigs() {
		if s.sup.IsAlive(cfg.ID) {
			continue
		}
		if e := s.StartServer(cfg.ID); e != nil {
			s.logger.Printf("Auto start of %s failed: %v", cfg.ID, e)
			continue
		}
		started = append(started, cfg.ID)
	}
	s.logger.Printf("Auto started %d servers", len(started))
	return started
}

// RestartTargets lists the ids under restart policy, for the monitor.
func (s *Servers) RestartTargets() []string {
	cfgs := s.store.AutoRestartConfigs()
	ids := make([]string, 0, len(cfgs))
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, c := range cfgs {
		if s.stopping[c.ID] == 0 {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// DisableAutoRestart turns off the restart policy of id and saves it.
// The monitor calls it when the restart budget runs out.
func (s *Servers) DisableAutoRestart(id string) {
	if e := s.store.SetAutoRestart(id, false); e != nil {
		s.logger.Printf("Cannot disable auto restart of %s: %v", id, e)
		return
	}
	s.logger.Printf("Auto restart disabled for %s", id)
}

// Status reports on every configured server.
func (s *Servers) Status() []ServerStatus {
	cfgs := s.store.All()
	rv := make([]ServerStatus, 0, len(cfgs))
	m := s.monitor()
	for _, cfg := range cfgs {
		st := ServerStatus{Config: cfg}
		if i, e := s.sup.Info(cfg.ID); e == nil {
			st.Alive = i.Alive
			st.Pid = i.Pid
			st.Instance = i.Instance
			st.Started = i.Started
		}
		if m != nil {
			if ms, ok := m.StatusOf(cfg.ID); ok {
				st.Monitor = &ms
			}
		}
		rv = append(rv, st)
	}
	return rv
}
