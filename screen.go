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
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// ScreenHistorySize is the scrollback kept per screen.
	ScreenHistorySize = 100

	// ReplayCount is how much scrollback is shown on switching.
	ReplayCount = 10

	// MainConsole is how the empty selection is described to people.
	MainConsole = "main console"
)

// ProcessControl is the part of the Supervisor the multiplexer needs.
type ProcessControl interface {
	IsAlive(id string) bool
	SendInput(id string, line string) error
}

// Screen is a virtual terminal for one process.  It may outlive the
// process, and can be recreated later.
type Screen struct {
	id      string
	created time.Time
	hist    *Log
}

type ScreenInfo struct {
	ID      string    `json:"id"`
	Alive   bool      `json:"alive"`
	Current bool      `json:"current"`
	Lines   int       `json:"lines"`
	Cap     int       `json:"capacity"`
	Created time.Time `json:"created"`
}

// Multiplexer keeps a Screen per process and a single selection, which
// is either the main console ("") or one screen.  Lines broadcast for
// the selected screen are also rendered for the operator.
type Multiplexer struct {
	pc        ProcessControl
	out       Renderer
	screens   map[string]*Screen
	listeners map[string]bool
	current   string
	logger    *log.Logger
	mx        sync.Mutex
}

func (m *Multiplexer) lock() {
	m.mx.Lock()
}

func (m *Multiplexer) unlock() {
	m.mx.Unlock()
}

// say renders a notice for the operator.
func (m *Multiplexer) say(cat Category, format string, v ...any) {
	m.out.Render(LogRecord{
		Time:     time.Now(),
		Text:     fmt.Sprintf(format, v...),
		Category: cat,
	})
}

func describe(id string) string {
	if id == "" {
		return MainConsole
	}
	return id
}

// CreateScreen makes a screen for a running process and starts
// collecting its output.
func (m *Multiplexer) CreateScreen(id string) error {
	m.lock()
	defer m.unlock()
	if _, ok := m.screens[id]; ok {
		m.say(CategoryWarning, "Screen for server '%s' already exists", id)
		return ErrScreenExists
	}
	if !m.pc.IsAlive(id) {
		m.say(CategoryError, "Cannot create screen: server '%s' is not running", id)
		return ErrNotRunning
	}
	m.screens[id] = &Screen{
		id:      id,
		created: time.Now(),
		hist:    NewLog(ScreenHistorySize),
	}
	m.listeners[id] = true
	m.logger.Printf("Created screen for %s", id)
	m.say(CategorySystem, "Created screen for server: %s", id)
	return nil
}

// RemoveScreen drops the screen and its history.  If it was selected,
// the selection returns to the main console.
func (m *Multiplexer) RemoveScreen(id string) error {
	m.lock()
	defer m.unlock()
	if _, ok := m.screens[id]; !ok {
		m.say(CategoryError, "No screen exists for server: %s", id)
		return ErrNoScreen
	}
	delete(m.listeners, id)
	delete(m.screens, id)
	if m.current == id {
		m.switchToMain()
	}
	m.logger.Printf("Removed screen for %s", id)
	m.say(CategoryWarning, "Removed screen for server: %s", id)
	return nil
}

// SwitchTo selects the screen for id and replays its recent history.
// The selection is unchanged when the screen is missing or its process
// is not running.
func (m *Multiplexer) SwitchTo(id string) error {
	m.lock()
	defer m.unlock()
	scr, ok := m.screens[id]
	if !ok {
		m.say(CategoryError, "No screen exists for server: %s", id)
		m.say(CategoryInfo, "Use 'screen create %s' first", id)
		return ErrNoScreen
	}
	if !m.pc.IsAlive(id) {
		m.say(CategoryError, "Cannot switch to screen: server '%s' is not running", id)
		return ErrNotRunning
	}
	prev := m.current
	m.current = id

	m.say(CategorySystem, "=== Screen: %s ===", id)
	m.say(CategoryInfo, "Type 'exit' or 'screen main' to return to the main console")
	for _, rec := range scr.hist.Tail(ReplayCount) {
		m.out.Render(rec)
	}
	m.say(CategorySystem, "Switched from %s to %s", describe(prev), id)
	return nil
}

func (m *Multiplexer) switchToMain() {
	if m.current == "" {
		m.say(CategoryWarning, "Already in main console")
		return
	}
	prev := m.current
	m.current = ""
	m.say(CategorySystem, "=== Main console ===")
	m.say(CategoryInfo, "Use 'screen list' to see server screens")
	m.say(CategorySystem, "Switched from %s to main console", prev)
}

// SwitchToMain returns the selection to the main console.
func (m *Multiplexer) SwitchToMain() {
	m.lock()
	m.switchToMain()
	m.unlock()
}

// Current returns the selected screen, or false for the main console.
func (m *Multiplexer) Current() (string, bool) {
	m.lock()
	defer m.unlock()
	return m.current, m.current != ""
}

// Broadcast implements Broadcaster.  The line goes into the history of
// the screen for id, if there is one, and is rendered if that screen is
// selected.
func (m *Multiplexer) Broadcast(id string, text string, cat Category) {
	m.lock()
	defer m.unlock()
	if !m.listeners[id] {
		return
	}
	scr := m.screens[id]
	if scr == nil {
		return
	}
	rec := scr.hist.Append(text, cat)
	if m.current == id {
		m.out.Render(rec)
	}
}

// Notify is Broadcast for supervisor events that the operator must see
// even on the main console, such as crashes and restarts.
func (m *Multiplexer) Notify(id string, text string, cat Category) {
	m.Broadcast(id, text, cat)
	m.lock()
	defer m.unlock()
	if m.current != id {
		m.out.Render(LogRecord{
			Time:     time.Now(),
			Text:     "[" + id + "] " + text,
			Category: cat,
		})
	}
}

// RouteInput offers a line typed by the operator to the selected screen.
// It returns true if the line was consumed.  On the main console nothing
// is consumed.  Lines starting with "screen " are screen commands, and
// "exit" or "detach" go back to the main console.  Anything else is sent
// to the selected process; if that fails the caller should treat the
// line as an ordinary command.
func (m *Multiplexer) RouteInput(line string) bool {
	id, ok := m.Current()
	if !ok {
		return false
	}
	if strings.HasPrefix(line, "screen ") {
		m.Command(strings.Fields(line[len("screen "):]))
		return true
	}
	if line == "exit" || line == "detach" {
		m.SwitchToMain()
		return true
	}
	if e := m.pc.SendInput(id, line); e != nil {
		return false
	}
	m.Broadcast(id, "[INPUT] "+line, CategoryInput)
	return true
}

// Command runs a screen sub-command: main, list, create, switch (or s),
// remove, status.
func (m *Multiplexer) Command(args []string) {
	if len(args) == 0 {
		m.say(CategoryWarning, "Usage: screen <main|list|create|switch|remove|status> [server-id]")
		return
	}
	need := func(usage string) (string, bool) {
		if len(args) < 2 {
			m.say(CategoryWarning, "Usage: screen %s <server-id>", usage)
			return "", false
		}
		return args[1], true
	}
	switch strings.ToLower(args[0]) {
	case "main":
		m.SwitchToMain()
	case "list":
		m.list()
	case "status":
		m.status()
	case "create":
		if id, ok := need("create"); ok {
			m.CreateScreen(id)
		}
	case "switch", "s":
		if id, ok := need("switch"); ok {
			m.SwitchTo(id)
		}
	case "remove":
		if id, ok := need("remove"); ok {
			m.RemoveScreen(id)
		}
	default:
		m.say(CategoryError, "Unknown screen command: %s", args[0])
	}
}

func (m *Multiplexer) list() {
	infos := m.Screens()
	if len(infos) == 0 {
		m.say(CategoryInfo, "No server screens exist")
		return
	}
	m.say(CategorySystem, "Server screens:")
	for _, i := range infos {
		state := "RUNNING"
		cat := CategoryInfo
		if !i.Alive {
			state = "STOPPED"
			cat = CategoryError
		}
		cur := ""
		if i.Current {
			cur = " (current)"
		}
		m.say(cat, "  %s: %s%s", i.ID, state, cur)
	}
	id, _ := m.Current()
	m.say(CategoryInfo, "Currently viewing: %s", describe(id))
}

func (m *Multiplexer) status() {
	infos := m.Screens()
	id, _ := m.Current()
	m.say(CategorySystem, "Screen status:")
	m.say(CategoryInfo, "  Current screen: %s", describe(id))
	m.say(CategoryInfo, "  Active screens: %d", len(infos))
	if len(infos) != 0 {
		ids := make([]string, 0, len(infos))
		for _, i := range infos {
			ids = append(ids, i.ID)
		}
		m.say(CategoryInfo, "  Screens: %s", strings.Join(ids, ", "))
	}
}

// Screens returns every screen, sorted by id.
func (m *Multiplexer) Screens() []ScreenInfo {
	m.lock()
	rv := make([]ScreenInfo, 0, len(m.screens))
	for id, scr := range m.screens {
		rv = append(rv, ScreenInfo{
			ID:      id,
			Current: id == m.current,
			Lines:   scr.hist.Len(),
			Cap:     scr.hist.Cap(),
			Created: scr.created,
		})
	}
	m.unlock()
	// Liveness is asked for outside our lock.
	for i := range rv {
		rv[i].Alive = m.pc.IsAlive(rv[i].ID)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv
}

func (m *Multiplexer) screen(id string) (*Screen, error) {
	m.lock()
	defer m.unlock()
	scr := m.screens[id]
	if scr == nil {
		return nil, ErrNoScreen
	}
	return scr, nil
}

// History returns the scrollback of a screen, along with an id usable
// as an etag.  If last matches the current id, no records are returned.
func (m *Multiplexer) History(id string, last int64) ([]LogRecord, int64, error) {
	scr, e := m.screen(id)
	if e != nil {
		return nil, 0, e
	}
	recs, next := scr.hist.GetRecords(last)
	return recs, next, nil
}

// WatchHistory waits for the scrollback of a screen to move past last.
func (m *Multiplexer) WatchHistory(id string, last int64, expire time.Duration) (int64, error) {
	scr, e := m.screen(id)
	if e != nil {
		return 0, e
	}
	return scr.hist.Watch(last, expire), nil
}

// Close forgets every screen and returns to the main console.  The
// processes themselves are left alone.
func (m *Multiplexer) Close() {
	m.lock()
	m.screens = make(map[string]*Screen)
	m.listeners = make(map[string]bool)
	m.current = ""
	m.unlock()
}

// NewMultiplexer returns a Multiplexer rendering to out.  The caller
// must still hand it to Supervisor.SetBroadcaster.
func NewMultiplexer(pc ProcessControl, out Renderer, logger *log.Logger) *Multiplexer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Multiplexer{
		pc:        pc,
		out:       out,
		screens:   make(map[string]*Screen),
		listeners: make(map[string]bool),
		logger:    logger,
	}
}
