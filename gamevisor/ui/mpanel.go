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
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/gamevisor/util"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// serverStyle colours a server line by its state.
func serverStyle(s *gamevisor.ServerStatus) (tcell.Style, Health) {
	switch util.Status(s) {
	case "running":
		return StyleGood, HealthGood
	case "crashed":
		return StyleError, HealthError
	case "restarting":
		return StyleWarn, HealthWarn
	}
	return StyleNormal, HealthNormal
}

// MainPanel lists the configured servers, one per line, and lets the
// operator act on the selected one.
type MainPanel struct {
	content  *views.CellView
	selected string
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	ids      []string

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) selection() *gamevisor.ServerStatus {
	if m.selected == "" {
		return nil
	}
	s, _ := m.App().GetItem(m.selected)
	return s
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	sel := m.selection()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if sel != nil {
				app.ShowInfo(sel.Config.ID)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog("")
				return true
			}
			if sel != nil && serverKey(app, sel, ev.Rune()) {
				return true
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// serverKey handles the keys that act on one server, in every panel
// that shows one.
func serverKey(app *App, s *gamevisor.ServerStatus, r rune) bool {
	id := s.Config.ID
	switch r {
	case 'I', 'i':
		app.ShowInfo(id)
	case 'C', 'c':
		if !s.Alive {
			return false
		}
		app.ShowLog(id)
	case 'S', 's':
		if s.Alive {
			app.StopServer(id)
		} else {
			app.StartServer(id)
		}
	case 'R', 'r':
		app.RestartServer(id)
	case 'E', 'e':
		if s.Config.Enabled {
			return false
		}
		app.EnableServer(id)
	case 'D', 'd':
		if !s.Config.Enabled {
			return false
		}
		app.DisableServer(id)
	case 'A', 'a':
		app.SetAutoRestart(id, !s.Config.AutoRestart)
	default:
		return false
	}
	return true
}

// serverKeys are the key bar words for serverKey.
func serverKeys(s *gamevisor.ServerStatus) []string {
	words := []string{}
	if s.Alive {
		words = append(words, "[C] Console", "[S] Stop", "[R] Restart")
	} else {
		words = append(words, "[S] Start")
	}
	if s.Config.Enabled {
		words = append(words, "[D] Disable")
	} else {
		words = append(words, "[E] Enable")
	}
	if s.Config.AutoRestart {
		words = append(words, "[A] No auto restart")
	} else {
		words = append(words, "[A] Auto restart")
	}
	return words
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return 0, StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.ids[y] == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	return m.width, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	m.curx = clamp(m.curx, m.width-1)
	m.cury = clamp(m.cury, m.height-1)
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.ids[m.cury]
	} else {
		m.selected = ""
	}
}

func clamp(v, max int) int {
	if v > max {
		v = max
	}
	if v < 0 {
		v = 0
	}
	return v
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It is called from the event loop.
func (m *MainPanel) update() {

	items, err := m.App().GetItems()
	if err != nil {
		m.SetStatus(fmt.Sprintf("Cannot load servers: %v", err), HealthError)
		m.lines, m.styles, m.ids = nil, nil, nil
		m.width, m.height = 0, 0
		m.selected = ""
		m.SetKeys([]string{"[Q] Quit", "[H] Help", "[L] Log"})
		return
	}

	lines := make([]string, 0, len(items))
	styles := make([]tcell.Style, 0, len(items))
	ids := make([]string, 0, len(items))
	counts := map[Health]int{}
	width := 0
	now := time.Now()

	// preserve the selected item, which may have moved
	found := false
	for i := range items {
		s := &items[i]
		up := ""
		if s.Alive {
			up = util.FormatDuration(util.Uptime(s, now))
		}
		line := fmt.Sprintf("%-20s %-10s %-10s %10s   %s",
			s.Config.ID, s.Config.Type, util.Status(s), up, util.Restarts(s))
		if len(line) > width {
			width = len(line)
		}
		style, h := serverStyle(s)
		counts[h]++
		if s.Config.ID == m.selected {
			m.cury = len(lines)
			found = true
		}
		lines = append(lines, line)
		styles = append(styles, style)
		ids = append(ids, s.Config.ID)
	}
	if !found {
		m.selected = ""
	}
	m.lines, m.styles, m.ids = lines, styles, ids
	m.width, m.height = width, len(lines)

	health := HealthNormal
	switch {
	case counts[HealthError] > 0:
		health = HealthError
	case counts[HealthWarn] > 0:
		health = HealthWarn
	case counts[HealthGood] > 0:
		health = HealthGood
	}
	m.SetStatus(fmt.Sprintf(
		"%6d Servers %6d Running %6d Restarting %6d Crashed",
		len(items), counts[HealthGood], counts[HealthWarn], counts[HealthError]),
		health)

	words := []string{"[Q] Quit", "[H] Help", "[L] Log"}
	if s := m.selection(); s != nil {
		words = append(words, "[I] Info")
		words = append(words, serverKeys(s)...)
	}
	m.SetKeys(words)
}
