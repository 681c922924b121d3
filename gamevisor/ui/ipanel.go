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
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/gamevisor/util"
)

// InfoPanel shows everything known about one server.
type InfoPanel struct {
	text *views.TextArea
	info *gamevisor.ServerStatus
	name string

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}
	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})
	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			}
			if p.info != nil && serverKey(app, p.info, ev.Rune()) {
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.info = nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func infoLines(s *gamevisor.ServerStatus, now time.Time) []string {
	c := &s.Config
	row := func(label string, format string, v ...interface{}) string {
		return fmt.Sprintf("%14s %s", label+":", fmt.Sprintf(format, v...))
	}
	lines := []string{
		row("Server", "%s", c.ID),
		row("Type", "%s", gamevisor.LookupServerType(c.Type).Label()),
		row("Directory", "%s", c.Directory),
		row("Status", "%s", util.Status(s)),
	}
	if s.Alive {
		lines = append(lines,
			row("Pid", "%d", s.Pid),
			row("Instance", "%s", s.Instance),
			row("Up", "%s (since %s)", util.FormatDuration(util.Uptime(s, now)),
				s.Started.Format(time.Stamp)))
	}
	lines = append(lines,
		row("Memory", "%s - %s", c.MinMemory, c.MaxMemory),
		row("Enabled", "%s", onOff(c.Enabled)),
		row("Auto start", "%s", onOff(c.AutoStart)),
		row("Auto restart", "%s", onOff(c.AutoRestart)))
	if c.Script != "" {
		lines = append(lines, row("Script", "%s", c.Script))
	}
	if len(c.Env) != 0 {
		lines = append(lines, row("Environment", "%s", strings.Join(c.Env, " ")))
	}
	if !c.LastStart.IsZero() {
		lines = append(lines, row("Last start", "%s", c.LastStart.Format(time.Stamp)))
	}
	if m := s.Monitor; m != nil {
		lines = append(lines, "",
			row("Crashes", "%d", m.Crashes),
			row("Recoveries", "%d", m.Recoveries),
			row("Restarts", "%s", util.Restarts(s)))
		if !m.LastAttempt.IsZero() {
			lines = append(lines, row("Last restart", "%s", m.LastAttempt.Format(time.Stamp)))
		}
		if m.Pending {
			lines = append(lines, row("Next", "restart pending"))
		} else if m.Deferred {
			lines = append(lines, row("Next", "restart deferred (cool-down)"))
		}
	}
	return lines
}

// update is called from the event loop.
func (p *InfoPanel) update() {
	s, e := p.app.GetItem(p.name)
	p.info = s
	p.SetTitle("Details for " + p.name)

	words := []string{"[ESC] Main", "[H] Help"}
	if s == nil {
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e), HealthError)
		} else {
			p.SetStatus("Loading...", HealthNormal)
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}
	_, h := serverStyle(s)
	p.SetStatus(util.Status(s), h)
	p.text.SetLines(infoLines(s, time.Now()))
	p.SetKeys(append(words, serverKeys(s)...))
}
