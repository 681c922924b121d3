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

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/rest"
)

// LogPanel shows the console of a server, or with no name the daemon's
// own log.  On a server console the operator can type lines for it.
type LogPanel struct {
	layout *views.BoxLayout
	text   *views.TextArea
	input  *views.Text
	info   *gamevisor.ServerStatus
	shown  *rest.LogInfo
	name   string
	typing bool
	line   []rune

	Panel
}

var inputStyle = tcell.StyleDefault.
	Foreground(tcell.ColorWhite).
	Background(tcell.ColorNavy)

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}
	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)

	p.input = views.NewText()
	p.input.SetStyle(inputStyle)

	p.layout = views.NewBoxLayout(views.Vertical)
	p.layout.AddWidget(p.text, 1.0)
	p.layout.AddWidget(p.input, 0.0)
	p.SetContent(p.layout)
	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

// editKey handles a key while a line is being typed.
func (p *LogPanel) editKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEsc:
		p.typing = false
		p.line = p.line[:0]
	case tcell.KeyEnter:
		p.app.SendInput(p.name, string(p.line))
		p.typing = false
		p.line = p.line[:0]
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(p.line) > 0 {
			p.line = p.line[:len(p.line)-1]
		}
	case tcell.KeyRune:
		p.line = append(p.line, ev.Rune())
	default:
		return false
	}
	p.showInput()
	return true
}

func (p *LogPanel) showInput() {
	if p.typing {
		p.input.SetText("> " + string(p.line) + "_")
	} else if p.name != "" && p.info != nil && p.info.Alive {
		p.input.SetText("[ENTER] to type a line for " + p.name)
	} else {
		p.input.SetText(" ")
	}
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if p.typing {
			return p.editKey(ev)
		}
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if p.info != nil && p.info.Alive {
				p.typing = true
				p.showInput()
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'C', 'c':
				// Already there.
				return true
			}
			if p.info != nil && serverKey(app, p.info, ev.Rune()) {
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) SetName(name string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.shown = nil
	p.typing = false
	p.line = p.line[:0]
	p.name = name
}

func formatRecord(r gamevisor.LogRecord) string {
	line := r.Time.Format("[15:04:05] ")
	switch r.Category {
	case gamevisor.CategoryError:
		line += "! "
	case gamevisor.CategoryWarning:
		line += "* "
	}
	return line + r.Text
}

// update is called from the event loop.
func (p *LogPanel) update() {
	words := []string{"[ESC] Main", "[H] Help"}
	if p.name == "" {
		p.SetTitle("Daemon Log")
		p.info = nil
	} else {
		p.SetTitle("Console of " + p.name)
		p.info, _ = p.app.GetItem(p.name)
	}
	loginfo, e := p.app.GetLog(p.name)

	switch {
	case loginfo == nil && e != nil:
		p.SetStatus(fmt.Sprintf("No data: %v", e), HealthError)
	case loginfo == nil:
		p.SetStatus("Loading ...", HealthNormal)
	case p.info != nil:
		_, h := serverStyle(p.info)
		p.SetStatus(fmt.Sprintf("%d lines", len(loginfo.Records)), h)
	default:
		p.SetStatus(fmt.Sprintf("%d lines", len(loginfo.Records)), HealthNormal)
	}

	if loginfo != nil && loginfo != p.shown {
		p.shown = loginfo
		lines := make([]string, 0, len(loginfo.Records))
		for _, r := range loginfo.Records {
			lines = append(lines, formatRecord(r))
		}
		p.text.SetLines(lines)
		if len(lines) > 0 {
			p.text.MakeVisible(0, len(lines)-1)
		}
	}
	if !p.typing {
		p.showInput()
	}

	if p.info != nil {
		words = append(words, "[I] Info")
		words = append(words, serverKeys(p.info)...)
	}
	p.SetKeys(words)
}
