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
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Renderer displays screen lines to the operator.
type Renderer interface {
	Render(rec LogRecord)
}

// Console is the operator's terminal.  Each line is prefixed with a
// dimmed [HH:MM:SS] stamp and coloured according to its category.  When
// w is not a terminal the colours drop out.
type Console struct {
	w      io.Writer
	stamp  lipgloss.Style
	styles map[Category]lipgloss.Style
	mx     sync.Mutex
}

func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:     w,
		stamp: r.NewStyle().Foreground(lipgloss.Color("8")),
		styles: map[Category]lipgloss.Style{
			CategoryInfo:    r.NewStyle(),
			CategoryError:   r.NewStyle().Foreground(lipgloss.Color("9")),
			CategoryWarning: r.NewStyle().Foreground(lipgloss.Color("11")),
			CategoryInput:   r.NewStyle().Foreground(lipgloss.Color("12")),
			CategorySystem:  r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		},
	}
}

func (c *Console) Render(rec LogRecord) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	style, ok := c.styles[rec.Category]
	if !ok {
		style = c.styles[CategoryInfo]
	}
	c.mx.Lock()
	fmt.Fprintf(c.w, "%s%s\n",
		c.stamp.Render(rec.Time.Format("[15:04:05] ")),
		style.Render(rec.Text))
	c.mx.Unlock()
}

// Printf renders an un-stamped line, for command output.
func (c *Console) Printf(format string, v ...any) {
	c.mx.Lock()
	fmt.Fprintf(c.w, format, v...)
	c.mx.Unlock()
}
