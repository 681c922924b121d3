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
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

var (
	barStyle = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barAltStyle = tcell.StyleDefault.
			Foreground(tcell.ColorNavy).
			Background(tcell.ColorSilver)
	keyStyle = barAltStyle.Bold(true)
)

// TitleBar shows what we are looking at in the middle, and who we are
// on the right.
type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SimpleStyledTextBar.SetStyle(barStyle)
		for _, reg := range []func(rune, tcell.Style){
			tb.RegisterLeftStyle, tb.RegisterCenterStyle, tb.RegisterRightStyle,
		} {
			reg('N', barStyle)
			reg('A', barAltStyle)
		}
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// Health is how a StatusBar colours itself.
type Health int

const (
	HealthNormal Health = iota
	HealthGood
	HealthWarn
	HealthError
)

var healthStyles = map[Health]tcell.Style{
	HealthNormal: barStyle,
	HealthGood: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorGreen).
		Bold(true),
	HealthWarn: tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorYellow),
	HealthError: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorMaroon).
		Bold(true),
}

// StatusBar is like a titlebar, but its colour tells the health of
// what is shown, red for crashed servers and so forth.
type StatusBar struct {
	once   sync.Once
	text   string
	health Health
	views.SimpleStyledTextBar
}

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetHealth(HealthNormal)
	})
}

func (sb *StatusBar) SetHealth(h Health) {
	sb.health = h
	style := healthStyles[h]
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.RegisterLeftStyle('N', style)
	sb.SetLeft(sb.text)
}

func (sb *StatusBar) SetText(text string) {
	sb.text = strings.ReplaceAll(text, "%", "%%")
	sb.SetLeft(sb.text)
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}

// KeyBar lists the keys that work, with the key names highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barStyle)
		k.RegisterLeftStyle('N', barStyle)
		k.RegisterLeftStyle('A', keyStyle)
	})
}

// markup turns "[Q] Quit" into the bar's style markup, with the text
// between the brackets in the alternate style.
func markup(word string) string {
	var b strings.Builder
	for _, r := range word {
		switch r {
		case '%':
			b.WriteString("%%")
		case '[':
			b.WriteString("[%A")
		case ']':
			b.WriteString("%N]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (k *KeyBar) SetKeys(words []string) {
	marked := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			marked = append(marked, markup(w))
		}
	}
	k.SetLeft(strings.Join(marked, " "))
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}
