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
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/gamevisor/util"
	"github.com/gdamore/gamevisor/rest"
)

// noticeTime is how long the outcome of an action stays in the status
// bar.
const noticeTime = 5 * time.Second

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	client    *rest.Client
	logger    *log.Logger
	err       error
	items     []gamevisor.ServerStatus
	logName   string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	notice    string
	noticeAt  time.Time
	mx        sync.Mutex

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

// ShowLog shows the screen of a server, creating it if need be, or the
// daemon's own log for the empty name.
func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.logInfo = nil
	a.logErr = nil
	a.logName = name
	a.logCancel = cancel
	a.log.SetName(name)
	go a.refreshLog(ctx, name)

	a.show(a.log)
}

func (a *App) ShowMain() {
	if a.logCancel != nil {
		a.logCancel()
		a.logCancel = nil
	}
	a.show(a.main)
}

// do runs an action against the daemon in the background, so that slow
// ones (stopping a server takes a while) do not freeze the screen.  Its
// outcome is shown as a notice.
func (a *App) do(what string, fn func(ctx context.Context) error) {
	a.setNotice(what + " ...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if e := fn(ctx); e != nil {
			a.Logf("%s failed: %v", what, e)
			a.setNotice(fmt.Sprintf("%s failed: %v", what, e))
		} else {
			a.setNotice(what + " done")
		}
		a.app.Update()
	}()
}

func (a *App) StartServer(name string) {
	a.do("Starting "+name, func(ctx context.Context) error {
		return a.client.StartServer(ctx, name)
	})
}

func (a *App) StopServer(name string) {
	a.do("Stopping "+name, func(ctx context.Context) error {
		return a.client.StopServer(ctx, name)
	})
}

func (a *App) RestartServer(name string) {
	a.do("Restarting "+name, func(ctx context.Context) error {
		if e := a.client.StopServer(ctx, name); e != nil && !conflict(e) {
			return e
		}
		return a.client.StartServer(ctx, name)
	})
}

func (a *App) EnableServer(name string) {
	a.do("Enabling "+name, func(ctx context.Context) error {
		return a.client.EnableServer(ctx, name)
	})
}

func (a *App) DisableServer(name string) {
	a.do("Disabling "+name, func(ctx context.Context) error {
		return a.client.DisableServer(ctx, name)
	})
}

func (a *App) SetAutoRestart(name string, on bool) {
	what := "Turning off auto restart of " + name
	if on {
		what = "Turning on auto restart of " + name
	}
	a.do(what, func(ctx context.Context) error {
		return a.client.SetAutoRestart(ctx, name, on)
	})
}

func (a *App) SendInput(name string, line string) {
	a.do("Sending to "+name, func(ctx context.Context) error {
		return a.client.SendInput(ctx, name, line)
	})
}

func conflict(e error) bool {
	var re *rest.Error
	return errors.As(e, &re) && re.Code == 409
}

func (a *App) setNotice(text string) {
	a.mx.Lock()
	a.notice = text
	a.noticeAt = time.Now()
	a.mx.Unlock()
}

// Notice is the outcome of the last action, while it is fresh.
func (a *App) Notice() string {
	a.mx.Lock()
	defer a.mx.Unlock()
	if time.Since(a.noticeAt) > noticeTime {
		a.notice = ""
	}
	return a.notice
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) GetAppName() string {
	return "Gamevisor v1.0"
}

func NewApp(client *rest.Client, url string) *App {

	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.panel = app.main
	return app
}

// refresh keeps the app items current.  The process table is long
// polled, but a poll also ends every few seconds so that changes that
// do not touch it, such as monitor state, still show up.
func (a *App) refresh() {
	client := a.client
	etag := ""
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		items, e := client.Servers(ctx)
		cancel()
		if e == nil {
			util.SortServers(items)
		}

		a.app.PostFunc(func() {
			a.items = items
			a.err = e
			a.app.Update()
		})
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		ntag, e := client.Watch(ctx, etag)
		cancel()
		switch {
		case e == nil:
			etag = ntag
		case errors.Is(e, context.DeadlineExceeded):
		default:
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog(ctx context.Context, name string) {
	var info *rest.LogInfo
	var e error
	for ctx.Err() == nil {
		switch {
		case name == "":
			info, e = a.client.WatchLog(ctx, info)
		case info == nil:
			e = a.client.CreateScreen(ctx, name)
			if e == nil || conflict(e) {
				info, e = a.client.GetHistory(ctx, name)
			}
		default:
			info, e = a.client.WatchHistory(ctx, name, info)
		}
		if ctx.Err() != nil {
			return
		}
		got, err := info, e
		a.app.PostFunc(func() {
			if a.logName == name {
				if got != nil {
					a.logInfo = got
				}
				a.logErr = err
				a.app.Update()
			}
		})
		if e != nil {
			info = nil
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (a *App) GetItems() ([]gamevisor.ServerStatus, error) {
	return a.items, a.err
}

func (a *App) GetItem(name string) (*gamevisor.ServerStatus, error) {
	if a.err != nil {
		return nil, a.err
	}
	for i := range a.items {
		if a.items[i].Config.ID == name {
			return &a.items[i], nil
		}
	}
	return nil, errors.New("Server not found")
}

func (a *App) GetLog(name string) (*rest.LogInfo, error) {
	if a.logName == name {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh()
	go func() {
		// Give us periodic updates
		for {
			a.app.Update()
			time.Sleep(time.Second)
		}
	}()
	a.Logf("Starting app loop")
	return a.app.Run()
}
