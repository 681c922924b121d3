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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gdamore/gamevisor"
)

const helpText = `Commands:
  help                     this text
  list                     configured servers and their state
  start <id>               start a server
  stop <id>                stop a server ("stop", then the hard way)
  restart <id>             stop, then start a server
  send <id> <line>         send a line to a server
  attach <id>              talk to a server until "exit"
  add <id> <type> <dir>    configure a server
  remove <id>              forget a stopped server
  screen <cmd> [id]        main, list, create, switch, remove, status
  monitor [poll]           crash monitor state, or poll now
  quit                     shut everything down and exit
`

// console is the operator's main console.  Lines go to the selected
// screen first; what it does not take is a command.
type console struct {
	g           *gamevisor.Gamevisor
	src         gamevisor.LineSource
	interactive bool
}

func newConsole(g *gamevisor.Gamevisor, src gamevisor.LineSource, interactive bool) *console {
	return &console{g: g, src: src, interactive: interactive}
}

func (c *console) say(cat gamevisor.Category, format string, v ...any) {
	c.g.Console.Render(gamevisor.LogRecord{
		Time:     time.Now(),
		Text:     fmt.Sprintf(format, v...),
		Category: cat,
	})
}

func (c *console) check(e error, format string, v ...any) {
	if e != nil {
		c.say(gamevisor.CategoryError, "%s: %v", fmt.Sprintf(format, v...), e)
	}
}

// run reads commands until quit, end of input, or ctx is done.  It
// reports whether the operator asked to quit.
func (c *console) run(ctx context.Context) (bool, error) {
	if c.interactive {
		c.say(gamevisor.CategorySystem, "Type 'help' for commands")
	}
	for {
		line, e := c.src.ReadLine(ctx)
		switch {
		case e == nil:
		case errors.Is(e, io.EOF), errors.Is(e, gamevisor.ErrInterrupted):
			return false, nil
		default:
			return false, e
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if c.g.Screens.RouteInput(line) {
			continue
		}
		if c.command(ctx, strings.Fields(line), line) {
			return true, nil
		}
	}
}

// serve runs the console and calls stop when the operator quits.  End
// of input only stops the daemon when someone was typing.
func (c *console) serve(ctx context.Context, stop func(), logger *log.Logger) {
	quit, e := c.run(ctx)
	if e != nil && !errors.Is(e, context.Canceled) {
		logger.Printf("Console failed: %v", e)
	}
	if quit || c.interactive {
		stop()
	}
}

// command runs one command, and reports whether it was quit.
func (c *console) command(ctx context.Context, args []string, line string) bool {
	need := func(n int, usage string) bool {
		if len(args) < n {
			c.say(gamevisor.CategoryWarning, "Usage: %s", usage)
			return false
		}
		return true
	}
	srv := c.g.Servers
	switch strings.ToLower(args[0]) {
	case "help", "?":
		c.g.Console.Printf("%s", helpText)
	case "list", "ls":
		c.list()
	case "start":
		if need(2, "start <id>") {
			c.check(srv.StartServer(args[1]), "Cannot start %s", args[1])
		}
	case "stop":
		if need(2, "stop <id>") {
			c.check(srv.StopServer(args[1]), "Cannot stop %s", args[1])
		}
	case "restart":
		if need(2, "restart <id>") {
			if c.g.Supervisor.IsAlive(args[1]) {
				c.check(srv.StopServer(args[1]), "Cannot stop %s", args[1])
			}
			c.check(srv.StartServer(args[1]), "Cannot start %s", args[1])
		}
	case "send":
		if need(3, "send <id> <line>") {
			rest := strings.TrimSpace(strings.TrimPrefix(line, args[0]))
			text := strings.TrimSpace(strings.TrimPrefix(rest, args[1]))
			c.check(c.g.Supervisor.SendInput(args[1], text), "Cannot send to %s", args[1])
		}
	case "attach":
		if need(2, "attach <id>") {
			c.attach(ctx, args[1])
		}
	case "add":
		if need(4, "add <id> <type> <dir>") {
			cfg := gamevisor.NewServerConfig(args[1], args[2], args[3], "")
			if e := srv.Store().Add(cfg); e != nil {
				c.check(e, "Cannot add %s", args[1])
			} else {
				c.say(gamevisor.CategorySystem, "Added %s server '%s'",
					gamevisor.LookupServerType(args[2]).Name, args[1])
			}
		}
	case "remove", "rm":
		if need(2, "remove <id>") {
			if c.g.Supervisor.IsAlive(args[1]) {
				c.say(gamevisor.CategoryError, "Stop %s first", args[1])
			} else {
				c.check(srv.Store().Remove(args[1]), "Cannot remove %s", args[1])
			}
		}
	case "screen":
		c.g.Screens.Command(args[1:])
	case "monitor":
		if len(args) > 1 && args[1] == "poll" {
			c.g.Monitor.Poll()
		}
		c.monitor()
	case "quit", "shutdown":
		return true
	default:
		c.say(gamevisor.CategoryError, "Unknown command: %s (try 'help')", args[0])
	}
	return false
}

func (c *console) list() {
	st := c.g.Servers.Status()
	if len(st) == 0 {
		c.say(gamevisor.CategoryInfo, "No servers configured")
		return
	}
	c.say(gamevisor.CategorySystem, "Servers:")
	for _, s := range st {
		state, cat := "STOPPED", gamevisor.CategoryInfo
		switch {
		case s.Alive:
			state = fmt.Sprintf("RUNNING (pid %d, up %v)", s.Pid,
				time.Since(s.Started).Round(time.Second))
		case !s.Config.Enabled:
			state, cat = "DISABLED", gamevisor.CategoryWarning
		case s.Monitor != nil && s.Monitor.Disabled:
			state, cat = "CRASHED", gamevisor.CategoryError
		}
		flags := ""
		if s.Config.AutoStart {
			flags += " autostart"
		}
		if s.Config.AutoRestart {
			flags += " autorestart"
		}
		c.say(cat, "  %s (%s): %s%s", s.Config.ID,
			gamevisor.LookupServerType(s.Config.Type).Label(), state, flags)
	}
}

func (c *console) monitor() {
	st := c.g.Monitor.Status()
	cfg := c.g.Monitor.Config()
	c.say(gamevisor.CategorySystem, "Crash monitor: every %v, %d attempts, %v cool-down",
		cfg.Interval, cfg.MaxAttempts, cfg.Cooldown)
	for _, m := range st {
		state := "running"
		switch {
		case m.Disabled:
			state = "auto-restart disabled"
		case m.Pending:
			state = "restart pending"
		case m.Deferred:
			state = "restart deferred"
		case !m.Running:
			state = "down"
		}
		c.say(gamevisor.CategoryInfo, "  %s: %s, attempts %d/%d, crashes %d, recoveries %d",
			m.ID, state, m.Attempts, cfg.MaxAttempts, m.Crashes, m.Recoveries)
	}
}

// attach shows the server's screen and hands it our input until the
// operator types "exit" or it stops.
func (c *console) attach(ctx context.Context, id string) {
	if !c.g.Supervisor.IsAlive(id) {
		c.say(gamevisor.CategoryError, "Cannot attach: server '%s' is not running", id)
		return
	}
	if e := c.g.Screens.CreateScreen(id); e != nil && !errors.Is(e, gamevisor.ErrScreenExists) {
		return
	}
	if c.g.Screens.SwitchTo(id) != nil {
		return
	}
	c.say(gamevisor.CategorySystem, "Attached to %s, type '%s' to detach", id, gamevisor.ExitSentinel)
	e := c.g.Supervisor.Attach(ctx, id, c.src)
	c.check(e, "Attach to %s ended", id)
	if cur, ok := c.g.Screens.Current(); ok && cur == id {
		c.g.Screens.SwitchToMain()
	}
}
