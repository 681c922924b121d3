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

// Command gamevisor is the client of gamevisord.  With no subcommand it
// runs a full screen user interface; the subcommands are for scripts
// and quick checks.
//
// Subcommands are
//
//	servers                 - list the configured servers
//	status [<id> ...]       - one line of status per server
//	info <id>               - everything known about a server
//	start|stop|restart <id> - control a server
//	enable|disable <id>     - allow or refuse starting a server
//	autorestart <id> on|off - crash restart policy
//	send <id> <line>        - send a line to a server's console
//	log [-f] [<id>]         - console of a server, or the daemon log
//	screens                 - list server screens on the daemon
//	monitor [--poll]        - crash monitor state
//	add <id> <type> <dir>   - configure a server
//	remove <id>             - forget a stopped server
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/gamevisor/util"
	"github.com/gdamore/gamevisor/rest"
)

const defaultAddr = "http://127.0.0.1:8321"

// cli carries what every subcommand needs.
type cli struct {
	addr    string
	timeout time.Duration
	out     io.Writer
	client  *rest.Client
}

func (c *cli) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *cli) printf(format string, v ...interface{}) {
	fmt.Fprintf(c.out, format, v...)
}

func showStatus(w io.Writer, s *gamevisor.ServerStatus, now time.Time) {
	up := ""
	if s.Alive {
		up = util.FormatDuration(util.Uptime(s, now))
	}
	fmt.Fprintf(w, "%-20s %-10s %10s   %s\n", s.Config.ID,
		util.Status(s), up, util.Restarts(s))
}

func showInfo(w io.Writer, s *gamevisor.ServerStatus) {
	c := &s.Config
	fmt.Fprintf(w, "Server:       %s\n", c.ID)
	fmt.Fprintf(w, "Type:         %s\n", c.Type)
	fmt.Fprintf(w, "Directory:    %s\n", c.Directory)
	fmt.Fprintf(w, "Status:       %s\n", util.Status(s))
	if s.Alive {
		fmt.Fprintf(w, "Pid:          %d\n", s.Pid)
		fmt.Fprintf(w, "Instance:     %s\n", s.Instance)
		fmt.Fprintf(w, "Since:        %v\n", s.Started.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Memory:       %s - %s\n", c.MinMemory, c.MaxMemory)
	fmt.Fprintf(w, "Enabled:      %v\n", c.Enabled)
	fmt.Fprintf(w, "Auto start:   %v\n", c.AutoStart)
	fmt.Fprintf(w, "Auto restart: %v\n", c.AutoRestart)
	if m := s.Monitor; m != nil {
		fmt.Fprintf(w, "Crashes:      %d\n", m.Crashes)
		fmt.Fprintf(w, "Restarts:     %s\n", util.Restarts(s))
	}
}

func printRecords(w io.Writer, recs []gamevisor.LogRecord) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s %s\n", r.Time.Format(time.StampMilli), r.Text)
	}
}

// simple makes a subcommand that calls fn with the context and its
// arguments.
func (c *cli) simple(use, short string, nargs int, fn func(ctx context.Context, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			return fn(ctx, args)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [id...]",
		Short: "Show the status of servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			items, e := c.client.Servers(ctx)
			if e != nil {
				return e
			}
			util.SortServers(items)
			want := map[string]bool{}
			for _, a := range args {
				want[a] = true
			}
			now := time.Now()
			for i := range items {
				if len(want) == 0 || want[items[i].Config.ID] {
					showStatus(c.out, &items[i], now)
					delete(want, items[i].Config.ID)
				}
			}
			if len(want) != 0 {
				missing := make([]string, 0, len(want))
				for id := range want {
					missing = append(missing, id)
				}
				sort.Strings(missing)
				return fmt.Errorf("%s: %w", strings.Join(missing, ", "), gamevisor.ErrNoServer)
			}
			return nil
		},
	}
}

func (c *cli) logCmd() *cobra.Command {
	follow := false
	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "Show the console of a server, or the daemon log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var info *rest.LogInfo
			var e error
			if len(args) == 0 {
				info, e = c.client.GetLog(ctx)
			} else {
				if e = c.client.CreateScreen(ctx, args[0]); e != nil && !conflict(e) {
					return e
				}
				info, e = c.client.GetHistory(ctx, args[0])
			}
			if e != nil {
				return e
			}
			printRecords(c.out, info.Records)
			for follow {
				last := info
				if len(args) == 0 {
					info, e = c.client.WatchLog(ctx, info)
				} else {
					info, e = c.client.WatchHistory(ctx, args[0], info)
				}
				if e != nil {
					return e
				}
				if info != last {
					printRecords(c.out, newRecords(last.Records, info.Records))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	return cmd
}

// newRecords returns what in cur came after the last record of old.
func newRecords(old, cur []gamevisor.LogRecord) []gamevisor.LogRecord {
	if len(old) == 0 {
		return cur
	}
	last := old[len(old)-1].Id
	i := sort.Search(len(cur), func(i int) bool { return cur[i].Id > last })
	return cur[i:]
}

func conflict(e error) bool {
	re, ok := e.(*rest.Error)
	return ok && re.Code == 409
}

func (c *cli) monitorCmd() *cobra.Command {
	poll := false
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show the crash monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			var st []gamevisor.MonitorStatus
			var e error
			if poll {
				st, e = c.client.PollMonitor(ctx)
			} else {
				st, e = c.client.Monitor(ctx)
			}
			if e != nil {
				return e
			}
			for _, m := range st {
				state := "running"
				switch {
				case m.Disabled:
					state = "gave up"
				case m.Pending:
					state = "restart pending"
				case m.Deferred:
					state = "restart deferred"
				case !m.Running:
					state = "down"
				}
				c.printf("%-20s %-16s attempts %d crashes %d recoveries %d\n",
					m.ID, state, m.Attempts, m.Crashes, m.Recoveries)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", false, "run a monitor cycle first")
	return cmd
}

func (c *cli) commands() []*cobra.Command {
	cl := func() *rest.Client { return c.client }
	return []*cobra.Command{
		c.simple("servers", "List configured servers", 0, func(ctx context.Context, args []string) error {
			items, e := cl().Servers(ctx)
			if e != nil {
				return e
			}
			ids := make([]string, 0, len(items))
			for _, s := range items {
				ids = append(ids, s.Config.ID)
			}
			sort.Strings(ids)
			for _, id := range ids {
				c.printf("%s\n", id)
			}
			return nil
		}),
		c.statusCmd(),
		c.simple("info <id>", "Show details of a server", 1, func(ctx context.Context, args []string) error {
			s, e := cl().Server(ctx, args[0])
			if e != nil {
				return e
			}
			showInfo(c.out, s)
			return nil
		}),
		c.simple("start <id>", "Start a server", 1, func(ctx context.Context, args []string) error {
			return cl().StartServer(ctx, args[0])
		}),
		c.simple("stop <id>", "Stop a server", 1, func(ctx context.Context, args []string) error {
			return cl().StopServer(ctx, args[0])
		}),
		c.simple("restart <id>", "Stop, then start a server", 1, func(ctx context.Context, args []string) error {
			if e := cl().StopServer(ctx, args[0]); e != nil && !conflict(e) {
				return e
			}
			return cl().StartServer(ctx, args[0])
		}),
		c.simple("enable <id>", "Allow a server to start", 1, func(ctx context.Context, args []string) error {
			return cl().EnableServer(ctx, args[0])
		}),
		c.simple("disable <id>", "Refuse to start a server", 1, func(ctx context.Context, args []string) error {
			return cl().DisableServer(ctx, args[0])
		}),
		c.simple("autorestart <id> on|off", "Set the crash restart policy", 2, func(ctx context.Context, args []string) error {
			switch strings.ToLower(args[1]) {
			case "on", "true", "yes":
				return cl().SetAutoRestart(ctx, args[0], true)
			case "off", "false", "no":
				return cl().SetAutoRestart(ctx, args[0], false)
			}
			return fmt.Errorf("want on or off, not %q", args[1])
		}),
		{
			Use:   "send <id> <line>",
			Short: "Send a line to a server's console",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := c.ctx()
				defer cancel()
				return cl().SendInput(ctx, args[0], strings.Join(args[1:], " "))
			},
		},
		c.logCmd(),
		c.simple("screens", "List server screens", 0, func(ctx context.Context, args []string) error {
			scrs, e := cl().Screens(ctx)
			if e != nil {
				return e
			}
			for _, s := range scrs {
				state := "RUNNING"
				if !s.Alive {
					state = "STOPPED"
				}
				cur := ""
				if s.Current {
					cur = " (current)"
				}
				c.printf("%-20s %-8s %4d/%d lines%s\n", s.ID, state, s.Lines, s.Cap, cur)
			}
			return nil
		}),
		c.monitorCmd(),
		c.simple("add <id> <type> <dir>", "Configure a server", 3, func(ctx context.Context, args []string) error {
			return cl().AddServer(ctx, gamevisor.NewServerConfig(args[0], args[1], args[2], ""))
		}),
		c.simple("remove <id>", "Forget a stopped server", 1, func(ctx context.Context, args []string) error {
			return cl().RemoveServer(ctx, args[0])
		}),
		{
			Use:   "ui",
			Short: "Run the full screen interface",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return doUI(c.client, c.addr)
			},
		},
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	cmd := &cobra.Command{
		Use:           "gamevisor",
		Short:         "Control game servers run by gamevisord",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.client = rest.NewClient(nil, c.addr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return doUI(c.client, c.addr)
		},
	}
	addr := defaultAddr
	if env := os.Getenv("GAMEVISOR_ADDR"); env != "" {
		addr = env
	}
	cmd.PersistentFlags().StringVarP(&c.addr, "addr", "a", addr, "gamevisord address")
	cmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "how long to wait for the daemon")
	cmd.AddCommand(c.commands()...)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if e := newRootCmd(os.Stdout).ExecuteContext(ctx); e != nil {
		fmt.Fprintln(os.Stderr, "gamevisor:", e)
		os.Exit(1)
	}
}
