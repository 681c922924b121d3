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

// Command gamevisord runs game servers under supervision: it starts the
// configured servers, restarts them when they crash, serves the REST API
// used by the gamevisor client, and offers a main console on its
// standard input.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/term"

	"github.com/gdamore/gamevisor"
	"github.com/gdamore/gamevisor/rest"
)

const lockName = "gamevisord.lock"

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "gamevisord",
		Short:         "Supervise game servers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, e := configure(cmd, f)
			if e != nil {
				return e
			}
			return run(cfg)
		},
	}
	f.register(cmd)
	return cmd
}

func run(cfg Config) error {
	lock := flock.New(filepath.Join(cfg.Dir, lockName))
	locked, e := lock.TryLock()
	if e != nil {
		return fmt.Errorf("acquiring lock: %w", e)
	}
	if !locked {
		return fmt.Errorf("another gamevisord is using %s", cfg.Dir)
	}
	defer lock.Unlock()

	g, e := gamevisor.New(cfg.Name, cfg.Dir, os.Stdout, cfg.monitorConfig())
	if e != nil {
		return e
	}
	g.Supervisor.SetStopTimeout(cfg.StopTimeout.Duration)
	g.Servers.SetShutdownGrace(cfg.ShutdownGrace.Duration)
	logger := g.Supervisor.Logger("gamevisord")

	ln, e := net.Listen("tcp", cfg.Addr)
	if e != nil {
		g.Shutdown()
		return e
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	hs := &http.Server{
		Handler:           rest.NewHandler(g),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if e := hs.Serve(ln); e != nil && !errors.Is(e, http.ErrServerClosed) {
			logger.Printf("API server failed: %v", e)
		}
	}()
	logger.Printf("%s serving %s from %s", cfg.Name, ln.Addr(), cfg.Dir)

	g.Servers.AutoStart()
	if cfg.Monitor.Enabled {
		g.Monitor.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if !cfg.NoConsole {
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		con := newConsole(g, gamevisor.NewReaderSource(os.Stdin), interactive)
		go con.serve(ctx, stop, logger)
	}

	<-ctx.Done()
	logger.Printf("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Shutdown(sctx)

	g.Monitor.Stop()
	g.Servers.StopAll()
	g.Shutdown()
	return nil
}

func main() {
	if e := newRootCmd().Execute(); e != nil {
		fmt.Fprintln(os.Stderr, "gamevisord:", e)
		os.Exit(1)
	}
}
