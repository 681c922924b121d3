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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/gdamore/gamevisor"
)

// ConfigFile is looked for in the state directory when --config is not
// given.
const ConfigFile = "gamevisord.toml"

// duration is a time.Duration written as "30s" in the config file.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	v, e := time.ParseDuration(string(b))
	if e != nil {
		return e
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type MonitorSection struct {
	Enabled      bool     `toml:"enabled"`
	Interval     duration `toml:"interval"`
	InitialDelay duration `toml:"initial_delay"`
	MaxAttempts  int      `toml:"max_attempts"`
	Cooldown     duration `toml:"cooldown"`
	RestartDelay duration `toml:"restart_delay"`
}

type Config struct {
	Addr          string         `toml:"addr"`
	Dir           string         `toml:"dir"`
	Name          string         `toml:"name"`
	MaxConns      int            `toml:"max_conns"`
	NoConsole     bool           `toml:"no_console"`
	StopTimeout   duration       `toml:"stop_timeout"`
	ShutdownGrace duration       `toml:"shutdown_grace"`
	Monitor       MonitorSection `toml:"monitor"`
}

func defaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:8321",
		Name:          "gamevisord",
		MaxConns:      64,
		StopTimeout:   duration{gamevisor.StopTimeout},
		ShutdownGrace: duration{gamevisor.ShutdownGrace},
		Monitor: MonitorSection{
			Enabled:      true,
			Interval:     duration{gamevisor.DefaultMonitorInterval},
			InitialDelay: duration{gamevisor.DefaultInitialDelay},
			MaxAttempts:  gamevisor.DefaultMaxAttempts,
			Cooldown:     duration{gamevisor.DefaultCooldown},
			RestartDelay: duration{gamevisor.DefaultRestartDelay},
		},
	}
}

// loadConfig overlays the toml file at path on cfg.  A missing file is
// only an error if required.
func loadConfig(path string, required bool, cfg *Config) error {
	md, e := toml.DecodeFile(path, cfg)
	if e != nil {
		if !required && errors.Is(e, fs.ErrNotExist) {
			return nil
		}
		return e
	}
	if un := md.Undecoded(); len(un) != 0 {
		return errors.New("unknown setting " + un[0].String() + " in " + path)
	}
	return nil
}

func (c Config) monitorConfig() gamevisor.MonitorConfig {
	return gamevisor.MonitorConfig{
		Interval:     c.Monitor.Interval.Duration,
		InitialDelay: c.Monitor.InitialDelay.Duration,
		MaxAttempts:  c.Monitor.MaxAttempts,
		Cooldown:     c.Monitor.Cooldown.Duration,
		RestartDelay: c.Monitor.RestartDelay.Duration,
	}
}

// flags are the command line settings, which win over the file.
type flags struct {
	addr      string
	dir       string
	name      string
	config    string
	noConsole bool
	maxConns  int
}

func (f *flags) register(cmd *cobra.Command) {
	def := defaultConfig()
	fl := cmd.Flags()
	fl.StringVarP(&f.addr, "addr", "a", def.Addr, "listen address for the REST API")
	fl.StringVarP(&f.dir, "dir", "d", "", "state directory (default $GAMEVISORDIR or ~/.gamevisor)")
	fl.StringVarP(&f.name, "name", "n", def.Name, "name of this instance")
	fl.StringVarP(&f.config, "config", "c", "", "config file (default <dir>/"+ConfigFile+")")
	fl.BoolVar(&f.noConsole, "no-console", false, "do not read commands from standard input")
	fl.IntVar(&f.maxConns, "max-conns", def.MaxConns, "most concurrent API connections, 0 for no limit")
}

// configure builds the effective config: defaults, then the config
// file, then whatever flags were given.
func configure(cmd *cobra.Command, f *flags) (Config, error) {
	cfg := defaultConfig()
	changed := cmd.Flags().Changed

	dir := f.dir
	if dir == "" {
		dir = gamevisor.DefaultBaseDir()
	}
	if f.config != "" {
		if e := loadConfig(f.config, true, &cfg); e != nil {
			return cfg, e
		}
	} else if e := loadConfig(filepath.Join(dir, ConfigFile), false, &cfg); e != nil {
		return cfg, e
	}
	if changed("dir") || cfg.Dir == "" {
		cfg.Dir = dir
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("name") {
		cfg.Name = f.name
	}
	if changed("no-console") {
		cfg.NoConsole = f.noConsole
	}
	if changed("max-conns") {
		cfg.MaxConns = f.maxConns
	}
	abs, e := filepath.Abs(cfg.Dir)
	if e != nil {
		return cfg, e
	}
	cfg.Dir = abs
	return cfg, os.MkdirAll(cfg.Dir, 0755)
}
