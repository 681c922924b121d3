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
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMinMemory = "1G"
	DefaultMaxMemory = "2G"
)

// ServerConfig is the persisted description of one game server.  The
// memory sizes are handed to the start script untouched.
type ServerConfig struct {
	ID          string    `json:"id" yaml:"id" toml:"id"`
	Type        string    `json:"type" yaml:"type" toml:"type"`
	Directory   string    `json:"directory" yaml:"directory" toml:"directory"`
	Script      string    `json:"script,omitempty" yaml:"script,omitempty" toml:"script,omitempty"`
	AutoStart   bool      `json:"autoStart" yaml:"autoStart" toml:"autoStart"`
	AutoRestart bool      `json:"autoRestart" yaml:"autoRestart" toml:"autoRestart"`
	MinMemory   string    `json:"minMemory" yaml:"minMemory" toml:"minMemory"`
	MaxMemory   string    `json:"maxMemory" yaml:"maxMemory" toml:"maxMemory"`
	Enabled     bool      `json:"enabled" yaml:"enabled" toml:"enabled"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	LastStart   time.Time `json:"lastStart" yaml:"lastStart" toml:"lastStart"`
	Env         []string  `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
}

// NewServerConfig returns a config with the usual defaults: enabled,
// started with the daemon, and restarted on crashes.
func NewServerConfig(id, typ, dir, script string) ServerConfig {
	return ServerConfig{
		ID:          id,
		Type:        LookupServerType(typ).Name,
		Directory:   dir,
		Script:      script,
		AutoStart:   true,
		AutoRestart: true,
		MinMemory:   DefaultMinMemory,
		MaxMemory:   DefaultMaxMemory,
		Enabled:     true,
		CreatedAt:   time.Now().Truncate(time.Second),
	}
}

// ValidateID checks that id can name both a process and a manifest file.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, "/\\ \t\n") || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: invalid server id %q", ErrBadManifest, id)
	}
	return nil
}

type manifestFormat string

const (
	formatJSON manifestFormat = ".json"
	formatYAML manifestFormat = ".yaml"
	formatTOML manifestFormat = ".toml"
)

func formatOf(path string) (manifestFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, true
	case ".yaml", ".yml":
		return formatYAML, true
	case ".toml":
		return formatTOML, true
	}
	return "", false
}

func decodeManifest(f manifestFormat, r io.Reader, v any) error {
	switch f {
	case formatYAML:
		return yaml.NewDecoder(r).Decode(v)
	case formatTOML:
		_, e := toml.NewDecoder(r).Decode(v)
		return e
	default:
		return json.NewDecoder(r).Decode(v)
	}
}

func encodeManifest(f manifestFormat, w io.Writer, v any) error {
	switch f {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if e := enc.Encode(v); e != nil {
			return e
		}
		return enc.Close()
	case formatTOML:
		return toml.NewEncoder(w).Encode(v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func readManifest(path string, v any) error {
	f, ok := formatOf(path)
	if !ok {
		return fmt.Errorf("%w: unknown format %s", ErrBadManifest, path)
	}
	file, e := os.Open(path)
	if e != nil {
		return e
	}
	defer file.Close()
	if e := decodeManifest(f, file, v); e != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadManifest, path, e)
	}
	return nil
}

// writeManifest replaces path atomically.
func writeManifest(path string, v any) error {
	f, ok := formatOf(path)
	if !ok {
		return fmt.Errorf("%w: unknown format %s", ErrBadManifest, path)
	}
	tmp, e := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if e != nil {
		return e
	}
	name := tmp.Name()
	if e := encodeManifest(f, tmp, v); e != nil {
		tmp.Close()
		os.Remove(name)
		return e
	}
	if e := tmp.Close(); e != nil {
		os.Remove(name)
		return e
	}
	if e := os.Rename(name, path); e != nil {
		os.Remove(name)
		return e
	}
	return nil
}

type storedConfig struct {
	cfg  ServerConfig
	path string
}

// ConfigStore keeps one manifest file per server in a directory.  Files
// may be JSON, YAML or TOML, chosen by extension; changes are written
// back in the format the file already has.  New servers get JSON.
type ConfigStore struct {
	dir     string
	configs map[string]*storedConfig
	logger  *log.Logger
	mx      sync.Mutex
}

// OpenConfigStore creates dir if needed and loads every manifest in it.
func OpenConfigStore(dir string, logger *log.Logger) (*ConfigStore, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if e := os.MkdirAll(dir, 0755); e != nil {
		return nil, e
	}
	cs := &ConfigStore{
		dir:     dir,
		configs: make(map[string]*storedConfig),
		logger:  logger,
	}
	if e := cs.Load(); e != nil {
		return nil, e
	}
	return cs, nil
}

func (cs *ConfigStore) Dir() string {
	return cs.dir
}

// Load rereads the directory.  Unreadable manifests are logged and
// skipped so one bad file does not take out every server.
func (cs *ConfigStore) Load() error {
	ents, e := os.ReadDir(cs.dir)
	if e != nil {
		return e
	}
	configs := make(map[string]*storedConfig)
	for _, ent := range ents {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		if _, ok := formatOf(ent.Name()); !ok {
			continue
		}
		path := filepath.Join(cs.dir, ent.Name())
		var cfg ServerConfig
		if e := readManifest(path, &cfg); e != nil {
			cs.logger.Printf("Skipping manifest: %v", e)
			continue
		}
		if cfg.ID == "" {
			cfg.ID = strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		}
		if e := ValidateID(cfg.ID); e != nil {
			cs.logger.Printf("Skipping manifest %s: %v", path, e)
			continue
		}
		if old, ok := configs[cfg.ID]; ok {
			cs.logger.Printf("Skipping manifest %s: %s already defined by %s",
				path, cfg.ID, old.path)
			continue
		}
		configs[cfg.ID] = &storedConfig{cfg: cfg, path: path}
	}
	cs.mx.Lock()
	cs.configs = configs
	cs.mx.Unlock()
	cs.logger.Printf("Loaded %d server configurations from %s", len(configs), cs.dir)
	return nil
}

func (cs *ConfigStore) Get(id string) (ServerConfig, error) {
	cs.mx.Lock()
	defer cs.mx.Unlock()
	sc, ok := cs.configs[id]
	if !ok {
		return ServerConfig{}, ErrNoServer
	}
	return sc.cfg, nil
}

// All returns every config, sorted by id.
func (cs *ConfigStore) All() []ServerConfig {
	return cs.filter(func(ServerConfig) bool { return true })
}

func (cs *ConfigStore) filter(match func(ServerConfig) bool) []ServerConfig {
	cs.mx.Lock()
	rv := make([]ServerConfig, 0, len(cs.configs))
	for _, sc := range cs.configs {
		if match(sc.cfg) {
			rv = append(rv, sc.cfg)
		}
	}
	cs.mx.Unlock()
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv
}

// AutoStartConfigs returns the enabled configs to start with the daemon.
func (cs *ConfigStore) AutoStartConfigs() []ServerConfig {
	return cs.filter(func(c ServerConfig) bool { return c.Enabled && c.AutoStart })
}

// AutoRestartConfigs returns the enabled configs under restart policy.
func (cs *ConfigStore) AutoRestartConfigs() []ServerConfig {
	return cs.filter(func(c ServerConfig) bool { return c.Enabled && c.AutoRestart })
}

// Add stores a new config.
func (cs *ConfigStore) Add(cfg ServerConfig) error {
	if e := ValidateID(cfg.ID); e != nil {
		return e
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().Truncate(time.Second)
	}
	cs.mx.Lock()
	defer cs.mx.Unlock()
	if _, ok := cs.configs[cfg.ID]; ok {
		return ErrServerExists
	}
	sc := &storedConfig{cfg: cfg, path: filepath.Join(cs.dir, cfg.ID+string(formatJSON))}
	if e := writeManifest(sc.path, sc.cfg); e != nil {
		return e
	}
	cs.configs[cfg.ID] = sc
	cs.logger.Printf("Added server configuration %s", cfg.ID)
	return nil
}

// Update replaces an existing config, keeping its file and format.
func (cs *ConfigStore) Update(cfg ServerConfig) error {
	return cs.modify(cfg.ID, func(c *ServerConfig) {
		created := c.CreatedAt
		*c = cfg
		if c.CreatedAt.IsZero() {
			c.CreatedAt = created
		}
	})
}

func (cs *ConfigStore) modify(id string, fn func(*ServerConfig)) error {
	cs.mx.Lock()
	defer cs.mx.Unlock()
	sc, ok := cs.configs[id]
	if !ok {
		return ErrNoServer
	}
	cfg := sc.cfg
	fn(&cfg)
	cfg.ID = id
	if e := writeManifest(sc.path, cfg); e != nil {
		return e
	}
	sc.cfg = cfg
	return nil
}

// Remove deletes a config and its manifest file.
func (cs *ConfigStore) Remove(id string) error {
	cs.mx.Lock()
	defer cs.mx.Unlock()
	sc, ok := cs.configs[id]
	if !ok {
		return ErrNoServer
	}
	if e := os.Remove(sc.path); e != nil && !os.IsNotExist(e) {
		return e
	}
	delete(cs.configs, id)
	cs.logger.Printf("Removed server configuration %s", id)
	return nil
}

func (cs *ConfigStore) SetAutoStart(id string, on bool) error {
	return cs.modify(id, func(c *ServerConfig) { c.AutoStart = on })
}

func (cs *ConfigStore) SetAutoRestart(id string, on bool) error {
	return cs.modify(id, func(c *ServerConfig) { c.AutoRestart = on })
}

func (cs *ConfigStore) SetEnabled(id string, on bool) error {
	return cs.modify(id, func(c *ServerConfig) { c.Enabled = on })
}

// Touch records a start.
func (cs *ConfigStore) Touch(id string, when time.Time) error {
	return cs.modify(id, func(c *ServerConfig) { c.LastStart = when.Truncate(time.Second) })
}

type serverList struct {
	Servers []ServerConfig `json:"servers" yaml:"servers" toml:"servers"`
}

// Export writes every config to a single file, in the format implied by
// its extension.
func (cs *ConfigStore) Export(path string) error {
	return writeManifest(path, serverList{Servers: cs.All()})
}

// Import reads a file written by Export.  Known ids are updated, new
// ones added.  It returns how many configs were taken.
func (cs *ConfigStore) Import(path string) (int, error) {
	var list serverList
	if e := readManifest(path, &list); e != nil {
		return 0, e
	}
	n := 0
	for _, cfg := range list.Servers {
		var e error
		if _, err := cs.Get(cfg.ID); err == nil {
			e = cs.Update(cfg)
		} else {
			e = cs.Add(cfg)
		}
		if e != nil {
			cs.logger.Printf("Import of %s failed: %v", cfg.ID, e)
			continue
		}
		n++
	}
	return n, nil
}
