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
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// StopTimeout is how long Stop waits after asking a process to
	// terminate before it kills it.
	StopTimeout = 5 * time.Second

	// ExitSentinel typed during Attach detaches from the process.
	ExitSentinel = "exit"

	pumpDrain = time.Second
)

// Supervisor owns every child process: the OS handle, the working
// directory and the three standard streams.  Nothing else holds these;
// other components go through the methods here.
type Supervisor struct {
	procs       map[string]*process
	name        string
	baseDir     string
	bcast       Broadcaster
	logger      *log.Logger
	writer      *log.Logger
	log         *Log
	mlog        *MultiLogger
	stopTimeout time.Duration
	closed      bool
	serial      int64
	createTime  time.Time
	updateTime  time.Time
	wg          sync.WaitGroup
	mx          sync.Mutex
	cvs         map[*sync.Cond]bool
}

type SupervisorInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	UpdateTime time.Time `json:"updated"`
	CreateTime time.Time `json:"created"`
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

// bumpSerial increments the serial and notifies watchers.  Call with
// lock held, otherwise woken goroutines may not see the new value.
func (s *Supervisor) bumpSerial() {
	s.updateTime = time.Now()
	s.serial++
	for cv := range s.cvs {
		cv.Broadcast()
	}
}

// WatchProcesses waits for the process table to change from old, or
// for expire to pass, and returns the serial at that point.  A poll can
// be done by supplying 0 for the expiration.
func (s *Supervisor) WatchProcesses(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.lock()
			expired = true
			cv.Broadcast()
			s.unlock()
		})
	} else {
		expired = true
	}

	s.lock()
	s.cvs[cv] = true
	for s.serial == old && !expired {
		cv.Wait()
	}
	rv := s.serial
	delete(s.cvs, cv)
	s.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial changes every time a process is started, exits or is stopped.
func (s *Supervisor) Serial() int64 {
	s.lock()
	defer s.unlock()
	return s.serial
}

func (s *Supervisor) Name() string {
	return s.name
}

// BaseDir is where the daemon keeps its state when not told otherwise.
// It honors $GAMEVISORDIR.
func (s *Supervisor) BaseDir() string {
	return s.baseDir
}

func (s *Supervisor) GetInfo() *SupervisorInfo {
	s.lock()
	defer s.unlock()
	return &SupervisorInfo{
		Name:       s.name,
		Serial:     s.serial,
		CreateTime: s.createTime,
		UpdateTime: s.updateTime,
	}
}

func (s *Supervisor) setBaseDir() {
	s.baseDir = DefaultBaseDir()
}

// DefaultBaseDir is $GAMEVISORDIR if set, otherwise a per-user or
// system-wide location depending on who we run as.
func DefaultBaseDir() string {
	if dir := os.Getenv("GAMEVISORDIR"); len(dir) != 0 {
		return dir
	}
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("USERPROFILE"); len(dir) != 0 {
			return dir
		}
		return "C:\\"
	default:
		if os.Geteuid() == 0 {
			return "/var/lib/gamevisor"
		} else if home := os.Getenv("HOME"); home != "" {
			return home + "/.gamevisor"
		}
		return "."
	}
}

// SetBroadcaster directs process output and exit notices to b.  Until
// it is called, they are discarded.
func (s *Supervisor) SetBroadcaster(b Broadcaster) {
	s.lock()
	if b == nil {
		b = discard{}
	}
	s.bcast = b
	s.unlock()
}

func (s *Supervisor) broadcaster() Broadcaster {
	s.lock()
	defer s.unlock()
	return s.bcast
}

// SetLogWriter replaces the stderr destination of the event log.  The
// in-memory log is unaffected.
func (s *Supervisor) SetLogWriter(w io.Writer) {
	if s.writer != nil {
		s.mlog.DelLogger(s.writer)
	}
	s.writer = s.mlog.AddWriter(w, log.LstdFlags)
}

// SetStopTimeout changes how long Stop waits before killing.
func (s *Supervisor) SetStopTimeout(d time.Duration) {
	s.lock()
	if d <= 0 {
		d = StopTimeout
	}
	s.stopTimeout = d
	s.unlock()
}

// Logger returns a logger for the named component that feeds the same
// event log as the supervisor itself.
func (s *Supervisor) Logger(component string) *log.Logger {
	return s.mlog.Component(component)
}

func (s *Supervisor) GetLog(lastid int64) ([]LogRecord, int64) {
	return s.log.GetRecords(lastid)
}

func (s *Supervisor) WatchLog(old int64, expire time.Duration) int64 {
	return s.log.Watch(old, expire)
}

// Start spawns spec in dir under the given id.  It returns as soon as
// the process exists; nothing is promised about its output yet.  An id
// whose previous process has died is reused.
func (s *Supervisor) Start(id string, spec ProcessSpec, dir string) error {
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		s.logger.Printf("Cannot start %s: empty command", id)
		return ErrBadCommand
	}
	if dir != "" {
		if st, e := os.Stat(dir); e != nil || !st.IsDir() {
			s.logger.Printf("Cannot start %s: directory %s does not exist",
				id, dir)
			return ErrNoDirectory
		}
	}

	s.lock()
	if s.closed {
		s.unlock()
		s.logger.Printf("Cannot start %s: shutting down", id)
		return ErrShuttingDown
	}
	if old, ok := s.procs[id]; ok {
		if old.alive() {
			s.unlock()
			s.logger.Printf("Cannot start %s: already running (pid %d)",
				id, old.cmd.Process.Pid)
			return ErrAlreadyRunning
		}
		delete(s.procs, id)
	}

	p, e := spawn(id, spec, dir)
	if e != nil {
		s.unlock()
		s.logger.Printf("Cannot start %s: %v", id, e)
		return fmt.Errorf("start %s: %w", id, e)
	}
	s.procs[id] = p
	s.bumpSerial()
	b := s.bcast

	s.wg.Add(3)
	p.pumps.Add(2)
	go s.pump(p, p.stdout, b, CategoryInfo, "Output")
	go s.pump(p, p.stderr, b, CategoryError, "Error")
	go s.watch(p, b)
	s.unlock()

	s.logger.Printf("Started %s: %s (pid %d, instance %s)", id,
		strings.Join(spec.Command, " "), p.cmd.Process.Pid, p.instance)
	return nil
}

func (s *Supervisor) pump(p *process, f *os.File, b Broadcaster, cat Category, what string) {
	defer s.wg.Done()
	defer p.pumps.Done()
	defer logPanic(s.logger, "pump "+p.id, nil)
	p.pump(f, b, cat, what)
}

// watch waits for the process to exit.  The registry entry goes away
// as soon as Wait returns; the exit notice follows whatever output the
// pumps still had buffered.
func (s *Supervisor) watch(p *process, b Broadcaster) {
	defer s.wg.Done()
	defer logPanic(s.logger, "watch "+p.id, nil)

	code := p.wait()

	s.lock()
	if s.procs[p.id] == p {
		delete(s.procs, p.id)
	}
	s.bumpSerial()
	s.unlock()

	p.drain(pumpDrain)
	p.closeStreams(s.logger)

	cat := CategoryInfo
	if code != 0 {
		cat = CategoryError
	}
	if !p.stopping.Load() {
		s.logger.Printf("Process %s exited with code %d", p.id, code)
	}
	b.Broadcast(p.id, fmt.Sprintf("Process exited with code: %d", code), cat)
}

func (s *Supervisor) find(id string) *process {
	s.lock()
	defer s.unlock()
	return s.procs[id]
}

// SendInput writes line, plus a newline, to the standard input of id.
func (s *Supervisor) SendInput(id string, line string) error {
	p := s.find(id)
	if p == nil {
		s.logger.Printf("Cannot send to %s: no such process", id)
		return ErrNotFound
	}
	if !p.alive() {
		s.logger.Printf("Cannot send to %s: not running", id)
		return ErrNotRunning
	}
	if e := p.write(line); e != nil {
		s.logger.Printf("Cannot send to %s: %v", id, e)
		return fmt.Errorf("send to %s: %w", id, e)
	}
	return nil
}

// Attach forwards lines from src to the process until the operator types
// ExitSentinel, src ends or is interrupted, ctx is done, or the process
// dies.  Those all count as a normal detach.  Only a process that is
// missing or dead to begin with is an error.
func (s *Supervisor) Attach(ctx context.Context, id string, src LineSource) error {
	p := s.find(id)
	if p == nil {
		s.logger.Printf("Cannot attach to %s: no such process", id)
		return ErrNotFound
	}
	if !p.alive() {
		s.logger.Printf("Cannot attach to %s: not running", id)
		return ErrNotRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Printf("Attached to %s", id)
	defer s.logger.Printf("Detached from %s", id)
	for {
		line, err := src.ReadLine(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrInterrupted) &&
				ctx.Err() == nil {
				s.logger.Printf("Input for %s failed: %v", id, err)
			}
			return nil
		}
		if strings.TrimSpace(line) == ExitSentinel {
			return nil
		}
		if !p.alive() {
			return nil
		}
		if e := p.write(line); e != nil {
			s.logger.Printf("Cannot send to %s: %v", id, e)
			if !p.alive() {
				return nil
			}
		}
	}
}

// Stop closes the streams of id, asks it to terminate, and kills it if
// it is still running after the stop timeout.  Stopping a process that
// already exited just clears its entry.
func (s *Supervisor) Stop(id string) error {
	s.lock()
	p := s.procs[id]
	timeout := s.stopTimeout
	s.unlock()
	if p == nil {
		s.logger.Printf("Cannot stop %s: no such process", id)
		return ErrNotFound
	}

	p.stopping.Store(true)
	p.closeStreams(s.logger)

	if p.alive() {
		s.logger.Printf("Stopping %s", id)
		if e := terminate(p.cmd); e != nil {
			s.logger.Printf("Failed sending terminate to %s: %v", id, e)
		}
		select {
		case <-p.done:
		case <-time.After(timeout):
			s.logger.Printf("%s did not exit within %v, killing", id, timeout)
			if e := kill(p.cmd); e != nil {
				s.logger.Printf("Failed killing %s: %v", id, e)
			}
			<-p.done
		}
	}

	s.lock()
	if s.procs[id] == p {
		delete(s.procs, id)
		s.bumpSerial()
	}
	s.unlock()
	s.logger.Printf("Stopped %s", id)
	return nil
}

// WaitExit waits up to d for id to exit, and reports whether it has.
// An unknown id counts as exited.
func (s *Supervisor) WaitExit(id string, d time.Duration) bool {
	p := s.find(id)
	if p == nil {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Supervisor) IsAlive(id string) bool {
	p := s.find(id)
	return p != nil && p.alive()
}

// List returns a snapshot of every managed process, sorted by id.
func (s *Supervisor) List() []ProcessInfo {
	s.lock()
	rv := make([]ProcessInfo, 0, len(s.procs))
	for _, p := range s.procs {
		rv = append(rv, p.info())
	}
	s.unlock()
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv
}

// Info returns the snapshot for one id.
func (s *Supervisor) Info(id string) (ProcessInfo, error) {
	p := s.find(id)
	if p == nil {
		return ProcessInfo{}, ErrNotFound
	}
	return p.info(), nil
}

// Shutdown stops every process and then waits for all of the pumps
// and watchers to finish.  No new processes may be started afterwards.
func (s *Supervisor) Shutdown() {
	s.lock()
	s.closed = true
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Stop(id)
		}(id)
	}
	wg.Wait()
	s.wg.Wait()
	s.logger.Printf("*** Gamevisor shut down: %s ***", s.name)
}

func NewSupervisor(name string) *Supervisor {
	if name == "" {
		name = "gamevisor"
	}
	// The serial starts at the current time in nsec, so that clients
	// caching across a daemon restart see a change.
	s := &Supervisor{
		name:        name,
		serial:      time.Now().UnixNano(),
		procs:       make(map[string]*process),
		cvs:         make(map[*sync.Cond]bool),
		bcast:       discard{},
		stopTimeout: StopTimeout,
	}
	s.createTime = time.Now()
	s.updateTime = s.createTime
	s.mlog = NewMultiLogger()
	s.log = NewLog(MaxLogRecords)
	s.mlog.AddWriter(s.log, 0)
	s.SetLogWriter(os.Stderr)
	s.logger = s.mlog.Component("supervisor")
	s.setBaseDir()
	return s
}
