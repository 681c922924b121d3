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
	"log"
	"sort"
	"sync"
	"time"
)

// Default crash monitor settings.
const (
	DefaultMonitorInterval = 30 * time.Second
	DefaultInitialDelay    = 30 * time.Second
	DefaultMaxAttempts     = 3
	DefaultCooldown        = 2 * time.Minute
	DefaultRestartDelay    = 10 * time.Second
)

// AliveChecker reports whether a process is running.  The Supervisor is
// one.
type AliveChecker interface {
	IsAlive(id string) bool
}

// Notifier shows crash and restart events to the operator.  The
// Multiplexer is one.
type Notifier interface {
	Notify(id string, text string, cat Category)
}

// MonitorConfig configures the crash monitor.  Zero durations and
// counts take the defaults above.
type MonitorConfig struct {
	// Interval is the time between polls.
	Interval time.Duration

	// InitialDelay is the time before the first poll.
	InitialDelay time.Duration

	// MaxAttempts is the restart budget.  Once that many restarts have
	// been tried without the process being seen running again, automatic
	// restart is disabled for it.
	MaxAttempts int

	// Cooldown is the minimum time between two restart attempts.
	Cooldown time.Duration

	// RestartDelay is how long after detecting a crash the restart is
	// issued.
	RestartDelay time.Duration

	// Alive is asked for liveness.  Required.
	Alive AliveChecker

	// Restart restarts a process.  Required.
	Restart func(id string) error

	// Targets lists the ids under restart policy.  If nil, every id
	// handed to RegisterRunning is polled.
	Targets func() []string

	// Disable is called when the restart budget of an id runs out.
	Disable func(id string)

	// Notify, if set, receives crash and restart notices.
	Notify Notifier

	// Logger defaults to discarding.
	Logger *log.Logger

	// Now and AfterFunc replace the clock, for tests.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) (cancel func() bool)
}

// restartRecord is everything the monitor knows about one id.  Poll and
// the delayed restarts both update it, always under its own lock.
type restartRecord struct {
	id          string
	running     bool      // last observed liveness
	attempts    int       // restarts issued since last seen running
	lastAttempt time.Time // when the last restart was issued
	deferred    bool      // crashed inside the cool-down, restart owed
	disabled    bool      // budget exhausted
	cancel      func() bool
	gen         int
	crashes     int
	recoveries  int
	mx          sync.Mutex
}

// MonitorStatus is a snapshot of one monitored id.
type MonitorStatus struct {
	ID          string    `json:"id"`
	Running     bool      `json:"running"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"lastAttempt"`
	Pending     bool      `json:"pending"`
	Deferred    bool      `json:"deferred"`
	Disabled    bool      `json:"disabled"`
	Crashes     int       `json:"crashes"`
	Recoveries  int       `json:"recoveries"`
}

// Monitor polls liveness of the processes under restart policy and
// restarts the ones that crash, within a budget.
type Monitor struct {
	cfg     MonitorConfig
	logger  *log.Logger
	records map[string]*restartRecord
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	pollMx  sync.Mutex
	mx      sync.Mutex
}

type notice struct {
	id   string
	text string
	cat  Category
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorInterval
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		records: make(map[string]*restartRecord),
	}
}

// Start begins polling, the first poll after InitialDelay.
func (m *Monitor) Start() {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.stopCh != nil || m.stopped {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop(m.stopCh, m.doneCh)
	m.logger.Printf("Crash monitor started (every %v, %d attempts, %v cool-down)",
		m.cfg.Interval, m.cfg.MaxAttempts, m.cfg.Cooldown)
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	delay := time.NewTimer(m.cfg.InitialDelay)
	select {
	case <-stopCh:
		delay.Stop()
		return
	case <-delay.C:
	}
	m.Poll()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Stop ends polling and cancels any restarts that have not yet fired.
// It waits for a poll in progress to finish.
func (m *Monitor) Stop() {
	m.mx.Lock()
	if m.stopped {
		m.mx.Unlock()
		return
	}
	m.stopped = true
	stopCh, doneCh := m.stopCh, m.doneCh
	recs := make([]*restartRecord, 0, len(m.records))
	for _, r := range m.records {
		recs = append(recs, r)
	}
	m.mx.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	for _, r := range recs {
		r.mx.Lock()
		r.cancelPending()
		r.mx.Unlock()
	}
	m.logger.Printf("Crash monitor stopped")
}

func (m *Monitor) isStopped() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.stopped
}

func (m *Monitor) record(id string) *restartRecord {
	m.mx.Lock()
	defer m.mx.Unlock()
	r := m.records[id]
	if r == nil {
		r = &restartRecord{id: id}
		m.records[id] = r
	}
	return r
}

func (m *Monitor) lookup(id string) *restartRecord {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.records[id]
}

func (m *Monitor) targets() []string {
	if m.cfg.Targets != nil {
		return m.cfg.Targets()
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Poll runs one monitoring cycle.  Cycles never overlap.
func (m *Monitor) Poll() {
	m.pollMx.Lock()
	defer m.pollMx.Unlock()
	defer logPanic(m.logger, "monitor poll", nil)

	if m.isStopped() {
		return
	}
	for _, id := range m.targets() {
		m.check(id)
	}
}

// check handles one id.  A panic here is contained to that id.
func (m *Monitor) check(id string) {
	defer logPanic(m.logger, "monitor check "+id, nil)

	now := m.cfg.Alive.IsAlive(id)
	r := m.record(id)

	var notes []notice
	exhausted := false

	r.mx.Lock()
	prev := r.running
	r.running = now
	switch {
	case r.disabled:
	case prev && !now:
		r.crashes++
		m.logger.Printf("Crash detected for %s", id)
		notes = append(notes, notice{id, "Server crashed (detected by monitor)", CategoryError})
		notes, exhausted = m.handleCrash(r, notes)
	case now:
		if r.attempts != 0 || r.deferred || r.cancel != nil {
			r.recoveries++
			m.logger.Printf("%s is running again, restart state cleared", id)
		}
		r.reset()
	case r.deferred:
		notes, exhausted = m.retryDeferred(r, notes)
	}
	r.mx.Unlock()

	m.emit(notes)
	if exhausted && m.cfg.Disable != nil {
		m.cfg.Disable(id)
	}
}

// reset clears the restart state.  Call with r locked.
func (r *restartRecord) reset() {
	r.cancelPending()
	r.attempts = 0
	r.lastAttempt = time.Time{}
	r.deferred = false
}

func (r *restartRecord) cancelPending() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
}

// handleCrash decides what to do about a crash edge.  A crash inside the
// cool-down is owed a restart rather than charged for one; see
// retryDeferred.  Call with r locked.
func (m *Monitor) handleCrash(r *restartRecord, notes []notice) ([]notice, bool) {
	if r.attempts >= m.cfg.MaxAttempts {
		return m.exhaust(r, notes), true
	}
	if !r.lastAttempt.IsZero() {
		if since := m.cfg.Now().Sub(r.lastAttempt); since < m.cfg.Cooldown {
			r.deferred = true
			wait := m.cfg.Cooldown - since
			m.logger.Printf("Crash of %s inside cool-down, restart deferred %v", r.id, wait)
			return append(notes, notice{r.id,
				fmt.Sprintf("Restart deferred for %v (cool-down)", wait.Round(time.Second)),
				CategoryWarning}), false
		}
	}
	return m.schedule(r, notes), false
}

// retryDeferred is called on polls where a process with a deferred crash
// is still down.  Call with r locked.
func (m *Monitor) retryDeferred(r *restartRecord, notes []notice) ([]notice, bool) {
	if m.cfg.Now().Sub(r.lastAttempt) < m.cfg.Cooldown {
		return notes, false
	}
	if r.attempts >= m.cfg.MaxAttempts {
		return m.exhaust(r, notes), true
	}
	return m.schedule(r, notes), false
}

func (m *Monitor) exhaust(r *restartRecord, notes []notice) []notice {
	r.cancelPending()
	r.deferred = false
	r.disabled = true
	m.logger.Printf("Restart budget of %s exhausted after %d attempts, auto-restart disabled",
		r.id, r.attempts)
	return append(notes, notice{r.id,
		fmt.Sprintf("Auto-restart disabled after %d failed attempts", r.attempts),
		CategoryError})
}

// schedule charges one attempt and arranges the delayed restart.  Call
// with r locked.
func (m *Monitor) schedule(r *restartRecord, notes []notice) []notice {
	r.cancelPending()
	r.attempts++
	r.lastAttempt = m.cfg.Now()
	r.deferred = false
	gen := r.gen
	id := r.id
	attempt := r.attempts
	r.cancel = m.cfg.AfterFunc(m.cfg.RestartDelay, func() {
		m.restart(r, gen, attempt)
	})
	m.logger.Printf("Restarting %s in %v (attempt %d/%d)", id, m.cfg.RestartDelay,
		attempt, m.cfg.MaxAttempts)
	return append(notes, notice{id,
		fmt.Sprintf("Restarting in %v (attempt %d/%d)", m.cfg.RestartDelay,
			attempt, m.cfg.MaxAttempts),
		CategoryWarning})
}

// restart is the delayed half of schedule.  It is dropped if the record
// has moved on (reset, rescheduled, unregistered) since.  Generations
// only count within one record, so a record made after Unregister must
// not be mistaken for the one that scheduled us.
func (m *Monitor) restart(r *restartRecord, gen int, attempt int) {
	id := r.id
	defer logPanic(m.logger, "restart "+id, nil)

	if m.isStopped() {
		return
	}
	if m.lookup(id) != r {
		return
	}
	r.mx.Lock()
	if r.gen != gen || r.disabled {
		r.mx.Unlock()
		return
	}
	r.cancel = nil
	r.mx.Unlock()

	err := m.callRestart(id)

	var notes []notice
	r.mx.Lock()
	if err == nil {
		// Optimistic: it has not had time to prove itself, but a poll
		// right now must not see a second crash edge.
		r.running = true
		m.logger.Printf("Restarted %s (attempt %d/%d)", id, attempt, m.cfg.MaxAttempts)
		notes = append(notes, notice{id,
			fmt.Sprintf("Server restarted (attempt %d/%d)", attempt, m.cfg.MaxAttempts),
			CategorySystem})
	} else {
		// Still owed a restart: the next poll past the cool-down tries
		// again, and charges the budget for it.
		r.running = false
		r.deferred = true
		m.logger.Printf("Restart of %s failed: %v", id, err)
		notes = append(notes, notice{id, "Restart failed: " + err.Error(), CategoryError})
	}
	r.mx.Unlock()
	m.emit(notes)
}

func (m *Monitor) callRestart(id string) (err error) {
	defer logPanic(m.logger, "restart callback "+id, func(r any) {
		err = fmt.Errorf("panic: %v", r)
	})
	return m.cfg.Restart(id)
}

func (m *Monitor) emit(notes []notice) {
	if m.cfg.Notify == nil {
		return
	}
	for _, n := range notes {
		m.cfg.Notify.Notify(n.id, n.text, n.cat)
	}
}

// RegisterRunning records that id was started outside of crash handling.
// It clears any restart state, re-arms a disabled id, and makes the next
// poll that finds id down count as a crash.
func (m *Monitor) RegisterRunning(id string) {
	r := m.record(id)
	r.mx.Lock()
	r.reset()
	r.running = true
	r.disabled = false
	r.mx.Unlock()
}

// Unregister forgets id, typically after a deliberate stop.  A pending
// restart for it is cancelled.
func (m *Monitor) Unregister(id string) {
	m.mx.Lock()
	r := m.records[id]
	delete(m.records, id)
	m.mx.Unlock()
	if r != nil {
		r.mx.Lock()
		r.cancelPending()
		r.mx.Unlock()
	}
}

// Status returns a snapshot of every id the monitor knows about.
func (m *Monitor) Status() []MonitorStatus {
	m.mx.Lock()
	recs := make([]*restartRecord, 0, len(m.records))
	for _, r := range m.records {
		recs = append(recs, r)
	}
	m.mx.Unlock()

	rv := make([]MonitorStatus, 0, len(recs))
	for _, r := range recs {
		r.mx.Lock()
		rv = append(rv, MonitorStatus{
			ID:          r.id,
			Running:     r.running,
			Attempts:    r.attempts,
			LastAttempt: r.lastAttempt,
			Pending:     r.cancel != nil,
			Deferred:    r.deferred,
			Disabled:    r.disabled,
			Crashes:     r.crashes,
			Recoveries:  r.recoveries,
		})
		r.mx.Unlock()
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv
}

// StatusOf returns the snapshot for one id.
func (m *Monitor) StatusOf(id string) (MonitorStatus, bool) {
	for _, s := range m.Status() {
		if s.ID == id {
			return s, true
		}
	}
	return MonitorStatus{}, false
}

// Config returns the effective settings.
func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}
