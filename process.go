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
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ProcessSpec describes what to run.  Command[0] is the program, the rest
// are its arguments.  Env entries (KEY=VALUE) are added to the inherited
// environment.
type ProcessSpec struct {
	Command []string `json:"command" yaml:"command" toml:"command"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
}

// ProcessInfo is a snapshot of one managed process.
type ProcessInfo struct {
	ID       string    `json:"id"`
	Alive    bool      `json:"alive"`
	Dir      string    `json:"dir"`
	Pid      int       `json:"pid"`
	Instance string    `json:"instance"`
	Started  time.Time `json:"started"`
	Command  []string  `json:"command"`
}

// process is a single running instance of a managed child.  The
// Supervisor is the only thing that holds one.  The pumps and the exit
// watcher own the read ends of the pipes and the Cmd; they never consult
// the registry, so removal of the entry does not disturb them.
type process struct {
	id       string
	instance string
	dir      string
	spec     ProcessSpec
	cmd      *exec.Cmd
	started  time.Time

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	input  *bufio.Writer
	wmx    sync.Mutex

	stopping atomic.Bool
	done     chan struct{}
	code     int
	pumps    sync.WaitGroup
	closed   sync.Once
}

func spawn(id string, spec ProcessSpec, dir string) (*process, error) {
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = dir
	if len(spec.Env) != 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcAttr(cmd)

	// We hand the child real files rather than using the Cmd pipe
	// helpers.  Cmd.Wait closes the helper pipes, which would pull the
	// rug out from under the pumps.
	files := make([]*os.File, 0, 6)
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
	}
	inR, inW, e := os.Pipe()
	if e != nil {
		return nil, e
	}
	files = append(files, inR, inW)
	outR, outW, e := os.Pipe()
	if e != nil {
		cleanup()
		return nil, e
	}
	files = append(files, outR, outW)
	errR, errW, e := os.Pipe()
	if e != nil {
		cleanup()
		return nil, e
	}
	files = append(files, errR, errW)

	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW

	if e := cmd.Start(); e != nil {
		cleanup()
		return nil, e
	}

	// The child has its own copies now.
	inR.Close()
	outW.Close()
	errW.Close()

	p := &process{
		id:       id,
		instance: uuid.NewString(),
		dir:      dir,
		spec:     spec,
		cmd:      cmd,
		started:  time.Now(),
		stdin:    inW,
		stdout:   outR,
		stderr:   errR,
		input:    bufio.NewWriter(inW),
		done:     make(chan struct{}),
	}
	return p, nil
}

func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) info() ProcessInfo {
	i := ProcessInfo{
		ID:       p.id,
		Alive:    p.alive(),
		Dir:      p.dir,
		Instance: p.instance,
		Started:  p.started,
		Command:  append([]string{}, p.spec.Command...),
	}
	if p.cmd.Process != nil {
		i.Pid = p.cmd.Process.Pid
	}
	return i
}

func (p *process) write(line string) error {
	p.wmx.Lock()
	defer p.wmx.Unlock()
	if _, e := p.input.WriteString(line + "\n"); e != nil {
		p.input.Reset(p.stdin)
		return e
	}
	return p.input.Flush()
}

// closeStreams closes our ends of all three pipes, once.  Errors other
// than double closes are logged.
func (p *process) closeStreams(logger *log.Logger) {
	p.closed.Do(func() {
		p.wmx.Lock()
		p.input.Flush()
		p.wmx.Unlock()
		for _, f := range []*os.File{p.stdin, p.stdout, p.stderr} {
			if e := f.Close(); e != nil && !errors.Is(e, os.ErrClosed) {
				logger.Printf("Closing %s stream of %s: %v", f.Name(), p.id, e)
			}
		}
	})
}

// pump forwards complete lines from r to b until the stream ends.  A
// failed read while the process is still meant to be running produces
// one synthetic error line.
func (p *process) pump(r io.Reader, b Broadcaster, cat Category, what string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			b.Broadcast(p.id, strings.TrimRight(line, "\r\n"), cat)
		}
		if err == nil {
			continue
		}
		if err != io.EOF && !p.stopping.Load() && p.alive() {
			b.Broadcast(p.id, what+" reader error: "+err.Error(),
				CategoryError)
		}
		return
	}
}

// wait blocks until the child exits and records its exit code.
func (p *process) wait() int {
	p.cmd.Wait()
	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}
	p.code = code
	close(p.done)
	return code
}

// drain waits for the pumps to finish, but not forever; a grandchild
// holding the pipes open must not keep us from reporting the exit.
func (p *process) drain(d time.Duration) {
	ch := make(chan struct{})
	go func() {
		p.pumps.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(d):
	}
}
