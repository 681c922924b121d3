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
	"io"
	"log"
	"runtime"
	"strings"
	"sync"
)

// MultiLogger implements a wrapper around log.Logger, that permits a single
// logger interface to be used to fan out multiple logs.  It implements an
// io.Writer, which breaks up the lines and delivers them each to the
// contained loggers.  The contained loggers keep their own Prefix and Flags.
type MultiLogger struct {
	loggers []*log.Logger
	lock    sync.Mutex
}

// Write implements io.Writer, with the log.Logger semantic of one or more
// entire lines per call.
func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.lock.Lock()
	for _, line := range lines {
		for _, logger := range l.loggers {
			logger.Println(line)
		}
	}
	l.lock.Unlock()
	return len(b), nil
}

// AddLogger adds a logger to the MultiLogger.  A logger can only be
// added once.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers, logger)
}

// AddWriter wraps w in a new log.Logger with the given flags, adds it,
// and returns it so that it can later be removed with DelLogger.
func (l *MultiLogger) AddWriter(w io.Writer, flags int) *log.Logger {
	logger := log.New(w, "", flags)
	l.AddLogger(logger)
	return logger
}

// DelLogger removes a logger from the fan out.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()

	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i], l.loggers[i+1:]...)
			break
		}
	}
}

// Component returns a logger that writes through the fan out with a
// "[name] " prefix.
func (l *MultiLogger) Component(name string) *log.Logger {
	return log.New(l, "["+name+"] ", 0)
}

func NewMultiLogger() *MultiLogger {
	return &MultiLogger{}
}

// logPanic is deferred at the top of every goroutine we start.  A
// recovered panic is logged with its stack, and onRecover, if not nil,
// is called with the panic value.
func logPanic(logger *log.Logger, name string, onRecover func(any)) {
	if r := recover(); r != nil {
		logger.Printf("panic in %s: %v\n%s", name, r, stack())
		if onRecover != nil {
			onRecover(r)
		}
	}
}

func stack() []byte {
	buf := make([]byte, 4096)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}
