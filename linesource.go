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
	"context"
	"io"
	"strings"
)

// LineSource supplies operator input one line at a time.  ReadLine
// returns io.EOF at end of input and ErrInterrupted when the operator
// interrupts (^C on a terminal).  It must give up when ctx is done.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// ReaderSource is a LineSource over any io.Reader.  The reader is
// consumed by a background goroutine, so that ReadLine can honor its
// context even though the underlying read cannot be cancelled.  A line
// read while nobody is waiting is held for the next caller.
type ReaderSource struct {
	ch chan lineResult
}

func NewReaderSource(r io.Reader) *ReaderSource {
	rs := &ReaderSource{ch: make(chan lineResult)}
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if len(line) != 0 {
				rs.ch <- lineResult{line: strings.TrimRight(line, "\r\n")}
			}
			if err != nil {
				rs.ch <- lineResult{err: err}
				close(rs.ch)
				return
			}
		}
	}()
	return rs
}

func (rs *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-rs.ch:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}
