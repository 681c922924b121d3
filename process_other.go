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

//go:build !unix

package gamevisor

import (
	"errors"
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// terminate asks nicely.  Windows has no SIGTERM, so an interrupt is the
// best we can do; if that fails the caller escalates after its timeout.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	e := cmd.Process.Signal(os.Interrupt)
	if errors.Is(e, os.ErrProcessDone) {
		return nil
	}
	return e
}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	e := cmd.Process.Kill()
	if errors.Is(e, os.ErrProcessDone) {
		return nil
	}
	return e
}
