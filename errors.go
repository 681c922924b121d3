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
	"errors"
)

var (
	ErrNotFound       = errors.New("Process not found")
	ErrAlreadyRunning = errors.New("Process is already running")
	ErrNotRunning     = errors.New("Process is not running")
	ErrBadCommand     = errors.New("Empty command")
	ErrNoDirectory    = errors.New("Working directory does not exist")
	ErrShuttingDown   = errors.New("Supervisor is shutting down")
	ErrInterrupted    = errors.New("Input interrupted")
	ErrScreenExists   = errors.New("Screen already exists")
	ErrNoScreen       = errors.New("No screen exists for server")
	ErrNoServer       = errors.New("Server not configured")
	ErrServerExists   = errors.New("Server already configured")
	ErrNoStartScript  = errors.New("No start script found")
	ErrBadManifest    = errors.New("Bad server manifest")
	ErrDisabled       = errors.New("Server is disabled")
)
