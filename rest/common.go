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

package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gdamore/gamevisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader carries the etag a long poll waits to move past.
	PollEtagHeader = "X-Gamevisor-Poll-Etag"

	// PollTimeHeader is the longest a long poll may wait, in seconds.
	PollTimeHeader = "X-Gamevisor-Poll-Time"

	// MaxPollTime caps PollTimeHeader.
	MaxPollTime = 300
)

var ok struct{}

// InputRequest is the body of a POST to a process's input.
type InputRequest struct {
	Line string `json:"line"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// IsNotFound is true for errors reported with a 404.
func IsNotFound(e error) bool {
	var re *Error
	return errors.As(e, &re) && re.Code == http.StatusNotFound
}

// toError maps the errors of the gamevisor package onto HTTP statuses.
func toError(e error) *Error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(e, gamevisor.ErrNotFound),
		errors.Is(e, gamevisor.ErrNoScreen),
		errors.Is(e, gamevisor.ErrNoServer):
		code = http.StatusNotFound
	case errors.Is(e, gamevisor.ErrAlreadyRunning),
		errors.Is(e, gamevisor.ErrNotRunning),
		errors.Is(e, gamevisor.ErrScreenExists),
		errors.Is(e, gamevisor.ErrServerExists),
		errors.Is(e, gamevisor.ErrDisabled),
		errors.Is(e, gamevisor.ErrShuttingDown):
		code = http.StatusConflict
	case errors.Is(e, gamevisor.ErrBadCommand),
		errors.Is(e, gamevisor.ErrNoDirectory),
		errors.Is(e, gamevisor.ErrNoStartScript),
		errors.Is(e, gamevisor.ErrBadManifest):
		code = http.StatusBadRequest
	}
	return &Error{Code: code, Message: e.Error()}
}

func formatEtag(id int64) string {
	return `"` + strconv.FormatInt(id, 10) + `"`
}

// parseEtag returns 0, which no log or serial ever has once anything
// happened, for a missing or malformed tag.
func parseEtag(s string) int64 {
	s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
	n, e := strconv.ParseInt(strings.Trim(s, `"`), 10, 64)
	if e != nil {
		return 0
	}
	return n
}
