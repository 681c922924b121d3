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
	"strings"
)

// Category classifies a line of screen output.  Pumps produce Info and
// Error lines; the other categories are produced by the supervisor itself.
type Category int

const (
	CategoryInfo    Category = iota // process stdout
	CategoryError                   // process stderr, failures
	CategoryWarning                 // supervisor warnings (restarts etc.)
	CategoryInput                   // operator input echoed back
	CategorySystem                  // supervisor notices
)

var categoryNames = []string{
	CategoryInfo:    "info",
	CategoryError:   "error",
	CategoryWarning: "warning",
	CategoryInput:   "input",
	CategorySystem:  "system",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "info"
	}
	return categoryNames[c]
}

// ParseCategory is the inverse of String.  Unknown names map to
// CategoryInfo.
func ParseCategory(s string) Category {
	s = strings.ToLower(s)
	for i, n := range categoryNames {
		if n == s {
			return Category(i)
		}
	}
	return CategoryInfo
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if e := json.Unmarshal(b, &s); e != nil {
		return e
	}
	*c = ParseCategory(s)
	return nil
}

// Broadcaster receives lines produced on behalf of a process.  The
// Multiplexer is the usual implementation.
type Broadcaster interface {
	Broadcast(id string, text string, cat Category)
}

// discard is used until a real Broadcaster is attached.
type discard struct{}

func (discard) Broadcast(string, string, Category) {}
