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
	"io"
	"strings"
	"testing"
	"testing/iotest"

	. "github.com/smartystreets/goconvey/convey"
)

// brokenPipe yields some output and then fails the read.
func brokenPipe() io.Reader {
	return io.MultiReader(strings.NewReader("first\nsecond"),
		iotest.ErrReader(errors.New("pipe broke")))
}

func TestPump(t *testing.T) {
	Convey("Pumping a stream", t, func() {
		rec := &recorder{}
		p := &process{id: "srv1", done: make(chan struct{})}

		Convey("Forwards complete and trailing lines", func() {
			p.pump(strings.NewReader("one\r\ntwo\nthree"), rec, CategoryInfo, "Output")
			So(rec.texts("srv1"), ShouldResemble, []string{"one", "two", "three"})
		})

		Convey("A failed read of a live process adds one error line", func() {
			p.pump(brokenPipe(), rec, CategoryInfo, "Output")
			So(rec.texts("srv1"), ShouldResemble, []string{
				"first", "second", "Output reader error: pipe broke"})
			l, ok := rec.find("srv1", "reader error")
			So(ok, ShouldBeTrue)
			So(l.Category, ShouldEqual, CategoryError)
		})

		Convey("The stderr pump names itself", func() {
			p.pump(iotest.ErrReader(errors.New("gone")), rec, CategoryError, "Error")
			So(rec.texts("srv1"), ShouldResemble, []string{"Error reader error: gone"})
		})

		Convey("Nothing is added while stopping", func() {
			p.stopping.Store(true)
			p.pump(brokenPipe(), rec, CategoryInfo, "Output")
			So(rec.texts("srv1"), ShouldResemble, []string{"first", "second"})
		})

		Convey("Nothing is added once the process is gone", func() {
			close(p.done)
			p.pump(brokenPipe(), rec, CategoryInfo, "Output")
			So(rec.has("srv1", "reader error"), ShouldBeFalse)
		})
	})
}
