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

//go:build !(plan9 || js || wasip1)

package main

import (
	"log"
	"os"

	"github.com/gdamore/gamevisor/gamevisor/ui"
	"github.com/gdamore/gamevisor/rest"
)

func doUI(client *rest.Client, url string) error {
	app := ui.NewApp(client, url)
	if path := os.Getenv("GAMEVISOR_UILOG"); path != "" {
		f, e := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if e != nil {
			return e
		}
		defer f.Close()
		app.SetLogger(log.New(f, "ui: ", log.LstdFlags))
	}
	return app.Run()
}

/*
   Our screen has the following appearance:

                        http://127.0.0.1:8321               Gamevisor v1.0
        4 Servers      2 Running      1 Restarting      1 Crashed
   ____________________________________________________________________________
   modpack              quilt      crashed               gave up after 3
   lobby                paper      running       4:10:32   0 crashes
   survival             vanilla    running         12:05   1 crashes
   creative             fabric     restarting              1 tried
   ____________________________________________________________________________
   [Q] Quit [H] Help [L] Log [I] Info [C] Console [S] Stop [R] Restart ...
*/
