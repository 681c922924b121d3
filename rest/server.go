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
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gdamore/gamevisor"
	"github.com/gorilla/mux"
)

// pollSlice bounds each wait of a long poll, so that a departed client
// is noticed.
const pollSlice = time.Second

// Handler wraps a Gamevisor, adding http.Handler functionality.
type Handler struct {
	g      *gamevisor.Gamevisor
	r      *mux.Router
	logger *log.Logger
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeTagged(w http.ResponseWriter, etag int64, v interface{}) {
	w.Header().Set("Etag", formatEtag(etag))
	h.writeJson(w, v)
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if e.Code == http.StatusInternalServerError {
		h.logger.Printf("Request failed: %s", e.Message)
	}
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) result(w http.ResponseWriter, e error) {
	if e != nil {
		h.writeError(w, toError(e))
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if e := json.NewDecoder(r.Body).Decode(v); e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, "Bad request body: " + e.Error()})
		return false
	}
	return true
}

// longPoll waits, when asked to by the poll headers, for watch to move
// past the client's etag.  It gives up early if the client goes away.
func longPoll(r *http.Request, watch func(int64, time.Duration) int64) {
	tag := r.Header.Get(PollEtagHeader)
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if tag == "" || e != nil || secs <= 0 {
		return
	}
	if secs > MaxPollTime {
		secs = MaxPollTime
	}
	last := parseEtag(tag)
	deadline := time.Now().Add(time.Duration(secs) * time.Second)
	for r.Context().Err() == nil {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		if left > pollSlice {
			left = pollSlice
		}
		if watch(last, left) != last {
			return
		}
	}
}

func notModified(w http.ResponseWriter, r *http.Request, etag int64) bool {
	if tag := r.Header.Get("If-None-Match"); tag != "" && parseEtag(tag) == etag {
		w.Header().Set("Etag", formatEtag(etag))
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	sup := h.g.Supervisor
	longPoll(r, sup.WatchProcesses)
	info := sup.GetInfo()
	if !notModified(w, r, info.Serial) {
		h.writeTagged(w, info.Serial, info)
	}
}

func (h *Handler) listProcesses(w http.ResponseWriter, r *http.Request) {
	sup := h.g.Supervisor
	longPoll(r, sup.WatchProcesses)
	serial := sup.Serial()
	if !notModified(w, r, serial) {
		h.writeTagged(w, serial, sup.List())
	}
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	if info, e := h.g.Supervisor.Info(mux.Vars(r)["id"]); e != nil {
		h.writeError(w, toError(e))
	} else {
		h.writeJson(w, info)
	}
}

func (h *Handler) sendInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if h.decode(w, r, &req) {
		h.result(w, h.g.Supervisor.SendInput(mux.Vars(r)["id"], req.Line))
	}
}

func (h *Handler) stopProcess(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Servers.Kill(mux.Vars(r)["id"]))
}

func (h *Handler) listServers(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.g.Servers.Status())
}

func (h *Handler) getServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, st := range h.g.Servers.Status() {
		if st.Config.ID == id {
			h.writeJson(w, st)
			return
		}
	}
	h.writeError(w, toError(gamevisor.ErrNoServer))
}

func (h *Handler) addServer(w http.ResponseWriter, r *http.Request) {
	cfg := gamevisor.NewServerConfig("", "", "", "")
	if h.decode(w, r, &cfg) {
		h.result(w, h.g.Servers.Store().Add(cfg))
	}
}

func (h *Handler) removeServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.g.Supervisor.IsAlive(id) {
		h.writeError(w, toError(gamevisor.ErrAlreadyRunning))
		return
	}
	h.result(w, h.g.Servers.Store().Remove(id))
}

func (h *Handler) startServer(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Servers.StartServer(mux.Vars(r)["id"]))
}

func (h *Handler) stopServer(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Servers.StopServer(mux.Vars(r)["id"]))
}

func (h *Handler) enableServer(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Servers.Store().SetEnabled(mux.Vars(r)["id"], true))
}

func (h *Handler) disableServer(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Servers.Store().SetEnabled(mux.Vars(r)["id"], false))
}

func (h *Handler) setAutoRestart(w http.ResponseWriter, r *http.Request) {
	on := r.Method == http.MethodPost
	h.result(w, h.g.Servers.Store().SetAutoRestart(mux.Vars(r)["id"], on))
}

func (h *Handler) listScreens(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.g.Screens.Screens())
}

func (h *Handler) createScreen(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Screens.CreateScreen(mux.Vars(r)["id"]))
}

func (h *Handler) removeScreen(w http.ResponseWriter, r *http.Request) {
	h.result(w, h.g.Screens.RemoveScreen(mux.Vars(r)["id"]))
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	scr := h.g.Screens
	longPoll(r, func(last int64, d time.Duration) int64 {
		rv, _ := scr.WatchHistory(id, last, d)
		return rv
	})
	recs, etag, e := scr.History(id, 0)
	if e != nil {
		h.writeError(w, toError(e))
	} else if !notModified(w, r, etag) {
		h.writeTagged(w, etag, recs)
	}
}

func (h *Handler) getMonitor(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.g.Monitor.Status())
}

func (h *Handler) pollMonitor(w http.ResponseWriter, r *http.Request) {
	h.g.Monitor.Poll()
	h.writeJson(w, h.g.Monitor.Status())
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	sup := h.g.Supervisor
	longPoll(r, sup.WatchLog)
	recs, etag := sup.GetLog(0)
	if !notModified(w, r, etag) {
		h.writeTagged(w, etag, recs)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(g *gamevisor.Gamevisor) *Handler {
	r := mux.NewRouter()
	h := &Handler{g: g, r: r, logger: g.Supervisor.Logger("rest")}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")

	r.HandleFunc("/processes", h.listProcesses).Methods("GET")
	r.HandleFunc("/processes/{id}", h.getProcess).Methods("GET")
	r.HandleFunc("/processes/{id}/input", h.sendInput).Methods("POST")
	r.HandleFunc("/processes/{id}/stop", h.stopProcess).Methods("POST")

	r.HandleFunc("/servers", h.listServers).Methods("GET")
	r.HandleFunc("/servers", h.addServer).Methods("POST")
	r.HandleFunc("/servers/{id}", h.getServer).Methods("GET")
	r.HandleFunc("/servers/{id}", h.removeServer).Methods("DELETE")
	r.HandleFunc("/servers/{id}/start", h.startServer).Methods("POST")
	r.HandleFunc("/servers/{id}/stop", h.stopServer).Methods("POST")
	r.HandleFunc("/servers/{id}/enable", h.enableServer).Methods("POST")
	r.HandleFunc("/servers/{id}/disable", h.disableServer).Methods("POST")
	r.HandleFunc("/servers/{id}/autorestart", h.setAutoRestart).Methods("POST", "DELETE")

	r.HandleFunc("/screens", h.listScreens).Methods("GET")
	r.HandleFunc("/screens/{id}", h.createScreen).Methods("POST")
	r.HandleFunc("/screens/{id}", h.removeScreen).Methods("DELETE")
	r.HandleFunc("/screens/{id}/history", h.getHistory).Methods("GET")

	r.HandleFunc("/monitor", h.getMonitor).Methods("GET")
	r.HandleFunc("/monitor/poll", h.pollMonitor).Methods("POST")
	return h
}
