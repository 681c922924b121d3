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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gdamore/gamevisor"
)

// LogInfo is a snapshot of a log, either the daemon's own or the
// history of a screen.  Hand it back to the Watch calls to wait for the
// next change.
type LogInfo struct {
	etag    string
	Records []gamevisor.LogRecord
}

type Client struct {
	base      string // URI to root of tree on server
	client    *http.Client
	transport *http.Transport
}

func (c *Client) url(parts ...string) string {
	u := c.base
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) get(ctx context.Context, url string, v interface{}) error {
	_, e := c.poll(ctx, url, "", 0, v)
	return e
}

// readError recovers the Error the server sent, or makes one up from
// the status line.
func readError(res *http.Response) error {
	e := &Error{}
	if b, err := io.ReadAll(res.Body); err == nil && json.Unmarshal(b, e) == nil && e.Message != "" {
		e.Code = res.StatusCode
		return e
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

func (c *Client) send(ctx context.Context, method string, url string, body interface{}, v interface{}) error {
	var r io.Reader = strings.NewReader("")
	if body != nil {
		b, e := json.Marshal(body)
		if e != nil {
			return e
		}
		r = bytes.NewReader(b)
	}
	req, e := http.NewRequestWithContext(ctx, method, url, r)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeJson)
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	if v != nil {
		return json.NewDecoder(res.Body).Decode(v)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string) error {
	return c.send(ctx, "POST", url, nil, nil)
}

// Info returns the name and process table serial of the daemon.
func (c *Client) Info(ctx context.Context) (*gamevisor.SupervisorInfo, error) {
	info := &gamevisor.SupervisorInfo{}
	if e := c.get(ctx, c.base+"/", info); e != nil {
		return nil, e
	}
	return info, nil
}

// Watch waits for the process table to move past etag, for up to the
// longest poll the server allows, and returns the etag then current.
// An empty etag returns the current one right away.
func (c *Client) Watch(ctx context.Context, etag string) (string, error) {
	info := &gamevisor.SupervisorInfo{}
	wait := MaxPollTime
	if etag == "" {
		wait = 0
	}
	ntag, e := c.poll(ctx, c.base+"/", etag, wait, info)
	if e != nil {
		return "", e
	}
	if ntag == "" {
		return etag, nil
	}
	return ntag, nil
}

func (c *Client) Processes(ctx context.Context) ([]gamevisor.ProcessInfo, error) {
	var v []gamevisor.ProcessInfo
	if e := c.get(ctx, c.url("processes"), &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) Process(ctx context.Context, id string) (*gamevisor.ProcessInfo, error) {
	v := &gamevisor.ProcessInfo{}
	if e := c.get(ctx, c.url("processes", id), v); e != nil {
		return nil, e
	}
	return v, nil
}

// SendInput writes one line to the standard input of a process.
func (c *Client) SendInput(ctx context.Context, id string, line string) error {
	return c.send(ctx, "POST", c.url("processes", id, "input"), &InputRequest{Line: line}, nil)
}

func (c *Client) StopProcess(ctx context.Context, id string) error {
	return c.post(ctx, c.url("processes", id, "stop"))
}

func (c *Client) Servers(ctx context.Context) ([]gamevisor.ServerStatus, error) {
	var v []gamevisor.ServerStatus
	if e := c.get(ctx, c.url("servers"), &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) Server(ctx context.Context, id string) (*gamevisor.ServerStatus, error) {
	v := &gamevisor.ServerStatus{}
	if e := c.get(ctx, c.url("servers", id), v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) AddServer(ctx context.Context, cfg gamevisor.ServerConfig) error {
	return c.send(ctx, "POST", c.url("servers"), cfg, nil)
}

func (c *Client) RemoveServer(ctx context.Context, id string) error {
	return c.send(ctx, "DELETE", c.url("servers", id), nil, nil)
}

func (c *Client) postServer(ctx context.Context, id string, action string) error {
	return c.post(ctx, c.url("servers", id, action))
}

func (c *Client) StartServer(ctx context.Context, id string) error {
	return c.postServer(ctx, id, "start")
}

func (c *Client) StopServer(ctx context.Context, id string) error {
	return c.postServer(ctx, id, "stop")
}

func (c *Client) EnableServer(ctx context.Context, id string) error {
	return c.postServer(ctx, id, "enable")
}

func (c *Client) DisableServer(ctx context.Context, id string) error {
	return c.postServer(ctx, id, "disable")
}

func (c *Client) SetAutoRestart(ctx context.Context, id string, on bool) error {
	if on {
		return c.postServer(ctx, id, "autorestart")
	}
	return c.send(ctx, "DELETE", c.url("servers", id, "autorestart"), nil, nil)
}

func (c *Client) Screens(ctx context.Context) ([]gamevisor.ScreenInfo, error) {
	var v []gamevisor.ScreenInfo
	if e := c.get(ctx, c.url("screens"), &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) CreateScreen(ctx context.Context, id string) error {
	return c.post(ctx, c.url("screens", id))
}

func (c *Client) RemoveScreen(ctx context.Context, id string) error {
	return c.send(ctx, "DELETE", c.url("screens", id), nil, nil)
}

func (c *Client) Monitor(ctx context.Context) ([]gamevisor.MonitorStatus, error) {
	var v []gamevisor.MonitorStatus
	if e := c.get(ctx, c.url("monitor"), &v); e != nil {
		return nil, e
	}
	return v, nil
}

// PollMonitor runs a crash monitor cycle now, and returns the result.
func (c *Client) PollMonitor(ctx context.Context) ([]gamevisor.MonitorStatus, error) {
	var v []gamevisor.MonitorStatus
	if e := c.send(ctx, "POST", c.url("monitor", "poll"), nil, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, url string, secs int, last *LogInfo) (*LogInfo, error) {
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}
	v := &LogInfo{}
	etag, e := c.poll(ctx, url, otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// GetLog returns the daemon's own log.
func (c *Client) GetLog(ctx context.Context) (*LogInfo, error) {
	return c.pollLog(ctx, c.url("log"), 0, nil)
}

// WatchLog waits for the daemon's log to change from last.  It returns
// last itself if nothing changed before the poll expired.
func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, c.url("log"), MaxPollTime, last)
}

// GetHistory returns the scrollback of a screen.
func (c *Client) GetHistory(ctx context.Context, id string) (*LogInfo, error) {
	return c.pollLog(ctx, c.url("screens", id, "history"), 0, nil)
}

// WatchHistory is WatchLog for the scrollback of a screen.
func (c *Client) WatchHistory(ctx context.Context, id string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, c.url("screens", id, "history"), MaxPollTime, last)
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		transport: t,
		base:      strings.TrimSuffix(baseURI, "/"),
		client:    &http.Client{Transport: t},
	}
}
