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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id       int64     `json:"id,string"`
	Time     time.Time `json:"time"`
	Text     string    `json:"text"`
	Category Category  `json:"category"`
}

// Log is a fixed capacity ring of LogRecords.  Once full, the oldest
// record is overwritten by each new one.  Readers can block in Watch
// until something new arrives.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	now        func() time.Time
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

func (log *Log) append(text string, cat Category) LogRecord {
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx] = LogRecord{
		Id:       log.id,
		Time:     log.now(),
		Text:     text,
		Category: cat,
	}
	// NB: numRecords may be more than maxRecords, in which case we
	// have wrapped.  It still tells us the next index.
	log.numRecords++
	return log.records[idx]
}

func (log *Log) wake() {
	for cv := range log.cvs {
		cv.Broadcast()
	}
}

// Write implements the Writer interface consumed by Logger.  Each line
// becomes a separate CategoryInfo record.
func (log *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	log.lock()
	for _, line := range strings.Split(str, "\n") {
		log.append(line, CategoryInfo)
	}
	log.wake()
	log.unlock()
	return len(b), nil
}

// Append adds a single record with the given category, and returns it.
// The text is stored verbatim, embedded newlines included.
func (log *Log) Append(text string, cat Category) LogRecord {
	log.lock()
	rec := log.append(text, cat)
	log.wake()
	log.unlock()
	return rec
}

// Len returns the number of records currently held, never more than
// the capacity.
func (log *Log) Len() int {
	log.lock()
	defer log.unlock()
	if log.numRecords > log.maxRecords {
		return log.maxRecords
	}
	return log.numRecords
}

// Cap returns the capacity of the log.
func (log *Log) Cap() int {
	return log.maxRecords
}

// tail returns up to n of the most recent records, oldest first.
// Caller must hold the lock.
func (log *Log) tail(n int) []LogRecord {
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	if n >= 0 && n < cnt {
		cnt = n
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs
}

// Tail returns up to n of the most recent records, oldest first.
func (log *Log) Tail(n int) []LogRecord {
	log.lock()
	defer log.unlock()
	return log.tail(n)
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  The last parameter can be the last ID
// that was checked, in which case this function will return nil immediately
// if the log has not changed since that ID was returned, without duplicating
// any records.  Note that IDs are not unique across different Log instances.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	return log.tail(-1), log.id
}

// Watch waits until the log id moves away from last, or until expire
// elapses, and returns the id at that point.  A zero expire returns
// immediately.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for log.id == last && !expired {
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding at most max records.  A max of zero or
// less means MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	log := &Log{
		records:    make([]LogRecord, max),
		maxRecords: max,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
		now:        time.Now,
	}
	return log
}
