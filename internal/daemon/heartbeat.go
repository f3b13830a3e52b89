// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"sync"
	"time"
)

// Status 心跳状态
type Status string

const (
	StatusAlive     Status = "alive"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Heartbeat 一条心跳记录；构造后不再修改。
// 连击计数在构造时从上一条心跳推导：completed 清零失败连击，error 清零成功连击，
// running 原样携带，alive 两者归零（启动与恢复都是连击的新起点）。
type Heartbeat struct {
	Cycle                int           `json:"cycle"`
	Timestamp            time.Time     `json:"timestamp"`
	Status               Status        `json:"status"`
	CycleDuration        time.Duration `json:"cycle_duration"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
}

// HeartbeatLog 固定容量环形缓冲，只追加、旧者先淘汰
type HeartbeatLog struct {
	mu    sync.RWMutex
	buf   []Heartbeat
	start int
	size  int
}

// NewHeartbeatLog 创建心跳日志；capacity <=0 时默认 100
func NewHeartbeatLog(capacity int) *HeartbeatLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &HeartbeatLog{buf: make([]Heartbeat, capacity)}
}

// Record 追加一条心跳并返回它
func (l *HeartbeatLog) Record(cycle int, status Status, dur time.Duration) Heartbeat {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cs, cf int
	if l.size > 0 {
		prev := l.buf[(l.start+l.size-1)%len(l.buf)]
		cs, cf = prev.ConsecutiveSuccesses, prev.ConsecutiveFailures
	}
	switch status {
	case StatusCompleted:
		cs, cf = cs+1, 0
	case StatusError:
		cs, cf = 0, cf+1
	case StatusAlive:
		cs, cf = 0, 0
	case StatusRunning:
		// 携带上一条的连击不变
	}

	hb := Heartbeat{
		Cycle:                cycle,
		Timestamp:            time.Now(),
		Status:               status,
		CycleDuration:        dur,
		ConsecutiveSuccesses: cs,
		ConsecutiveFailures:  cf,
	}
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = hb
		l.size++
	} else {
		l.buf[l.start] = hb
		l.start = (l.start + 1) % len(l.buf)
	}
	return hb
}

// Latest 最近一条心跳
func (l *HeartbeatLog) Latest() (Heartbeat, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.size == 0 {
		return Heartbeat{}, false
	}
	return l.buf[(l.start+l.size-1)%len(l.buf)], true
}

// Recent 最近 n 条心跳，新到旧
func (l *HeartbeatLog) Recent(n int) []Heartbeat {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Heartbeat, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.buf[(l.start+l.size-1-i)%len(l.buf)])
	}
	return out
}

// Len 当前条数
func (l *HeartbeatLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
