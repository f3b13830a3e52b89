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
	"context"
	"sync"
	"time"
)

// RecoveryType Daemon 级恢复类型；与连续性引擎的 RebirthEvent 分属两个故障域
// （进程存活 vs 语义连续性），刻意不合并
type RecoveryType string

const (
	RecoveryColdStart RecoveryType = "cold_start"
	RecoveryCrash     RecoveryType = "crash_recovery"
	RecoveryWatchdog  RecoveryType = "watchdog_recovery"
	RecoveryManual    RecoveryType = "manual_recovery"
)

// StateRestored 恢复时从快照取回的关键状态
type StateRestored struct {
	Confidence        int  `json:"confidence"`
	Autonomy          int  `json:"autonomy"`
	PatternsPreserved bool `json:"patterns_preserved"`
}

// RecoveryEvent 一次 Daemon 恢复的审计记录
type RecoveryEvent struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Type          RecoveryType  `json:"type"`
	SnapshotUsed  string        `json:"snapshot_used,omitempty"`
	CycleRestored int           `json:"cycle_restored"`
	StateRestored StateRestored `json:"state_restored"`
	Notes         string        `json:"notes"`
}

// RecoverySink 恢复事件的外部归档出口（如 archive 包）；可为 nil
type RecoverySink interface {
	AppendRecovery(ctx context.Context, ev RecoveryEvent) error
}

// recoveryHistory RecoveryEvent 的有界历史
type recoveryHistory struct {
	mu  sync.RWMutex
	buf []RecoveryEvent
	cap int
}

func newRecoveryHistory(capacity int) *recoveryHistory {
	if capacity <= 0 {
		capacity = 50
	}
	return &recoveryHistory{cap: capacity}
}

func (h *recoveryHistory) add(ev RecoveryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = append(h.buf, ev)
	if len(h.buf) > h.cap {
		h.buf = h.buf[len(h.buf)-h.cap:]
	}
}

// recent 最近 n 条，新到旧
func (h *recoveryHistory) recent(n int) []RecoveryEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.buf) {
		n = len(h.buf)
	}
	out := make([]RecoveryEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, h.buf[len(h.buf)-1-i])
	}
	return out
}
