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

package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// EvolutionSummary 进化子系统对外导出的投影
type EvolutionSummary struct {
	Version             int    `json:"version"`
	BehaviorPatternHash string `json:"behavior_pattern_hash"`
}

// EvolutionTracker 进化追踪：版本计数器与行为模式哈希
// 哈希按 prev|focus|outcome 链式滚动，同一行为序列产出同一哈希
type EvolutionTracker struct {
	mu           sync.RWMutex
	version      int
	behaviorHash string
	log          []string
	maxLog       int
}

// NewEvolutionTracker 创建进化追踪器
func NewEvolutionTracker() *EvolutionTracker {
	return &EvolutionTracker{
		behaviorHash: seedHash(),
		maxLog:       50,
	}
}

func seedHash() string {
	h := sha256.Sum256([]byte("genesis"))
	return hex.EncodeToString(h[:])
}

// AdvanceCycle 每个完成的循环推进一次：滚动行为哈希并递增版本
func (t *EvolutionTracker) AdvanceCycle(focus string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := sha256.New()
	h.Write([]byte(t.behaviorHash))
	h.Write([]byte("|"))
	h.Write([]byte(focus))
	h.Write([]byte("|"))
	h.Write([]byte(fmt.Sprintf("%t", success)))
	t.behaviorHash = hex.EncodeToString(h.Sum(nil))
	t.version++
	entry := fmt.Sprintf("%s v%d focus=%q success=%t", time.Now().Format(time.RFC3339), t.version, focus, success)
	t.log = append(t.log, entry)
	if len(t.log) > t.maxLog {
		t.log = t.log[len(t.log)-t.maxLog:]
	}
}

// Restore 从快照恢复行为哈希与版本（不回退到种子值）
func (t *EvolutionTracker) Restore(version int, behaviorHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if version > 0 {
		t.version = version
	}
	if behaviorHash != "" {
		t.behaviorHash = behaviorHash
	}
}

// ExportSummary 导出投影
func (t *EvolutionTracker) ExportSummary() EvolutionSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return EvolutionSummary{Version: t.version, BehaviorPatternHash: t.behaviorHash}
}

// BehaviorPatternHash 当前行为模式哈希
func (t *EvolutionTracker) BehaviorPatternHash() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.behaviorHash
}

// RecentLog 最近 n 条进化日志（重生恢复时作为 evolution_logs 来源）
func (t *EvolutionTracker) RecentLog(n int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.log) {
		n = len(t.log)
	}
	out := make([]string, n)
	copy(out, t.log[len(t.log)-n:])
	return out
}
