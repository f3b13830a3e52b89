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

package continuity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"agent-daemon/internal/agent"
)

// Source 指纹来源子系统
type Source string

const (
	SourceIdentity  Source = "identity"
	SourceEvolution Source = "evolution"
	SourceMemory    Source = "memory"
)

// Fingerprint 对某个子系统状态固定投影的哈希。
// 每次启动检查都新鲜计算，只随 ContinuityRecord 持久化。
type Fingerprint struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Source    Source    `json:"source"`
}

// Status 连续性结论
type Status string

const (
	StatusOK       Status = "OK"
	StatusDegraded Status = "DEGRADED"
	StatusBroken   Status = "BROKEN"
)

// Record 一轮运行的连续性记录；内存里只有一份 current，
// 启动时旧 current 先进有界历史再被替换
type Record struct {
	Identity     Fingerprint `json:"identity_fingerprint"`
	Evolution    Fingerprint `json:"evolution_fingerprint"`
	Memory       Fingerprint `json:"memory_fingerprint"`
	LastVerified time.Time   `json:"last_verified"`
	Status       Status      `json:"status"`
}

// Severity 不连续严重度，critical 最高
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeveritySevere:   3,
	SeverityCritical: 4,
}

// DiscontinuityReport 启动比对的纯计算结果，不持久化；
// 最高严重度生效，但所有命中的细节都会记录
type DiscontinuityReport struct {
	Detected         bool     `json:"detected"`
	IdentityMismatch bool     `json:"identity_mismatch"`
	EvolutionGap     bool     `json:"evolution_gap"`
	MemoryMissing    bool     `json:"memory_missing"`
	Severity         Severity `json:"severity"`
	Details          []string `json:"details"`
}

// RecoverySource 重生恢复的数据来源
type RecoverySource string

const (
	RecoverFromIdentityCore    RecoverySource = "identity_core"
	RecoverFromDistilledMemory RecoverySource = "distilled_memory"
	RecoverFromEvolutionLogs   RecoverySource = "evolution_logs"
	RecoverFromFreshStart      RecoverySource = "fresh_start"
)

// RebirthEvent 一次重生恢复的审计记录；与 Daemon 的 RecoveryEvent 分属不同故障域
type RebirthEvent struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Cause          string         `json:"cause"`
	LostParts      []string       `json:"lost_parts"`
	RecoveredParts []string       `json:"recovered_parts"`
	RemainingGaps  []string       `json:"remaining_gaps"`
	RecoverySource RecoverySource `json:"recovery_source"`
	PreviousStatus Status         `json:"previous_status"`
	NewStatus      Status         `json:"new_status"`
}

// IdentitySource 身份子系统的指纹/恢复查询口
type IdentitySource interface {
	ExportSummary() agent.IdentitySummary
	CoreValues() []string
}

// EvolutionSource 演化子系统的指纹/恢复查询口
type EvolutionSource interface {
	ExportSummary() agent.EvolutionSummary
	RecentLog(n int) []string
}

// MemorySource 记忆子系统的指纹/恢复查询口
type MemorySource interface {
	ExportSummary() agent.MemorySummary
	CoreIdentityItems() []string
	ActiveLessons() []string
}

// 指纹只哈希显式挑选的投影，无关字段变化不算漂移

type identityProjection struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type evolutionProjection struct {
	BehaviorPatternHash string `json:"behavior_pattern_hash"`
}

type memoryProjection struct {
	HasCoreItems bool `json:"has_core_items"`
	HasLessons   bool `json:"has_lessons"`
}

func hashProjection(v any) string {
	payload, _ := json.Marshal(v)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// FingerprintIdentity 身份指纹：投影 {name, values}；version 单独携带，
// 使"版本变了但内容没变"可以被区分
func FingerprintIdentity(s agent.IdentitySummary) Fingerprint {
	return Fingerprint{
		Hash:      hashProjection(identityProjection{Name: s.Name, Values: s.Values}),
		Timestamp: time.Now(),
		Version:   s.Version,
		Source:    SourceIdentity,
	}
}

// FingerprintEvolution 演化指纹：投影 {behavior_pattern_hash}；version 携带计数器
func FingerprintEvolution(s agent.EvolutionSummary) Fingerprint {
	return Fingerprint{
		Hash:      hashProjection(evolutionProjection{BehaviorPatternHash: s.BehaviorPatternHash}),
		Timestamp: time.Now(),
		Version:   strconv.Itoa(s.Version),
		Source:    SourceEvolution,
	}
}

// FingerprintMemory 记忆指纹：投影只看有无，条数增长不算漂移
func FingerprintMemory(s agent.MemorySummary) Fingerprint {
	return Fingerprint{
		Hash:      hashProjection(memoryProjection{HasCoreItems: s.CoreItemCount > 0, HasLessons: s.LessonCount > 0}),
		Timestamp: time.Now(),
		Source:    SourceMemory,
	}
}
