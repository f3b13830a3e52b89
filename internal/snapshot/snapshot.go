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

package snapshot

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"time"
)

// SchemaVersion 快照结构版本；字段演进时递增
const SchemaVersion = 1

// AgentStateSummary 快照内的 Agent 活体状态投影
type AgentStateSummary struct {
	CycleCount   int    `json:"cycle_count"`
	Confidence   int    `json:"confidence"`
	Doubts       int    `json:"doubts"`
	EnergyLevel  int    `json:"energy_level"`
	Mode         string `json:"mode"`
	CurrentFocus string `json:"current_focus"`
}

// RealityMetricsSummary 现实校验指标投影
type RealityMetricsSummary struct {
	Stability             float64 `json:"stability"`
	Evolution             float64 `json:"evolution"`
	Autonomy              float64 `json:"autonomy"`
	ConsecutiveMismatches int     `json:"consecutive_mismatches"`
}

// GovernanceState 治理状态；reboot_count 持久化在快照里，首启判定不靠内存计数
type GovernanceState struct {
	RebootCount      int    `json:"reboot_count"`
	EvolutionVersion int    `json:"evolution_version"`
	Mode             string `json:"mode"`
}

// StateSnapshot 周期性落盘的状态快照；checksum 只覆盖固定子集（见 Checksum）
type StateSnapshot struct {
	ID                  string                `json:"id"`
	Timestamp           time.Time             `json:"timestamp"`
	Cycle               int                   `json:"cycle"`
	SchemaVersion       int                   `json:"schema_version"`
	AgentState          AgentStateSummary     `json:"agent_state"`
	AutonomyLevel       int                   `json:"autonomy_level"`
	ActiveConstraints   []string              `json:"active_constraints"`
	RealityMetrics      RealityMetricsSummary `json:"reality_metrics_summary"`
	BehaviorPatternHash string                `json:"behavior_pattern_hash"`
	DesireSummary       string                `json:"desire_state_summary"`
	Governance          GovernanceState       `json:"governance_state"`
	Checksum            string                `json:"checksum"`
}

// checksumFields 校验和覆盖的固定子集；结构体定义固定了序列化顺序，
// 哈希因此对顺序敏感且确定
type checksumFields struct {
	Cycle         int               `json:"cycle"`
	AgentState    AgentStateSummary `json:"agent_state"`
	AutonomyLevel int               `json:"autonomy_level"`
}

// Checksum 计算快照校验和：FNV-64a over {cycle, agent_state, autonomy_level}。
// 非加密哈希，目标是检测意外损坏而不是防篡改；其余字段变化不影响校验和。
func Checksum(s *StateSnapshot) string {
	payload, _ := json.Marshal(checksumFields{
		Cycle:         s.Cycle,
		AgentState:    s.AgentState,
		AutonomyLevel: s.AutonomyLevel,
	})
	h := fnv.New64a()
	h.Write(payload)
	return strconv.FormatUint(h.Sum64(), 16)
}

// VerifyChecksum 重算校验和并与记录值比对
func VerifyChecksum(s *StateSnapshot) bool {
	return s.Checksum != "" && s.Checksum == Checksum(s)
}
