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
	"sort"
	"sync"
)

// 出厂默认值；冷启动恢复的断言点：从快照恢复时不得回落到这些值
const (
	DefaultConfidence  = 75
	DefaultEnergyLevel = 100
	DefaultAutonomy    = 30
	DefaultMode        = "observing"
)

// RealityMetrics 现实校验指标摘要（由外部评分引擎喂入，这里只承载）
type RealityMetrics struct {
	Stability             float64 `json:"stability"`
	Evolution             float64 `json:"evolution"`
	Autonomy              float64 `json:"autonomy"`
	ConsecutiveMismatches int     `json:"consecutive_mismatches"`
}

// ReflectionOutcome 一次反思对活体状态的调整量
type ReflectionOutcome struct {
	ConfidenceDelta int
	DoubtDelta      int
	EnergyDelta     int
	Mode            string // 空则不变
	Focus           string // 空则不变
}

// State Agent 活体状态聚合；Daemon 快照与 Mind 反思共用，读写都走锁
type State struct {
	mu            sync.RWMutex
	cycleCount    int
	confidence    int
	doubts        int
	energyLevel   int
	mode          string
	currentFocus  string
	autonomyLevel int
	constraints   map[string]struct{}
	reality       RealityMetrics
	desireSummary string
	rebootCount   int
}

// NewState 创建出厂默认状态
func NewState() *State {
	return &State{
		confidence:    DefaultConfidence,
		energyLevel:   DefaultEnergyLevel,
		autonomyLevel: DefaultAutonomy,
		mode:          DefaultMode,
		constraints:   make(map[string]struct{}),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyReflection 应用一次反思结果；confidence/energy 钳制在 0..100
func (s *State) ApplyReflection(o ReflectionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidence = clamp(s.confidence+o.ConfidenceDelta, 0, 100)
	s.doubts += o.DoubtDelta
	if s.doubts < 0 {
		s.doubts = 0
	}
	s.energyLevel = clamp(s.energyLevel+o.EnergyDelta, 0, 100)
	if o.Mode != "" {
		s.mode = o.Mode
	}
	if o.Focus != "" {
		s.currentFocus = o.Focus
	}
}

// IncrementCycle 完成一个循环后计数 +1
func (s *State) IncrementCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleCount++
	return s.cycleCount
}

// Restore 从快照恢复关键字段；只覆盖持久化过的值，不重置为默认
func (s *State) Restore(cycleCount, confidence, doubts, energy, autonomy, rebootCount int, mode, focus string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleCount = cycleCount
	s.confidence = clamp(confidence, 0, 100)
	s.doubts = doubts
	s.energyLevel = clamp(energy, 0, 100)
	s.autonomyLevel = clamp(autonomy, 0, 100)
	s.rebootCount = rebootCount
	if mode != "" {
		s.mode = mode
	}
	s.currentFocus = focus
}

// MarkReboot 本次进程启动计入重启次数（冷启动路径调用一次）
func (s *State) MarkReboot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebootCount++
	return s.rebootCount
}

func (s *State) CycleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycleCount
}

func (s *State) Confidence() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confidence
}

func (s *State) Doubts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doubts
}

func (s *State) EnergyLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.energyLevel
}

func (s *State) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *State) CurrentFocus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentFocus
}

func (s *State) AutonomyLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autonomyLevel
}

func (s *State) SetAutonomyLevel(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autonomyLevel = clamp(v, 0, 100)
}

func (s *State) RebootCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rebootCount
}

// AddConstraint 登记一条活动约束（幂等）
func (s *State) AddConstraint(c string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints[c] = struct{}{}
}

// Constraints 返回排序后的活动约束副本
func (s *State) Constraints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.constraints))
	for c := range s.constraints {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *State) SetReality(m RealityMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reality = m
}

func (s *State) Reality() RealityMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reality
}

func (s *State) SetDesireSummary(d string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desireSummary = d
}

func (s *State) DesireSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desireSummary
}
