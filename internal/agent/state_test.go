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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Defaults(t *testing.T) {
	s := NewState()
	assert.Equal(t, DefaultConfidence, s.Confidence())
	assert.Equal(t, DefaultEnergyLevel, s.EnergyLevel())
	assert.Equal(t, DefaultAutonomy, s.AutonomyLevel())
	assert.Equal(t, DefaultMode, s.Mode())
	assert.Equal(t, 0, s.CycleCount())
}

func TestState_ApplyReflection_Clamps(t *testing.T) {
	s := NewState()
	s.ApplyReflection(ReflectionOutcome{ConfidenceDelta: 100, EnergyDelta: 50})
	assert.Equal(t, 100, s.Confidence())
	assert.Equal(t, 100, s.EnergyLevel())

	s.ApplyReflection(ReflectionOutcome{ConfidenceDelta: -300, DoubtDelta: -5, EnergyDelta: -300})
	assert.Equal(t, 0, s.Confidence())
	assert.Equal(t, 0, s.Doubts())
	assert.Equal(t, 0, s.EnergyLevel())
}

func TestState_Restore_NotResetToDefaults(t *testing.T) {
	s := NewState()
	s.Restore(42, 61, 3, 80, 55, 2, "acting", "learn go")
	assert.Equal(t, 42, s.CycleCount())
	assert.Equal(t, 61, s.Confidence())
	assert.Equal(t, 55, s.AutonomyLevel())
	assert.Equal(t, 2, s.RebootCount())
	assert.Equal(t, "acting", s.Mode())
	assert.NotEqual(t, DefaultConfidence, s.Confidence())
}

func TestEvolutionTracker_AdvanceAndRestore(t *testing.T) {
	tr := NewEvolutionTracker()
	seed := tr.BehaviorPatternHash()
	tr.AdvanceCycle("explore", true)
	tr.AdvanceCycle("explore", false)
	sum := tr.ExportSummary()
	assert.Equal(t, 2, sum.Version)
	assert.NotEqual(t, seed, sum.BehaviorPatternHash)

	// 同一序列可复现同一哈希
	tr2 := NewEvolutionTracker()
	tr2.AdvanceCycle("explore", true)
	tr2.AdvanceCycle("explore", false)
	assert.Equal(t, sum.BehaviorPatternHash, tr2.ExportSummary().BehaviorPatternHash)

	tr2.Restore(10, "deadbeef")
	restored := tr2.ExportSummary()
	assert.Equal(t, 10, restored.Version)
	assert.Equal(t, "deadbeef", restored.BehaviorPatternHash)
}

func TestMemoryBank_Bounded(t *testing.T) {
	b := NewMemoryBank([]string{"i value honesty"}, 3)
	for i := 0; i < 5; i++ {
		b.AddLesson("lesson")
	}
	sum := b.ExportSummary()
	assert.Equal(t, 1, sum.CoreItemCount)
	assert.Equal(t, 3, sum.LessonCount)
	assert.Len(t, b.ActiveLessons(), 3)
}
