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

package mind

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-daemon/internal/agent"
	"agent-daemon/internal/daemon"
	"agent-daemon/internal/guard"
	"agent-daemon/internal/model/llm"
	"agent-daemon/internal/notify"
	"agent-daemon/pkg/log"
)

type captureNotifier struct {
	mu      sync.Mutex
	notices []notify.CycleNotice
}

func (n *captureNotifier) PublishCycle(ctx context.Context, notice notify.CycleNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *captureNotifier) Close() error { return nil }

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Generate(prompt string, o llm.GenerateOptions) (string, error) {
	return s.reply, s.err
}

func (s *stubLLM) GenerateWithContext(ctx context.Context, prompt string, o llm.GenerateOptions) (string, error) {
	return s.reply, s.err
}

func (s *stubLLM) Model() string        { return "stub" }
func (s *stubLLM) Provider() string     { return "stub" }
func (s *stubLLM) SetAPIKey(key string) {}

func newParts() (*agent.State, *agent.EvolutionTracker, *agent.MemoryBank) {
	return agent.NewState(), agent.NewEvolutionTracker(), agent.NewMemoryBank(nil, 0)
}

func TestEngine_HeuristicCycle(t *testing.T) {
	state, evo, mem := newParts()
	notifier := &captureNotifier{}
	e := NewEngine(state, evo, mem, guard.NewGate(), nil, notifier, log.Nop())

	before := evo.ExportSummary().Version
	res := e.RunOneCycle(context.Background(), daemon.CycleRequest{Cycle: 1})

	require.True(t, res.Success)
	assert.Equal(t, "heuristic", res.Stats["reflection_source"])
	assert.Equal(t, 1, state.CycleCount())
	assert.Equal(t, agent.DefaultConfidence+1, state.Confidence())
	assert.Equal(t, before+1, evo.ExportSummary().Version)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, 1, notifier.notices[0].Cycle)
}

func TestEngine_LLMReflectionApplied(t *testing.T) {
	state, evo, mem := newParts()
	client := &stubLLM{reply: `{"confidence_delta":3,"doubt_delta":0,"energy_delta":-2,"mode":"reflecting","focus":"deep work","lesson":"small steps"}`}
	e := NewEngine(state, evo, mem, guard.NewGate(), client, nil, log.Nop())

	res := e.RunOneCycle(context.Background(), daemon.CycleRequest{Cycle: 1})
	require.True(t, res.Success)
	assert.Equal(t, "llm", res.Stats["reflection_source"])
	assert.Equal(t, agent.DefaultConfidence+3, state.Confidence())
	assert.Equal(t, agent.DefaultEnergyLevel-2, state.EnergyLevel())
	assert.Equal(t, "reflecting", state.Mode())
	assert.Equal(t, "deep work", state.CurrentFocus())
	assert.Equal(t, 1, mem.ExportSummary().LessonCount)
}

func TestEngine_LLMFencedOutput(t *testing.T) {
	state, evo, mem := newParts()
	client := &stubLLM{reply: "```json\n{\"confidence_delta\":1,\"focus\":\"fenced\"}\n```"}
	e := NewEngine(state, evo, mem, nil, client, nil, log.Nop())

	res := e.RunOneCycle(context.Background(), daemon.CycleRequest{Cycle: 2})
	require.True(t, res.Success)
	assert.Equal(t, "llm", res.Stats["reflection_source"])
	assert.Equal(t, "fenced", state.CurrentFocus())
}

func TestEngine_LLMFailureFallsBackToHeuristic(t *testing.T) {
	state, evo, mem := newParts()
	client := &stubLLM{err: errors.New("api unreachable")}
	e := NewEngine(state, evo, mem, nil, client, nil, log.Nop())

	res := e.RunOneCycle(context.Background(), daemon.CycleRequest{Cycle: 1})
	require.True(t, res.Success, "LLM 故障不等于循环失败")
	assert.Equal(t, "heuristic", res.Stats["reflection_source"])
	assert.Equal(t, 1, state.CycleCount())
}

func TestEngine_AfterRestartLeavesLesson(t *testing.T) {
	state, evo, mem := newParts()
	e := NewEngine(state, evo, mem, nil, nil, nil, log.Nop())

	e.RunOneCycle(context.Background(), daemon.CycleRequest{Cycle: 43, AfterRestart: true})
	lessons := mem.ActiveLessons()
	require.Len(t, lessons, 1)
	assert.Contains(t, lessons[0], "重启后")
}
