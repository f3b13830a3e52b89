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

// Package mind 反思循环的工作单元实现。每个 tick 做一轮反思：
// 用 LLM（或内置启发式）评估当前状态，产出状态调整量，沉淀经验，
// 推进行为演化，并把结果广播出去。
package mind

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agent-daemon/internal/agent"
	"agent-daemon/internal/daemon"
	"agent-daemon/internal/guard"
	"agent-daemon/internal/model/llm"
	"agent-daemon/internal/notify"
	"agent-daemon/pkg/log"
	"agent-daemon/pkg/tracing"
)

// focusRotation 启发式反思的关注点轮换
var focusRotation = []string{
	"整理近期经验",
	"校验自我认知",
	"巩固行为模式",
	"探索新的关注方向",
}

// Engine 反思引擎；实现 daemon.UnitOfWork
type Engine struct {
	state     *agent.State
	evolution *agent.EvolutionTracker
	memory    *agent.MemoryBank
	gate      *guard.Gate
	client    llm.Client // 可为 nil，此时走启发式反思
	notifier  notify.Notifier
	logger    *log.Logger

	llmOpts llm.GenerateOptions
}

// NewEngine 创建反思引擎；client 与 notifier 都可为 nil
func NewEngine(state *agent.State, evolution *agent.EvolutionTracker, memory *agent.MemoryBank,
	gate *guard.Gate, client llm.Client, notifier notify.Notifier, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{
		state:     state,
		evolution: evolution,
		memory:    memory,
		gate:      gate,
		client:    client,
		notifier:  notifier,
		logger:    logger,
		llmOpts:   llm.GenerateOptions{Temperature: 0.7, MaxTokens: 1024},
	}
}

// SetGenerateOptions 调整 LLM 生成参数
func (e *Engine) SetGenerateOptions(opts llm.GenerateOptions) {
	e.llmOpts = opts
}

// RunOneCycle 实现 daemon.UnitOfWork
func (e *Engine) RunOneCycle(ctx context.Context, req daemon.CycleRequest) daemon.CycleResult {
	ctx, span := tracing.Tracer().Start(ctx, "reflection_cycle",
		trace.WithAttributes(
			attribute.Int("cycle", req.Cycle),
			attribute.Bool("after_restart", req.AfterRestart)))
	defer span.End()

	outcome, lesson, source := e.reflect(ctx, req)

	e.state.ApplyReflection(outcome)
	e.state.IncrementCycle()
	e.evolution.AdvanceCycle(e.state.CurrentFocus(), true)
	if lesson != "" {
		e.memory.AddLesson(lesson)
	}

	e.maybeShare(ctx, req)

	notice := notify.CycleNotice{
		Cycle:        req.Cycle,
		Timestamp:    time.Now(),
		Success:      true,
		Mode:         e.state.Mode(),
		Focus:        e.state.CurrentFocus(),
		Confidence:   e.state.Confidence(),
		AfterRestart: req.AfterRestart,
	}
	if err := e.notifier.PublishCycle(ctx, notice); err != nil {
		e.logger.Warn("循环通知发布失败", "cycle", req.Cycle, "error", err)
	}

	span.SetAttributes(attribute.String("reflection_source", source))
	return daemon.CycleResult{
		Success: true,
		Cycle:   req.Cycle,
		Stats: map[string]any{
			"reflection_source": source,
			"mode":              e.state.Mode(),
			"focus":             e.state.CurrentFocus(),
			"confidence":        e.state.Confidence(),
		},
	}
}

// reflect 产出本轮反思结果；LLM 不可用或出错时退到启发式，反思本身不失败
func (e *Engine) reflect(ctx context.Context, req daemon.CycleRequest) (agent.ReflectionOutcome, string, string) {
	if e.client != nil {
		outcome, lesson, err := e.reflectWithLLM(ctx, req)
		if err == nil {
			return outcome, lesson, "llm"
		}
		e.logger.Warn("LLM 反思失败，退回启发式", "cycle", req.Cycle, "error", err)
	}
	outcome, lesson := e.reflectHeuristic(req)
	return outcome, lesson, "heuristic"
}

// llmReflection LLM 返回的结构化反思
type llmReflection struct {
	ConfidenceDelta int    `json:"confidence_delta"`
	DoubtDelta      int    `json:"doubt_delta"`
	EnergyDelta     int    `json:"energy_delta"`
	Mode            string `json:"mode"`
	Focus           string `json:"focus"`
	Lesson          string `json:"lesson"`
}

func (e *Engine) reflectWithLLM(ctx context.Context, req daemon.CycleRequest) (agent.ReflectionOutcome, string, error) {
	prompt := e.buildPrompt(req)
	raw, err := e.client.GenerateWithContext(ctx, prompt, e.llmOpts)
	if err != nil {
		return agent.ReflectionOutcome{}, "", err
	}

	// 模型偶尔会给 JSON 包上代码块围栏
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var r llmReflection
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		return agent.ReflectionOutcome{}, "", fmt.Errorf("解析反思输出失败: %w", err)
	}
	return agent.ReflectionOutcome{
		ConfidenceDelta: r.ConfidenceDelta,
		DoubtDelta:      r.DoubtDelta,
		EnergyDelta:     r.EnergyDelta,
		Mode:            r.Mode,
		Focus:           r.Focus,
	}, r.Lesson, nil
}

func (e *Engine) buildPrompt(req daemon.CycleRequest) string {
	var b strings.Builder
	b.WriteString("你是一个长期运行的自治 Agent，正在做周期性自我反思。当前状态：\n")
	fmt.Fprintf(&b, "- 循环数: %d\n", req.Cycle)
	fmt.Fprintf(&b, "- 信心: %d/100，疑虑: %d，精力: %d/100\n",
		e.state.Confidence(), e.state.Doubts(), e.state.EnergyLevel())
	fmt.Fprintf(&b, "- 模式: %s，当前关注: %s，自治等级: %d\n",
		e.state.Mode(), e.state.CurrentFocus(), e.state.AutonomyLevel())
	if req.AfterRestart {
		b.WriteString("- 注意：这是重启恢复后的第一个循环\n")
	}
	b.WriteString("请输出 JSON，字段：confidence_delta、doubt_delta、energy_delta（-5..5 的整数）、")
	b.WriteString("mode（observing/reflecting/acting 或空）、focus（下一步关注点或空）、lesson（一句话经验或空）。只输出 JSON。")
	return b.String()
}

// reflectHeuristic 无 LLM 时的内置反思：小步正反馈，精力缓慢消耗，
// 信心高且疑虑低时向 acting 演进
func (e *Engine) reflectHeuristic(req daemon.CycleRequest) (agent.ReflectionOutcome, string) {
	outcome := agent.ReflectionOutcome{
		ConfidenceDelta: 1,
		EnergyDelta:     -1,
		Focus:           focusRotation[req.Cycle%len(focusRotation)],
	}
	if e.state.Doubts() > 0 {
		outcome.DoubtDelta = -1
	}
	switch {
	case e.state.Confidence() >= 85 && e.state.Doubts() == 0:
		outcome.Mode = "acting"
	case e.state.Confidence() <= 40:
		outcome.Mode = "observing"
	default:
		outcome.Mode = "reflecting"
	}

	var lesson string
	if req.AfterRestart {
		lesson = fmt.Sprintf("第 %d 循环：重启后状态延续，快照恢复有效", req.Cycle)
	} else if req.Cycle%10 == 0 {
		lesson = fmt.Sprintf("第 %d 循环：持续运行中，行为模式稳定", req.Cycle)
	}
	return outcome, lesson
}

// maybeShare 自治等级足够时尝试一次对外分享；拒绝不是错误
func (e *Engine) maybeShare(ctx context.Context, req daemon.CycleRequest) {
	if e.gate == nil || e.state.Mode() != "acting" {
		return
	}
	content := fmt.Sprintf("cycle %d reflection: focus=%s", req.Cycle, e.state.CurrentFocus())
	decision := e.gate.Check(guard.ActionRequest{
		Kind:          guard.ActionExternalPost,
		Content:       content,
		AutonomyLevel: e.state.AutonomyLevel(),
	})
	if !decision.Approved {
		e.logger.Debug("对外分享被闸门拒绝",
			"cycle", req.Cycle, "reason", decision.Reason, "recommendation", decision.Recommendation)
		return
	}
	e.logger.Info("对外分享已批准", "cycle", req.Cycle, "content", content)
}
