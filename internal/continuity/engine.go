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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-daemon/internal/agent"
	"agent-daemon/pkg/log"
	"agent-daemon/pkg/metrics"
)

// EngineState 引擎状态机：INITIALIZING → NORMAL | RECOVERY
type EngineState string

const (
	StateInitializing EngineState = "INITIALIZING"
	StateNormal       EngineState = "NORMAL"
	StateRecovery     EngineState = "RECOVERY"
)

// RebirthSink 重生事件的外部归档出口；可为 nil
type RebirthSink interface {
	AppendRebirth(ctx context.Context, ev RebirthEvent) error
}

// Config 连续性引擎参数
type Config struct {
	RecordPath             string
	HistorySize            int
	EvolutionJumpThreshold int
	RebirthHistory         int
}

func (c Config) withDefaults() Config {
	if c.RecordPath == "" {
		c.RecordPath = "data/continuity_record.json"
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 20
	}
	if c.EvolutionJumpThreshold <= 0 {
		c.EvolutionJumpThreshold = 10
	}
	if c.RebirthHistory <= 0 {
		c.RebirthHistory = 50
	}
	return c
}

// Engine 连续性引擎：启动时给三个外部子系统拍指纹，与上一轮记录比对，
// 把不匹配归类成不连续报告并做尽力而为的恢复。失败路径一律降级继续，
// 绝不终止进程。
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	logger *log.Logger

	identity  IdentitySource
	evolution EvolutionSource
	memory    MemorySource
	sink      RebirthSink

	// firstStartProbe 判断是否真正的首次启动（如快照文件是否存在）；
	// 记录文件缺失本身不足以区分"首启"和"记录丢失"
	firstStartProbe func() bool

	state                 EngineState
	current               *Record
	history               []Record
	rebirths              []RebirthEvent
	lastReport            *DiscontinuityReport
	startupChecksComplete bool
}

// NewEngine 创建连续性引擎
func NewEngine(cfg Config, identity IdentitySource, evolution EvolutionSource, memory MemorySource, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		identity:  identity,
		evolution: evolution,
		memory:    memory,
		state:     StateInitializing,
	}
}

// SetRebirthSink 绑定重生事件归档出口；可选
func (e *Engine) SetRebirthSink(sink RebirthSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// SetFirstStartProbe 绑定首启判定探针；可选，缺省只看记录文件
func (e *Engine) SetFirstStartProbe(probe func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.firstStartProbe = probe
}

// RunStartupChecks 启动检查：计算新指纹、比对上一轮、必要时进入恢复。
// 无论结果如何都以新指纹落成新的 current 记录收尾。
func (e *Engine) RunStartupChecks(ctx context.Context) DiscontinuityReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateInitializing
	previous := e.loadRecordLocked()

	firstEver := previous == nil
	if firstEver && e.firstStartProbe != nil {
		firstEver = e.firstStartProbe()
	}

	memSummary := e.memory.ExportSummary()
	current := Record{
		Identity:  FingerprintIdentity(e.identity.ExportSummary()),
		Evolution: FingerprintEvolution(e.evolution.ExportSummary()),
		Memory:    FingerprintMemory(memSummary),
	}

	report := detectDiscontinuity(current, memSummary, previous, firstEver, e.cfg.EvolutionJumpThreshold)

	prevStatus := StatusOK
	if previous != nil {
		prevStatus = previous.Status
	}
	newStatus := StatusOK

	if report.Detected {
		e.state = StateRecovery
		e.logger.Warn("检测到状态不连续",
			"severity", string(report.Severity),
			"identity_mismatch", report.IdentityMismatch,
			"evolution_gap", report.EvolutionGap,
			"memory_missing", report.MemoryMissing,
			"details", strings.Join(report.Details, "; "))
		ev := e.recoverLocked(ctx, report, prevStatus, previous == nil && !firstEver)
		newStatus = ev.NewStatus
	} else {
		e.state = StateNormal
		e.logger.Info("连续性检查通过", "first_start", firstEver)
	}

	current.LastVerified = time.Now()
	current.Status = newStatus
	if e.current != nil {
		e.history = append(e.history, *e.current)
		if len(e.history) > e.cfg.HistorySize {
			e.history = e.history[len(e.history)-e.cfg.HistorySize:]
		}
	} else if previous != nil {
		e.history = append(e.history, *previous)
	}
	e.current = &current
	e.saveRecordLocked()
	e.startupChecksComplete = true
	e.lastReport = &report
	return report
}

// detectDiscontinuity 纯比对函数。优先级从高到低取最终严重度，
// 但所有命中的细节都写进报告。
func detectDiscontinuity(current Record, mem agent.MemorySummary, previous *Record, firstEver bool, jumpThreshold int) DiscontinuityReport {
	rep := DiscontinuityReport{Severity: SeverityNone}
	raise := func(s Severity) {
		if severityRank[s] > severityRank[rep.Severity] {
			rep.Severity = s
		}
	}

	if previous == nil {
		if firstEver {
			// 真正的首次启动不算不连续
			rep.Details = append(rep.Details, "首次启动，无历史指纹可比对")
			return rep
		}
		rep.Detected = true
		rep.Details = append(rep.Details, "上一轮连续性记录丢失")
		raise(SeverityModerate)
	} else {
		if previous.Identity.Hash != current.Identity.Hash {
			rep.Detected = true
			rep.IdentityMismatch = true
			rep.Details = append(rep.Details, "身份指纹与上一轮不一致")
			raise(SeverityCritical)
		} else if previous.Identity.Version != current.Identity.Version {
			// 内容没变只是版本号变了：记录在案，不单独抬严重度
			rep.Detected = true
			rep.Details = append(rep.Details,
				fmt.Sprintf("身份版本从 %s 变为 %s（指纹一致）", previous.Identity.Version, current.Identity.Version))
		}

		prevVer, prevErr := strconv.Atoi(previous.Evolution.Version)
		curVer, curErr := strconv.Atoi(current.Evolution.Version)
		if prevErr == nil && curErr == nil {
			if curVer < prevVer {
				rep.Detected = true
				rep.EvolutionGap = true
				rep.Details = append(rep.Details,
					fmt.Sprintf("演化版本回退：%d -> %d", prevVer, curVer))
				raise(SeveritySevere)
			} else if curVer-prevVer > jumpThreshold {
				rep.Detected = true
				rep.EvolutionGap = true
				rep.Details = append(rep.Details,
					fmt.Sprintf("演化版本跳变超过阈值 %d：%d -> %d", jumpThreshold, prevVer, curVer))
				raise(SeverityMinor)
			}
		}
	}

	if mem.CoreItemCount == 0 && mem.LessonCount == 0 {
		rep.Detected = true
		rep.MemoryMissing = true
		rep.Details = append(rep.Details, "记忆子系统为空：无核心条目也无经验")
		raise(SeverityModerate)
	}

	if rep.Detected && rep.Severity == SeverityNone {
		rep.Severity = SeverityMinor
	}
	return rep
}

// recoverLocked 重生恢复：对每个触发的缺口回查同一个子系统还剩什么。
// 两次检查允许结论不一致（子系统可能在期间自行部分恢复）。
func (e *Engine) recoverLocked(ctx context.Context, rep DiscontinuityReport, prevStatus Status, recordLost bool) RebirthEvent {
	var lost, recovered, gaps []string
	source := RecoverFromFreshStart

	attempt := func(part string, src RecoverySource, got bool) {
		lost = append(lost, part)
		if got {
			recovered = append(recovered, part)
			if source == RecoverFromFreshStart {
				source = src
			}
		} else {
			gaps = append(gaps, part)
		}
	}

	if rep.IdentityMismatch {
		attempt("identity", RecoverFromIdentityCore, len(e.identity.CoreValues()) > 0)
	}
	if rep.EvolutionGap {
		attempt("evolution", RecoverFromEvolutionLogs, len(e.evolution.RecentLog(10)) > 0)
	}
	if rep.MemoryMissing {
		items := e.memory.CoreIdentityItems()
		lessons := e.memory.ActiveLessons()
		attempt("memory", RecoverFromDistilledMemory, len(items)+len(lessons) > 0)
	}
	if recordLost {
		// 记录本身丢了没有可回查的子系统，直接计为缺口
		lost = append(lost, "continuity_record")
		gaps = append(gaps, "continuity_record")
	}

	newStatus := StatusOK
	switch {
	case len(gaps) > 2:
		newStatus = StatusBroken
	case len(gaps) > 0:
		newStatus = StatusDegraded
	}

	ev := RebirthEvent{
		ID:             "reb-" + uuid.New().String(),
		Timestamp:      time.Now(),
		Cause:          strings.Join(rep.Details, "; "),
		LostParts:      lost,
		RecoveredParts: recovered,
		RemainingGaps:  gaps,
		RecoverySource: source,
		PreviousStatus: prevStatus,
		NewStatus:      newStatus,
	}

	e.rebirths = append(e.rebirths, ev)
	if len(e.rebirths) > e.cfg.RebirthHistory {
		e.rebirths = e.rebirths[len(e.rebirths)-e.cfg.RebirthHistory:]
	}
	metrics.RebirthTotal.WithLabelValues(string(rep.Severity)).Inc()
	if e.sink != nil {
		if err := e.sink.AppendRebirth(ctx, ev); err != nil {
			e.logger.Error("重生事件归档失败", "id", ev.ID, "error", err)
		}
	}
	e.logger.Warn("重生恢复完成",
		"recovery_source", string(source),
		"recovered", strings.Join(recovered, ","),
		"remaining_gaps", strings.Join(gaps, ","),
		"new_status", string(newStatus))
	return ev
}

// 记录持久化：与快照同样的临时文件 + rename，失败只打日志

type persistedRecord struct {
	Current *Record  `json:"current"`
	History []Record `json:"history"`
}

func (e *Engine) loadRecordLocked() *Record {
	data, err := os.ReadFile(e.cfg.RecordPath)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Error("连续性记录读取失败", "path", e.cfg.RecordPath, "error", err)
		}
		return nil
	}
	var p persistedRecord
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Error("连续性记录解析失败，按记录丢失处理", "path", e.cfg.RecordPath, "error", err)
		return nil
	}
	if len(p.History) > 0 && len(e.history) == 0 {
		e.history = p.History
	}
	return p.Current
}

func (e *Engine) saveRecordLocked() {
	data, err := json.MarshalIndent(persistedRecord{Current: e.current, History: e.history}, "", "  ")
	if err != nil {
		e.logger.Error("连续性记录序列化失败", "error", err)
		return
	}
	if dir := filepath.Dir(e.cfg.RecordPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			e.logger.Error("创建连续性记录目录失败", "dir", dir, "error", err)
			return
		}
	}
	tmp := e.cfg.RecordPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		e.logger.Error("连续性记录写入失败", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, e.cfg.RecordPath); err != nil {
		e.logger.Error("连续性记录替换失败", "path", e.cfg.RecordPath, "error", err)
	}
}

// State 当前引擎状态
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current 当前连续性记录的拷贝；启动检查前为 nil
func (e *Engine) Current() *Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	r := *e.current
	return &r
}

// LastReport 最近一次启动检查的不连续报告副本；尚未检查过时返回 nil
func (e *Engine) LastReport() *DiscontinuityReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastReport == nil {
		return nil
	}
	rep := *e.lastReport
	rep.Details = append([]string(nil), e.lastReport.Details...)
	return &rep
}

// RecentRebirths 最近 n 条重生事件，新到旧
func (e *Engine) RecentRebirths(n int) []RebirthEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.rebirths) {
		n = len(e.rebirths)
	}
	out := make([]RebirthEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, e.rebirths[len(e.rebirths)-1-i])
	}
	return out
}

// EngineStatus 对外导出的连续性状态
type EngineStatus struct {
	State                 EngineState `json:"state"`
	Status                Status      `json:"status"`
	StartupChecksComplete bool        `json:"startup_checks_complete"`
	LastVerified          *time.Time  `json:"last_verified,omitempty"`
	RebirthCount          int         `json:"rebirth_count"`
	HistoryDepth          int         `json:"history_depth"`
}

// ExportStatus 只读状态汇总，供健康上报
func (e *Engine) ExportStatus() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := EngineStatus{
		State:                 e.state,
		Status:                StatusOK,
		StartupChecksComplete: e.startupChecksComplete,
		RebirthCount:          len(e.rebirths),
		HistoryDepth:          len(e.history),
	}
	if e.current != nil {
		st.Status = e.current.Status
		t := e.current.LastVerified
		st.LastVerified = &t
	}
	return st
}
