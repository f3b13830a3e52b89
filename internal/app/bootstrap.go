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

package app

import (
	"context"
	"fmt"
	"time"

	"agent-daemon/internal/agent"
	"agent-daemon/internal/archive"
	"agent-daemon/internal/continuity"
	"agent-daemon/internal/daemon"
	"agent-daemon/internal/guard"
	"agent-daemon/internal/mind"
	"agent-daemon/internal/model/llm"
	"agent-daemon/internal/notify"
	"agent-daemon/internal/snapshot"
	"agent-daemon/pkg/config"
	"agent-daemon/pkg/log"
	"agent-daemon/pkg/secrets"
)

// 身份核心的出厂设定；快照与连续性指纹都建立在这份身份之上
var defaultCoreValues = []string{"持续学习", "对外诚实", "不伤害宿主"}

// Bootstrap 统一初始化：状态聚合、快照存储、反思引擎、Daemon 与连续性引擎。
// cmd 层只拿 Bootstrap 装配 App，不直接碰内部组件。
type Bootstrap struct {
	Config    *config.Config
	Logger    *log.Logger
	Secrets   secrets.Store
	Snapshots *snapshot.Store
	Archive   archive.Store
	Notifier  notify.Notifier

	State     *agent.State
	Identity  *agent.IdentityCore
	Evolution *agent.EvolutionTracker
	Memory    *agent.MemoryBank
	Gate      *guard.Gate

	Mind       *mind.Engine
	Daemon     *daemon.Daemon
	Continuity *continuity.Engine
}

// NewBootstrap 根据配置装配全部组件；失败即返回错误，不做半初始化
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	secretCfg := secrets.Config{}
	if cfg != nil {
		secretCfg.Provider = cfg.Secrets.Provider
		secretCfg.Vault.Address = cfg.Secrets.Vault.Address
		secretCfg.Vault.Token = cfg.Secrets.Vault.Token
		secretCfg.Vault.PathPrefix = cfg.Secrets.Vault.PathPrefix
	}
	secretStore, err := secrets.NewStore(secretCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
	}

	snapPath := "data/agent_snapshot.json"
	if cfg != nil && cfg.Snapshot.Path != "" {
		snapPath = cfg.Snapshot.Path
	}
	snapStore := snapshot.NewStore(snapPath, logger)

	identity := agent.NewIdentityCore("agent", "1.0", defaultCoreValues)
	state := agent.NewState()
	evolution := agent.NewEvolutionTracker()
	memory := agent.NewMemoryBank(identity.CoreValues(), 0)
	gate := guard.NewGate()

	archiveStore, err := newArchiveStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	client := newLLMClient(ctx, cfg, secretStore, logger)

	mindEngine := mind.NewEngine(state, evolution, memory, gate, client, notifier, logger)
	if cfg != nil && cfg.Model.MaxTokens > 0 {
		mindEngine.SetGenerateOptions(llm.GenerateOptions{
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
		})
	}

	dcfg := daemon.Config{}
	if cfg != nil {
		dcfg = daemon.Config{
			CycleInterval:    config.ParseDuration(cfg.Daemon.CycleInterval, 10*time.Minute),
			FirstCycleDelay:  config.ParseDuration(cfg.Daemon.FirstCycleDelay, 5*time.Second),
			WatchdogInterval: config.ParseDuration(cfg.Daemon.WatchdogInterval, time.Minute),
			StallTimeout:     config.ParseDuration(cfg.Daemon.StallTimeout, 15*time.Minute),
			SnapshotEvery:    cfg.Daemon.SnapshotEvery,
			HeartbeatHistory: cfg.Daemon.HeartbeatHistory,
			RecoveryHistory:  cfg.Daemon.RecoveryHistory,
		}
	}
	source := &stateSource{state: state, evolution: evolution}
	d := daemon.NewDaemon(dcfg, mindEngine, source, snapStore, logger)

	ccfg := continuity.Config{}
	if cfg != nil {
		ccfg = continuity.Config{
			RecordPath:             cfg.Continuity.RecordPath,
			HistorySize:            cfg.Continuity.HistorySize,
			EvolutionJumpThreshold: cfg.Continuity.EvolutionJumpThreshold,
		}
	}
	engine := continuity.NewEngine(ccfg, identity, evolution, memory, logger)
	engine.SetFirstStartProbe(func() bool { return !snapStore.Exists() })

	if archiveStore != nil {
		d.SetRecoverySink(archiveStore)
		engine.SetRebirthSink(archiveStore)
	}

	return &Bootstrap{
		Config:     cfg,
		Logger:     logger,
		Secrets:    secretStore,
		Snapshots:  snapStore,
		Archive:    archiveStore,
		Notifier:   notifier,
		State:      state,
		Identity:   identity,
		Evolution:  evolution,
		Memory:     memory,
		Gate:       gate,
		Mind:       mindEngine,
		Daemon:     d,
		Continuity: engine,
	}, nil
}

// Close 释放外部资源
func (b *Bootstrap) Close() {
	if b.Notifier != nil {
		_ = b.Notifier.Close()
	}
	if b.Archive != nil {
		b.Archive.Close()
	}
}

func newArchiveStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (archive.Store, error) {
	if cfg == nil || cfg.Archive.Type == "" || cfg.Archive.Type == "memory" {
		return archive.NewMemStore(), nil
	}
	if cfg.Archive.Type != "postgres" {
		logger.Warn("未知归档类型，使用内存归档", "type", cfg.Archive.Type)
		return archive.NewMemStore(), nil
	}
	store, err := archive.NewPgStore(ctx, cfg.Archive.DSN)
	if err != nil {
		return nil, fmt.Errorf("初始化 PostgreSQL 归档失败: %w", err)
	}
	logger.Info("事件归档使用 PostgreSQL 后端")
	return store, nil
}

func newNotifier(ctx context.Context, cfg *config.Config, logger *log.Logger) (notify.Notifier, error) {
	if cfg == nil || cfg.Notify.Type == "" || cfg.Notify.Type == "none" {
		return notify.NopNotifier{}, nil
	}
	if cfg.Notify.Type != "redis" {
		logger.Warn("未知通知类型，通知关闭", "type", cfg.Notify.Type)
		return notify.NopNotifier{}, nil
	}
	n, err := notify.NewRedisNotifier(ctx, notify.RedisConfig{
		Addr:     cfg.Notify.Addr,
		Password: cfg.Notify.Password,
		DB:       cfg.Notify.DB,
		Channel:  cfg.Notify.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Redis 通知失败: %w", err)
	}
	logger.Info("循环通知使用 Redis Pub/Sub", "channel", cfg.Notify.Channel)
	return n, nil
}

// newLLMClient LLM 不可用不是致命错误：返回 nil 时反思引擎走内置启发式
func newLLMClient(ctx context.Context, cfg *config.Config, secretStore secrets.Store, logger *log.Logger) llm.Client {
	if cfg == nil || cfg.Model.Provider == "none" {
		return nil
	}
	apiKey := cfg.Model.APIKey
	if apiKey == "" && cfg.Model.SecretKey != "" {
		v, err := secretStore.Get(ctx, cfg.Model.SecretKey)
		if err != nil {
			logger.Warn("从 secret store 取 API Key 失败，LLM 关闭", "key", cfg.Model.SecretKey, "error", err)
			return nil
		}
		apiKey = v
	}
	if apiKey == "" {
		logger.Info("未配置 LLM API Key，使用内置启发式反思")
		return nil
	}

	base, err := llm.NewClaudeClient(cfg.Model.Name, apiKey)
	if err != nil {
		logger.Warn("初始化 LLM 客户端失败，使用内置启发式反思", "error", err)
		return nil
	}
	base.SetTimeout(config.ParseDuration(cfg.Model.Timeout, 30*time.Second))
	return llm.NewRateLimitedClient(base, llm.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
		MaxConcurrent:     cfg.RateLimits.MaxConcurrent,
	})
}

// stateSource 把 agent 状态聚合绑定到 Daemon 的快照导出/回灌口
type stateSource struct {
	state     *agent.State
	evolution *agent.EvolutionTracker
}

// ExportSnapshot 实现 daemon.SnapshotSource
func (s *stateSource) ExportSnapshot(cycle int) *snapshot.StateSnapshot {
	evo := s.evolution.ExportSummary()
	r := s.state.Reality()
	return &snapshot.StateSnapshot{
		Cycle: cycle,
		AgentState: snapshot.AgentStateSummary{
			CycleCount:   s.state.CycleCount(),
			Confidence:   s.state.Confidence(),
			Doubts:       s.state.Doubts(),
			EnergyLevel:  s.state.EnergyLevel(),
			Mode:         s.state.Mode(),
			CurrentFocus: s.state.CurrentFocus(),
		},
		AutonomyLevel:     s.state.AutonomyLevel(),
		ActiveConstraints: s.state.Constraints(),
		RealityMetrics: snapshot.RealityMetricsSummary{
			Stability:             r.Stability,
			Evolution:             r.Evolution,
			Autonomy:              r.Autonomy,
			ConsecutiveMismatches: r.ConsecutiveMismatches,
		},
		BehaviorPatternHash: evo.BehaviorPatternHash,
		DesireSummary:       s.state.DesireSummary(),
		Governance: snapshot.GovernanceState{
			RebootCount:      s.state.RebootCount(),
			EvolutionVersion: evo.Version,
			Mode:             s.state.Mode(),
		},
	}
}

// RestoreSnapshot 实现 daemon.SnapshotSource；回灌持久化过的值并计入一次重启
func (s *stateSource) RestoreSnapshot(sn *snapshot.StateSnapshot) {
	if sn == nil {
		return
	}
	s.state.Restore(
		sn.AgentState.CycleCount,
		sn.AgentState.Confidence,
		sn.AgentState.Doubts,
		sn.AgentState.EnergyLevel,
		sn.AutonomyLevel,
		sn.Governance.RebootCount,
		sn.AgentState.Mode,
		sn.AgentState.CurrentFocus,
	)
	s.state.MarkReboot()
	s.evolution.Restore(sn.Governance.EvolutionVersion, sn.BehaviorPatternHash)
	for _, c := range sn.ActiveConstraints {
		s.state.AddConstraint(c)
	}
	s.state.SetReality(agent.RealityMetrics{
		Stability:             sn.RealityMetrics.Stability,
		Evolution:             sn.RealityMetrics.Evolution,
		Autonomy:              sn.RealityMetrics.Autonomy,
		ConsecutiveMismatches: sn.RealityMetrics.ConsecutiveMismatches,
	})
	s.state.SetDesireSummary(sn.DesireSummary)
}
