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

	"github.com/google/uuid"

	"agent-daemon/internal/snapshot"
	"agent-daemon/pkg/log"
	"agent-daemon/pkg/metrics"
)

// failureThreshold 连续失败达到该值触发 crash_recovery
const failureThreshold = 3

// CycleRequest 一次循环的入参；AfterRestart 只在冷启动恢复后的第一个循环为 true
type CycleRequest struct {
	Cycle        int
	AfterRestart bool
}

// CycleResult 一次循环的结果
type CycleResult struct {
	Success bool
	Cycle   int
	Stats   map[string]any
	Err     error
}

// UnitOfWork 每个 tick 执行的领域工作；由 mind 包实现
type UnitOfWork interface {
	RunOneCycle(ctx context.Context, req CycleRequest) CycleResult
}

// SnapshotSource 快照的导出/回灌口；由 app 层绑定到 agent 状态
type SnapshotSource interface {
	ExportSnapshot(cycle int) *snapshot.StateSnapshot
	RestoreSnapshot(s *snapshot.StateSnapshot)
}

// Config Daemon 调度参数
type Config struct {
	CycleInterval    time.Duration
	FirstCycleDelay  time.Duration
	WatchdogInterval time.Duration
	StallTimeout     time.Duration
	SnapshotEvery    int
	HeartbeatHistory int
	RecoveryHistory  int
}

func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = 10 * time.Minute
	}
	if c.FirstCycleDelay <= 0 {
		c.FirstCycleDelay = 5 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = time.Minute
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 15 * time.Minute
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = 5
	}
	if c.HeartbeatHistory <= 0 {
		c.HeartbeatHistory = 100
	}
	if c.RecoveryHistory <= 0 {
		c.RecoveryHistory = 50
	}
	return c
}

// Daemon 周期调度器：单飞循环、心跳、快照与崩溃恢复。
// 重入保护采取跳过策略：上一循环未结束时新 tick 直接丢弃，绝不排队。
type Daemon struct {
	mu  sync.Mutex
	cfg Config

	work      UnitOfWork
	source    SnapshotSource
	snapshots *snapshot.Store
	sink      RecoverySink
	logger    *log.Logger

	heartbeats *HeartbeatLog
	recoveries *recoveryHistory
	watchdog   *Watchdog

	enabled       bool
	inFlight      bool
	guardGen      uint64
	coldStartDone bool
	afterRestart  bool
	totalCycles   int
	recoveryCount int
	startedAt     time.Time
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewDaemon 创建 Daemon；不做任何 I/O，冷启动恢复推迟到第一次 Start
func NewDaemon(cfg Config, work UnitOfWork, source SnapshotSource, snapshots *snapshot.Store, logger *log.Logger) *Daemon {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Nop()
	}
	return &Daemon{
		cfg:        cfg,
		work:       work,
		source:     source,
		snapshots:  snapshots,
		logger:     logger,
		heartbeats: NewHeartbeatLog(cfg.HeartbeatHistory),
		recoveries: newRecoveryHistory(cfg.RecoveryHistory),
	}
}

// SetRecoverySink 绑定恢复事件归档出口；可选
func (d *Daemon) SetRecoverySink(sink RecoverySink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// Start 启动调度循环与看门狗。进程生命周期内冷启动恢复只做一次，
// 之后的 Start（如改周期后的重启）不再触碰快照文件。
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	if d.enabled {
		d.mu.Unlock()
		d.logger.Warn("daemon 已在运行，忽略重复 Start")
		return
	}
	var coldStart *RecoveryEvent
	if !d.coldStartDone {
		coldStart = d.coldStartLocked()
	}
	d.enabled = true
	d.startedAt = time.Now()
	d.stopCh = make(chan struct{})
	cycle := d.totalCycles
	d.mu.Unlock()

	// 事件归档可能走外部存储，必须在锁外做
	if coldStart != nil {
		d.recordRecovery(ctx, *coldStart)
	}
	d.heartbeats.Record(cycle, StatusAlive, 0)

	d.wg.Add(1)
	go d.runLoop(ctx)

	wd := NewWatchdog(d, d.cfg.WatchdogInterval, d.cfg.StallTimeout, d.logger)
	wd.Start()
	d.mu.Lock()
	d.watchdog = wd
	d.mu.Unlock()

	d.logger.Info("daemon 已启动",
		"cycle_interval", d.cfg.CycleInterval.String(),
		"first_cycle_delay", d.cfg.FirstCycleDelay.String(),
		"snapshot_every", d.cfg.SnapshotEvery)
}

// Stop 停止调度；在途循环允许跑完，随后写一份收尾快照
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return
	}
	d.enabled = false
	close(d.stopCh)
	wd := d.watchdog
	d.watchdog = nil
	d.mu.Unlock()

	if wd != nil {
		wd.Stop()
	}
	d.wg.Wait()

	d.mu.Lock()
	cycle := d.totalCycles
	d.mu.Unlock()
	d.saveSnapshot(cycle)
	d.logger.Info("daemon 已停止", "total_cycles", cycle)
}

// SetCycleInterval 调整循环周期。运行中则重启调度循环（冷启动恢复不会重做）。
func (d *Daemon) SetCycleInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	d.mu.Lock()
	running := d.enabled
	d.mu.Unlock()

	if running {
		d.Stop(ctx)
	}
	d.mu.Lock()
	d.cfg.CycleInterval = interval
	d.mu.Unlock()
	if running {
		d.Start(ctx)
	}
	d.logger.Info("循环周期已调整", "interval", interval.String())
}

func (d *Daemon) runLoop(ctx context.Context) {
	defer d.wg.Done()

	first := time.NewTimer(d.cfg.FirstCycleDelay)
	defer first.Stop()
	ticker := time.NewTicker(d.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-first.C:
			d.RunCycle(ctx)
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle 执行一个循环 tick。重入时跳过并告警，不排队不阻塞。
func (d *Daemon) RunCycle(ctx context.Context) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return
	}
	if d.inFlight {
		d.mu.Unlock()
		d.logger.Warn("上一循环仍在执行，跳过本次 tick")
		metrics.CycleSkippedTotal.Inc()
		return
	}
	d.inFlight = true
	d.guardGen++
	gen := d.guardGen
	cycle := d.totalCycles + 1
	after := d.afterRestart
	d.afterRestart = false
	d.mu.Unlock()
	// 只释放自己这一代的保护：若看门狗已强制清理并放行了新循环，
	// 迟到的收尾不能把新循环的保护一并清掉
	defer func() {
		d.mu.Lock()
		if d.guardGen == gen {
			d.inFlight = false
		}
		d.mu.Unlock()
	}()

	d.heartbeats.Record(cycle, StatusRunning, 0)
	start := time.Now()
	res := d.work.RunOneCycle(ctx, CycleRequest{Cycle: cycle, AfterRestart: after})
	dur := time.Since(start)
	metrics.CycleDuration.Observe(dur.Seconds())

	if res.Success && res.Err == nil {
		d.mu.Lock()
		d.totalCycles++
		total := d.totalCycles
		d.mu.Unlock()

		d.heartbeats.Record(cycle, StatusCompleted, dur)
		metrics.CycleTotal.WithLabelValues("completed").Inc()
		d.logger.Info("循环完成", "cycle", cycle, "duration", dur.String())

		if total%d.cfg.SnapshotEvery == 0 {
			d.saveSnapshot(total)
		}
		return
	}

	hb := d.heartbeats.Record(cycle, StatusError, dur)
	metrics.CycleTotal.WithLabelValues("error").Inc()
	d.logger.Error("循环失败",
		"cycle", cycle, "consecutive_failures", hb.ConsecutiveFailures, "error", res.Err)

	if hb.ConsecutiveFailures >= failureThreshold {
		d.Recover(ctx, RecoveryCrash, "连续失败达到阈值，自动恢复")
	}
}

// Recover 执行一次恢复：清理可能卡住的重入保护、记录事件、发出 alive 心跳。
// 只操作内存状态，绝不读写快照文件；累计计数（totalCycles 等）不回退。
func (d *Daemon) Recover(ctx context.Context, typ RecoveryType, notes string) RecoveryEvent {
	d.mu.Lock()
	d.inFlight = false
	d.guardGen++
	d.recoveryCount++
	cycle := d.totalCycles
	d.mu.Unlock()

	ev := RecoveryEvent{
		ID:        "rec-" + uuid.New().String(),
		Timestamp: time.Now(),
		Type:      typ,
		Notes:     notes,
	}
	if last := d.snapshots.Last(); last != nil {
		ev.SnapshotUsed = last.ID
		ev.CycleRestored = last.Cycle
		ev.StateRestored = StateRestored{
			Confidence:        last.AgentState.Confidence,
			Autonomy:          last.AutonomyLevel,
			PatternsPreserved: true,
		}
	} else {
		ev.CycleRestored = cycle
	}

	d.recordRecovery(ctx, ev)
	d.heartbeats.Record(cycle, StatusAlive, 0)
	d.logger.Warn("已执行恢复", "type", string(typ), "cycle", cycle, "notes", notes)
	return ev
}

// coldStartLocked 冷启动恢复：读快照、回灌状态、构造 cold_start 事件。
// 无快照是正常的首次启动，不算恢复。调用方持有 d.mu，事件由调用方在锁外记录。
func (d *Daemon) coldStartLocked() *RecoveryEvent {
	d.coldStartDone = true

	snap := d.snapshots.Load()
	if snap == nil {
		d.logger.Info("冷启动：无可用快照，使用默认状态")
		return nil
	}

	d.source.RestoreSnapshot(snap)
	d.totalCycles = snap.Cycle
	d.afterRestart = true
	d.recoveryCount++

	ev := RecoveryEvent{
		ID:            "rec-" + uuid.New().String(),
		Timestamp:     time.Now(),
		Type:          RecoveryColdStart,
		SnapshotUsed:  snap.ID,
		CycleRestored: snap.Cycle,
		StateRestored: StateRestored{
			Confidence:        snap.AgentState.Confidence,
			Autonomy:          snap.AutonomyLevel,
			PatternsPreserved: true,
		},
		Notes: "冷启动自快照恢复",
	}
	d.logger.Info("冷启动恢复完成",
		"snapshot", snap.ID, "cycle", snap.Cycle,
		"confidence", snap.AgentState.Confidence, "autonomy", snap.AutonomyLevel)
	return &ev
}

func (d *Daemon) recordRecovery(ctx context.Context, ev RecoveryEvent) {
	d.recoveries.add(ev)
	metrics.RecoveryTotal.WithLabelValues(string(ev.Type)).Inc()
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		if err := sink.AppendRecovery(ctx, ev); err != nil {
			d.logger.Error("恢复事件归档失败", "id", ev.ID, "error", err)
		}
	}
}

func (d *Daemon) saveSnapshot(cycle int) {
	snap := d.source.ExportSnapshot(cycle)
	if saved := d.snapshots.Save(snap); saved != nil {
		metrics.SnapshotWriteTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SnapshotWriteTotal.WithLabelValues("error").Inc()
	}
}

// forceClearGuard 看门狗专用：强制清理重入保护，返回之前是否处于在途状态。
// 换代使卡住循环的迟到收尾失效
func (d *Daemon) forceClearGuard() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	was := d.inFlight
	d.inFlight = false
	d.guardGen++
	return was
}

// IsHealthy 最近心跳足够新且未处于连续失败高位
func (d *Daemon) IsHealthy() bool {
	hb, ok := d.heartbeats.Latest()
	if !ok {
		return false
	}
	return time.Since(hb.Timestamp) < d.cfg.StallTimeout && hb.ConsecutiveFailures < failureThreshold
}

// DaemonStatus 对外导出的运行状态
type DaemonStatus struct {
	Enabled           bool       `json:"enabled"`
	Running           bool       `json:"running"`
	Healthy           bool       `json:"healthy"`
	TotalCycles       int        `json:"total_cycles"`
	RecoveryCount     int        `json:"recovery_count"`
	CycleInterval     string     `json:"cycle_interval"`
	UptimeSeconds     float64    `json:"uptime_seconds"`
	LastHeartbeat     *Heartbeat `json:"last_heartbeat,omitempty"`
	LastSnapshotID    string     `json:"last_snapshot_id,omitempty"`
	LastSnapshotCycle int        `json:"last_snapshot_cycle,omitempty"`
}

// ExportStatus 汇总当前运行状态
func (d *Daemon) ExportStatus() DaemonStatus {
	d.mu.Lock()
	st := DaemonStatus{
		Enabled:       d.enabled,
		Running:       d.inFlight,
		TotalCycles:   d.totalCycles,
		RecoveryCount: d.recoveryCount,
		CycleInterval: d.cfg.CycleInterval.String(),
	}
	if d.enabled {
		st.UptimeSeconds = time.Since(d.startedAt).Seconds()
	}
	d.mu.Unlock()

	st.Healthy = d.IsHealthy()
	if hb, ok := d.heartbeats.Latest(); ok {
		st.LastHeartbeat = &hb
	}
	if last := d.snapshots.Last(); last != nil {
		st.LastSnapshotID = last.ID
		st.LastSnapshotCycle = last.Cycle
	}
	return st
}

// RecentHeartbeats 最近 n 条心跳，新到旧
func (d *Daemon) RecentHeartbeats(n int) []Heartbeat {
	return d.heartbeats.Recent(n)
}

// RecentRecoveries 最近 n 条恢复事件，新到旧
func (d *Daemon) RecentRecoveries(n int) []RecoveryEvent {
	return d.recoveries.recent(n)
}

// TotalCycles 已完成的循环总数
func (d *Daemon) TotalCycles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalCycles
}
