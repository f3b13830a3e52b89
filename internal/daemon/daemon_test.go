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
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agent-daemon/internal/snapshot"
	"agent-daemon/pkg/log"
)

type stubWork struct {
	calls atomic.Int64
	fail  atomic.Bool
	block chan struct{}
}

func (w *stubWork) RunOneCycle(ctx context.Context, req CycleRequest) CycleResult {
	w.calls.Add(1)
	if w.block != nil {
		<-w.block
	}
	if w.fail.Load() {
		return CycleResult{Cycle: req.Cycle, Err: errors.New("cycle failed")}
	}
	return CycleResult{Success: true, Cycle: req.Cycle}
}

type stubSource struct {
	mu       sync.Mutex
	restored *snapshot.StateSnapshot
}

func (s *stubSource) ExportSnapshot(cycle int) *snapshot.StateSnapshot {
	return &snapshot.StateSnapshot{
		Cycle:         cycle,
		AgentState:    snapshot.AgentStateSummary{CycleCount: cycle, Confidence: 75, EnergyLevel: 100, Mode: "observing"},
		AutonomyLevel: 30,
	}
}

func (s *stubSource) RestoreSnapshot(sn *snapshot.StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = sn
}

func (s *stubSource) lastRestored() *snapshot.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

type captureSink struct {
	mu     sync.Mutex
	events []RecoveryEvent
}

func (s *captureSink) AppendRecovery(ctx context.Context, ev RecoveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) recorded() []RecoveryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecoveryEvent(nil), s.events...)
}

type workFunc func(ctx context.Context, req CycleRequest) CycleResult

func (f workFunc) RunOneCycle(ctx context.Context, req CycleRequest) CycleResult {
	return f(ctx, req)
}

// idleConfig 所有定时都拨到不会触发，tick 由测试手动驱动
func idleConfig() Config {
	return Config{
		CycleInterval:    time.Hour,
		FirstCycleDelay:  time.Hour,
		WatchdogInterval: time.Hour,
		StallTimeout:     time.Hour,
		SnapshotEvery:    5,
	}
}

func newTestDaemon(t *testing.T, work *stubWork, cfg Config) (*Daemon, *stubSource, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "snap.json"), log.Nop())
	source := &stubSource{}
	d := NewDaemon(cfg, work, source, store, log.Nop())
	return d, source, store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDaemon_ReentrancySkipsTick(t *testing.T) {
	work := &stubWork{block: make(chan struct{})}
	d, _, _ := newTestDaemon(t, work, idleConfig())
	ctx := context.Background()
	d.Start(ctx)
	defer func() {
		close(work.block)
		d.Stop(ctx)
	}()

	go d.RunCycle(ctx)
	waitFor(t, time.Second, func() bool { return work.calls.Load() == 1 })

	// 在途期间的 tick 被丢弃，不排队
	d.RunCycle(ctx)
	d.RunCycle(ctx)
	if got := work.calls.Load(); got != 1 {
		t.Fatalf("expected overlapping ticks to be skipped, work ran %d times", got)
	}
}

func TestDaemon_ThreeStrikesRecoversOnce(t *testing.T) {
	work := &stubWork{}
	work.fail.Store(true)
	d, _, _ := newTestDaemon(t, work, idleConfig())
	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	d.RunCycle(ctx)
	d.RunCycle(ctx)
	if got := len(d.RecentRecoveries(10)); got != 0 {
		t.Fatalf("recovery fired before third failure: %d events", got)
	}
	d.RunCycle(ctx)

	recs := d.RecentRecoveries(10)
	if len(recs) != 1 || recs[0].Type != RecoveryCrash {
		t.Fatalf("expected exactly one crash recovery, got %+v", recs)
	}

	// 恢复发出的 alive 心跳重置连击，下一次失败从 1 重新数
	d.RunCycle(ctx)
	if got := len(d.RecentRecoveries(10)); got != 1 {
		t.Fatalf("recovery must not re-fire until a fresh streak of 3, got %d events", got)
	}
	hb, _ := d.heartbeats.Latest()
	if hb.ConsecutiveFailures != 1 {
		t.Fatalf("expected failure streak restarted at 1, got %d", hb.ConsecutiveFailures)
	}
}

func TestDaemon_ColdStartRestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(filepath.Join(dir, "snap.json"), log.Nop())
	saved := store.Save(&snapshot.StateSnapshot{
		Cycle:         42,
		AgentState:    snapshot.AgentStateSummary{CycleCount: 42, Confidence: 61, Doubts: 2, EnergyLevel: 80, Mode: "acting"},
		AutonomyLevel: 55,
		Governance:    snapshot.GovernanceState{RebootCount: 1, EvolutionVersion: 7},
	})
	if saved == nil {
		t.Fatal("seed snapshot save failed")
	}

	work := &stubWork{}
	source := &stubSource{}
	d := NewDaemon(idleConfig(), work, source, store, log.Nop())
	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	if got := source.lastRestored(); got == nil || got.Cycle != 42 {
		t.Fatalf("snapshot not restored into source: %+v", got)
	}
	if d.TotalCycles() != 42 {
		t.Fatalf("expected cycle counter resumed at 42, got %d", d.TotalCycles())
	}
	recs := d.RecentRecoveries(10)
	if len(recs) != 1 || recs[0].Type != RecoveryColdStart {
		t.Fatalf("expected one cold_start event, got %+v", recs)
	}
	if recs[0].StateRestored.Confidence != 61 || recs[0].StateRestored.Autonomy != 55 {
		t.Fatalf("cold_start event must carry restored values, got %+v", recs[0].StateRestored)
	}
}

func TestDaemon_ColdStartRecordsEventWithoutBlockingStart(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(filepath.Join(dir, "snap.json"), log.Nop())
	if store.Save(&snapshot.StateSnapshot{Cycle: 9, AutonomyLevel: 40}) == nil {
		t.Fatal("seed snapshot save failed")
	}

	d := NewDaemon(idleConfig(), &stubWork{}, &stubSource{}, store, log.Nop())
	sink := &captureSink{}
	d.SetRecoverySink(sink)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return while recording the cold_start event")
	}
	defer d.Stop(ctx)

	evs := sink.recorded()
	if len(evs) != 1 || evs[0].Type != RecoveryColdStart {
		t.Fatalf("expected the cold_start event archived through the sink, got %+v", evs)
	}
}

func TestDaemon_ColdStartRunsOncePerProcess(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(filepath.Join(dir, "snap.json"), log.Nop())
	if store.Save(&snapshot.StateSnapshot{Cycle: 7}) == nil {
		t.Fatal("seed snapshot save failed")
	}

	work := &stubWork{}
	d := NewDaemon(idleConfig(), work, &stubSource{}, store, log.Nop())
	ctx := context.Background()

	d.Start(ctx)
	d.Stop(ctx)
	d.Start(ctx)
	d.Stop(ctx)

	coldStarts := 0
	for _, ev := range d.RecentRecoveries(10) {
		if ev.Type == RecoveryColdStart {
			coldStarts++
		}
	}
	if coldStarts != 1 {
		t.Fatalf("cold start must run once per process, got %d", coldStarts)
	}
}

func TestDaemon_SnapshotEveryKthCycle(t *testing.T) {
	work := &stubWork{}
	cfg := idleConfig()
	cfg.SnapshotEvery = 3
	d, _, store := newTestDaemon(t, work, cfg)
	ctx := context.Background()
	d.Start(ctx)

	for i := 0; i < 2; i++ {
		d.RunCycle(ctx)
	}
	if store.Last() != nil {
		t.Fatal("snapshot written before the Kth cycle")
	}
	d.RunCycle(ctx)
	last := store.Last()
	if last == nil || last.Cycle != 3 {
		t.Fatalf("expected snapshot at cycle 3, got %+v", last)
	}

	// Stop 写收尾快照
	d.RunCycle(ctx)
	d.Stop(ctx)
	final := store.Last()
	if final == nil || final.Cycle != 4 {
		t.Fatalf("expected final snapshot at cycle 4, got %+v", final)
	}
}

func TestDaemon_LoopDrivesCycles(t *testing.T) {
	work := &stubWork{}
	cfg := idleConfig()
	cfg.FirstCycleDelay = 10 * time.Millisecond
	cfg.CycleInterval = 20 * time.Millisecond
	d, _, _ := newTestDaemon(t, work, cfg)
	ctx := context.Background()
	d.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return work.calls.Load() >= 3 })
	d.Stop(ctx)

	if d.TotalCycles() < 3 {
		t.Fatalf("expected at least 3 completed cycles, got %d", d.TotalCycles())
	}
	st := d.ExportStatus()
	if st.Enabled || st.Running {
		t.Fatalf("stopped daemon must report disabled and idle: %+v", st)
	}
}

func TestDaemon_StaleCycleCannotClearNewGuard(t *testing.T) {
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	var calls atomic.Int64
	work := workFunc(func(ctx context.Context, req CycleRequest) CycleResult {
		if calls.Add(1) == 1 {
			<-release1
		} else {
			<-release2
		}
		return CycleResult{Success: true, Cycle: req.Cycle}
	})
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "snap.json"), log.Nop())
	d := NewDaemon(idleConfig(), work, &stubSource{}, store, log.Nop())
	ctx := context.Background()
	d.Start(ctx)

	// 第一个循环卡死，看门狗强制清理保护后放行新循环
	go d.RunCycle(ctx)
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
	d.forceClearGuard()
	go d.RunCycle(ctx)
	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })

	// 卡死循环迟到收尾，不得替新循环解除保护
	close(release1)
	waitFor(t, time.Second, func() bool { return d.TotalCycles() == 1 })
	time.Sleep(20 * time.Millisecond)
	if !d.ExportStatus().Running {
		t.Fatal("stale cycle's deferred cleanup cleared the new cycle's guard")
	}
	d.RunCycle(ctx)
	if got := calls.Load(); got != 2 {
		t.Fatalf("tick during the guarded new cycle must be skipped, work ran %d times", got)
	}

	close(release2)
	waitFor(t, time.Second, func() bool { return !d.ExportStatus().Running })
	d.Stop(ctx)
}

func TestDaemon_ManualRecover(t *testing.T) {
	work := &stubWork{}
	d, _, _ := newTestDaemon(t, work, idleConfig())
	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	ev := d.Recover(ctx, RecoveryManual, "operator requested")
	if ev.Type != RecoveryManual {
		t.Fatalf("unexpected type %s", ev.Type)
	}
	hb, ok := d.heartbeats.Latest()
	if !ok || hb.Status != StatusAlive {
		t.Fatalf("recovery must emit an alive heartbeat, got %+v", hb)
	}
	if d.ExportStatus().RecoveryCount != 1 {
		t.Fatalf("expected recovery count 1, got %d", d.ExportStatus().RecoveryCount)
	}
}
