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
	"testing"
	"time"

	"agent-daemon/pkg/log"
)

func TestWatchdog_FreshHeartbeatIsQuiet(t *testing.T) {
	work := &stubWork{}
	d, _, _ := newTestDaemon(t, work, idleConfig())
	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	w := NewWatchdog(d, time.Hour, time.Hour, log.Nop())
	w.Check()
	if got := len(d.RecentRecoveries(10)); got != 0 {
		t.Fatalf("fresh heartbeat must not trigger recovery, got %d events", got)
	}
}

func TestWatchdog_StaleHeartbeatTriggersRecovery(t *testing.T) {
	work := &stubWork{block: make(chan struct{})}
	d, _, _ := newTestDaemon(t, work, idleConfig())
	ctx := context.Background()
	d.Start(ctx)
	defer func() {
		close(work.block)
		d.Stop(ctx)
	}()

	// 卡死一个循环，制造停摆
	go d.RunCycle(ctx)
	waitFor(t, time.Second, func() bool { return work.calls.Load() == 1 })
	time.Sleep(60 * time.Millisecond)

	w := NewWatchdog(d, time.Hour, 50*time.Millisecond, log.Nop())
	w.Check()

	recs := d.RecentRecoveries(10)
	if len(recs) != 1 || recs[0].Type != RecoveryWatchdog {
		t.Fatalf("expected one watchdog recovery, got %+v", recs)
	}
	// 恢复清掉重入保护，新 tick 可以进来
	if d.ExportStatus().Running {
		t.Fatal("guard must be cleared after watchdog recovery")
	}

	// 恢复发出的 alive 心跳让后续检查恢复安静
	w.Check()
	if got := len(d.RecentRecoveries(10)); got != 1 {
		t.Fatalf("watchdog must not re-fire on a fresh heartbeat, got %d events", got)
	}
}
