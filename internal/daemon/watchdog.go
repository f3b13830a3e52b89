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

	"agent-daemon/pkg/log"
	"agent-daemon/pkg/metrics"
)

// Watchdog 独立于调度循环的停摆检测。检查只读内存心跳时间戳，
// 不做任何外部调用，保证检测路径自身不会卡死。
type Watchdog struct {
	daemon   *Daemon
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatchdog 创建看门狗
func NewWatchdog(d *Daemon, interval, timeout time.Duration, logger *log.Logger) *Watchdog {
	if logger == nil {
		logger = log.Nop()
	}
	return &Watchdog{
		daemon:   d,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动检查循环
func (w *Watchdog) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
}

// Stop 停止检查循环
func (w *Watchdog) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// Check 单次停摆检查：心跳年龄超过阈值即强制清理重入保护并触发恢复
func (w *Watchdog) Check() {
	hb, ok := w.daemon.heartbeats.Latest()
	if !ok {
		return
	}
	age := time.Since(hb.Timestamp)
	metrics.HeartbeatAgeSeconds.Set(age.Seconds())
	if age <= w.timeout {
		return
	}

	metrics.WatchdogStallTotal.Inc()
	cleared := w.daemon.forceClearGuard()
	w.logger.Error("检测到循环停摆",
		"heartbeat_age", age.String(), "timeout", w.timeout.String(), "guard_cleared", cleared)
	w.daemon.Recover(context.Background(), RecoveryWatchdog, "看门狗检测到心跳停摆")
}
