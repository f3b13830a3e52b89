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

// Package archive 恢复/重生事件的持久化归档。Daemon 与连续性引擎
// 各自持有内存中的有界历史；归档是跨进程可查的审计副本。
package archive

import (
	"context"

	"agent-daemon/internal/continuity"
	"agent-daemon/internal/daemon"
)

// Store 事件归档存储
type Store interface {
	AppendRecovery(ctx context.Context, ev daemon.RecoveryEvent) error
	AppendRebirth(ctx context.Context, ev continuity.RebirthEvent) error
	RecentRecoveries(ctx context.Context, limit int) ([]daemon.RecoveryEvent, error)
	RecentRebirths(ctx context.Context, limit int) ([]continuity.RebirthEvent, error)
	Close()
}
