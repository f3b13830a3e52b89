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

// Package notify 循环结果的对外广播。通知是尽力而为的旁路，
// 发布失败只打日志，绝不影响循环本身。
package notify

import (
	"context"
	"time"
)

// CycleNotice 一次循环的对外通知
type CycleNotice struct {
	Cycle        int       `json:"cycle"`
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	Mode         string    `json:"mode"`
	Focus        string    `json:"focus"`
	Confidence   int       `json:"confidence"`
	AfterRestart bool      `json:"after_restart"`
}

// Notifier 通知出口
type Notifier interface {
	PublishCycle(ctx context.Context, notice CycleNotice) error
	Close() error
}

// NopNotifier 空实现，notify.type=none 时使用
type NopNotifier struct{}

func (NopNotifier) PublishCycle(ctx context.Context, notice CycleNotice) error { return nil }
func (NopNotifier) Close() error                                               { return nil }
