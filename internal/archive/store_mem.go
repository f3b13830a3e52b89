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

package archive

import (
	"context"
	"sync"

	"agent-daemon/internal/continuity"
	"agent-daemon/internal/daemon"
)

const memStoreCap = 500

// MemStore 内存归档，单进程开发/测试用
type MemStore struct {
	mu         sync.RWMutex
	recoveries []daemon.RecoveryEvent
	rebirths   []continuity.RebirthEvent
}

// NewMemStore 创建内存归档
func NewMemStore() *MemStore {
	return &MemStore{}
}

// AppendRecovery 实现 Store
func (s *MemStore) AppendRecovery(ctx context.Context, ev daemon.RecoveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveries = append(s.recoveries, ev)
	if len(s.recoveries) > memStoreCap {
		s.recoveries = s.recoveries[len(s.recoveries)-memStoreCap:]
	}
	return nil
}

// AppendRebirth 实现 Store
func (s *MemStore) AppendRebirth(ctx context.Context, ev continuity.RebirthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebirths = append(s.rebirths, ev)
	if len(s.rebirths) > memStoreCap {
		s.rebirths = s.rebirths[len(s.rebirths)-memStoreCap:]
	}
	return nil
}

// RecentRecoveries 实现 Store；新到旧
func (s *MemStore) RecentRecoveries(ctx context.Context, limit int) ([]daemon.RecoveryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.recoveries) {
		limit = len(s.recoveries)
	}
	out := make([]daemon.RecoveryEvent, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.recoveries[len(s.recoveries)-1-i])
	}
	return out, nil
}

// RecentRebirths 实现 Store；新到旧
func (s *MemStore) RecentRebirths(ctx context.Context, limit int) ([]continuity.RebirthEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.rebirths) {
		limit = len(s.rebirths)
	}
	out := make([]continuity.RebirthEvent, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.rebirths[len(s.rebirths)-1-i])
	}
	return out, nil
}

// Close 实现 Store
func (s *MemStore) Close() {}
