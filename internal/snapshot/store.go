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

package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-daemon/pkg/log"
)

// Store 单文件快照存储；只有 Daemon 写、Daemon 冷启动读。
// Save 对调用方永不报错：I/O 失败只打日志，内存中的 last 不更新，
// 避免后续读取捡到半写文件。
type Store struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
	last   *StateSnapshot
}

// NewStore 创建快照存储
func NewStore(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{path: path, logger: logger}
}

// Path 快照文件路径
func (s *Store) Path() string {
	return s.path
}

// Exists 快照文件是否存在（不校验内容；连续性引擎用它判定首次启动）
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save 补全 id/timestamp/schema_version/checksum 后原子写入（临时文件 + rename）。
// 返回写入成功的快照；失败返回 nil 且保留上一个 last。
func (s *Store) Save(snap *StateSnapshot) *StateSnapshot {
	if snap == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = "snap-" + uuid.New().String()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	snap.SchemaVersion = SchemaVersion
	snap.Checksum = Checksum(snap)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.logger.Error("快照序列化失败", "error", err)
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Error("创建快照目录失败", "dir", dir, "error", err)
			return nil
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.logger.Error("快照写入失败", "path", tmp, "error", err)
		return nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("快照替换失败", "path", s.path, "error", err)
		return nil
	}

	s.last = snap
	s.logger.Debug("快照已写入", "id", snap.ID, "cycle", snap.Cycle)
	return snap
}

// Load 读取并校验快照；文件缺失与校验失败都返回 nil（日志信息不同）。
// 损坏的文件原样留在磁盘上供事后排查，不删除不重试。
func (s *Store) Load() *StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("无快照文件，按全新状态启动", "path", s.path)
		} else {
			s.logger.Error("快照读取失败", "path", s.path, "error", err)
		}
		return nil
	}

	var snap StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("快照解析失败，视为无可用快照", "path", s.path, "error", err)
		return nil
	}
	if !VerifyChecksum(&snap) {
		s.logger.Error("快照校验和不匹配，视为无可用快照",
			"path", s.path, "recorded", snap.Checksum, "computed", Checksum(&snap))
		return nil
	}

	s.last = &snap
	return &snap
}

// Last 最近一次成功写入/读取的快照（内存引用，可能为 nil）
func (s *Store) Last() *StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
