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

package agent

import "sync"

// IdentitySummary 身份子系统对外导出的投影；连续性指纹只取这里的字段
type IdentitySummary struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Values  []string `json:"values"`
}

// IdentityCore 身份内核：名字、版本与价值观列表
type IdentityCore struct {
	mu      sync.RWMutex
	name    string
	version string
	values  []string
}

// NewIdentityCore 创建身份内核；values 为价值观条目（如 "curiosity", "honesty"）
func NewIdentityCore(name, version string, values []string) *IdentityCore {
	if name == "" {
		name = "agent"
	}
	if version == "" {
		version = "1.0"
	}
	vals := make([]string, len(values))
	copy(vals, values)
	return &IdentityCore{name: name, version: version, values: vals}
}

// ExportSummary 导出投影副本
func (c *IdentityCore) ExportSummary() IdentitySummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vals := make([]string, len(c.values))
	copy(vals, c.values)
	return IdentitySummary{Name: c.name, Version: c.version, Values: vals}
}

// CoreValues 返回价值观副本（重生恢复时作为 identity_core 来源）
func (c *IdentityCore) CoreValues() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vals := make([]string, len(c.values))
	copy(vals, c.values)
	return vals
}
