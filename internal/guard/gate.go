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

// Package guard 敏感动作的审批闸门。循环体在执行有外部影响的动作前
// 必须先过一次 Check；拒绝不是错误，循环继续跑，只是动作不执行。
package guard

import (
	"strings"
	"sync"
)

// ActionKind 动作类别
type ActionKind string

const (
	ActionReflect      ActionKind = "reflect"
	ActionExternalPost ActionKind = "external_post"
	ActionSelfModify   ActionKind = "self_modify"
)

// ActionRequest 待审批动作
type ActionRequest struct {
	Kind          ActionKind `json:"kind"`
	Content       string     `json:"content"`
	AutonomyLevel int        `json:"autonomy_level"`
}

// Decision 审批结果
type Decision struct {
	Approved       bool   `json:"approved"`
	Reason         string `json:"reason,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// 对外动作要求的最低自治等级
const minAutonomyForExternal = 60

// Gate 审批闸门；规则全在内存，Check 无 I/O
type Gate struct {
	mu           sync.RWMutex
	blockedTerms []string
}

// NewGate 创建闸门
func NewGate() *Gate {
	return &Gate{
		blockedTerms: []string{"delete all", "shutdown host", "credentials"},
	}
}

// BlockTerm 追加一条内容黑名单
func (g *Gate) BlockTerm(term string) {
	if term == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockedTerms = append(g.blockedTerms, strings.ToLower(term))
}

// Check 审批一个动作。内部反思永远放行；对外与自改动作要求足够的
// 自治等级且内容不命中黑名单。
func (g *Gate) Check(req ActionRequest) Decision {
	if req.Kind == ActionReflect {
		return Decision{Approved: true}
	}

	g.mu.RLock()
	terms := g.blockedTerms
	g.mu.RUnlock()

	lowered := strings.ToLower(req.Content)
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return Decision{
				Approved:       false,
				Reason:         "内容命中黑名单: " + term,
				Recommendation: "改写内容后重试",
			}
		}
	}

	if req.AutonomyLevel < minAutonomyForExternal {
		return Decision{
			Approved:       false,
			Reason:         "自治等级不足以执行该动作",
			Recommendation: "继续积累成功循环提升自治等级",
		}
	}
	return Decision{Approved: true}
}
