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

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lesson 一条经验教训
type Lesson struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	LearnedAt time.Time `json:"learned_at"`
}

// MemorySummary 记忆子系统对外导出的投影；计数为零视为记忆缺失
type MemorySummary struct {
	CoreItemCount int `json:"core_item_count"`
	LessonCount   int `json:"lesson_count"`
}

// MemoryBank 记忆库：身份核心条目 + 有界的活动教训列表
type MemoryBank struct {
	mu         sync.RWMutex
	coreItems  []string
	lessons    []Lesson
	maxLessons int
}

// NewMemoryBank 创建记忆库；maxLessons <=0 时默认 50
func NewMemoryBank(coreItems []string, maxLessons int) *MemoryBank {
	if maxLessons <= 0 {
		maxLessons = 50
	}
	items := make([]string, len(coreItems))
	copy(items, coreItems)
	return &MemoryBank{coreItems: items, maxLessons: maxLessons}
}

// AddLesson 追加一条教训，超过容量时淘汰最旧的
func (b *MemoryBank) AddLesson(text string) Lesson {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := Lesson{ID: "les-" + uuid.New().String(), Text: text, LearnedAt: time.Now()}
	b.lessons = append(b.lessons, l)
	if len(b.lessons) > b.maxLessons {
		b.lessons = b.lessons[len(b.lessons)-b.maxLessons:]
	}
	return l
}

// AddCoreItem 追加一条身份核心条目
func (b *MemoryBank) AddCoreItem(item string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coreItems = append(b.coreItems, item)
}

// CoreIdentityItems 身份核心条目副本
func (b *MemoryBank) CoreIdentityItems() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.coreItems))
	copy(out, b.coreItems)
	return out
}

// ActiveLessons 活动教训文本副本
func (b *MemoryBank) ActiveLessons() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.lessons))
	for _, l := range b.lessons {
		out = append(out, l.Text)
	}
	return out
}

// ExportSummary 导出投影
func (b *MemoryBank) ExportSummary() MemorySummary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return MemorySummary{CoreItemCount: len(b.coreItems), LessonCount: len(b.lessons)}
}
