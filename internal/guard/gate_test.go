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

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_ReflectAlwaysApproved(t *testing.T) {
	g := NewGate()
	d := g.Check(ActionRequest{Kind: ActionReflect, AutonomyLevel: 0})
	assert.True(t, d.Approved)
}

func TestGate_LowAutonomyDenied(t *testing.T) {
	g := NewGate()
	d := g.Check(ActionRequest{Kind: ActionExternalPost, Content: "hello world", AutonomyLevel: 30})
	assert.False(t, d.Approved)
	assert.NotEmpty(t, d.Recommendation)

	d = g.Check(ActionRequest{Kind: ActionExternalPost, Content: "hello world", AutonomyLevel: 80})
	assert.True(t, d.Approved)
}

func TestGate_BlockedTerm(t *testing.T) {
	g := NewGate()
	g.BlockTerm("Forbidden Topic")
	d := g.Check(ActionRequest{Kind: ActionExternalPost, Content: "about the forbidden topic", AutonomyLevel: 90})
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "黑名单")
}
