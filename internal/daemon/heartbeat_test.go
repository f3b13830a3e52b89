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
	"testing"
)

func TestHeartbeatLog_StreakDerivation(t *testing.T) {
	l := NewHeartbeatLog(10)

	hb := l.Record(1, StatusCompleted, 0)
	if hb.ConsecutiveSuccesses != 1 || hb.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected streaks after first completed: %+v", hb)
	}
	hb = l.Record(2, StatusCompleted, 0)
	if hb.ConsecutiveSuccesses != 2 {
		t.Fatalf("expected 2 consecutive successes, got %d", hb.ConsecutiveSuccesses)
	}

	// running 原样携带
	hb = l.Record(3, StatusRunning, 0)
	if hb.ConsecutiveSuccesses != 2 || hb.ConsecutiveFailures != 0 {
		t.Fatalf("running should carry streaks: %+v", hb)
	}

	hb = l.Record(3, StatusError, 0)
	if hb.ConsecutiveSuccesses != 0 || hb.ConsecutiveFailures != 1 {
		t.Fatalf("error should reset successes and bump failures: %+v", hb)
	}
	hb = l.Record(4, StatusError, 0)
	if hb.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", hb.ConsecutiveFailures)
	}

	// alive 是连击的新起点
	hb = l.Record(4, StatusAlive, 0)
	if hb.ConsecutiveSuccesses != 0 || hb.ConsecutiveFailures != 0 {
		t.Fatalf("alive should reset both streaks: %+v", hb)
	}
}

func TestHeartbeatLog_RingEviction(t *testing.T) {
	l := NewHeartbeatLog(3)
	for i := 1; i <= 5; i++ {
		l.Record(i, StatusCompleted, 0)
	}
	if l.Len() != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", l.Len())
	}
	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	// 新到旧
	if recent[0].Cycle != 5 || recent[1].Cycle != 4 || recent[2].Cycle != 3 {
		t.Fatalf("unexpected order: %v %v %v", recent[0].Cycle, recent[1].Cycle, recent[2].Cycle)
	}
	latest, ok := l.Latest()
	if !ok || latest.Cycle != 5 {
		t.Fatalf("unexpected latest: %+v ok=%v", latest, ok)
	}
}

func TestHeartbeatLog_Empty(t *testing.T) {
	l := NewHeartbeatLog(0)
	if _, ok := l.Latest(); ok {
		t.Fatal("empty log must not return a heartbeat")
	}
	if got := l.Recent(5); len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
