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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
daemon:
  cycle_interval: "2m"
  snapshot_every: 3
snapshot:
  path: "/tmp/snap.json"
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.Daemon.CycleInterval != "2m" {
		t.Errorf("Daemon.CycleInterval: got %q", cfg.Daemon.CycleInterval)
	}
	if cfg.Daemon.SnapshotEvery != 3 {
		t.Errorf("Daemon.SnapshotEvery: got %d", cfg.Daemon.SnapshotEvery)
	}
	if cfg.Snapshot.Path != "/tmp/snap.json" {
		t.Errorf("Snapshot.Path: got %q", cfg.Snapshot.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  provider: "claude"
  api_key: "${TEST_AGENT_API_KEY}"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("TEST_AGENT_API_KEY", "sk-test-123")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.APIKey != "sk-test-123" {
		t.Errorf("Model.APIKey: got %q", cfg.Model.APIKey)
	}
}

func TestParseDuration(t *testing.T) {
	if d := ParseDuration("90s", time.Minute); d != 90*time.Second {
		t.Errorf("ParseDuration(90s): got %v", d)
	}
	if d := ParseDuration("", time.Minute); d != time.Minute {
		t.Errorf("ParseDuration(empty): got %v", d)
	}
	if d := ParseDuration("bogus", time.Minute); d != time.Minute {
		t.Errorf("ParseDuration(bogus): got %v", d)
	}
	if d := ParseDuration("-5s", time.Minute); d != time.Minute {
		t.Errorf("ParseDuration(negative): got %v", d)
	}
}
