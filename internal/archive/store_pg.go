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
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"agent-daemon/internal/continuity"
	"agent-daemon/internal/daemon"
	"agent-daemon/pkg/errors"
)

// PgStore PostgreSQL 归档，多进程共享
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 连接 PostgreSQL 并确保归档表存在
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "连接 PostgreSQL 失败")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "PostgreSQL 探活失败")
	}

	ddl := `
CREATE TABLE IF NOT EXISTS recovery_events (
    id         TEXT PRIMARY KEY,
    occurred_at TIMESTAMPTZ NOT NULL,
    type       TEXT NOT NULL,
    payload    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS rebirth_events (
    id         TEXT PRIMARY KEY,
    occurred_at TIMESTAMPTZ NOT NULL,
    new_status TEXT NOT NULL,
    payload    JSONB NOT NULL
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "初始化归档表失败")
	}
	return &PgStore{pool: pool}, nil
}

// AppendRecovery 实现 Store
func (s *PgStore) AppendRecovery(ctx context.Context, ev daemon.RecoveryEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "恢复事件序列化失败")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recovery_events (id, occurred_at, type, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Timestamp, string(ev.Type), payload)
	return err
}

// AppendRebirth 实现 Store
func (s *PgStore) AppendRebirth(ctx context.Context, ev continuity.RebirthEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "重生事件序列化失败")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rebirth_events (id, occurred_at, new_status, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Timestamp, string(ev.NewStatus), payload)
	return err
}

// RecentRecoveries 实现 Store；新到旧
func (s *PgStore) RecentRecoveries(ctx context.Context, limit int) ([]daemon.RecoveryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM recovery_events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []daemon.RecoveryEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev daemon.RecoveryEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "恢复事件反序列化失败")
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentRebirths 实现 Store；新到旧
func (s *PgStore) RecentRebirths(ctx context.Context, limit int) ([]continuity.RebirthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM rebirth_events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []continuity.RebirthEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev continuity.RebirthEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "重生事件反序列化失败")
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close 实现 Store
func (s *PgStore) Close() {
	s.pool.Close()
}
