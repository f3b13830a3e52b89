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

package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"agent-daemon/pkg/errors"
)

// RedisNotifier 把循环通知发布到 Redis Pub/Sub 频道
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// RedisConfig Redis 通知配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisNotifier 创建 Redis 通知器并探活
func NewRedisNotifier(ctx context.Context, cfg RedisConfig) (*RedisNotifier, error) {
	if cfg.Channel == "" {
		cfg.Channel = "agentd:cycles"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis 连接失败")
	}
	return &RedisNotifier{client: client, channel: cfg.Channel}, nil
}

// PublishCycle 发布一条循环通知
func (n *RedisNotifier) PublishCycle(ctx context.Context, notice CycleNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return errors.Wrap(err, "通知序列化失败")
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "通知发布失败")
	}
	return nil
}

// Close 关闭底层连接
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
