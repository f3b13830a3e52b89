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

package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient 包装任意 LLM Client，在真实调用前执行 RPS 与并发控制。
// 反思循环单飞运行，限流主要约束手动触发的额外调用。
type RateLimitedClient struct {
	inner     Client
	limiter   *rate.Limiter
	semaphore chan struct{}
}

// RateLimitConfig 限流参数
type RateLimitConfig struct {
	RequestsPerMinute float64
	MaxConcurrent     int
}

// NewRateLimitedClient 创建带限流的 LLM 客户端
func NewRateLimitedClient(inner Client, cfg RateLimitConfig) *RateLimitedClient {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	rps := cfg.RequestsPerMinute / 60.0
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:     inner,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Generate 实现 Client.Generate
func (c *RateLimitedClient) Generate(prompt string, options GenerateOptions) (string, error) {
	return c.GenerateWithContext(context.Background(), prompt, options)
}

// GenerateWithContext 实现 Client.GenerateWithContext，调用前执行限流
func (c *RateLimitedClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return c.inner.GenerateWithContext(ctx, prompt, options)
}

// Model 返回底层 Client 的模型名称
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }

// SetAPIKey 代理到底层 Client
func (c *RateLimitedClient) SetAPIKey(apiKey string) { c.inner.SetAPIKey(apiKey) }
