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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Continuity ContinuityConfig `mapstructure:"continuity"`
	Model      ModelConfig      `mapstructure:"model"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// DaemonConfig 循环调度与看门狗配置；时长为 "10m" 这类字符串，解析失败时用默认值
type DaemonConfig struct {
	CycleInterval    string `mapstructure:"cycle_interval"`    // 循环间隔，默认 10m
	FirstCycleDelay  string `mapstructure:"first_cycle_delay"` // 启动后首个循环延迟，默认 5s
	WatchdogInterval string `mapstructure:"watchdog_interval"` // 看门狗巡检间隔，默认 60s
	StallTimeout     string `mapstructure:"stall_timeout"`     // 心跳超时判定，默认 15m（须大于循环间隔）
	SnapshotEvery    int    `mapstructure:"snapshot_every"`    // 每 K 个完成循环写一次快照，<=0 默认 5
	HeartbeatHistory int    `mapstructure:"heartbeat_history"` // 心跳环形缓冲容量，<=0 默认 100
	RecoveryHistory  int    `mapstructure:"recovery_history"`  // RecoveryEvent 历史容量，<=0 默认 50
}

// SnapshotConfig 快照存储配置
type SnapshotConfig struct {
	Path string `mapstructure:"path"` // 快照文件路径，默认 data/agent_snapshot.json
}

// ContinuityConfig 连续性引擎配置
type ContinuityConfig struct {
	RecordPath             string `mapstructure:"record_path"`              // 指纹记录文件路径，默认 data/continuity_record.json
	HistorySize            int    `mapstructure:"history_size"`             // 记录/重生历史容量，<=0 默认 20
	EvolutionJumpThreshold int    `mapstructure:"evolution_jump_threshold"` // 进化版本跳变阈值，<=0 默认 10
}

// ModelConfig LLM 配置；api_key 支持 ${ENV_VAR} 形式
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"` // claude | none（none 时使用内置启发式反思）
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	SecretKey   string  `mapstructure:"secret_key"`  // 从 secrets store 取 api key 时的键名，可选
	MaxTokens   int     `mapstructure:"max_tokens"`  // <=0 默认 1024
	Temperature float64 `mapstructure:"temperature"` // 默认 0.7
	Timeout     string  `mapstructure:"timeout"`     // 请求超时，默认 30s
}

// RateLimitsConfig LLM 限流配置
type RateLimitsConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // <=0 默认 20
	MaxConcurrent     int     `mapstructure:"max_concurrent"`      // <=0 默认 1
}

// NotifyConfig 通知通道配置（Redis Pub/Sub）
type NotifyConfig struct {
	Type     string `mapstructure:"type"` // redis | none
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"` // 默认 agentd:cycles
}

// ArchiveConfig 恢复/重生事件归档配置
type ArchiveConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string `mapstructure:"provider"` // env | memory | vault
	Vault    struct {
		Address    string `mapstructure:"address"`
		Token      string `mapstructure:"token"`
		PathPrefix string `mapstructure:"path_prefix"`
	} `mapstructure:"vault"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置；Auth 开启且 JWTKey 非空时控制类路由要求 JWT
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	JWTKey        string `mapstructure:"jwt_key"`
	AdminSecret   string `mapstructure:"admin_secret"`    // 登录口令，换取 JWT
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadDaemonConfig 加载默认位置的 daemon 配置（configs/agentd.yaml）
func LoadDaemonConfig() (*Config, error) {
	return LoadConfig("configs/agentd.yaml")
}

// replaceEnvVars 替换配置中的 ${ENV_VAR} 形式环境变量（目前仅 model.api_key 与 notify.password）
func replaceEnvVars(config *Config) error {
	config.Model.APIKey = expandEnv(config.Model.APIKey)
	config.Notify.Password = expandEnv(config.Notify.Password)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
	config.API.Middleware.AdminSecret = expandEnv(config.API.Middleware.AdminSecret)
	return nil
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")); val != "" {
			return val
		}
	}
	return v
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
