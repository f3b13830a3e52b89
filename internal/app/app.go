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

package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	apihttp "agent-daemon/internal/api/http"
	"agent-daemon/internal/api/http/middleware"
	"agent-daemon/pkg/config"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App Daemon 应用：装配 HTTP 路由与中间件，持有 Bootstrap 的全部组件。
// 启动顺序固定：连续性检查 → Daemon → HTTP 服务。
type App struct {
	bootstrap    *Bootstrap
	router       *apihttp.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建应用（由 cmd/agentd 调用）
func NewApp(bootstrap *Bootstrap) (*App, error) {
	handler := apihttp.NewHandler(bootstrap.Daemon, bootstrap.Continuity, bootstrap.State)
	if bootstrap.Archive != nil {
		handler.SetArchive(bootstrap.Archive)
	}

	var allowOrigins []string
	if bootstrap.Config != nil && bootstrap.Config.API.CORS.Enable {
		allowOrigins = bootstrap.Config.API.CORS.AllowOrigins
	}
	mw := middleware.NewMiddleware(allowOrigins)
	router := apihttp.NewRouter(handler, mw)

	if bootstrap.Config != nil && bootstrap.Config.API.Middleware.Auth && bootstrap.Config.API.Middleware.JWTKey != "" {
		timeout := config.ParseDuration(bootstrap.Config.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := config.ParseDuration(bootstrap.Config.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth(
			[]byte(bootstrap.Config.API.Middleware.JWTKey),
			bootstrap.Config.API.Middleware.AdminSecret,
			timeout, maxRefresh)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，控制路由不设防", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	return &App{bootstrap: bootstrap, router: router}, nil
}

// Run 启动连续性检查、Daemon 循环与 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.setupHertzLogger()

	ctx := context.Background()
	report := a.bootstrap.Continuity.RunStartupChecks(ctx)
	if report.Detected {
		a.bootstrap.Logger.Warn("带不连续状态继续启动",
			"severity", string(report.Severity), "status", string(a.bootstrap.Continuity.ExportStatus().Status))
	}
	a.bootstrap.Daemon.Start(ctx)

	if a.tracingEnabled() {
		cfg := a.bootstrap.Config.Monitoring.Tracing
		serviceName := cfg.ServiceName
		if serviceName == "" {
			serviceName = "agentd"
		}
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(cfg.ExportEndpoint),
		}
		if cfg.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
		a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", cfg.ExportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}

	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)
	return a.hertz.Run()
}

// Shutdown 优雅关闭：先停循环（含收尾快照），再关 HTTP 与外部连接
func (a *App) Shutdown(ctx context.Context) error {
	a.bootstrap.Daemon.Stop(ctx)
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	var err error
	if a.hertz != nil {
		err = a.hertz.Shutdown(ctx)
	}
	a.bootstrap.Close()
	return err
}

func (a *App) tracingEnabled() bool {
	return a.bootstrap.Config != nil &&
		a.bootstrap.Config.Monitoring.Tracing.Enable &&
		a.bootstrap.Config.Monitoring.Tracing.ExportEndpoint != ""
}

// setupHertzLogger 让 Hertz 的访问日志与应用日志走同一套 slog 配置
func (a *App) setupHertzLogger() {
	output := os.Stdout
	if a.bootstrap.Config != nil && a.bootstrap.Config.Log.File != "" {
		f, err := os.OpenFile(a.bootstrap.Config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}
	levelVar := &slog.LevelVar{}
	if a.bootstrap.Config != nil {
		switch a.bootstrap.Config.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		default:
			levelVar.Set(slog.LevelInfo)
		}
	} else {
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
}
