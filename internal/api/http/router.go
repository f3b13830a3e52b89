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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"agent-daemon/internal/api/http/middleware"
)

// Router 路由装配；SetJWT 后控制类路由要求认证，只读路由保持开放
type Router struct {
	handler *Handler
	mw      *middleware.Middleware
	jwtAuth *jwt.HertzJWTMiddleware
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, mw: mw}
}

// SetJWT 启用控制路由的 JWT 认证
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) {
	r.jwtAuth = auth
}

// Build 创建 Hertz server 并注册全部路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	serverOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.New(serverOpts...)

	h.Use(r.mw.CORS())
	h.Use(r.mw.AccessLog())

	api := h.Group("/api")
	api.GET("/health", r.handler.Health)
	api.GET("/continuity", r.handler.Continuity)
	api.GET("/system/metrics", r.handler.Metrics)

	agent := api.Group("/agent")
	agent.GET("/status", r.handler.AgentStatus)
	agent.GET("/heartbeats", r.handler.Heartbeats)
	agent.GET("/recoveries", r.handler.Recoveries)
	agent.GET("/rebirths", r.handler.Rebirths)

	control := api.Group("/agent")
	if r.jwtAuth != nil {
		api.POST("/login", r.jwtAuth.LoginHandler)
		control.Use(r.jwtAuth.MiddlewareFunc())
	}
	control.POST("/start", r.handler.StartAgent)
	control.POST("/stop", r.handler.StopAgent)
	control.PUT("/interval", r.handler.SetInterval)
	control.POST("/recover", r.handler.Recover)

	return h
}
