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
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agent-daemon/internal/agent"
	"agent-daemon/internal/archive"
	"agent-daemon/internal/continuity"
	"agent-daemon/internal/daemon"
	"agent-daemon/pkg/metrics"
)

const defaultListLimit = 20

// Handler 仪表盘 API 处理器；只读路由直接查内存状态，
// 控制路由代理到 Daemon
type Handler struct {
	daemon  *daemon.Daemon
	engine  *continuity.Engine
	state   *agent.State
	archive archive.Store // 可为 nil
}

// NewHandler 创建处理器
func NewHandler(d *daemon.Daemon, engine *continuity.Engine, state *agent.State) *Handler {
	return &Handler{daemon: d, engine: engine, state: state}
}

// SetArchive 绑定事件归档（可选，查询历史时优先走归档）
func (h *Handler) SetArchive(store archive.Store) {
	h.archive = store
}

// Health 健康检查
// GET /api/health
func (h *Handler) Health(c context.Context, ctx *app.RequestContext) {
	healthy := h.daemon.IsHealthy()
	status := consts.StatusOK
	if !healthy {
		status = consts.StatusServiceUnavailable
	}
	ctx.JSON(status, map[string]interface{}{
		"healthy":    healthy,
		"continuity": h.engine.ExportStatus(),
		"timestamp":  time.Now(),
	})
}

// AgentStatus 运行状态汇总
// GET /api/agent/status
func (h *Handler) AgentStatus(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"daemon":     h.daemon.ExportStatus(),
		"continuity": h.engine.ExportStatus(),
		"agent": map[string]interface{}{
			"cycle_count":    h.state.CycleCount(),
			"confidence":     h.state.Confidence(),
			"doubts":         h.state.Doubts(),
			"energy_level":   h.state.EnergyLevel(),
			"mode":           h.state.Mode(),
			"current_focus":  h.state.CurrentFocus(),
			"autonomy_level": h.state.AutonomyLevel(),
			"reboot_count":   h.state.RebootCount(),
			"constraints":    h.state.Constraints(),
		},
	})
}

// Heartbeats 最近心跳
// GET /api/agent/heartbeats?limit=20
func (h *Handler) Heartbeats(c context.Context, ctx *app.RequestContext) {
	limit := queryLimit(ctx)
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"heartbeats": h.daemon.RecentHeartbeats(limit),
	})
}

// Recoveries 最近恢复事件
// GET /api/agent/recoveries?limit=20
func (h *Handler) Recoveries(c context.Context, ctx *app.RequestContext) {
	limit := queryLimit(ctx)
	if h.archive != nil {
		if events, err := h.archive.RecentRecoveries(c, limit); err == nil {
			ctx.JSON(consts.StatusOK, map[string]interface{}{"recoveries": events})
			return
		} else {
			hlog.CtxWarnf(c, "归档查询失败，回退内存历史: %v", err)
		}
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"recoveries": h.daemon.RecentRecoveries(limit),
	})
}

// Rebirths 最近重生事件
// GET /api/agent/rebirths?limit=20
func (h *Handler) Rebirths(c context.Context, ctx *app.RequestContext) {
	limit := queryLimit(ctx)
	if h.archive != nil {
		if events, err := h.archive.RecentRebirths(c, limit); err == nil {
			ctx.JSON(consts.StatusOK, map[string]interface{}{"rebirths": events})
			return
		} else {
			hlog.CtxWarnf(c, "归档查询失败，回退内存历史: %v", err)
		}
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"rebirths": h.engine.RecentRebirths(limit),
	})
}

// Continuity 连续性状态与当前指纹记录
// GET /api/continuity
func (h *Handler) Continuity(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":      h.engine.ExportStatus(),
		"record":      h.engine.Current(),
		"last_report": h.engine.LastReport(),
	})
}

// Metrics Prometheus 文本格式指标
// GET /api/system/metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf []byte
	w := &appendWriter{buf: &buf}
	if err := metrics.WritePrometheus(w); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf)
}

type appendWriter struct {
	buf *[]byte
}

func (w *appendWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// StartAgent 启动循环
// POST /api/agent/start
func (h *Handler) StartAgent(c context.Context, ctx *app.RequestContext) {
	h.daemon.Start(context.Background())
	ctx.JSON(consts.StatusOK, map[string]interface{}{"status": h.daemon.ExportStatus()})
}

// StopAgent 停止循环
// POST /api/agent/stop
func (h *Handler) StopAgent(c context.Context, ctx *app.RequestContext) {
	h.daemon.Stop(c)
	ctx.JSON(consts.StatusOK, map[string]interface{}{"status": h.daemon.ExportStatus()})
}

// intervalRequest 调整循环周期的请求体
type intervalRequest struct {
	Interval string `json:"interval"`
}

// SetInterval 调整循环周期
// PUT /api/agent/interval
func (h *Handler) SetInterval(c context.Context, ctx *app.RequestContext) {
	var req intervalRequest
	if err := ctx.BindAndValidate(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体无效"})
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil || d <= 0 {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "interval 必须是正的时长，如 5m"})
		return
	}
	h.daemon.SetCycleInterval(context.Background(), d)
	ctx.JSON(consts.StatusOK, map[string]interface{}{"status": h.daemon.ExportStatus()})
}

// recoverRequest 手动恢复请求体
type recoverRequest struct {
	Notes string `json:"notes"`
}

// Recover 手动触发一次恢复
// POST /api/agent/recover
func (h *Handler) Recover(c context.Context, ctx *app.RequestContext) {
	var req recoverRequest
	_ = ctx.BindAndValidate(&req)
	if req.Notes == "" {
		req.Notes = "操作员手动触发"
	}
	ev := h.daemon.Recover(c, daemon.RecoveryManual, req.Notes)
	ctx.JSON(consts.StatusOK, map[string]interface{}{"event": ev})
}

func queryLimit(ctx *app.RequestContext) int {
	limit := ctx.DefaultQuery("limit", "")
	if limit == "" {
		return defaultListLimit
	}
	n := 0
	for _, r := range limit {
		if r < '0' || r > '9' {
			return defaultListLimit
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 || n > 500 {
		return defaultListLimit
	}
	return n
}
