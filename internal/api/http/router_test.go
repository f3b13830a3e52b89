package http

import (
	"bytes"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"agent-daemon/internal/api/http/middleware"
)

func buildRouterForTest(t *testing.T) *server.Hertz {
	t.Helper()
	h := newTestHandler(t)
	mw := middleware.NewMiddleware(nil)
	r := NewRouter(h, mw)
	return r.Build(":0")
}

func TestRouter_ReadRoutesRegistered(t *testing.T) {
	s := buildRouterForTest(t)

	for _, path := range []string{
		"/api/health",
		"/api/continuity",
		"/api/system/metrics",
		"/api/agent/status",
		"/api/agent/heartbeats",
		"/api/agent/recoveries",
		"/api/agent/rebirths",
	} {
		w := ut.PerformRequest(s.Engine, "GET", path, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
		if got := w.Result().StatusCode(); got == 404 {
			t.Errorf("GET %s: status = 404, want registered route", path)
		}
	}
}

func TestRouter_ControlRoutesOpenWithoutJWT(t *testing.T) {
	s := buildRouterForTest(t)

	body := []byte(`{}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/agent/recover", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("POST /api/agent/recover without JWT: status = %d, want 200", got)
	}

	// 未启用 JWT 时不注册登录路由
	w = ut.PerformRequest(s.Engine, "POST", "/api/login", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("POST /api/login without JWT: status = %d, want 404", got)
	}
}

func TestRouter_MetricsServesPrometheusText(t *testing.T) {
	s := buildRouterForTest(t)

	w := ut.PerformRequest(s.Engine, "GET", "/api/system/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("GET /api/system/metrics: status = %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("agentd_")) {
		t.Errorf("metrics body missing agentd_ series: %.200s", resp.Body())
	}
}
