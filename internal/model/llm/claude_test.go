package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaudeClient_ParsesMessageContent(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"反思完成"}]}`))
	}))
	defer srv.Close()
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)

	c, err := NewClaudeClient("claude-3-opus-20240229", "test-key")
	if err != nil {
		t.Fatalf("NewClaudeClient: %v", err)
	}
	got, err := c.GenerateWithContext(context.Background(), "当前状态如何", GenerateOptions{MaxTokens: 64})
	if err != nil {
		t.Fatalf("GenerateWithContext: %v", err)
	}
	if got != "反思完成" {
		t.Errorf("content text: got %q", got)
	}
	if gotPath != "/messages" {
		t.Errorf("request path: got %q, want /messages", gotPath)
	}
	if gotKey != "test-key" || gotVersion != "2023-06-01" {
		t.Errorf("auth headers: key %q version %q", gotKey, gotVersion)
	}
}

func TestClaudeClient_EmptyContentIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)

	c, _ := NewClaudeClient("", "test-key")
	if _, err := c.GenerateWithContext(context.Background(), "p", GenerateOptions{}); err == nil {
		t.Fatal("expected error on empty content")
	}
}

func TestClaudeClient_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)

	c, _ := NewClaudeClient("", "test-key")
	if _, err := c.GenerateWithContext(context.Background(), "p", GenerateOptions{}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
