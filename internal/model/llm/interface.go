package llm

import (
	"context"

	"agent-daemon/pkg/errors"
)

// Client LLM 客户端接口
type Client interface {
	// Generate 生成文本
	Generate(prompt string, options GenerateOptions) (string, error)
	// GenerateWithContext 使用上下文生成文本
	GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
	// SetAPIKey 设置 API Key
	SetAPIKey(apiKey string)
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// NewClient 创建 LLM 客户端
func NewClient(provider, model, apiKey string) (Client, error) {
	switch provider {
	case "claude", "":
		return NewClaudeClient(model, apiKey)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "不支持的 LLM 提供商: %s", provider)
	}
}
