package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

const defaultTimeout = 120 * time.Second

// ErrUnavailable 表示没有配置可用的模型提供商。
var ErrUnavailable = errors.New("llm: no provider configured")

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 根据显式传入的配置创建模型客户端。
// Provider 为 "none" 或空时返回 ErrUnavailable，调用方应退化为抽取式回答。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an api key")
		}
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "", "none":
		return nil, ErrUnavailable
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// splitSystem 把 system 消息与对话消息分开，多条 system 消息按顺序拼接。
func splitSystem(content []models.Content) (string, []models.Content) {
	var system []string
	var rest []models.Content
	for _, c := range content {
		if c.Role == models.SpeakerSystem {
			system = append(system, textOf(c))
			continue
		}
		rest = append(rest, c)
	}
	return strings.Join(system, "\n\n"), rest
}

func textOf(c models.Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func maxTokens(req *models.GenerateContentRequest, cfg config.LLMConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return cfg.MaxTokens
}

func temperature(req *models.GenerateContentRequest, cfg config.LLMConfig) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return cfg.Temperature
}
