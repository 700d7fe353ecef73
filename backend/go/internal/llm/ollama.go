package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	olla "github.com/ollama/ollama/api"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端。
type Ollama struct {
	client *olla.Client
	cfg    config.LLMConfig
}

// NewOllama 创建一个新的 Ollama 客户端。
// BaseURL 为空时默认为 "http://localhost:11434"。
func NewOllama(cfg config.LLMConfig) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}

	timeout := config.MustDuration(cfg.Timeout, defaultTimeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	return &Ollama{client: olla.NewClient(parsedURL, hc), cfg: cfg}, nil
}

// GenerateContent 使用 Ollama API 生成内容，非流式。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	system, turns := splitSystem(req.Content)

	options := map[string]any{}
	if n := maxTokens(req, o.cfg); n > 0 {
		options["num_predict"] = n
	}
	if t := temperature(req, o.cfg); t > 0 {
		options["temperature"] = t
	}

	stream := false
	var result *olla.GenerateResponse
	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:   o.cfg.Model,
		System:  system,
		Prompt:  toOllamaPrompt(turns),
		Stream:  &stream,
		Options: options,
	}, func(resp olla.GenerateResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}

	return &models.GenerateContentResponse{
		Content:      []models.Content{models.NewTextContent(models.SpeakerModel, result.Response)},
		ModelVersion: result.Model,
	}, nil
}

// toOllamaPrompt 将多轮消息拼接成一个带角色前缀的提示字符串。
func toOllamaPrompt(turns []models.Content) string {
	var sb strings.Builder
	for i, c := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch c.Role {
		case models.SpeakerModel, models.SpeakerAssistant:
			sb.WriteString("Assistant: ")
		default:
			if len(turns) > 1 {
				sb.WriteString("User: ")
			}
		}
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
