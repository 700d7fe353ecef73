package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 每次请求都构造独立的 GenerativeModel，因此并发调用之间不共享会话状态。
type Gemini struct {
	client *genai.Client
	cfg    config.LLMConfig
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
// 除最后一条外的消息作为历史放入聊天会话，最后一条作为本次发送内容。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	system, turns := splitSystem(req.Content)
	if len(turns) == 0 {
		return nil, fmt.Errorf("gemini: empty request")
	}

	model := g.client.GenerativeModel(g.cfg.Model)
	if n := maxTokens(req, g.cfg); n > 0 {
		model.SetMaxOutputTokens(int32(n))
	}
	if t := temperature(req, g.cfg); t > 0 {
		model.SetTemperature(t)
	}
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	cs := model.StartChat()
	for _, c := range turns[:len(turns)-1] {
		cs.History = append(cs.History, toGenaiContent(c))
	}
	last := toGenaiContent(turns[len(turns)-1])

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

// Close 释放底层 gRPC 连接。
func (g *Gemini) Close() error {
	return g.client.Close()
}

func toGenaiContent(c models.Content) *genai.Content {
	role := "user"
	if c.Role == models.SpeakerModel || c.Role == models.SpeakerAssistant {
		role = "model"
	}
	var parts []genai.Part
	for _, p := range c.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, genai.Text(p.Text))
		}
	}
	return &genai.Content{Role: role, Parts: parts}
}

// fromGenaiResponse 将 GenAI 响应转换为内部响应，只保留文本片段。
func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	if resp == nil {
		return nil
	}
	var content []models.Content
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		var parts []*models.Part
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				parts = append(parts, &models.Part{Text: string(t)})
			}
		}
		content = append(content, models.Content{Parts: parts, Role: models.SpeakerModel})
		// 只取第一个候选
		break
	}
	return &models.GenerateContentResponse{Content: content}
}
