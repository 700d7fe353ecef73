package llm

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// OpenAI 是一个用于 OpenAI 兼容 API 的 LLM 客户端。
type OpenAI struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// NewOpenAI 创建一个新的 OpenAI 客户端。BaseURL 非空时指向兼容服务。
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// GenerateContent 使用 OpenAI API 生成内容。
func (o *OpenAI) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	return toGenerateContentResponse(&resp), nil
}

func (o *OpenAI) toOpenAIRequest(req *models.GenerateContentRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Content))
	for _, c := range req.Content {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(c.Role),
			Content: textOf(c),
		})
	}
	temp := temperature(req, o.cfg)
	return openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens(req, o.cfg),
		Temperature: &temp,
	}
}

func openAIRole(r models.SpeakerRole) string {
	switch r {
	case models.SpeakerSystem:
		return openai.ChatMessageRoleSystem
	case models.SpeakerModel, models.SpeakerAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func toGenerateContentResponse(resp *openai.ChatCompletionResponse) *models.GenerateContentResponse {
	var content []models.Content
	if len(resp.Choices) > 0 {
		content = append(content, models.NewTextContent(models.SpeakerModel, resp.Choices[0].Message.Content))
	}
	return &models.GenerateContentResponse{
		Content:      content,
		ResponseID:   resp.ID,
		ModelVersion: resp.Model,
	}
}
