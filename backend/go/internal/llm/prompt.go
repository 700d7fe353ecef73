package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

const (
	historyTurns    = 2
	factAnswerLimit = 500
	extractiveFacts = 3
)

const systemPrompt = `Tu es l'assistant officiel de l'ESILV. Réponds en français, de façon concise et factuelle.
Appuie-toi uniquement sur les informations fournies dans le contexte. Si le contexte ne contient pas la réponse, dis-le honnêtement et propose de contacter l'école.
Cite la source quand elle est disponible.`

const noInformationAnswer = "Je n'ai pas trouvé d'information fiable à ce sujet pour le moment. Je vous invite à consulter esilv.fr ou à contacter directement l'école."

// Composer 根据权威事实生成最终回答。模型不可用或失败时退化为抽取式回答。
type Composer struct {
	model  LLM
	logger *logger.Logger
}

// NewComposer 创建回答生成器，model 可以为 nil。
func NewComposer(model LLM, l *logger.Logger) *Composer {
	return &Composer{model: model, logger: l}
}

// Available 报告是否配置了模型。
func (c *Composer) Available() bool {
	return c != nil && c.model != nil
}

// Answer 返回回答文本，以及该回答是否由模型生成。
func (c *Composer) Answer(ctx context.Context, message string, history []models.ConversationMessage, facts []*models.Fact) (string, bool) {
	if !c.Available() {
		return ExtractiveAnswer(facts), false
	}
	resp, err := c.model.GenerateContent(ctx, BuildPrompt(message, history, facts))
	if err == nil {
		if text := strings.TrimSpace(resp.Text()); text != "" {
			return text, true
		}
		err = fmt.Errorf("empty completion")
	}
	c.logger.WithError(err).Warn("LLM generation failed, using extractive answer")
	return ExtractiveAnswer(facts), false
}

// BuildPrompt 组装提示：系统指令、最近两轮历史、知识上下文，最后是用户消息。
func BuildPrompt(message string, history []models.ConversationMessage, facts []*models.Fact) *models.GenerateContentRequest {
	content := []models.Content{models.NewTextContent(models.SpeakerSystem, systemPrompt)}

	// 一轮 = 用户消息 + 助手回复
	if n := len(history); n > historyTurns*2 {
		history = history[n-historyTurns*2:]
	}
	for _, m := range history {
		role := models.SpeakerUser
		if m.Role == models.SpeakerAssistant || m.Role == models.SpeakerModel {
			role = models.SpeakerModel
		}
		content = append(content, models.NewTextContent(role, m.Content))
	}

	var sb strings.Builder
	if len(facts) == 0 {
		sb.WriteString("Contexte: aucune information pertinente trouvée dans la base de connaissances.\n\n")
	} else {
		sb.WriteString("Contexte (base de connaissances):\n")
		for i, f := range facts {
			fmt.Fprintf(&sb, "%d. Q: %s\n   R: %s\n", i+1, f.Question, truncate(f.Answer, factAnswerLimit))
			if src := f.SourceURL(); src != "" {
				fmt.Fprintf(&sb, "   Source: %s\n", src)
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(message)
	content = append(content, models.NewTextContent(models.SpeakerUser, sb.String()))

	return &models.GenerateContentRequest{Content: content}
}

// ExtractiveAnswer 直接拼接最多三条事实的答案，没有事实时如实说明。
func ExtractiveAnswer(facts []*models.Fact) string {
	if len(facts) == 0 {
		return noInformationAnswer
	}
	if len(facts) > extractiveFacts {
		facts = facts[:extractiveFacts]
	}
	parts := make([]string, 0, len(facts))
	for _, f := range facts {
		parts = append(parts, strings.TrimSpace(f.Answer))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
