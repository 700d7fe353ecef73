// Package service 处理一次聊天请求：路由到对应分支、生成回答并保存会话。
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/router"
	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/orchestrator"
	"github.com/Farx1/esilvchatbot/backend/go/internal/llm"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// ErrEmptyMessage 表示请求中没有消息内容。
var ErrEmptyMessage = errors.New("message is required")

// historyWindow 是从会话记录中取回的最近消息数。
const historyWindow = 6

// Answerer 是知识库问答能力，由 orchestrator.Orchestrator 实现。
type Answerer interface {
	Answer(ctx context.Context, query string) (*orchestrator.Result, error)
}

// ChatRequest 是一次聊天请求。History 为空时从会话记录中读取。
type ChatRequest struct {
	Message   string                       `json:"message"`
	SessionID string                       `json:"sessionId,omitempty"`
	UserID    string                       `json:"userId,omitempty"`
	History   []models.ConversationMessage `json:"history,omitempty"`
}

// Reply 是各分支回复的封闭集合，只有本包内的类型可以实现它。
type Reply interface {
	Kind() models.AgentKind
	Text() string
	sealed()
}

// RetrievalReply 是知识库检索分支的回复。
type RetrievalReply struct {
	Answer    string                  `json:"answer"`
	Facts     []*models.Fact          `json:"facts"`
	Source    string                  `json:"source"`
	Decision  freshness.Decision      `json:"decision"`
	Fallback  bool                    `json:"fallback,omitempty"`
	Verdict   *models.ConflictVerdict `json:"verdict,omitempty"`
	Generated bool                    `json:"generated"`
}

func (RetrievalReply) Kind() models.AgentKind { return models.AgentRetrieval }
func (r RetrievalReply) Text() string         { return r.Answer }
func (RetrievalReply) sealed()                {}

// FormReply 是报名/联系表单分支的回复。
type FormReply struct {
	Answer string   `json:"answer"`
	Fields []string `json:"fields"`
}

func (FormReply) Kind() models.AgentKind { return models.AgentFormFilling }
func (r FormReply) Text() string         { return r.Answer }
func (FormReply) sealed()                {}

// ConversationReply 是闲聊分支的回复。
type ConversationReply struct {
	Answer    string `json:"answer"`
	Generated bool   `json:"generated"`
}

func (ConversationReply) Kind() models.AgentKind { return models.AgentConversation }
func (r ConversationReply) Text() string         { return r.Answer }
func (ConversationReply) sealed()                {}

// ChatResponse 是返回给客户端的结构。MessageID 用于提交评价。
type ChatResponse struct {
	SessionID string           `json:"sessionId"`
	MessageID string           `json:"messageId"`
	AgentType models.AgentKind `json:"agentType"`
	Reply     Reply            `json:"reply"`
}

// FeedbackRequest 是对一条回复的评价，Feedback 取 up/down。
type FeedbackRequest struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Feedback  string `json:"feedback"`
}

// ErrInvalidFeedback 表示评价请求缺少会话或消息 id。
var ErrInvalidFeedback = errors.New("sessionId and messageId are required")

// defaultConversationLimit 是会话列表未指定 limit 时的条数。
const defaultConversationLimit = 50

var formFields = []string{"nom", "prénom", "email", "téléphone", "programme souhaité"}

const formAnswer = "Avec plaisir ! Pour que l'équipe admissions puisse vous recontacter, merci d'indiquer votre nom, prénom, email, téléphone et le programme qui vous intéresse."

const greetingAnswer = "Bonjour ! Je suis l'assistant de l'ESILV. Posez-moi vos questions sur les programmes, les admissions, la vie étudiante ou les dernières actualités de l'école."

// ChatService 组合路由、知识库、回答生成与会话存储。
type ChatService struct {
	knowledge Answerer
	composer  *llm.Composer
	convs     store.ConversationStore
	logger    *logger.Logger
	now       func() time.Time
}

// NewChatService creates a ChatService. convs 可以为 nil，此时不保存会话。
func NewChatService(k Answerer, composer *llm.Composer, convs store.ConversationStore, l *logger.Logger) *ChatService {
	return &ChatService{knowledge: k, composer: composer, convs: convs, logger: l, now: time.Now}
}

// Chat 处理一条消息。只有知识库存储失败会返回错误。
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	if len(req.History) == 0 {
		req.History = s.history(ctx, req.SessionID)
	}

	kind := router.Route(req.Message, req.History)
	var reply Reply
	switch kind {
	case models.AgentRetrieval:
		res, err := s.knowledge.Answer(ctx, req.Message)
		if err != nil {
			return nil, err
		}
		answer, generated := s.composer.Answer(ctx, req.Message, req.History, res.Facts)
		reply = RetrievalReply{
			Answer:    answer,
			Facts:     res.Facts,
			Source:    string(res.Source),
			Decision:  res.Decision,
			Fallback:  res.Fallback,
			Verdict:   res.Verdict,
			Generated: generated,
		}
	case models.AgentFormFilling:
		reply = FormReply{Answer: formAnswer, Fields: formFields}
	default:
		reply = s.converse(ctx, req)
	}

	messageID := uuid.New().String()
	s.save(ctx, req, kind, reply, messageID)
	return &ChatResponse{SessionID: req.SessionID, MessageID: messageID, AgentType: kind, Reply: reply}, nil
}

// Feedback 记录用户对一条回复的评价。
func (s *ChatService) Feedback(ctx context.Context, req FeedbackRequest) (models.Feedback, error) {
	if req.SessionID == "" || req.MessageID == "" {
		return "", ErrInvalidFeedback
	}
	if s.convs == nil {
		return "", store.ErrMessageNotFound
	}
	fb := models.ParseFeedback(req.Feedback)
	if err := s.convs.SetFeedback(ctx, req.SessionID, req.MessageID, fb); err != nil {
		return "", err
	}
	s.logger.WithPayload(map[string]interface{}{"sessionId": req.SessionID, "messageId": req.MessageID, "feedback": fb}).Info("Feedback recorded")
	return fb, nil
}

// Conversations 返回最近的会话，供管理后台查看。
func (s *ChatService) Conversations(ctx context.Context, limit int) ([]*models.ConversationRecord, error) {
	if s.convs == nil {
		return []*models.ConversationRecord{}, nil
	}
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	return s.convs.List(ctx, limit)
}

func (s *ChatService) converse(ctx context.Context, req ChatRequest) ConversationReply {
	if !s.composer.Available() {
		return ConversationReply{Answer: greetingAnswer}
	}
	answer, generated := s.composer.Answer(ctx, req.Message, req.History, nil)
	if !generated {
		answer = greetingAnswer
	}
	return ConversationReply{Answer: answer, Generated: generated}
}

func (s *ChatService) history(ctx context.Context, sessionID string) []models.ConversationMessage {
	if s.convs == nil {
		return nil
	}
	rec, err := s.convs.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrConversationNotFound) {
			s.logger.WithError(err).Warn("Failed to load conversation history")
		}
		return nil
	}
	msgs := rec.Messages
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	return msgs
}

// save 保存本轮对话，失败只记录日志，不影响回复。
func (s *ChatService) save(ctx context.Context, req ChatRequest, kind models.AgentKind, reply Reply, messageID string) {
	if s.convs == nil {
		return
	}
	now := s.now().UTC()
	err := s.convs.Append(ctx, req.SessionID, req.UserID,
		models.ConversationMessage{ID: uuid.New().String(), Role: models.SpeakerUser, Content: req.Message, Timestamp: now},
		models.ConversationMessage{ID: messageID, Role: models.SpeakerAssistant, Content: reply.Text(), Agent: kind, Timestamp: now},
	)
	if err != nil {
		s.logger.WithError(err).WithPayload(map[string]interface{}{"sessionId": req.SessionID}).Error("Failed to save conversation")
	}
}
