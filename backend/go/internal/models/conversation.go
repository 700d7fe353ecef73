package models

import "time"

// AgentKind 是聊天请求被路由到的处理分支，取值封闭。
type AgentKind string

const (
	AgentRetrieval    AgentKind = "retrieval"
	AgentFormFilling  AgentKind = "form_filling"
	AgentConversation AgentKind = "orchestration"
)

// Feedback 是用户对一条回复的评价。
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
	FeedbackNeutral  Feedback = "neutral"
)

// ParseFeedback 把界面上的 up/down 映射为评价，其他取值都算 neutral。
func ParseFeedback(v string) Feedback {
	switch v {
	case "up", string(FeedbackPositive):
		return FeedbackPositive
	case "down", string(FeedbackNegative):
		return FeedbackNegative
	default:
		return FeedbackNeutral
	}
}

// ConversationMessage 是对话中的一条消息。
type ConversationMessage struct {
	ID        string      `bson:"id,omitempty" json:"id,omitempty"`
	Role      SpeakerRole `bson:"role" json:"role"`
	Content   string      `bson:"content" json:"content"`
	Agent     AgentKind   `bson:"agent,omitempty" json:"agentType,omitempty"`
	Feedback  Feedback    `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// ConversationRecord 保存一个会话的全部消息。
type ConversationRecord struct {
	ID        string                `bson:"_id" json:"id"`
	SessionID string                `bson:"session_id" json:"sessionId"`
	UserID    string                `bson:"user_id,omitempty" json:"userId,omitempty"`
	Messages  []ConversationMessage `bson:"messages" json:"messages"`
	CreatedAt time.Time             `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time             `bson:"updated_at" json:"updatedAt"`
}
