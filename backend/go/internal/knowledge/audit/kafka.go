package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Publisher 把已写入的审计记录发布到外部。
type Publisher interface {
	Publish(ctx context.Context, entry *models.AuditEntry) error
}

// messageWriter 是 *kafka.Writer 中 KafkaPublisher 用到的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 以 JSON 形式把审计记录写入 Kafka 主题。
// 消息 key 为事实 ID，同一事实的记录保持分区内顺序。
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher 包装一个 kafka writer（见 database/kafka.NewWriter）。
func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry *models.AuditEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	key := entry.ID
	if entry.EntryID != nil {
		key = *entry.EntryID
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}

// Close 关闭底层 writer。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Mirrored 在写入 Log 成功后把记录镜像到 Publisher。
// 镜像失败只记录日志，不影响 Append 的结果。
type Mirrored struct {
	Log
	publisher Publisher
	logger    *logger.Logger
}

// NewMirrored 创建带镜像的审计日志。
func NewMirrored(log Log, publisher Publisher, l *logger.Logger) *Mirrored {
	return &Mirrored{Log: log, publisher: publisher, logger: l}
}

func (m *Mirrored) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := m.Log.Append(ctx, entry); err != nil {
		return err
	}
	if err := m.publisher.Publish(ctx, entry); err != nil {
		m.logger.WithError(err).WithPayload(map[string]interface{}{"audit_id": entry.ID}).Warn("Failed to mirror audit entry")
	}
	return nil
}
