// Package store 保存聊天会话。
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/util"
)

// ErrConversationNotFound 表示会话不存在。
var ErrConversationNotFound = errors.New("conversation not found")

// ErrMessageNotFound 表示会话中没有该消息。
var ErrMessageNotFound = errors.New("message not found")

// ConversationStore defines the interface for conversation persistence.
type ConversationStore interface {
	// Append 追加消息，会话不存在时创建。
	Append(ctx context.Context, sessionID, userID string, msgs ...models.ConversationMessage) error
	Get(ctx context.Context, sessionID string) (*models.ConversationRecord, error)
	// SetFeedback 记录用户对某条消息的评价，重复调用覆盖之前的值。
	SetFeedback(ctx context.Context, sessionID, messageID string, fb models.Feedback) error
	// List 按最近更新时间倒序返回至多 limit 个会话。
	List(ctx context.Context, limit int) ([]*models.ConversationRecord, error)
}

// MongoConversationStore is an implementation of ConversationStore using MongoDB.
type MongoConversationStore struct {
	collection *mongo.Collection
}

// NewMongoConversationStore creates a new MongoConversationStore.
func NewMongoConversationStore(db *mongo.Database, collectionName string) *MongoConversationStore {
	return &MongoConversationStore{collection: db.Collection(collectionName)}
}

// Append 以 upsert 方式把消息推入 messages 数组。
func (s *MongoConversationStore) Append(ctx context.Context, sessionID, userID string, msgs ...models.ConversationMessage) error {
	now := time.Now().UTC()
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
		"$set":  bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        uuid.New().String(),
			"user_id":    userID,
			"created_at": now,
		},
	}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Get retrieves a conversation by its session id.
func (s *MongoConversationStore) Get(ctx context.Context, sessionID string) (*models.ConversationRecord, error) {
	var rec models.ConversationRecord
	err := s.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoConversationStore) SetFeedback(ctx context.Context, sessionID, messageID string, fb models.Feedback) error {
	filter := bson.M{"session_id": sessionID, "messages.id": messageID}
	update := bson.M{"$set": bson.M{"messages.$.feedback": fb}}
	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *MongoConversationStore) List(ctx context.Context, limit int) ([]*models.ConversationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	recs := []*models.ConversationRecord{}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// MemoryConversationStore 在进程内保存最近活跃的会话，超出容量时淘汰最久未用的。
type MemoryConversationStore struct {
	cache *util.LRUCache[string, *models.ConversationRecord]
	now   func() time.Time
}

// NewMemoryConversationStore creates a store holding at most capacity sessions.
func NewMemoryConversationStore(capacity int, ttl time.Duration) (*MemoryConversationStore, error) {
	cache, err := util.NewLRU[string, *models.ConversationRecord](util.CacheConfig{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &MemoryConversationStore{cache: cache, now: time.Now}, nil
}

func (s *MemoryConversationStore) Append(_ context.Context, sessionID, userID string, msgs ...models.ConversationMessage) error {
	now := s.now().UTC()
	// 不原地修改缓存中的记录，读者拿到的副本保持不变
	next := &models.ConversationRecord{ID: uuid.New().String(), SessionID: sessionID, UserID: userID, CreatedAt: now}
	if rec, ok := s.cache.Get(sessionID); ok {
		cp := *rec
		next = &cp
	}
	next.Messages = append(append([]models.ConversationMessage(nil), next.Messages...), msgs...)
	next.UpdatedAt = now
	s.cache.Put(sessionID, next)
	return nil
}

func (s *MemoryConversationStore) Get(_ context.Context, sessionID string) (*models.ConversationRecord, error) {
	rec, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, ErrConversationNotFound
	}
	return snapshot(rec), nil
}

func (s *MemoryConversationStore) SetFeedback(_ context.Context, sessionID, messageID string, fb models.Feedback) error {
	rec, ok := s.cache.Get(sessionID)
	if !ok {
		return ErrMessageNotFound
	}
	next := snapshot(rec)
	for i := range next.Messages {
		if next.Messages[i].ID == messageID {
			next.Messages[i].Feedback = fb
			s.cache.Put(sessionID, next)
			return nil
		}
	}
	return ErrMessageNotFound
}

// List 不刷新会话的淘汰顺序。
func (s *MemoryConversationStore) List(_ context.Context, limit int) ([]*models.ConversationRecord, error) {
	all := s.cache.Values()
	sort.SliceStable(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*models.ConversationRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, snapshot(rec))
	}
	return out, nil
}

func snapshot(rec *models.ConversationRecord) *models.ConversationRecord {
	cp := *rec
	cp.Messages = append([]models.ConversationMessage(nil), rec.Messages...)
	return &cp
}
