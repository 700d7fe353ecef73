package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Open 连接到 MongoDB 并 Ping 一次。
// 未配置地址时返回 nil, nil，对话记录不会被持久化。
func Open(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	clientOptions := options.Client().ApplyURI(cfg.Address)
	// 如果配置了用户名和密码，则设置认证信息。
	if cfg.Username != "" && cfg.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}
	if err = c.Ping(connectCtx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}
	return c, nil
}
