package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/go-redis/redis/v8"
)

// Open 创建 Redis 客户端并用 Ping 检查连接。
// 未配置地址时返回 nil, nil，调用方退回到进程内实现。
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}
	return rdb, nil
}

// HealthCheck 检查 Redis 连接的健康状况。
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return fmt.Errorf("redis 客户端未初始化")
	}
	return rdb.Ping(ctx).Err()
}
