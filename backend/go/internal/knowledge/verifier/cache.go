package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/util"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"
)

// Cache 保存核实结果。
type Cache interface {
	Get(ctx context.Context, key string) ([]models.VerifiedCandidate, bool, error)
	Set(ctx context.Context, key string, candidates []models.VerifiedCandidate) error
}

// CacheKey 由规范化后的查询和 AsOf 所在的日期组成，同一天的相同问题共享结果。
func CacheKey(req Request) string {
	q := strings.Join(strings.Fields(strings.ToLower(keywords.Fold(req.Query))), " ")
	return q + "|" + req.AsOf.UTC().Format("2006-01-02")
}

// ---------- Redis ----------

// RedisCache 把结果以 JSON 存入 Redis，带过期时间。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "esilv:verify:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.VerifiedCandidate, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var out []models.VerifiedCandidate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decode cached candidates: %w", err)
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, candidates []models.VerifiedCandidate) error {
	raw, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// ---------- 进程内 ----------

// MemoryCache 是带 TTL 的进程内 LRU 缓存。
type MemoryCache struct {
	lru *util.LRUCache[string, []models.VerifiedCandidate]
}

func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	lru, err := util.NewLRU[string, []models.VerifiedCandidate](util.CacheConfig{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: lru}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.VerifiedCandidate, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, candidates []models.VerifiedCandidate) error {
	c.lru.Put(key, candidates)
	return nil
}

// ---------- 装饰器 ----------

// Cached 在 Verifier 前面加一层缓存，并合并同一 key 的并发请求。
// 只缓存成功且非空的结果；缓存故障只记录日志。
// 同一个 key 的并发请求共享一次核实。共享的调用不随任何一个调用方取消，
// 只受 timeout 限制；每个调用方各自等待自己的 ctx。
type Cached struct {
	next    Verifier
	cache   Cache
	group   singleflight.Group
	timeout time.Duration
	logger  *logger.Logger
}

var _ Verifier = (*Cached)(nil)

const defaultSharedTimeout = time.Minute

func NewCached(next Verifier, cache Cache, l *logger.Logger) *Cached {
	return &Cached{next: next, cache: cache, timeout: defaultSharedTimeout, logger: l}
}

// WithTimeout 设置共享核实调用的超时。
func (c *Cached) WithTimeout(d time.Duration) *Cached {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *Cached) Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error) {
	key := CacheKey(req)
	if hit, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WithError(err).Warn("Verification cache read failed")
	} else if ok {
		return hit, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		out, err := c.next.Verify(sctx, req)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			if err := c.cache.Set(sctx, key, out); err != nil {
				c.logger.WithError(err).Warn("Verification cache write failed")
			}
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.VerifiedCandidate), nil
	}
}
