package verifier

import (
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/circuitbreaker"
	pkghttp "github.com/Farx1/esilvchatbot/backend/go/pkg/http"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"github.com/go-redis/redis/v8"
)

// Build 按配置组装完整的核实链：官网（可选 RSS）-> 并行合并 -> 缓存。
// rdb 为空时使用进程内缓存。onBreaker 用于观察熔断状态变化，可以为空。
func Build(cfg config.VerifierConfig, cb config.CircuitBreakerConfig, rdb *redis.Client, l *logger.Logger,
	onBreaker func(from, to circuitbreaker.State)) (Verifier, error) {
	if !cfg.Enabled {
		return Disabled, nil
	}

	opts := []pkghttp.ClientOption{pkghttp.WithUserAgent(cfg.UserAgent)}
	if onBreaker != nil {
		opts = append(opts, pkghttp.WithBreakerHook(onBreaker))
	}
	client, err := pkghttp.NewClient(cb, config.MustDuration(cfg.RequestTimeout, 10*time.Second), opts...)
	if err != nil {
		return nil, err
	}

	sources := []Verifier{NewSiteVerifier(cfg, client, l)}
	if cfg.FeedURL != "" {
		sources = append(sources, NewFeedVerifier(cfg, client))
	}
	var v Verifier = NewMulti(l, sources...)

	ttl := config.MustDuration(cfg.CacheTTL, 10*time.Minute)
	if ttl <= 0 {
		return v, nil
	}
	var cache Cache
	if rdb != nil {
		cache = NewRedisCache(rdb, ttl)
	} else {
		mem, err := NewMemoryCache(cfg.CacheCapacity, ttl)
		if err != nil {
			return nil, err
		}
		cache = mem
	}
	return NewCached(v, cache, l), nil
}
