// Package bootstrap 按配置组装知识库的全部组件，供各个入口程序共用。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/database"
	kafkadb "github.com/Farx1/esilvchatbot/backend/go/internal/database/kafka"
	redisdb "github.com/Farx1/esilvchatbot/backend/go/internal/database/redis"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/conflict"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/orchestrator"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/seed"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/sweep"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/verifier"
	"github.com/Farx1/esilvchatbot/backend/go/internal/observability"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/circuitbreaker"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// Knowledge 持有组装好的组件。Redis 和 DB 可能为 nil。
type Knowledge struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Store        store.Store
	Audit        audit.Log
	Extractor    *keywords.Extractor
	Detector     *conflict.Detector
	Orchestrator *orchestrator.Orchestrator
	Sweeper      *sweep.Sweeper
	Metrics      *observability.Metrics

	cfg     *config.AppConfig
	logger  *logger.Logger
	closers []func() error
}

// Open 打开存储并组装知识库。Redis 与 Kafka 连接失败时退回到进程内实现，
// 只有知识库存储失败会返回错误。
func Open(ctx context.Context, cfg *config.AppConfig, l *logger.Logger) (*Knowledge, error) {
	k := &Knowledge{cfg: cfg, logger: l, Metrics: observability.New()}

	if err := k.openStore(ctx); err != nil {
		_ = k.Close(ctx)
		return nil, err
	}

	rdb, err := redisdb.Open(ctx, cfg.Databases.Redis)
	if err != nil {
		l.WithError(err).Warn("Redis unavailable, falling back to in-process cache and locks")
	}
	if rdb != nil {
		k.Redis = rdb
		k.closers = append(k.closers, rdb.Close)
		l.Info("Successfully connected to Redis")
	}

	k.mirrorAudit()

	v, err := verifier.Build(cfg.Verifier, cfg.Middleware.CircuitBreaker, k.Redis, l, func(from, to circuitbreaker.State) {
		k.Metrics.BreakerState(from.String(), to.String())
		l.WithPayload(map[string]interface{}{"from": from.String(), "to": to.String()}).Warn("Crawler circuit breaker changed state")
	})
	if err != nil {
		_ = k.Close(ctx)
		return nil, fmt.Errorf("build verifier: %w", err)
	}

	kc := cfg.Knowledge
	policy := freshness.Policy{SoftDays: kc.SoftExpiryDays, HardDays: kc.HardExpiryDays}
	k.Extractor = keywords.New(kc.MaxKeywords, kc.ExtraStopWords...)
	k.Detector = conflict.NewDefault(nil)

	recOpts := reconcile.Options{
		Policy:             policy,
		VerifiedConfidence: kc.VerifiedConfidence,
		LockTTL:            config.MustDuration(kc.LockTTL, 2*time.Minute),
		Metrics:            k.Metrics,
	}
	if k.Redis != nil {
		recOpts.Locker = reconcile.NewRedisLocker(k.Redis)
	}
	rec := reconcile.New(k.Store, k.Audit, l, recOpts)

	k.Orchestrator = orchestrator.New(k.Store, k.Extractor, v, k.Detector, rec, l, orchestrator.Options{
		TopK:              kc.TopK,
		Policy:            policy,
		VerifyTimeout:     config.MustDuration(kc.VerifyTimeout, 15*time.Second),
		BackgroundTimeout: config.MustDuration(kc.BackgroundTimeout, 2*time.Minute),
		Metrics:           k.Metrics,
	})
	k.Sweeper = sweep.New(k.Store, k.Orchestrator, l, sweep.Options{
		Interval: config.MustDuration(kc.SweepInterval, 0),
		Batch:    kc.SweepBatch,
		HardDays: kc.HardExpiryDays,
	})
	return k, nil
}

func (k *Knowledge) openStore(ctx context.Context) error {
	db, err := database.OpenGorm(k.cfg.Databases)
	if err != nil {
		return fmt.Errorf("open knowledge database: %w", err)
	}
	if db == nil {
		k.logger.Warn("Using in-memory knowledge store, facts are lost on restart")
		k.Store, k.Audit = store.NewMemoryStore(), audit.NewMemoryLog()
		return nil
	}
	k.DB = db
	k.closers = append(k.closers, func() error { return database.Close(db) })

	facts := store.NewGormStore(db)
	if err := facts.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate knowledge_base: %w", err)
	}
	log := audit.NewGormLog(db)
	if err := log.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate rag_updates: %w", err)
	}
	k.Store, k.Audit = facts, log
	k.logger.WithPayload(map[string]interface{}{"driver": k.cfg.Databases.Driver}).Info("Knowledge store ready")
	return nil
}

// mirrorAudit 在配置了 Kafka 时把审计记录镜像到主题。
func (k *Knowledge) mirrorAudit() {
	kcfg := k.cfg.Databases.Kafka
	if len(kcfg.Brokers) == 0 {
		return
	}
	if err := kafkadb.EnsureTopic(kcfg, kcfg.AuditTopic); err != nil {
		k.logger.WithError(err).Warn("Failed to ensure Kafka audit topic")
	}
	pub := audit.NewKafkaPublisher(kafkadb.NewWriter(kcfg, kcfg.AuditTopic))
	k.closers = append(k.closers, pub.Close)
	k.Audit = audit.NewMirrored(k.Audit, pub, k.logger)
}

// Seed 导入配置中的种子文件。没有配置时什么也不做。
func (k *Knowledge) Seed(ctx context.Context) (seed.Report, error) {
	path := k.cfg.Knowledge.SeedFile
	if path == "" {
		return seed.Report{}, nil
	}
	facts, err := seed.Load(path)
	if err != nil {
		return seed.Report{}, err
	}
	return seed.Import(ctx, k.Store, k.Audit, k.logger, facts)
}

// Ping 检查知识库存储。
func (k *Knowledge) Ping(ctx context.Context) error {
	return k.Store.Ping(ctx)
}

// PingRedis 返回 Redis 的健康检查，未启用时返回 nil。
func (k *Knowledge) PingRedis() func(ctx context.Context) error {
	if k.Redis == nil {
		return nil
	}
	return func(ctx context.Context) error { return redisdb.HealthCheck(ctx, k.Redis) }
}

// Close 等待后台任务结束，然后按打开的相反顺序释放连接。
func (k *Knowledge) Close(ctx context.Context) error {
	var errs []error
	if k.Orchestrator != nil {
		if err := k.Orchestrator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain background tasks: %w", err))
		}
	}
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	k.closers = nil
	return errors.Join(errs...)
}
