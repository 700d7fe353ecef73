package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")，为空表示不启用
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// SQLiteConfig 定义了嵌入式 SQLite 数据库的配置，用于本地开发。
type SQLiteConfig struct {
	Path string `yaml:"path"` // 数据库文件路径，":memory:" 表示内存数据库
}

// MongoConfig 定义了 MongoDB 数据库的连接配置，用于保存对话记录。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址，为空表示不启用
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 对话集合名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表，为空表示不启用
	AuditTopic string   `yaml:"auditTopic"` // 审计日志镜像主题
}

// DatabaseConfigs 包含所有存储后端的配置。
type DatabaseConfigs struct {
	Driver  string       `yaml:"driver"` // 知识库存储驱动: "mysql", "sqlite", "memory"
	MySQL   MySQLConfig  `yaml:"mysql"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
	Address     string `yaml:"address"`     // HTTP 监听地址
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// LLMConfig 描述用于生成回答的模型提供商。
// 该结构体通过构造函数显式传递，不存在进程级的全局提供商状态。
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "gemini", "openai", "ollama" 或 "none"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	BaseURL     string  `yaml:"baseURL"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float32 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"` // 例如: "60s"
}

// KnowledgeConfig 控制知识新鲜度策略与对账行为。
type KnowledgeConfig struct {
	SoftExpiryDays     float64  `yaml:"softExpiryDays"`     // 超过该天数且问题敏感时需要核实
	HardExpiryDays     float64  `yaml:"hardExpiryDays"`     // 超过该天数必须核实
	TopK               int      `yaml:"topK"`               // 本地检索返回条数
	MaxKeywords        int      `yaml:"maxKeywords"`        // 关键词上限
	ExtraStopWords     []string `yaml:"extraStopWords"`     // 额外停用词
	VerifiedConfidence float64  `yaml:"verifiedConfidence"` // 新核实事实的置信度
	VerifyTimeout      string   `yaml:"verifyTimeout"`      // 同步核实超时
	BackgroundTimeout  string   `yaml:"backgroundTimeout"`  // 后台核实与对账的总超时
	LockTTL            string   `yaml:"lockTTL"`            // 对账锁的过期时间
	SweepInterval      string   `yaml:"sweepInterval"`      // 定时复核间隔，"0" 表示关闭
	SweepBatch         int      `yaml:"sweepBatch"`         // 每轮复核的事实数量
	SeedFile           string   `yaml:"seedFile"`           // 启动时导入的种子文件
}

// VerifierConfig 描述学校官网的抓取方式。
type VerifierConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"baseURL"`
	NewsPath          string  `yaml:"newsPath"`
	SearchPath        string  `yaml:"searchPath"`
	FeedURL           string  `yaml:"feedURL"`
	UserAgent         string  `yaml:"userAgent"`
	MaxArticles       int     `yaml:"maxArticles"`
	DeepParagraphs    int     `yaml:"deepParagraphs"`
	MinParagraphLen   int     `yaml:"minParagraphLen"`
	ArticleCharLimit  int     `yaml:"articleCharLimit"`
	SnippetCharLimit  int     `yaml:"snippetCharLimit"`
	CrawlInterval     string  `yaml:"crawlInterval"`
	RequestTimeout    string  `yaml:"requestTimeout"`
	CacheTTL          string  `yaml:"cacheTTL"`
	CacheCapacity     int     `yaml:"cacheCapacity"`
	ExcerptConfidence float64 `yaml:"excerptConfidence"`
	ArticleConfidence float64 `yaml:"articleConfidence"`
	SearchConfidence  float64 `yaml:"searchConfidence"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "fixedWindow", "tokenBucket"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	LLM        LLMConfig        `yaml:"llm"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Verifier   VerifierConfig   `yaml:"verifier"`
}

// Default 返回一份完整可用的默认配置，YAML 文件中的字段会覆盖它。
func Default() *AppConfig {
	return &AppConfig{
		App: AppInfo{
			Name:        "esilv-chatbot",
			Version:     "1.0.0",
			Environment: "development",
			Address:     ":8080",
		},
		LLM: LLMConfig{
			Provider:    "none",
			MaxTokens:   2000,
			Temperature: 0.7,
			Timeout:     "60s",
		},
		Logger: LoggerConfig{Level: "info"},
		Databases: DatabaseConfigs{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "knowledge.db"},
			MySQL: MySQLConfig{
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: 3600,
			},
			MongoDB: MongoConfig{Database: "esilv", Collection: "conversations"},
			Kafka:   KafkaConfig{AuditTopic: "knowledge-audit"},
		},
		Middleware: MiddlewareConfig{
			RateLimiter: RateLimiterConfig{
				Enabled:     true,
				Algorithm:   "tokenBucket",
				TokenBucket: TokenBucketConfig{Rate: 20, Capacity: 40},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          "30s",
			},
		},
		Knowledge: KnowledgeConfig{
			SoftExpiryDays:     7,
			HardExpiryDays:     30,
			TopK:               3,
			MaxKeywords:        8,
			VerifiedConfidence: 0.95,
			VerifyTimeout:      "15s",
			BackgroundTimeout:  "2m",
			LockTTL:            "2m",
			SweepInterval:      "0",
			SweepBatch:         20,
		},
		Verifier: VerifierConfig{
			Enabled:           true,
			BaseURL:           "https://www.esilv.fr",
			NewsPath:          "/actus/",
			SearchPath:        "/recherche",
			UserAgent:         "Mozilla/5.0 (compatible; ESILV-Chatbot/1.0)",
			MaxArticles:       6,
			DeepParagraphs:    5,
			MinParagraphLen:   50,
			ArticleCharLimit:  1500,
			SnippetCharLimit:  500,
			CrawlInterval:     "500ms",
			RequestTimeout:    "10s",
			CacheTTL:          "10m",
			CacheCapacity:     256,
			ExcerptConfidence: 0.80,
			ArticleConfidence: 0.95,
			SearchConfidence:  0.75,
		},
	}
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 文件中未出现的字段保留 Default 中的值。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	cfg := Default()
	if err = yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig 表示配置中存在不可能成立的取值。
var ErrInvalidConfig = errors.New("invalid config")

// Validate 检查配置取值的一致性。
func (c *AppConfig) Validate() error {
	k := c.Knowledge
	switch {
	case k.SoftExpiryDays <= 0 || k.HardExpiryDays <= 0:
		return fmt.Errorf("%w: expiry days must be positive", ErrInvalidConfig)
	case k.SoftExpiryDays >= k.HardExpiryDays:
		return fmt.Errorf("%w: softExpiryDays (%v) must be lower than hardExpiryDays (%v)", ErrInvalidConfig, k.SoftExpiryDays, k.HardExpiryDays)
	case k.TopK <= 0:
		return fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	case k.MaxKeywords <= 0:
		return fmt.Errorf("%w: maxKeywords must be positive", ErrInvalidConfig)
	case k.VerifiedConfidence < 0 || k.VerifiedConfidence > 1:
		return fmt.Errorf("%w: verifiedConfidence must be within [0,1]", ErrInvalidConfig)
	}
	switch c.Databases.Driver {
	case "mysql", "sqlite", "memory":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Databases.Driver)
	}
	for name, raw := range map[string]string{
		"knowledge.verifyTimeout":     k.VerifyTimeout,
		"knowledge.backgroundTimeout": k.BackgroundTimeout,
		"knowledge.lockTTL":           k.LockTTL,
		"knowledge.sweepInterval":     k.SweepInterval,
		"verifier.crawlInterval":      c.Verifier.CrawlInterval,
		"verifier.requestTimeout":     c.Verifier.RequestTimeout,
		"verifier.cacheTTL":           c.Verifier.CacheTTL,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// ParseDuration 解析配置中的时长字符串，空字符串和 "0" 都视为 0。
func ParseDuration(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// MustDuration 与 ParseDuration 相同，但解析失败时返回 fallback。
// 仅用于已经通过 Validate 的配置。
func MustDuration(raw string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
