// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Memory        MemoryConfig        `yaml:"memory" mapstructure:"memory"`
	Tool          ToolConfig          `yaml:"tool" mapstructure:"tool"`
	Analysis      AnalysisConfig      `yaml:"analysis" mapstructure:"analysis"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	IndexType          string `yaml:"index_type" mapstructure:"index_type"`
	MetricType         string `yaml:"metric_type" mapstructure:"metric_type"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	FallbackChain   []string                  `yaml:"fallback_chain" mapstructure:"fallback_chain"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
}

// GenerationConfig 内容生成配置
type GenerationConfig struct {
	// CharacterBatchSize 角色生成每批数量
	CharacterBatchSize int `yaml:"character_batch_size" mapstructure:"character_batch_size"`
	// OutlineBatchSize 大纲续写每批章节数
	OutlineBatchSize int `yaml:"outline_batch_size" mapstructure:"outline_batch_size"`
	// MaxRetries 单批失败后的最大重试次数
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	// RetryBackoff 批次重试退避
	RetryBackoff BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// DefaultWordCount 章节目标字数默认值
	DefaultWordCount int `yaml:"default_word_count" mapstructure:"default_word_count"`
	// MinWordCount / MaxWordCount 目标字数钳制范围
	MinWordCount int `yaml:"min_word_count" mapstructure:"min_word_count"`
	MaxWordCount int `yaml:"max_word_count" mapstructure:"max_word_count"`
	// HistoryPromptLimit 生成历史记录中提示词的截断长度
	HistoryPromptLimit int `yaml:"history_prompt_limit" mapstructure:"history_prompt_limit"`
	// WizardOutlineChapters 向导第三步固定生成的章节数
	WizardOutlineChapters int `yaml:"wizard_outline_chapters" mapstructure:"wizard_outline_chapters"`
	// CommitRetries 批次落库冲突时的重试次数
	CommitRetries int           `yaml:"commit_retries" mapstructure:"commit_retries"`
	CommitBackoff time.Duration `yaml:"commit_backoff" mapstructure:"commit_backoff"`
}

// MemoryConfig 记忆子系统配置
type MemoryConfig struct {
	// RecentChapterCount 上下文组装时取最近完成章节的数量
	RecentChapterCount int `yaml:"recent_chapter_count" mapstructure:"recent_chapter_count"`
	// SearchTopK 向量检索返回条数
	SearchTopK int `yaml:"search_top_k" mapstructure:"search_top_k"`
	// MinImportance 检索时的最低重要度过滤
	MinImportance float64 `yaml:"min_importance" mapstructure:"min_importance"`
	// PlotPointWindow 情节点召回窗口（最近多少章）
	PlotPointWindow int `yaml:"plot_point_window" mapstructure:"plot_point_window"`
	// ContextMaxChars 组装后的上下文最大字符数
	ContextMaxChars int `yaml:"context_max_chars" mapstructure:"context_max_chars"`
}

// ToolConfig 工具插件配置
type ToolConfig struct {
	// CallTimeout 单次工具调用超时
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	// RetryBackoff 工具调用重试退避
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// CacheTTL 工具结果缓存存活时间
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	// ClientTTL 客户端最长存活时间
	ClientTTL time.Duration `yaml:"client_ttl" mapstructure:"client_ttl"`
	// IdleTimeout 客户端空闲回收时间
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// CleanupInterval 后台回收巡检间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	// MinRequestsForHealth 健康评估所需的最小调用数
	MinRequestsForHealth int `yaml:"min_requests_for_health" mapstructure:"min_requests_for_health"`
	// ErrorRateWarning / ErrorRateCritical 健康阈值
	ErrorRateWarning  float64 `yaml:"error_rate_warning" mapstructure:"error_rate_warning"`
	ErrorRateCritical float64 `yaml:"error_rate_critical" mapstructure:"error_rate_critical"`
	// MaxToolRounds 生成前置工具调用的最大轮数
	MaxToolRounds int `yaml:"max_tool_rounds" mapstructure:"max_tool_rounds"`
}

// AnalysisConfig 章节分析配置
type AnalysisConfig struct {
	// Enabled 生成完成后是否自动触发分析
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ContentLimit 送入分析的章节内容截断长度（按 rune）
	ContentLimit int `yaml:"content_limit" mapstructure:"content_limit"`
	// Temperature 分析调用温度
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	// RunningTimeout running 状态的卡死判定时长
	RunningTimeout time.Duration `yaml:"running_timeout" mapstructure:"running_timeout"`
	// PendingTimeout pending 状态的卡死判定时长
	PendingTimeout time.Duration `yaml:"pending_timeout" mapstructure:"pending_timeout"`
	// Stream 分析任务使用的 Redis Stream 名称
	Stream string `yaml:"stream" mapstructure:"stream"`
	// ConsumerGroup 分析 worker 消费组
	ConsumerGroup string `yaml:"consumer_group" mapstructure:"consumer_group"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret            string        `yaml:"secret" mapstructure:"secret"`
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration        time.Duration `yaml:"expiration" mapstructure:"expiration"`
	RefreshExpiration time.Duration `yaml:"refresh_expiration" mapstructure:"refresh_expiration"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
