// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Query, Cache, etc.).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Cache     CacheConfig     `yaml:"cache"`
	Converter ConverterConfig `yaml:"converter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the internal JSON-over-TCP RPC listener settings.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`

	// HandlerAttempts is how often a failing message is handled before it
	// is committed and skipped.
	HandlerAttempts int           `yaml:"handlerAttempts"`
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexControl string `yaml:"indexControl"`
	IndexEvents  string `yaml:"indexEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`

	// OpTimeout bounds each read and write; a slow shared tier must not
	// eat the query budget.
	OpTimeout time.Duration `yaml:"opTimeout"`

	// PurgeBatch is how many keys one SCAN step asks for when old
	// generations are purged.
	PurgeBatch int64 `yaml:"purgeBatch"`
}

// IndexConfig controls where generations live and how they are loaded,
// switched and retired.
type IndexConfig struct {
	DataDir             string        `yaml:"dataDir"`
	CloseGracePeriod    time.Duration `yaml:"closeGracePeriod"`
	LoadTimeout         time.Duration `yaml:"loadTimeout"`
	LoadPollInterval    time.Duration `yaml:"loadPollInterval"`
	WatchForGenerations bool          `yaml:"watchForGenerations"`
	LexiconCacheSize    int           `yaml:"lexiconCacheSize"`
	KeepOldGenerations  int           `yaml:"keepOldGenerations"`
}

// QueryConfig controls query execution: worker pools, the ranking queue,
// budgets and admission.
type QueryConfig struct {
	RankingWorkers        int           `yaml:"rankingWorkers"`
	LookupWorkers         int           `yaml:"lookupWorkers"`
	QueueCapacity         int           `yaml:"queueCapacity"`
	BatchSize             int           `yaml:"batchSize"`
	DefaultTimeout        time.Duration `yaml:"defaultTimeout"`
	MaxTimeout            time.Duration `yaml:"maxTimeout"`
	MaxConcurrentQueries  int           `yaml:"maxConcurrentQueries"`
	PriorityPathThreshold int           `yaml:"priorityPathThreshold"`
	DefaultLimit          int           `yaml:"defaultLimit"`
	MaxResultCapacity     int           `yaml:"maxResultCapacity"`
	RateLimitPerSecond    float64       `yaml:"rateLimitPerSecond"`
	RateLimitBurst        int           `yaml:"rateLimitBurst"`

	// SearchSets maps a named search set to the domain ids it allows.
	SearchSets map[string][]uint32 `yaml:"searchSets"`
}

// CacheConfig controls the two-tier result cache.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	LocalEntries int64         `yaml:"localEntries"`
	LocalTTL     time.Duration `yaml:"localTTL"`
	RedisTTL     time.Duration `yaml:"redisTTL"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// ConverterConfig describes the external process that produces journals.
type ConverterConfig struct {
	Command    string        `yaml:"command"`
	Args       []string      `yaml:"args"`
	Timeout    time.Duration `yaml:"timeout"`
	OutboxPoll time.Duration `yaml:"outboxPoll"`

	// MaxAttempts caps the runs of one message; the last failure marks it DEAD.
	MaxAttempts int `yaml:"maxAttempts"`

	// RetryBackoff is the delay after the first failure, doubled per attempt.
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
	MaxRetryBackoff time.Duration `yaml:"maxRetryBackoff"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls query tracing (sample rate).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the query engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir must be set")
	}
	if c.Query.QueueCapacity <= 0 {
		return fmt.Errorf("query.queueCapacity must be positive, got %d", c.Query.QueueCapacity)
	}
	if c.Query.BatchSize <= 0 {
		return fmt.Errorf("query.batchSize must be positive, got %d", c.Query.BatchSize)
	}
	if c.Query.DefaultTimeout <= 0 {
		return fmt.Errorf("query.defaultTimeout must be positive")
	}
	if c.Query.PriorityPathThreshold < 0 {
		return fmt.Errorf("query.priorityPathThreshold must not be negative")
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":9091",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchindex",
			User:            "searchindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "search-index-group",
			Topics: KafkaTopics{
				IndexControl: "index.control",
				IndexEvents:  "index.events",
			},
			HandlerAttempts: 3,
			RetryBackoff:    time.Second,
			WriteTimeout:    10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			OpTimeout:  50 * time.Millisecond,
			PurgeBatch: 500,
		},
		Index: IndexConfig{
			DataDir:            "data/index",
			CloseGracePeriod:   60 * time.Second,
			LoadTimeout:        30 * time.Second,
			LoadPollInterval:   10 * time.Millisecond,
			LexiconCacheSize:   4096,
			KeepOldGenerations: 1,
		},
		Query: QueryConfig{
			RankingWorkers:        runtime.GOMAXPROCS(0),
			LookupWorkers:         runtime.GOMAXPROCS(0) * 2,
			QueueCapacity:         8,
			BatchSize:             512,
			DefaultTimeout:        150 * time.Millisecond,
			MaxTimeout:            5 * time.Second,
			MaxConcurrentQueries:  64,
			PriorityPathThreshold: 4,
			DefaultLimit:          20,
			MaxResultCapacity:     1000,
			RateLimitPerSecond:    200,
			RateLimitBurst:        50,
		},
		Cache: CacheConfig{
			Enabled:      true,
			LocalEntries: 10000,
			LocalTTL:     10 * time.Second,
			RedisTTL:     60 * time.Second,
			KeyPrefix:    "search:",
		},
		Converter: ConverterConfig{
			Timeout:         2 * time.Hour,
			OutboxPoll:      5 * time.Second,
			MaxAttempts:     5,
			RetryBackoff:    time.Minute,
			MaxRetryBackoff: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true"
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_INDEX_CLOSE_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.CloseGracePeriod = d
		}
	}
	if v := os.Getenv("SP_QUERY_RANKING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.RankingWorkers = n
		}
	}
	if v := os.Getenv("SP_QUERY_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.DefaultTimeout = d
		}
	}
	if v := os.Getenv("SP_QUERY_PRIORITY_PATH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.PriorityPathThreshold = n
		}
	}
	if v := os.Getenv("SP_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true"
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
