// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, SQLite, Kafka, Redis, Cache, Index, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache strategies selectable at startup.
const (
	CacheStrategyMemory  = "memory"
	CacheStrategySharded = "sharded"
	CacheStrategyRedis   = "redis"
)

// Index rebuild triggers.
const (
	RebuildManual    = "manual"
	RebuildScheduled = "scheduled"
)

// Document store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Index       IndexConfig       `yaml:"index"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RequestTimeout bounds a single API request; zero disables it.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// AdminRateLimit is the number of ingest and admin requests one client
	// may make per minute; zero disables limiting.
	AdminRateLimit int `yaml:"adminRateLimit"`
}

// StoreConfig selects the document store backing the match collection.
type StoreConfig struct {
	Driver       string        `yaml:"driver"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
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

// SQLiteConfig points at an embedded match database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	MatchIngested   string `yaml:"matchIngested"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// CacheConfig controls the result cache strategy, capacity and expiry.
type CacheConfig struct {
	Strategy      string        `yaml:"strategy"`
	MaxSize       int           `yaml:"maxSize"`
	Shards        int           `yaml:"shards"`
	DefaultTTL    time.Duration `yaml:"defaultTTL"`
	ClientTTL     time.Duration `yaml:"clientTTL"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// IndexConfig controls how and when the entity indexes are rebuilt.
type IndexConfig struct {
	RebuildTrigger  string        `yaml:"rebuildTrigger"`
	RebuildInterval time.Duration `yaml:"rebuildInterval"`
	RebuildTimeout  time.Duration `yaml:"rebuildTimeout"`
	// MinManualInterval throttles externally triggered rebuilds.
	MinManualInterval time.Duration `yaml:"minManualInterval"`
	BuildOnStart      bool          `yaml:"buildOnStart"`
}

// AggregationConfig bounds the limits callers may request.
type AggregationConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
	PageSize     int `yaml:"pageSize"`
	MaxPageSize  int `yaml:"maxPageSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Strategy {
	case CacheStrategyMemory, CacheStrategySharded, CacheStrategyRedis:
	default:
		return fmt.Errorf("unknown cache strategy %q", c.Cache.Strategy)
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.maxSize must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.defaultTTL must be positive, got %s", c.Cache.DefaultTTL)
	}
	if c.Cache.Strategy == CacheStrategySharded && c.Cache.Shards <= 0 {
		return fmt.Errorf("cache.shards must be positive for the sharded strategy")
	}
	switch c.Index.RebuildTrigger {
	case RebuildManual:
	case RebuildScheduled:
		if c.Index.RebuildInterval <= 0 {
			return fmt.Errorf("index.rebuildInterval must be positive for scheduled rebuilds")
		}
	default:
		return fmt.Errorf("unknown index rebuild trigger %q", c.Index.RebuildTrigger)
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Aggregation.MaxLimit > 0 && c.Aggregation.DefaultLimit > c.Aggregation.MaxLimit {
		return fmt.Errorf("aggregation.defaultLimit %d exceeds maxLimit %d",
			c.Aggregation.DefaultLimit, c.Aggregation.MaxLimit)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  20 * time.Second,
			AdminRateLimit:  30,
		},
		Store: StoreConfig{
			Driver:       StoreDriverPostgres,
			FetchTimeout: 2 * time.Minute,
			MaxRetries:   3,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "lol_matches",
			User:            "matchanalytics",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/matches.sqlite",
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "match-analytics-group",
			Topics: KafkaTopics{
				MatchIngested:   "match-ingested",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "ma:",
		},
		Cache: CacheConfig{
			Strategy:      CacheStrategyMemory,
			MaxSize:       1000,
			Shards:        16,
			DefaultTTL:    5 * time.Minute,
			ClientTTL:     10 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Index: IndexConfig{
			RebuildTrigger:    RebuildManual,
			RebuildInterval:   15 * time.Minute,
			RebuildTimeout:    10 * time.Minute,
			MinManualInterval: 30 * time.Second,
			BuildOnStart:      true,
		},
		Aggregation: AggregationConfig{
			DefaultLimit: 10,
			MaxLimit:     200,
			PageSize:     20,
			MaxPageSize:  100,
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

// applyEnvOverrides reads MA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MA_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("MA_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MA_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MA_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MA_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MA_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MA_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("MA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MA_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("MA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MA_CACHE_STRATEGY"); v != "" {
		cfg.Cache.Strategy = v
	}
	if v := os.Getenv("MA_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxSize = n
		}
	}
	if v := os.Getenv("MA_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}
	if v := os.Getenv("MA_CACHE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SweepInterval = d
		}
	}
	if v := os.Getenv("MA_INDEX_REBUILD_TRIGGER"); v != "" {
		cfg.Index.RebuildTrigger = v
	}
	if v := os.Getenv("MA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
