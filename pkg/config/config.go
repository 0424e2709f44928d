// Package config loads and validates the configuration of the broadcast
// tools from YAML files with environment-variable overrides. It provides typed
// structs for the broadcast builder, the record source, the traversal sweep
// and every backing service (Postgres, Kafka, Redis).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Retry     RetryConfig     `yaml:"retry"`
}

// BroadcastConfig selects the broadcast organisation and its construction
// parameters.
type BroadcastConfig struct {
	Mode              string   `yaml:"mode"`
	BucketSize        int      `yaml:"bucketSize"`
	ExponentialFactor int      `yaml:"exponentialFactor"`
	KeyField          string   `yaml:"keyField"`
	GroupOrder        []string `yaml:"groupOrder"`
}

// Validate rejects parameters no builder can work with.
func (b BroadcastConfig) Validate() error {
	switch strings.ToLower(b.Mode) {
	case "flat", "clustered", "skewed":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown broadcast mode %q", b.Mode)
	}
	if b.BucketSize < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "bucketSize %d must be at least 1", b.BucketSize)
	}
	if b.ExponentialFactor < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "exponentialFactor %d must be at least 2", b.ExponentialFactor)
	}
	switch b.KeyField {
	case "", "search_key", "unique_id":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown keyField %q", b.KeyField)
	}
	return nil
}

// DatasetConfig names where records come from.
type DatasetConfig struct {
	// Source is one of synthetic, file, postgres or kafka.
	Source          string `yaml:"source"`
	Path            string `yaml:"path"`
	Groups          int    `yaml:"groups"`
	RecordsPerGroup int    `yaml:"recordsPerGroup"`
	Table           string `yaml:"table"`
	// LoadTimeout bounds reading the whole dataset; 0 means no limit.
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// SweepConfig controls the traversal sweep run after a build.
type SweepConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
	// SampleKeys bounds how many broadcast records are queried; 0 means all.
	SampleKeys int `yaml:"sampleKeys"`
	// StartStride queries from every StartStride-th position; 1 means all.
	StartStride  int  `yaml:"startStride"`
	CacheReports bool `yaml:"cacheReports"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	RecordBatches string `yaml:"recordBatches"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls whether build span trees are logged.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RetryConfig bounds reconnect attempts against backing services.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
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
	if err := cfg.Broadcast.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Broadcast: BroadcastConfig{
			Mode:              "flat",
			BucketSize:        10,
			ExponentialFactor: 2,
			KeyField:          "search_key",
		},
		Dataset: DatasetConfig{
			Source:          "synthetic",
			Groups:          4,
			RecordsPerGroup: 180,
			Table:           "broadcast_records",
			LoadTimeout:     2 * time.Minute,
		},
		Sweep: SweepConfig{
			Enabled:     true,
			Concurrency: 8,
			StartStride: 1,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "broadcast",
			User:            "broadcast",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "broadcast-builder",
			Topics: KafkaTopics{
				RecordBatches: "broadcast.record-batches",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// applyEnvOverrides reads BI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BI_BROADCAST_MODE"); v != "" {
		cfg.Broadcast.Mode = v
	}
	if v := os.Getenv("BI_BROADCAST_BUCKET_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broadcast.BucketSize = n
		}
	}
	if v := os.Getenv("BI_BROADCAST_EXPONENTIAL_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broadcast.ExponentialFactor = n
		}
	}
	if v := os.Getenv("BI_BROADCAST_KEY_FIELD"); v != "" {
		cfg.Broadcast.KeyField = v
	}
	if v := os.Getenv("BI_BROADCAST_GROUP_ORDER"); v != "" {
		cfg.Broadcast.GroupOrder = strings.Split(v, ",")
	}
	if v := os.Getenv("BI_DATASET_SOURCE"); v != "" {
		cfg.Dataset.Source = v
	}
	if v := os.Getenv("BI_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("BI_SWEEP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sweep.Concurrency = n
		}
	}
	if v := os.Getenv("BI_SWEEP_CACHE_REPORTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sweep.CacheReports = b
		}
	}
	if v := os.Getenv("BI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
