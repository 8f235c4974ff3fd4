// Package config loads and validates harness configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Index, Tokenizer, Scoring, Feedback, Run, Redis, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

// Config is the top-level harness configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Run       RunConfig       `yaml:"run"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for `harness serve`.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
}

// PostgresConfig holds PostgreSQL connection parameters for run persistence.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings for run events.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	RunEvents     string   `yaml:"runEvents"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// RedisConfig holds Redis connection and run-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig controls the reference index: where segments live and when the
// in-memory partition is flushed.
type IndexConfig struct {
	DataDir        string `yaml:"dataDir"`
	SegmentMaxSize int64  `yaml:"segmentMaxSize"`
}

// TokenizerConfig selects the tokenization rules. The same rules must be used
// to build the index and to evaluate queries.
type TokenizerConfig struct {
	Mode      string   `yaml:"mode"` // whitespace | standard
	Lowercase bool     `yaml:"lowercase"`
	Stem      bool     `yaml:"stem"`
	StopWords bool     `yaml:"stopWords"`
	ExtraStop []string `yaml:"extraStop"`
	MinLength int      `yaml:"minLength"`
}

// ScoringConfig selects the ranking model and its parameters.
type ScoringConfig struct {
	Model string  `yaml:"model"` // dirichlet | bm25
	Mu    float64 `yaml:"mu"`
	K1    float64 `yaml:"k1"`
	B     float64 `yaml:"b"`
}

// FeedbackConfig controls Rocchio pseudo-relevance feedback.
type FeedbackConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Alpha           float64 `yaml:"alpha"`
	Beta            float64 `yaml:"beta"`
	FbDocs          int     `yaml:"fbDocs"`
	FbTerms         int     `yaml:"fbTerms"`
	QueryWeighting  string  `yaml:"queryWeighting"` // bm25 | raw
	FilterStopWords bool    `yaml:"filterStopWords"`
}

// RunConfig controls batch evaluation output.
type RunConfig struct {
	ResultCount int    `yaml:"resultCount"`
	Tag         string `yaml:"tag"`
	Workers     int    `yaml:"workers"`
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

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
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

// Default returns a Config with the reference parameter values: Dirichlet
// mu=2500, BM25 k1=1.2 b=0.75, Rocchio alpha=1.0 beta=0.75.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DefaultLimit:    10,
			MaxResults:      1000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "retrieval",
			User:            "retrieval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			RunEvents:     "retrieval-run-events",
			ConsumerGroup: "retrieval-harness-events",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Index: IndexConfig{
			DataDir:        "./index",
			SegmentMaxSize: 64 * 1024 * 1024,
		},
		Tokenizer: TokenizerConfig{
			Mode:      "standard",
			Lowercase: true,
			MinLength: 1,
		},
		Scoring: ScoringConfig{
			Model: "dirichlet",
			Mu:    2500,
			K1:    1.2,
			B:     0.75,
		},
		Feedback: FeedbackConfig{
			Alpha:          1.0,
			Beta:           0.75,
			FbDocs:         10,
			FbTerms:        20,
			QueryWeighting: "bm25",
		},
		Run: RunConfig{
			ResultCount: 1000,
			Tag:         "test",
			Workers:     4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects parameter combinations that would make scores undefined.
func (c *Config) Validate() error {
	switch c.Scoring.Model {
	case "dirichlet":
		if c.Scoring.Mu <= 0 {
			return fmt.Errorf("scoring.mu must be positive, got %v: %w", c.Scoring.Mu, apperrors.ErrInvalidConfig)
		}
	case "bm25":
	default:
		return fmt.Errorf("unknown scoring model %q: %w", c.Scoring.Model, apperrors.ErrInvalidConfig)
	}
	if c.Scoring.K1 < 0 || c.Scoring.B < 0 || c.Scoring.B > 1 {
		return fmt.Errorf("bm25 parameters out of range (k1=%v, b=%v): %w", c.Scoring.K1, c.Scoring.B, apperrors.ErrInvalidConfig)
	}
	switch c.Tokenizer.Mode {
	case "whitespace", "standard":
	default:
		return fmt.Errorf("unknown tokenizer mode %q: %w", c.Tokenizer.Mode, apperrors.ErrInvalidConfig)
	}
	if c.Feedback.Enabled {
		if c.Feedback.FbDocs <= 0 {
			return fmt.Errorf("feedback.fbDocs must be positive, got %d: %w", c.Feedback.FbDocs, apperrors.ErrInvalidConfig)
		}
		if c.Feedback.FbTerms <= 0 {
			return fmt.Errorf("feedback.fbTerms must be positive, got %d: %w", c.Feedback.FbTerms, apperrors.ErrInvalidConfig)
		}
	}
	switch c.Feedback.QueryWeighting {
	case "bm25", "raw":
	default:
		return fmt.Errorf("unknown feedback.queryWeighting %q: %w", c.Feedback.QueryWeighting, apperrors.ErrInvalidConfig)
	}
	if c.Run.ResultCount <= 0 {
		return fmt.Errorf("run.resultCount must be positive, got %d: %w", c.Run.ResultCount, apperrors.ErrInvalidConfig)
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_SCORING_MODEL"); v != "" {
		cfg.Scoring.Model = v
	}
	if v := os.Getenv("SP_SCORING_MU"); v != "" {
		if mu, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scoring.Mu = mu
		}
	}
	if v := os.Getenv("SP_FEEDBACK_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Feedback.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_FEEDBACK_FB_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.FbDocs = n
		}
	}
	if v := os.Getenv("SP_FEEDBACK_FB_TERMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.FbTerms = n
		}
	}
	if v := os.Getenv("SP_RUN_TAG"); v != "" {
		cfg.Run.Tag = v
	}
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
