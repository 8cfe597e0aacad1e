package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate for configurations that cannot run.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full casegraph configuration. Every command loads it through
// viper, so each key can come from the config file or a CASEGRAPH_ variable.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	RxNorm   RxNormConfig   `mapstructure:"rxnorm"`
	CrossRef CrossRefConfig `mapstructure:"crossref"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// CircuitBreakerConfig mirrors gobreaker.Settings; durations are seconds.
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, plain, json
}

// ServerConfig is the listen address of casegraph serve.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memgraph, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
}

// LLMConfig holds the OpenAI-compatible endpoint used for content extraction
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// RateLimitDelay is the minimum pause between two calls.
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`

	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// RxNormConfig holds the RxNav REST endpoint configuration
type RxNormConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CrossRefConfig holds cross reference settings
type CrossRefConfig struct {
	// Threshold is exclusive: only pairs scoring above it are linked.
	Threshold float64 `mapstructure:"threshold"`
}

// BatchConfig holds batch pipeline settings
type BatchConfig struct {
	Size          int    `mapstructure:"size"`
	Workers       int    `mapstructure:"workers"`
	InputDir      string `mapstructure:"input_dir"`
	EnrichedDir   string `mapstructure:"enriched_dir"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	// Ingest writes each enriched batch to the graph once it completes.
	Ingest bool `mapstructure:"ingest"`
}

// IngestConfig holds graph ingestion settings
type IngestConfig struct {
	LogEvery        int    `mapstructure:"log_every"`
	AnonymousPerson string `mapstructure:"anonymous_person"` // collapse, skip
}

// Load decodes the global viper instance over the built-in defaults, then
// applies the conventional NEO4J_*, OPENROUTER_API_KEY and similar variables.
func Load() (*Config, error) {
	setDefaultsOn(viper.GetViper())

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	applyEnv(cfg, os.Getenv)
	return cfg, nil
}

// Default returns the built-in configuration without consulting files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	config := &Config{}
	// the defaults always decode
	_ = v.Unmarshal(config)
	return config
}

// Validate checks the settings every command needs. needLLM is set by commands that
// call the enrichment endpoint.
func (c *Config) Validate(needLLM bool) error {
	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "neo4j", "memgraph":
		if c.Database.URI == "" {
			return fmt.Errorf("%w: database URI is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if needLLM {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: llm api key is required for enrichment", ErrInvalidConfig)
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("%w: llm model is required for enrichment", ErrInvalidConfig)
		}
	}

	switch c.Ingest.AnonymousPerson {
	case "", "collapse", "skip":
	default:
		return fmt.Errorf("%w: unknown anonymous_person policy %q", ErrInvalidConfig, c.Ingest.AnonymousPerson)
	}

	if c.Batch.Size <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

func setDefaultsOn(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "neo4j")
	v.SetDefault("database.uri", "bolt://localhost:7687")
	v.SetDefault("database.username", "neo4j")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.max_connection_pool_size", 50)
	v.SetDefault("database.connect_timeout", "30s")

	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "qwen/qwen-2.5-72b-instruct")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.rate_limit_delay", "1s")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.retry.max_retries", 3)
	v.SetDefault("llm.retry.initial_delay", "1s")
	v.SetDefault("llm.retry.max_delay", "30s")
	v.SetDefault("llm.circuit_breaker.enabled", true)
	v.SetDefault("llm.circuit_breaker.max_requests", 1)
	v.SetDefault("llm.circuit_breaker.interval", 60)
	v.SetDefault("llm.circuit_breaker.timeout", 30)
	v.SetDefault("llm.circuit_breaker.ready_to_trip_ratio", 0.6)

	v.SetDefault("rxnorm.base_url", "https://rxnav.nlm.nih.gov/REST")
	v.SetDefault("rxnorm.timeout", "30s")

	v.SetDefault("crossref.threshold", 0.3)

	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.input_dir", "batches")
	v.SetDefault("batch.enriched_dir", "enriched")
	v.SetDefault("batch.checkpoint_dir", "checkpoints")
	v.SetDefault("batch.ingest", false)

	v.SetDefault("ingest.log_every", 25)
	v.SetDefault("ingest.anonymous_person", "collapse")
}

// envBindings are variables honored without the CASEGRAPH_ prefix. An
// empty value never overrides.
var envBindings = []struct {
	name string
	set  func(*Config, string)
}{
	{"NEO4J_URI", func(c *Config, v string) { c.Database.URI = v }},
	{"NEO4J_USER", func(c *Config, v string) { c.Database.Username = v }},
	{"NEO4J_PASSWORD", func(c *Config, v string) { c.Database.Password = v }},
	{"NEO4J_DATABASE", func(c *Config, v string) { c.Database.Database = v }},
	{"DB_DRIVER", func(c *Config, v string) { c.Database.Driver = v }},
	{"OPENAI_API_KEY", func(c *Config, v string) {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	}},
	// OpenRouter is the default endpoint, so its key wins
	{"OPENROUTER_API_KEY", func(c *Config, v string) { c.LLM.APIKey = v }},
	{"RXNORM_BASE_URL", func(c *Config, v string) { c.RxNorm.BaseURL = v }},
	{"SERVER_HOST", func(c *Config, v string) { c.Server.Host = v }},
}

func applyEnv(cfg *Config, getenv func(string) string) {
	for _, b := range envBindings {
		if v := getenv(b.name); v != "" {
			b.set(cfg, v)
		}
	}
}
