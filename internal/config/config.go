// Package config loads settings from the environment, an optional .env file
// and an optional YAML file named by CONFIG_FILE. Environment wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"

	CatalogDefault   = "default"
	CatalogFile      = "file"
	CatalogProviders = "providers"
)

type Config struct {
	Addr      string `mapstructure:"addr" validate:"required"`
	Env       string `mapstructure:"env" validate:"oneof=development production"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
	PodName   string `mapstructure:"pod_name"`

	CacheBackend         string        `mapstructure:"cache_backend" validate:"oneof=memory redis"`
	CacheMaxSize         int           `mapstructure:"cache_max_size" validate:"gt=0"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl" validate:"gt=0s"`
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval" validate:"gt=0s"`
	RedisURL             string        `mapstructure:"redis_url" validate:"required_if=CacheBackend redis"`

	CatalogSource string `mapstructure:"catalog_source" validate:"oneof=default file providers"`
	CatalogFile   string `mapstructure:"catalog_file" validate:"required_if=CatalogSource file"`

	DatabaseURL      string        `mapstructure:"database_url"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	UsageQueueURL    string        `mapstructure:"sqs_usage_queue_url"`
	UsageAsync       bool          `mapstructure:"usage_async"`
	UsageBufferSize  int           `mapstructure:"usage_buffer_size" validate:"gt=0"`
	UsageTimeout     time.Duration `mapstructure:"usage_timeout" validate:"gt=0s"`
	AWSRegion        string        `mapstructure:"aws_region" validate:"required_with=UsageQueueURL SecretsPrefix"`
	SecretsPrefix    string        `mapstructure:"secrets_prefix"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url" validate:"omitempty,url"`
	BedrockEnabled   bool          `mapstructure:"bedrock_enabled"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"gte=1"`

	OTLPEndpoint     string        `mapstructure:"otlp_endpoint"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio" validate:"gte=0,lte=1"`
	AdminToken       string        `mapstructure:"admin_token"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0s"`
}

var defaults = map[string]any{
	"addr":                   ":8080",
	"env":                    "development",
	"log_level":              "info",
	"log_format":             "json",
	"pod_name":               "",
	"cache_backend":          CacheMemory,
	"cache_max_size":         1000,
	"cache_ttl":              60 * time.Minute,
	"cache_cleanup_interval": 5 * time.Minute,
	"redis_url":              "",
	"catalog_source":         CatalogDefault,
	"catalog_file":           "",
	"database_url":           "",
	"sqlite_path":            "",
	"sqs_usage_queue_url":    "",
	"usage_async":            true,
	"usage_buffer_size":      256,
	"usage_timeout":          5 * time.Second,
	"aws_region":             "",
	"secrets_prefix":         "",
	"openai_api_key":         "",
	"openai_base_url":        "https://api.openai.com/v1",
	"anthropic_api_key":      "",
	"anthropic_base_url":     "https://api.anthropic.com/v1",
	"bedrock_enabled":        false,
	"rate_limit_rps":         10.0,
	"rate_limit_burst":       20,
	"otlp_endpoint":          "",
	"trace_sample_ratio":     1.0,
	"admin_token":            "",
	"shutdown_timeout":       30 * time.Second,
}

// Load reads .env when present, then the environment and CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RateLimitEnabled reports whether per-client throttling is on. A zero rate disables it.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}
