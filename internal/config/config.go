package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application. Values come from the
// environment with a FLOWPILOT_ prefix (e.g. FLOWPILOT_HTTP_ADDR) and fall
// back to defaults suitable for local development.
type Config struct {
	HTTPAddr      string `mapstructure:"http_addr"`
	LogLevel      string `mapstructure:"log_level"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	UploadDir     string `mapstructure:"upload_dir"`

	// MemoryMode swaps postgres and redis for in-process implementations.
	MemoryMode bool `mapstructure:"memory_mode"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`

	ValidationTTL time.Duration `mapstructure:"validation_ttl"`

	OpenAI OpenAIConfig `mapstructure:",squash"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"openai_api_key"`
	Model       string  `mapstructure:"openai_model"`
	BaseURL     string  `mapstructure:"openai_base_url"`
	MaxTokens   int     `mapstructure:"openai_max_tokens"`
	Temperature float64 `mapstructure:"openai_temperature"`

	// GPT-3.5 Turbo list prices: $0.50 per 1M prompt tokens, $1.50 per 1M
	// completion tokens.
	PromptTokenPrice     float64 `mapstructure:"openai_prompt_token_price"`
	CompletionTokenPrice float64 `mapstructure:"openai_completion_token_price"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("flowpilot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("memory_mode", false)
	v.SetDefault("postgres_dsn", "host=localhost user=postgres password=postgres dbname=flowpilot port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("validation_ttl", 7*24*time.Hour)
	v.SetDefault("openai_model", "gpt-3.5-turbo")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("openai_max_tokens", 2000)
	v.SetDefault("openai_temperature", 0.7)
	v.SetDefault("openai_prompt_token_price", 0.50/1_000_000)
	v.SetDefault("openai_completion_token_price", 1.50/1_000_000)

	// Bind explicitly: AutomaticEnv alone does not surface env-only keys
	// through Unmarshal.
	for _, key := range []string{
		"http_addr", "log_level", "public_base_url", "upload_dir", "memory_mode",
		"postgres_dsn", "redis_addr", "validation_ttl",
		"openai_api_key", "openai_model", "openai_base_url", "openai_max_tokens",
		"openai_temperature", "openai_prompt_token_price", "openai_completion_token_price",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
