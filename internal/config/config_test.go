package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 7*24*time.Hour, cfg.ValidationTTL)
	assert.False(t, cfg.MemoryMode)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, 2000, cfg.OpenAI.MaxTokens)
	assert.InDelta(t, 0.50/1_000_000, cfg.OpenAI.PromptTokenPrice, 1e-12)
	assert.InDelta(t, 1.50/1_000_000, cfg.OpenAI.CompletionTokenPrice, 1e-12)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FLOWPILOT_HTTP_ADDR", ":9999")
	t.Setenv("FLOWPILOT_MEMORY_MODE", "true")
	t.Setenv("FLOWPILOT_VALIDATION_TTL", "48h")
	t.Setenv("FLOWPILOT_OPENAI_API_KEY", "sk-test")
	t.Setenv("FLOWPILOT_OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.True(t, cfg.MemoryMode)
	assert.Equal(t, 48*time.Hour, cfg.ValidationTTL)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}
