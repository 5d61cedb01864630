package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/newscurator/internal/models"
)

var envKeys = []string{
	configPathEnv,
	"LLM_API_KEY", "OPENAI_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "LLM_FILTER_MODEL", "LLM_MAX_TOOL_ROUNDS",
	"EXA_API_KEY", "EXA_BASE_URL", "SERVER_ADDR", "SERVER_REQUEST_TIMEOUT", "LOG_LEVEL",
	"RATE_LIMIT", "RATE_LIMIT_WINDOW", "RATE_LIMIT_BACKEND", "RATE_LIMIT_SQLITE_PATH",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "DIGEST_SCHEDULE", "DIGEST_TIMEZONE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.FilterModelOrDefault())
	assert.Equal(t, 8, cfg.LLM.MaxToolRounds)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.RateLimit.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.False(t, cfg.DigestEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("LLM_MODEL", "local-model")
	t.Setenv("LLM_FILTER_MODEL", "small-model")
	t.Setenv("LLM_MAX_TOOL_ROUNDS", "3")
	t.Setenv("EXA_API_KEY", "exa-key")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10m")
	t.Setenv("RATE_LIMIT_BACKEND", "SQLite")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-fallback", cfg.LLM.APIKey)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, "small-model", cfg.LLM.FilterModelOrDefault())
	assert.Equal(t, 3, cfg.LLM.MaxToolRounds)
	assert.Equal(t, "exa-key", cfg.Exa.APIKey)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "sqlite", cfg.RateLimit.Backend)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("LLM_API_KEY", "sk-primary")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-primary", cfg.LLM.APIKey)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT", "lots")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.RateLimit.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: file-model
server:
  addr: ":9090"
  requestTimeout: 30s
rateLimit:
  limit: 100
  window: 15m
telegram:
  botToken: bot-token
  chatId: 12345
digest:
  schedule: "30 7 * * 1-5"
  topics:
    - name: AI Safety
      description: alignment research
      searchQueries: ["AI safety research"]
      category: research paper
      dateRange: week
    - name: Rust
      searchQueries: ["Rust language news"]
      category: nonsense
`), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv("SERVER_ADDR", ":7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-model", cfg.LLM.Model)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "30 7 * * 1-5", cfg.Digest.Schedule)
	assert.Equal(t, "UTC", cfg.Digest.Timezone)
	assert.True(t, cfg.DigestEnabled())

	topics := cfg.DigestTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, "digest-1", topics[0].ID)
	assert.Equal(t, models.CategoryResearch, topics[0].Category)
	assert.Equal(t, models.RecencyWeek, topics[0].DateRange)
	assert.True(t, topics[0].IsActive)
	assert.Equal(t, models.CategoryNews, topics[1].Category)
	assert.Equal(t, models.RecencyTwoDays, topics[1].DateRange)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("digest:\n  topics:\n    - description: no name\n"), 0o600))
	t.Setenv(configPathEnv, path)

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest topic 1")
}

func TestLoadReportsMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}
