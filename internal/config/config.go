package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ObiAU/newscurator/internal/models"
)

const configPathEnv = "NEWSCURATOR_CONFIG"

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Exa       ExaConfig       `yaml:"exa"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Digest    DigestConfig    `yaml:"digest"`
	LogLevel  string          `yaml:"logLevel"`
}

// LLMConfig points at any OpenAI-compatible chat completions API.
type LLMConfig struct {
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseUrl"`
	Model         string `yaml:"model"`
	FilterModel   string `yaml:"filterModel"`
	MaxToolRounds int    `yaml:"maxToolRounds"`
}

type ExaConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type RateLimitConfig struct {
	Limit      int           `yaml:"limit"`
	Window     time.Duration `yaml:"window"`
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlitePath"`
}

type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatId"`
}

// DigestConfig describes the scheduled feed pushed to Telegram.
type DigestConfig struct {
	Schedule string        `yaml:"schedule"`
	Timezone string        `yaml:"timezone"`
	Topics   []DigestTopic `yaml:"topics"`
}

type DigestTopic struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	SearchQueries []string `yaml:"searchQueries"`
	Category      string   `yaml:"category"`
	DateRange     string   `yaml:"dateRange"`
}

func defaults() Config {
	return Config{
		LLM: LLMConfig{
			Model:         "gpt-4o-mini",
			MaxToolRounds: 8,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:      20,
			Window:     time.Hour,
			Backend:    "memory",
			SQLitePath: "ratelimit.db",
		},
		Digest: DigestConfig{
			Schedule: "0 8 * * *",
			Timezone: "UTC",
		},
		LogLevel: "info",
	}
}

// Load reads .env (if present), then the YAML file named by
// NEWSCURATOR_CONFIG (if set), then applies environment overrides.
// Missing credentials are not an error here.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKey = getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", c.LLM.APIKey))
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.FilterModel = getEnv("LLM_FILTER_MODEL", c.LLM.FilterModel)
	c.LLM.MaxToolRounds = getEnvAsInt("LLM_MAX_TOOL_ROUNDS", c.LLM.MaxToolRounds)

	c.Exa.APIKey = getEnv("EXA_API_KEY", c.Exa.APIKey)
	c.Exa.BaseURL = getEnv("EXA_BASE_URL", c.Exa.BaseURL)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.RequestTimeout = getEnvAsDuration("SERVER_REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.RateLimit.Limit = getEnvAsInt("RATE_LIMIT", c.RateLimit.Limit)
	c.RateLimit.Window = getEnvAsDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Backend = strings.ToLower(getEnv("RATE_LIMIT_BACKEND", c.RateLimit.Backend))
	c.RateLimit.SQLitePath = getEnv("RATE_LIMIT_SQLITE_PATH", c.RateLimit.SQLitePath)

	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnvAsInt64("TELEGRAM_CHAT_ID", c.Telegram.ChatID)

	c.Digest.Schedule = getEnv("DIGEST_SCHEDULE", c.Digest.Schedule)
	c.Digest.Timezone = getEnv("DIGEST_TIMEZONE", c.Digest.Timezone)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.RateLimit.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.LLM.MaxToolRounds <= 0 {
		errs = append(errs, errors.New("max tool rounds must be positive"))
	}
	for i, topic := range c.Digest.Topics {
		if strings.TrimSpace(topic.Name) == "" || len(topic.SearchQueries) == 0 {
			errs = append(errs, fmt.Errorf("digest topic %d needs a name and a search query", i+1))
		}
	}
	return errors.Join(errs...)
}

// FilterModelOrDefault is the model used for relevance filtering.
func (c LLMConfig) FilterModelOrDefault() string {
	if c.FilterModel != "" {
		return c.FilterModel
	}
	return c.Model
}

// DigestEnabled reports whether a scheduled Telegram digest is fully configured.
func (c *Config) DigestEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0 && len(c.Digest.Topics) > 0
}

// DigestTopics converts the configured digest topics into active feed topics.
func (c *Config) DigestTopics() []models.Topic {
	topics := make([]models.Topic, 0, len(c.Digest.Topics))
	for i, t := range c.Digest.Topics {
		category := models.Category(t.Category)
		if !category.Valid() {
			category = models.CategoryNews
		}
		topics = append(topics, models.Topic{
			ID:            fmt.Sprintf("digest-%d", i+1),
			Name:          t.Name,
			Description:   t.Description,
			SearchQueries: t.SearchQueries,
			Category:      category,
			DateRange:     models.RecencyWindow(t.DateRange).OrDefault(),
			IsActive:      true,
		})
	}
	return topics
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
