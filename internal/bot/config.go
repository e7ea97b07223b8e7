package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the bot configuration.
type Config struct {
	// Identity
	Name string `json:"name"` // "ember"

	// Telegram transport
	Telegram TelegramConfig `json:"telegram"`

	// Generation backends, in fallback priority order.
	Providers []ProviderConfig `json:"providers"`

	// Image generation / photo assets
	Image ImageConfig `json:"image"`

	// Persona
	Persona PersonaConfig `json:"persona"`

	// Conversation history
	History HistoryConfig `json:"history"`

	// Spontaneous messaging
	Spontaneous SpontaneousConfig `json:"spontaneous"`

	// Diagnostics HTTP listener, empty disables it.
	HTTPAddr string `json:"http_addr,omitempty"`

	// Turn archive
	Archive ArchiveConfig `json:"archive"`
}

// TelegramConfig holds Bot API connection settings.
type TelegramConfig struct {
	Token        string `json:"token"`
	APIBase      string `json:"api_base,omitempty"`      // override for tests/proxies
	PollInterval string `json:"poll_interval,omitempty"` // e.g. "2s"
}

// ProviderConfig holds settings for a single generation backend.
type ProviderConfig struct {
	Kind        string  `json:"kind"`                 // "cloudflare", "openai", "anthropic"
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key"`              // can use env reference: "$OPENAI_API_KEY"
	AccountID   string  `json:"account_id,omitempty"` // cloudflare only
	BaseURL     string  `json:"base_url,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Timeout     string  `json:"timeout,omitempty"` // per-attempt bound, e.g. "30s"
}

// ImageConfig holds photo delivery settings. When generation is disabled
// the bot falls back to the configured asset URLs.
type ImageConfig struct {
	Enabled       bool     `json:"enabled"`
	Model         string   `json:"model,omitempty"`
	DefaultPrompt string   `json:"default_prompt,omitempty"`
	Assets        []string `json:"assets,omitempty"`
}

// PersonaConfig holds the persona identity and fixed strings.
type PersonaConfig struct {
	Name     string `json:"name,omitempty"`
	Preamble string `json:"preamble,omitempty"`
	Apology  string `json:"apology,omitempty"` // sent when all backends fail
}

// HistoryConfig holds history persistence settings.
type HistoryConfig struct {
	Path     string `json:"path,omitempty"`
	MaxTurns int    `json:"max_turns,omitempty"`
}

// SpontaneousConfig holds the unprompted-message gate settings.
type SpontaneousConfig struct {
	HourStart   int    `json:"hour_start"`             // inclusive
	HourEnd     int    `json:"hour_end"`               // inclusive
	MinInterval string `json:"min_interval,omitempty"` // e.g. "3h"
	Timezone    string `json:"timezone,omitempty"`     // IANA zone name
}

// ArchiveConfig holds turn archive settings.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"` // "sqlite" (default) or "pgx"
	DSN     string `json:"dsn,omitempty"`
}

// LoadConfig reads config from a file path or environment.
// If path is empty, uses env-var-driven defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Resolve env var references in all $-prefixed values
	cfg.Telegram.Token = resolveEnv(cfg.Telegram.Token)
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = resolveEnv(cfg.Providers[i].APIKey)
		cfg.Providers[i].AccountID = resolveEnv(cfg.Providers[i].AccountID)
	}
	cfg.Archive.DSN = resolveEnv(cfg.Archive.DSN)

	cfg.applyDefaults()
	return &cfg, nil
}

// resolveEnv replaces $ENV_VAR references with actual values.
func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

// defaultConfig returns a config built from environment variables,
// matching the original deployment layout.
func defaultConfig() *Config {
	cfg := &Config{
		Name: "ember",
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Providers: []ProviderConfig{
			{
				Kind:        "cloudflare",
				Model:       "@cf/meta/llama-3.1-8b-instruct",
				APIKey:      os.Getenv("CLOUDFLARE_API_TOKEN"),
				AccountID:   os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
				MaxTokens:   120,
				Temperature: 0.95,
			},
			{
				Kind:        "openai",
				Model:       "gpt-4o-mini",
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				MaxTokens:   120,
				Temperature: 0.95,
			},
		},
		Image: ImageConfig{
			Enabled: os.Getenv("CLOUDFLARE_API_TOKEN") != "",
		},
		HTTPAddr: ":" + envOr("PORT", "8080"),
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			Kind:   "anthropic",
			APIKey: key,
		})
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "ember"
	}
	if c.Telegram.PollInterval == "" {
		c.Telegram.PollInterval = "2s"
	}
	if c.History.Path == "" {
		c.History.Path = "chat_histories.json"
	}
	if c.Spontaneous.HourStart == 0 && c.Spontaneous.HourEnd == 0 {
		c.Spontaneous.HourStart = 6
		c.Spontaneous.HourEnd = 23
	}
	if c.Spontaneous.MinInterval == "" {
		c.Spontaneous.MinInterval = "3h"
	}
	if c.Spontaneous.Timezone == "" {
		c.Spontaneous.Timezone = "Asia/Tokyo"
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		c.Archive.DSN = "ember.db"
	}
}

// duration parses s, falling back to def on empty or invalid input.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
