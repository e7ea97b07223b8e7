package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("EMBER_TEST_TG_TOKEN", "tg-secret")
	t.Setenv("EMBER_TEST_CF_KEY", "cf-secret")

	raw := `{
		"name": "ember",
		"telegram": {"token": "$EMBER_TEST_TG_TOKEN"},
		"providers": [
			{"kind": "cloudflare", "api_key": "$EMBER_TEST_CF_KEY", "account_id": "acct", "model": "@cf/meta/llama-3.1-8b-instruct"},
			{"kind": "openai", "api_key": "sk-literal"}
		],
		"spontaneous": {"hour_start": 8, "hour_end": 22}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Telegram.Token != "tg-secret" {
		t.Errorf("token = %q, env reference not resolved", cfg.Telegram.Token)
	}
	if cfg.Providers[0].APIKey != "cf-secret" {
		t.Errorf("provider api key = %q", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[1].APIKey != "sk-literal" {
		t.Errorf("literal api key = %q", cfg.Providers[1].APIKey)
	}
	if cfg.Spontaneous.HourStart != 8 || cfg.Spontaneous.HourEnd != 22 {
		t.Errorf("window = [%d, %d]", cfg.Spontaneous.HourStart, cfg.Spontaneous.HourEnd)
	}

	// Defaults fill in what the file leaves out.
	if cfg.Telegram.PollInterval != "2s" {
		t.Errorf("poll interval = %q", cfg.Telegram.PollInterval)
	}
	if cfg.History.Path != "chat_histories.json" {
		t.Errorf("history path = %q", cfg.History.Path)
	}
	if cfg.Spontaneous.MinInterval != "3h" {
		t.Errorf("min interval = %q", cfg.Spontaneous.MinInterval)
	}
	if cfg.Spontaneous.Timezone != "Asia/Tokyo" {
		t.Errorf("timezone = %q", cfg.Spontaneous.Timezone)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDefaultWindowApplied(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if cfg.Spontaneous.HourStart != 6 || cfg.Spontaneous.HourEnd != 23 {
		t.Errorf("default window = [%d, %d], want [6, 23]",
			cfg.Spontaneous.HourStart, cfg.Spontaneous.HourEnd)
	}
}

func TestDuration(t *testing.T) {
	if d := duration("45s", time.Minute); d != 45*time.Second {
		t.Errorf("duration(45s) = %s", d)
	}
	if d := duration("", time.Minute); d != time.Minute {
		t.Errorf("duration(empty) = %s", d)
	}
	if d := duration("garbage", time.Minute); d != time.Minute {
		t.Errorf("duration(garbage) = %s", d)
	}
	if d := duration("-5s", time.Minute); d != time.Minute {
		t.Errorf("duration(negative) = %s", d)
	}
}
