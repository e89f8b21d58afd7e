package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
telegram:
  bot_token: "token-from-file"
  chat_id: "12345"
feed:
  base_url: "https://feed.example.com/api"
gate:
  score_threshold: 65
  daily_quota: 10
committee:
  standing_biases:
    ES: UP
  watched_instruments: ["NVDA", "SMH"]
schedule:
  window_start_hour: 14
  window_end_hour: 20
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Telegram.BotToken != "token-from-file" {
		t.Errorf("bot token not read: %q", cfg.Telegram.BotToken)
	}
	if cfg.Gate.ScoreThreshold != 65 || cfg.Gate.DailyQuota != 10 {
		t.Errorf("gate values not read: %+v", cfg.Gate)
	}
	if cfg.Committee.StandingBiases["ES"] != "UP" {
		t.Errorf("standing biases not read: %+v", cfg.Committee.StandingBiases)
	}
	if len(cfg.Committee.WatchedInstruments) != 2 {
		t.Errorf("watched instruments not read: %+v", cfg.Committee.WatchedInstruments)
	}

	// Unset fields fall back to defaults.
	if cfg.Gate.CounterRegimeThreshold != 80 {
		t.Errorf("expected default counter-regime threshold 80, got %.0f", cfg.Gate.CounterRegimeThreshold)
	}
	if cfg.Committee.StageTimeoutSec != 45 || cfg.Committee.StageRetries != 1 {
		t.Errorf("committee defaults wrong: %+v", cfg.Committee)
	}
	if cfg.Schedule.TickCron == "" || cfg.Schedule.NightlyCron == "" || cfg.Schedule.WeeklyCron == "" {
		t.Errorf("cron defaults missing: %+v", cfg.Schedule)
	}
	if cfg.Outcome.BigWinFactor != 2.0 {
		t.Errorf("expected default big-win factor 2.0, got %.1f", cfg.Outcome.BigWinFactor)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("DAILY_QUOTA", "5")
	t.Setenv("SCORE_THRESHOLD", "72.5")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.BotToken != "token-from-env" {
		t.Errorf("env should override file, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Gate.DailyQuota != 5 {
		t.Errorf("DAILY_QUOTA override lost, got %d", cfg.Gate.DailyQuota)
	}
	if cfg.Gate.ScoreThreshold != 72.5 {
		t.Errorf("SCORE_THRESHOLD override lost, got %.1f", cfg.Gate.ScoreThreshold)
	}
}

func TestLoad_MissingFileUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be fatal: %v", err)
	}
	if cfg.Telegram.BotToken != "tok" {
		t.Errorf("env value lost: %q", cfg.Telegram.BotToken)
	}
	if cfg.Gate.ScoreThreshold != 60 {
		t.Errorf("expected default threshold 60, got %.0f", cfg.Gate.ScoreThreshold)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, sampleYAML))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("sample config should validate: %v", err)
	}

	cfg := valid()
	cfg.Telegram.BotToken = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing bot token should fail validation")
	}

	// No feed url means mock mode, which needs no credentials.
	cfg = valid()
	cfg.Feed.BaseURL = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("missing feed url should validate (mock feed): %v", err)
	}

	cfg = valid()
	cfg.Gate.CounterRegimeThreshold = 50 // below the base threshold of 65
	if err := cfg.Validate(); err == nil {
		t.Error("inverted thresholds should fail validation")
	}

	// An overnight window wraps midnight; only equal hours are empty.
	cfg = valid()
	cfg.Schedule.WindowStartHour = 22
	cfg.Schedule.WindowEndHour = 4
	if err := cfg.Validate(); err != nil {
		t.Errorf("overnight operating window should validate: %v", err)
	}

	cfg = valid()
	cfg.Schedule.WindowStartHour = 14
	cfg.Schedule.WindowEndHour = 14
	if err := cfg.Validate(); err == nil {
		t.Error("zero-width operating window should fail validation")
	}
}
