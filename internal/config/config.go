package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"SignalDesk/internal/model"
)

// Config holds all application configuration. Built once at startup and
// passed by reference; never mutated afterwards.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Feed struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"feed"`
	Sources struct {
		RegimeURL      string `yaml:"regime_url"`
		PositionsURL   string `yaml:"positions_url"`
		CatalystsURL   string `yaml:"catalysts_url"`
		OutcomesURL    string `yaml:"outcomes_url"`
		APIKey         string `yaml:"api_key"`
		ReadTimeoutSec int    `yaml:"read_timeout_sec"`
		RequestsPerSec int    `yaml:"requests_per_sec"`
	} `yaml:"sources"`
	OpenAI struct {
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		RequestsPerSec int    `yaml:"requests_per_sec"`
	} `yaml:"openai"`
	Gate struct {
		ScoreThreshold         float64 `yaml:"score_threshold"`
		CounterRegimeThreshold float64 `yaml:"counter_regime_threshold"`
		StrongRegimeConfidence float64 `yaml:"strong_regime_confidence"`
		MaxSignalAgeMin        int     `yaml:"max_signal_age_min"`
		DailyQuota             int     `yaml:"daily_quota"`
	} `yaml:"gate"`
	Committee struct {
		StageTimeoutSec int `yaml:"stage_timeout_sec"`
		StageRetries    int `yaml:"stage_retries"`
		// StandingBiases maps instrument to the human's documented lean (UP/DOWN).
		StandingBiases map[string]model.Direction `yaml:"standing_biases"`
		// WatchedInstruments lists instruments in watched thematic sets.
		WatchedInstruments []string `yaml:"watched_instruments"`
	} `yaml:"committee"`
	Tracker struct {
		PendingExpiryMin int `yaml:"pending_expiry_min"`
		ConfirmWindowMin int `yaml:"confirm_window_min"`
		DeferReminderMin int `yaml:"defer_reminder_min"`
	} `yaml:"tracker"`
	Schedule struct {
		TickCron        string `yaml:"tick_cron"`
		NightlyCron     string `yaml:"nightly_cron"`
		WeeklyCron      string `yaml:"weekly_cron"`
		WindowStartHour int    `yaml:"window_start_hour"` // UTC, inclusive
		WindowEndHour   int    `yaml:"window_end_hour"`   // UTC, exclusive
	} `yaml:"schedule"`
	Outcome struct {
		LookbackDays int     `yaml:"lookback_days"`
		BigWinFactor float64 `yaml:"big_win_factor"` // favorable excursion multiple of target distance
	} `yaml:"outcome"`
	Analytics struct {
		WindowDays    int `yaml:"window_days"`
		LessonsPerRun int `yaml:"lessons_per_run"`
	} `yaml:"analytics"`
	Retention struct {
		AuditKeep         int `yaml:"audit_keep"`
		DecisionKeep      int `yaml:"decision_keep"`
		OutcomeKeep       int `yaml:"outcome_keep"`
		LessonKeep        int `yaml:"lesson_keep"`
		StressWindowHrs   int `yaml:"stress_window_hrs"`
		CatalystLookahead int `yaml:"catalyst_lookahead_days"`
	} `yaml:"retention"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	State struct {
		DailyFile string `yaml:"daily_file"`
	} `yaml:"state"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("SOURCES_API_KEY"); v != "" {
		cfg.Sources.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gate.DailyQuota = n
		}
	}
	if v := os.Getenv("SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gate.ScoreThreshold = f
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sources.ReadTimeoutSec == 0 {
		c.Sources.ReadTimeoutSec = 10
	}
	if c.Sources.RequestsPerSec == 0 {
		c.Sources.RequestsPerSec = 5
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.RequestsPerSec == 0 {
		c.OpenAI.RequestsPerSec = 2
	}
	if c.Gate.ScoreThreshold == 0 {
		c.Gate.ScoreThreshold = 60
	}
	if c.Gate.CounterRegimeThreshold == 0 {
		c.Gate.CounterRegimeThreshold = 80
	}
	if c.Gate.StrongRegimeConfidence == 0 {
		c.Gate.StrongRegimeConfidence = 0.7
	}
	if c.Gate.MaxSignalAgeMin == 0 {
		c.Gate.MaxSignalAgeMin = 30
	}
	if c.Gate.DailyQuota == 0 {
		c.Gate.DailyQuota = 20
	}
	if c.Committee.StageTimeoutSec == 0 {
		c.Committee.StageTimeoutSec = 45
	}
	if c.Committee.StageRetries == 0 {
		c.Committee.StageRetries = 1
	}
	if c.Tracker.PendingExpiryMin == 0 {
		c.Tracker.PendingExpiryMin = 60
	}
	if c.Tracker.ConfirmWindowMin == 0 {
		c.Tracker.ConfirmWindowMin = 15
	}
	if c.Tracker.DeferReminderMin == 0 {
		c.Tracker.DeferReminderMin = 30
	}
	if c.Schedule.TickCron == "" {
		c.Schedule.TickCron = "*/30 * * * * *"
	}
	if c.Schedule.NightlyCron == "" {
		c.Schedule.NightlyCron = "0 30 1 * * *"
	}
	if c.Schedule.WeeklyCron == "" {
		c.Schedule.WeeklyCron = "0 0 7 * * 0"
	}
	if c.Schedule.WindowEndHour == 0 {
		c.Schedule.WindowStartHour = 13
		c.Schedule.WindowEndHour = 21
	}
	if c.Outcome.LookbackDays == 0 {
		c.Outcome.LookbackDays = 14
	}
	if c.Outcome.BigWinFactor == 0 {
		c.Outcome.BigWinFactor = 2.0
	}
	if c.Analytics.WindowDays == 0 {
		c.Analytics.WindowDays = 28
	}
	if c.Analytics.LessonsPerRun == 0 {
		c.Analytics.LessonsPerRun = 3
	}
	if c.Retention.AuditKeep == 0 {
		c.Retention.AuditKeep = 5000
	}
	if c.Retention.DecisionKeep == 0 {
		c.Retention.DecisionKeep = 2000
	}
	if c.Retention.OutcomeKeep == 0 {
		c.Retention.OutcomeKeep = 2000
	}
	if c.Retention.LessonKeep == 0 {
		c.Retention.LessonKeep = 30
	}
	if c.Retention.StressWindowHrs == 0 {
		c.Retention.StressWindowHrs = 48
	}
	if c.Retention.CatalystLookahead == 0 {
		c.Retention.CatalystLookahead = 7
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/signaldesk.db"
	}
	if c.State.DailyFile == "" {
		c.State.DailyFile = "data/daily_state.json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if c.Gate.CounterRegimeThreshold < c.Gate.ScoreThreshold {
		return fmt.Errorf("gate.counter_regime_threshold must be >= gate.score_threshold")
	}
	// start > end is a valid overnight window; only equal hours are empty.
	if c.Schedule.WindowStartHour == c.Schedule.WindowEndHour {
		return fmt.Errorf("schedule operating window is empty")
	}
	return nil
}
