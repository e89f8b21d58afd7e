package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"SignalDesk/internal/analytics"
	"SignalDesk/internal/committee"
	"SignalDesk/internal/config"
	"SignalDesk/internal/contextbuilder"
	"SignalDesk/internal/feed"
	"SignalDesk/internal/gatekeeper"
	"SignalDesk/internal/notifier"
	"SignalDesk/internal/outcome"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/scheduler"
	"SignalDesk/internal/sources"
	"SignalDesk/internal/tracker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] SignalDesk starting...")

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, recorder.RetentionPolicy{
			Audit:     cfg.Retention.AuditKeep,
			Decisions: cfg.Retention.DecisionKeep,
			Outcomes:  cfg.Retention.OutcomeKeep,
			Lessons:   cfg.Retention.LessonKeep,
		})
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init signal feed
	var fd feed.Feed
	if cfg.Feed.BaseURL != "" {
		fd = feed.NewHTTPFeed(cfg.Feed.BaseURL, cfg.Feed.APIKey, cfg.Proxy)
	} else {
		fd = feed.NewMockFeed()
		log.Println("[WARN] no feed base url configured, using mock feed")
	}
	log.Printf("[INFO] signal feed: %s", fd.Name())

	// Init context sources
	srcClient := sources.NewClient(sources.ClientOptions{
		Timeout:        time.Duration(cfg.Sources.ReadTimeoutSec) * time.Second,
		RequestsPerSec: cfg.Sources.RequestsPerSec,
		APIKey:         cfg.Sources.APIKey,
		ProxyURL:       cfg.Proxy,
	})
	regime := &sources.HTTPRegimeSource{URL: cfg.Sources.RegimeURL, Client: srcClient}
	positions := &sources.HTTPPositionStore{URL: cfg.Sources.PositionsURL, Client: srcClient}
	catalysts := &sources.HTTPCatalystSource{URL: cfg.Sources.CatalystsURL, Client: srcClient}
	outcomes := &sources.HTTPOutcomeSource{URL: cfg.Sources.OutcomesURL, Client: srcClient}
	stress := sources.NewStressStore(time.Duration(cfg.Retention.StressWindowHrs) * time.Hour)

	// Init committee agent
	var agent committee.Agent
	if cfg.OpenAI.APIKey != "" {
		agent = committee.NewOpenAIAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.RequestsPerSec)
		log.Printf("[INFO] committee agent: openai (%s)", cfg.OpenAI.Model)
	} else {
		agent = &committee.StaticAgent{}
		log.Println("[WARN] no OpenAI key configured, using static agent")
	}

	// Init pipeline stages
	daily, err := gatekeeper.LoadDailyState(cfg.State.DailyFile, time.Now().UTC())
	if err != nil {
		log.Fatalf("[FATAL] load daily state: %v", err)
	}
	gate := gatekeeper.New(cfg, rec)
	builder := contextbuilder.New(cfg, regime, positions, catalysts, stress, rec)
	com := committee.New(cfg, agent)
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	tr := tracker.New(cfg, rec, tn)
	matcher := outcome.New(cfg, rec, outcomes)
	distiller := analytics.New(cfg, rec, agent, tn)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, cfg, fd, gate, daily, builder, com, stress, tr, tn, rec, matcher, distiller)
	if err := sched.RegisterAll(); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand, sched.HandleCallback)

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing tick now")
		go sched.RunTickNow()
	}

	log.Println("[INFO] SignalDesk is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] SignalDesk stopped")
}
