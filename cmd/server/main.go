// Package main provides the LINE bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/bot/menu"
	moviebot "github.com/AceNexus/LineBot/internal/bot/movie"
	newsbot "github.com/AceNexus/LineBot/internal/bot/news"
	"github.com/AceNexus/LineBot/internal/bot/remind"
	"github.com/AceNexus/LineBot/internal/bot/words"
	"github.com/AceNexus/LineBot/internal/buildinfo"
	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/delivery"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/provider/movie"
	"github.com/AceNexus/LineBot/internal/provider/news"
	"github.com/AceNexus/LineBot/internal/ratelimit"
	"github.com/AceNexus/LineBot/internal/reminder"
	"github.com/AceNexus/LineBot/internal/scheduler"
	"github.com/AceNexus/LineBot/internal/scraper"
	"github.com/AceNexus/LineBot/internal/sentry"
	"github.com/AceNexus/LineBot/internal/session"
	"github.com/AceNexus/LineBot/internal/storage"
	"github.com/AceNexus/LineBot/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("version", buildinfo.Version).
		WithField("commit", buildinfo.Commit).
		Infof("starting LineBot server")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
	}); err != nil {
		log.WithError(err).Warnf("sentry initialization failed; error reporting disabled")
	}
	defer sentry.Flush(2 * time.Second)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)

	// Reminders and subscriptions live in memory; SQLite (when DataDir is
	// set) persists them across restarts.
	var db *storage.DB
	var persist reminder.Persister
	if cfg.DataDir != "" {
		db, err = storage.New(cfg.SQLitePath())
		if err != nil {
			log.WithError(err).Errorf("failed to open database")
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		persist = db
		log.WithField("path", cfg.SQLitePath()).Infof("database connected")
	} else {
		log.Infof("DATA_DIR not set; reminders will not survive restarts")
	}

	store := reminder.NewStore(persist)
	if db != nil {
		entries, err := db.LoadEntries()
		if err != nil {
			log.WithError(err).Errorf("failed to load reminder entries")
			os.Exit(1)
		}
		subs, err := db.LoadSubscriptions()
		if err != nil {
			log.WithError(err).Errorf("failed to load subscriptions")
			os.Exit(1)
		}
		store.Load(entries, subs)
		log.WithField("entries", len(entries)).WithField("subscriptions", len(subs)).Infof("reminder store loaded")
	}

	scraperClient := scraper.NewClient(
		scraper.WithTimeout(cfg.ScraperTimeout),
		scraper.WithMaxRetries(cfg.ScraperMaxRetries),
	)
	newsProvider := news.New(scraperClient, log, m)
	movieProvider := movie.New(scraperClient, log, m)

	ai := genai.New(genai.Config{
		APIKey:       cfg.GroqAPIKey,
		BaseURL:      cfg.GroqBaseURL,
		Model:        cfg.GroqModel,
		HistoryLimit: cfg.Bot.ChatHistoryLimit,
	}, log, m)
	if ai.Enabled() {
		log.WithField("model", cfg.GroqModel).Infof("LLM provider enabled")
	} else {
		log.Infof("GROQ_API_KEY not set; AI chat and vocabulary disabled")
	}

	lineClient, err := messaging_api.NewMessagingApiAPI(cfg.LineChannelToken)
	if err != nil {
		log.WithError(err).Errorf("failed to create LINE client")
		os.Exit(1)
	}
	gateway := delivery.NewGateway(lineClient, delivery.Config{
		GlobalRateRPS:      int(cfg.Bot.GlobalRateLimitRPS),
		MaxMessagesPerSend: cfg.Bot.MaxMessagesPerReply,
	}, log, m)

	sessions := session.NewStore()
	loc := cfg.Location()

	botRegistry := bot.NewRegistry()
	botRegistry.Register(menu.New(sessions, ai, gateway, log))
	botRegistry.Register(newsbot.New(newsProvider, sessions, cfg.Bot.NewsCountMax, log))
	botRegistry.Register(moviebot.New(movieProvider, log))
	botRegistry.Register(words.New(ai, sessions, store, cfg.SubscriptionSlots, cfg.Bot.WordCountMax, log))
	botRegistry.Register(remind.New(store, sessions, cfg.ReminderSlots, loc, log))

	userLimiter := ratelimit.NewPerKeyLimiter(ratelimit.PerKeyLimiterConfig{
		MaxTokens:     cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: 10 * time.Minute,
	})
	defer userLimiter.Stop()
	userLimiter.OnDrop(func() { m.RecordRateLimiterDrop("user") })

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:    botRegistry,
		Sessions:    sessions,
		AI:          ai,
		UserLimiter: userLimiter,
		Logger:      log,
		Metrics:     m,
		BotConfig:   &cfg.Bot,
	})

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		Client:        lineClient,
		Gateway:       gateway,
		Processor:     processor,
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log,
	})

	sched := scheduler.New(store, gateway, ai, loc, log, m)
	if err := sched.Start(); err != nil {
		log.WithError(err).Errorf("failed to start scheduler")
		os.Exit(1)
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentryMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))
	setupRoutes(router, cfg, webhookHandler, db, ai, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	go func() {
		log.WithField("port", cfg.Port).Infof("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warnf("scheduler did not stop cleanly")
	}
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warnf("webhook processing did not drain cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("server forced to shutdown")
	}

	log.Infof("server stopped")
}
