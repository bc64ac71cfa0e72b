package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/norrbit/leadbridge/internal/api/router"
	"github.com/norrbit/leadbridge/internal/channels/facebook"
	appconfig "github.com/norrbit/leadbridge/internal/config"
	"github.com/norrbit/leadbridge/internal/contacts"
	"github.com/norrbit/leadbridge/internal/dedup"
	"github.com/norrbit/leadbridge/internal/notify"
	"github.com/norrbit/leadbridge/internal/observability/metrics"
	"github.com/norrbit/leadbridge/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadbridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Contact store: Postgres when configured, in-memory otherwise.
	var contactsRepo contacts.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		contactsRepo = contacts.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory contact store")
		contactsRepo = contacts.NewInMemoryRepository()
	}

	// Redis dedup fast path is optional; without it duplicate suppression
	// rests entirely on the database unique key.
	var seen facebook.SeenFilter
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		seen = dedup.New(redis.NewClient(opts), cfg.DedupTTL, logger)
	}

	graphClient := facebook.NewClient(cfg.FBAccessToken, cfg.FBAppSecret, logger)
	if cfg.FBGraphBaseURL != "" {
		graphClient.SetGraphAPIBase(cfg.FBGraphBaseURL)
	}
	graphClient.SetTimeout(cfg.FBFetchTimeout)

	var notifier facebook.Notifier
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender != nil && len(cfg.LeadNotifyRecipients) > 0 {
		notifier = notify.NewService(sender, cfg.LeadNotifyRecipients, cfg.PublicBaseURL, logger)
	}

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	webhookHandler := facebook.NewWebhookHandler(facebook.WebhookConfig{
		VerifyToken: cfg.FBVerifyToken,
		AppSecret:   cfg.FBAppSecret,
		Contacts:    contactsRepo,
		Fetcher:     graphClient,
		Seen:        seen,
		Notifier:    notifier,
		Metrics:     webhookMetrics,
		Logger:      logger,
	})
	contactsHandler := contacts.NewHandler(contactsRepo, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		WebhookHandler:     webhookHandler,
		ContactsHandler:    contactsHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
