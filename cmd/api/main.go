// Package main is the entry point for the Alert311 API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/api"
	"github.com/sudd-bot/alert311/internal/config"
	"github.com/sudd-bot/alert311/internal/db"
	"github.com/sudd-bot/alert311/internal/geocode"
	"github.com/sudd-bot/alert311/internal/health"
	"github.com/sudd-bot/alert311/internal/middleware"
	"github.com/sudd-bot/alert311/internal/notify"
	"github.com/sudd-bot/alert311/internal/phonecache"
	"github.com/sudd-bot/alert311/internal/poller"
	"github.com/sudd-bot/alert311/internal/source"
	"github.com/sudd-bot/alert311/internal/stream"
	"github.com/sudd-bot/alert311/internal/user"
	"github.com/sudd-bot/alert311/internal/verify"
)

// feedInterval is how often the live report feed refreshes each subscribed
// location.
const feedInterval = 60 * time.Second

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("Alert311 API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	for key, val := range cfg.LogSummary() {
		logger.Info("config", "key", key, "value", val)
	}

	ctx := context.Background()

	// Database
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Repositories
	users := user.NewPostgresRepository(conn, logger)
	alerts := alert.NewPostgresRepository(conn, logger)
	deliveries := alert.NewPostgresDeliveryRepository(conn, logger)

	// Upstream report source with OAuth token refresh
	tokens := source.NewTokenSource(
		resty.New(),
		cfg.SourceBaseURL,
		cfg.SourceClientID,
		cfg.SourceRedirectURI,
		cfg.SourceScope,
		source.Tokens{
			AccessToken:  cfg.SourceAccessToken,
			RefreshToken: cfg.SourceRefreshToken,
		},
		func(t source.Tokens) {
			logger.Info("source tokens refreshed")
		},
	)
	searcher := source.NewClient(
		resty.New(),
		cfg.SourceGraphQLURL,
		tokens,
		time.Duration(cfg.NearbyCacheTTLSeconds)*time.Second,
		logger,
	)

	// Twilio
	verifier := verify.NewTwilioVerifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifyServiceSID, logger)
	sender := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)

	// Geocoder
	geocoder := geocode.NewNominatimResolver(resty.New(), cfg.GeocoderBaseURL, logger)

	// Verified-phone cache
	phones := phonecache.NewRedisStore(redisClient)

	// Metrics
	metrics := middleware.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Poller
	runner := poller.NewRunner(poller.RunnerConfig{
		Alerts:     alerts,
		Deliveries: deliveries,
		Users:      users,
		Searcher:   searcher,
		Sender:     sender,
		Logger:     logger,
	})
	scheduler, err := poller.NewScheduler(cfg.PollSchedule, runner, logger)
	if err != nil {
		logger.Error("invalid poll schedule", "schedule", cfg.PollSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Live report feed
	broadcaster := stream.NewBroadcaster()
	feed := stream.NewFeed(stream.FeedConfig{
		Searcher:    searcher,
		Broadcaster: broadcaster,
		Interval:    feedInterval,
		Logger:      logger,
	})
	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	go feed.Run(feedCtx)

	// Handlers
	authHandlers := api.NewAuthHandlers(users, verifier, phones, logger)
	alertHandlers := api.NewAlertHandlers(api.AlertHandlersConfig{
		Users:                 users,
		Alerts:                alerts,
		Geocoder:              geocoder,
		DefaultReportTypeID:   cfg.DefaultReportTypeID,
		DefaultReportTypeName: cfg.DefaultReportTypeName,
		Logger:                logger,
	})
	reportHandlers := api.NewReportHandlers(api.ReportHandlersConfig{
		Searcher:   searcher,
		Users:      users,
		Alerts:     alerts,
		Deliveries: deliveries,
		Logger:     logger,
	})
	wsHandlers := api.NewWebSocketHandlers(feed)
	cronHandlers := api.NewCronHandlers(cfg.CronSecret, runner, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewPostgres(conn),
		RedisChecker: health.NewRedis(redisClient),
	})

	handler := newRouter(routerConfig{
		Logger:  logger,
		Metrics: metrics,
		// Redis-backed fixed windows shared across replicas
		Limits: middleware.NewRedisRateLimitStore(redisClient, metrics),

		CORSOrigins:  cfg.CORSAllowedOrigins,
		PprofEnabled: cfg.PprofEnabled,
		Env:          cfg.Env,

		Auth:    authHandlers,
		Alerts:  alertHandlers,
		Reports: reportHandlers,
		WS:      wsHandlers,
		Cron:    cronHandlers,
		Health:  healthHandlers,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
