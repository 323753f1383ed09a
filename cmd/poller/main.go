// Package main is the entry point for the standalone Alert311 poll worker.
//
// The API server runs the same scheduler in-process; this binary exists for
// deployments that separate the web tier from the notification worker. Run
// one or the other, not both, or alerts will be polled twice (the delivery
// ledger still prevents duplicate SMS).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/config"
	"github.com/sudd-bot/alert311/internal/db"
	"github.com/sudd-bot/alert311/internal/middleware"
	"github.com/sudd-bot/alert311/internal/notify"
	"github.com/sudd-bot/alert311/internal/poller"
	"github.com/sudd-bot/alert311/internal/source"
	"github.com/sudd-bot/alert311/internal/user"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	once := flag.Bool("once", false, "run a single poll and exit")
	flag.Parse()

	if *help {
		fmt.Println("Alert311 Poll Worker")
		fmt.Println()
		fmt.Println("Usage: poller [options]")
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

	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	users := user.NewPostgresRepository(conn, logger)
	alerts := alert.NewPostgresRepository(conn, logger)
	deliveries := alert.NewPostgresDeliveryRepository(conn, logger)

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

	sender := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)

	runner := poller.NewRunner(poller.RunnerConfig{
		Alerts:     alerts,
		Deliveries: deliveries,
		Users:      users,
		Searcher:   searcher,
		Sender:     sender,
		Logger:     logger,
	})

	if *once {
		stats, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Error("poll run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("poll run finished",
			"alerts_checked", stats.AlertsChecked,
			"reports_matched", stats.ReportsMatched,
			"deliveries", stats.Deliveries,
			"sms_sent", stats.SMSSent,
			"errors", stats.Errors,
		)
		return
	}

	scheduler, err := poller.NewScheduler(cfg.PollSchedule, runner, logger)
	if err != nil {
		logger.Error("invalid poll schedule", "schedule", cfg.PollSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("poll worker started", "schedule", cfg.PollSchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down poll worker...")
	scheduler.Stop()
	logger.Info("poll worker stopped")
}
