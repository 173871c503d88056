package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RegimeDesk/internal/di"
	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/usecase"
	"RegimeDesk/pkg/config"
	xhttp "RegimeDesk/pkg/http"
	applogger "RegimeDesk/pkg/logger"

	"github.com/joho/godotenv"
)

// Exit codes for -once.
const (
	exitEmitted    = 0
	exitNotEmitted = 1
	exitUsage      = 2
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	once := flag.Bool("once", false, "run a single check; exit 0 if downtime was emitted, 1 otherwise")
	gap := flag.Duration("gap", 0, "downtime threshold (overrides watchdog.gap)")
	poll := flag.Duration("poll-interval", 0, "loop interval (overrides watchdog.poll_interval)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Printf("config load failed: %v", err)
		os.Exit(exitUsage)
	}
	if *gap != 0 {
		cfg.Watchdog.Gap = *gap
	}
	if *poll != 0 {
		cfg.Watchdog.PollInterval = *poll
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Printf("logger init failed: %v", err)
		os.Exit(exitUsage)
	}
	l = l.With(applogger.String("component", "watchdog"))

	reg := di.ProvideRegistry()
	store := di.ProvideStateStore(cfg)
	wd, err := usecase.NewWatchdog(cfg.Watchdog.Gap, cfg.Watchdog.PollInterval, store,
		di.NewEnvelopeFactory(models.SourceWatchdog, cfg.Version),
		usecase.WithWatchdogLogger(l),
		usecase.WithWatchdogMetrics(di.ProvideMetrics(reg)),
	)
	if err != nil {
		l.Error("watchdog init failed", applogger.Error(err), applogger.Duration("gap", cfg.Watchdog.Gap))
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		p, err := wd.RunOnce(ctx)
		if err != nil {
			l.Error("watchdog check failed", applogger.Error(err))
			os.Exit(exitNotEmitted)
		}
		if p == nil {
			os.Exit(exitNotEmitted)
		}
		os.Exit(exitEmitted)
	}

	if cfg.Watchdog.MetricsPort > 0 {
		srv := xhttp.NewServer(nil,
			xhttp.WithPort(cfg.Watchdog.MetricsPort),
			xhttp.WithLogger(l),
			xhttp.WithRegistry(reg),
		)
		if err := srv.Start(); err != nil {
			l.Error("metrics server start error", applogger.Error(err), applogger.Int("port", cfg.Watchdog.MetricsPort))
			os.Exit(1)
		}
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	l.Info("watchdog started",
		applogger.String("state_dir", cfg.BaseDir()),
		applogger.Duration("gap", cfg.Watchdog.Gap),
		applogger.Duration("poll_interval", max(cfg.Watchdog.PollInterval, usecase.MinPollInterval)),
	)
	if err := wd.Run(ctx); err != nil {
		l.Error("watchdog stopped", applogger.Error(err))
		os.Exit(1)
	}
	l.Info("watchdog stopped", applogger.Time("at", time.Now().UTC()))
}
