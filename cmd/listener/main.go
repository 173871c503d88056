package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"RegimeDesk/internal/di"
	"RegimeDesk/pkg/config"
	applogger "RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/server"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	l = l.With(applogger.String("component", "listener"))
	l.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.String("state_dir", cfg.BaseDir()),
		applogger.String("source", cfg.Listener.Source),
	)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeListener(cfg, l, di.ProvideRegistry())
	if err != nil {
		l.Error("listener initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	// Run application (blocks until signal)
	if err := app.Run(context.Background()); err != nil {
		var ce *server.CrashError
		if errors.As(err, &ce) {
			l.Error("listener terminated", applogger.Error(ce.Cause), applogger.String("report_path", ce.ReportPath))
		} else {
			l.Error("listener error", applogger.Error(err))
		}
		os.Exit(1)
	}
}
