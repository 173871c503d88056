package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"RegimeDesk/internal/di"
	"RegimeDesk/pkg/config"
	xhttp "RegimeDesk/pkg/http"
	applogger "RegimeDesk/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	once := flag.Bool("once", false, "forward what is on the spine now and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	l = l.With(applogger.String("component", "relay"))

	reg := di.ProvideRegistry()
	relay, err := di.InitializeRelay(cfg, l, reg)
	if err != nil {
		l.Error("relay initialization failed", applogger.Error(err), applogger.String("backend", cfg.Relay.Backend))
		os.Exit(1)
	}
	defer func() {
		if err := relay.Close(); err != nil {
			l.Warn("sink close error", applogger.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := relay.RunOnce(ctx)
		if err != nil {
			l.Error("relay pass failed", applogger.Error(err), applogger.Int("forwarded", n))
			os.Exit(1)
		}
		l.Info("relay pass complete", applogger.Int("forwarded", n))
		return
	}

	if cfg.Server.Enabled {
		srv := xhttp.NewServer(nil,
			xhttp.WithPort(cfg.Server.Port),
			xhttp.WithLogger(l),
			xhttp.WithRegistry(reg),
		)
		if err := srv.Start(); err != nil {
			l.Error("metrics server start error", applogger.Error(err))
			os.Exit(1)
		}
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	if err := relay.Run(ctx); err != nil {
		l.Error("relay stopped", applogger.Error(err))
		os.Exit(1)
	}
	l.Info("relay stopped")
}
