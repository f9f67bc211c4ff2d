package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/app"
	"github.com/example/mathvideo/internal/config"
	"github.com/example/mathvideo/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to mathvideo.toml")
	flag.Parse()

	cfg, path, found, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	logging.Setup(logging.Options{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	if found {
		log.WithField("path", path).Info("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("start")
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
