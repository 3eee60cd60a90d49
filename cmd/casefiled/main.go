package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"casefile/internal/config"
	"casefile/internal/logging"
	"casefile/internal/store"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	d, closeDeps, err := bootstrap(cfg, st, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer closeDeps()
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("casefiled shutting down")
	d.Stop()
}
