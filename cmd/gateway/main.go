package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
	"github.com/vitos/deribit_gateway/internal/infrastructure/logger"
	"github.com/vitos/deribit_gateway/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.Level, logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		})
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Client (transport, auth, spec cache, journal, registry)
	client, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to init client", zap.Error(err))
	}

	// 4. Warm the spec cache
	prewarmCtx, cancel := context.WithTimeout(context.Background(), cfg.SpecFetchTimeout())
	if err := client.Prewarm(prewarmCtx); err != nil {
		log.Error("Failed to prewarm spec cache", zap.Error(err))
	}
	cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 5. Init Web Server
	server := web.NewServer(cfg.Server.Port, cfg.Server.AllowedOrigins, client, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 6. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	if err := client.Close(); err != nil {
		log.Error("Client close failed", zap.Error(err))
	}
}
