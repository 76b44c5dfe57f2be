package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threatlens/threatlens/internal/config"
	"github.com/threatlens/threatlens/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Starting AbuseIPDB companion proxy",
		"env", cfg.App.Env,
		"port", cfg.AbuseProxy.Port,
	)

	if cfg.AbuseProxy.AbuseIPDBKey == "" {
		logger.Warn("ABUSEIPDB_API_KEY is not set; check-ip requests will fail")
	}

	server := proxy.NewServer(proxy.Config{
		APIKey: cfg.AbuseProxy.AbuseIPDBKey,
		Logger: logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.AbuseProxy.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Proxy listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down proxy...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Proxy stopped")
}
