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

	"github.com/threatlens/threatlens/internal/adapter/controller/http/handlers"
	"github.com/threatlens/threatlens/internal/adapter/controller/http/middleware"
	"github.com/threatlens/threatlens/internal/adapter/external/threatintel"
	"github.com/threatlens/threatlens/internal/config"
	"github.com/threatlens/threatlens/internal/domain/scoring"
	"github.com/threatlens/threatlens/internal/usecase/analysis"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := config.SetupLogger(cfg)
	logger.Info("Starting ThreatLens API",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
	)

	// Risk weights: built-in defaults unless an override file is configured
	weights := scoring.DefaultWeights()
	if cfg.Risk.WeightsFile != "" {
		loaded, err := scoring.LoadWeights(cfg.Risk.WeightsFile)
		if err != nil {
			logger.Error("Failed to load risk weights", "file", cfg.Risk.WeightsFile, "error", err)
			os.Exit(1)
		}
		weights = loaded
		logger.Info("Loaded risk weights", "file", cfg.Risk.WeightsFile)
	}

	// Intelligence providers, in the order their results are reported
	providers := []threatintel.Provider{
		threatintel.NewVirusTotalClient(threatintel.VirusTotalConfig{
			APIKey:  cfg.ThreatIntel.VirusTotalKey,
			Timeout: cfg.ThreatIntel.Timeout,
		}),
		threatintel.NewOTXClient(threatintel.OTXConfig{
			APIKey:  cfg.ThreatIntel.OTXKey,
			Timeout: cfg.ThreatIntel.Timeout,
		}),
		threatintel.NewThreatFoxClient(threatintel.ThreatFoxConfig{
			APIKey:  cfg.ThreatIntel.ThreatFoxKey,
			Timeout: cfg.ThreatIntel.Timeout,
		}),
		threatintel.NewURLhausClient(threatintel.URLhausConfig{
			APIKey:  cfg.ThreatIntel.URLhausKey,
			Timeout: cfg.ThreatIntel.Timeout,
		}),
		threatintel.NewAbuseIPDBClient(threatintel.AbuseIPDBConfig{
			Proxy: threatintel.NewAbuseProxyClient(threatintel.AbuseProxyConfig{
				BaseURL:   cfg.AbuseProxy.URL,
				RateLimit: cfg.AbuseProxy.RateLimit,
			}),
		}),
	}

	svc := analysis.NewService(analysis.Config{
		Providers: providers,
		Weights:   weights,
		Cache:     threatintel.NewSummaryCache(cfg.ThreatIntel.CacheTTL),
		Logger:    logger,
	})

	analysisHandler := handlers.NewAnalysisHandler(svc)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecurityHeaders)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Health check
	r.Get("/health", handlers.HealthCheck(cfg, svc))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", analysisHandler.Analyze)
		r.Get("/classify", analysisHandler.Classify)
		r.Get("/providers", analysisHandler.Providers)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", analysisHandler.CacheStats)
			r.Post("/clear", analysisHandler.ClearCache)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
