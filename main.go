package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensor-rectifier/analytics"
	"sensor-rectifier/cache"
	"sensor-rectifier/config"
	"sensor-rectifier/handlers"
)

func main() {
	cfg := config.Load()

	opts := []analytics.EngineOption{
		analytics.WithAnomalyCallback(handlers.CountAnomaly),
		analytics.WithFieldCallback(handlers.CountReading),
	}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.ResultTTL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		defer redisClient.Close()
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		opts = append(opts, analytics.WithStore(redisClient))
	}

	detector := analytics.NewAnomalyDetector(analytics.DetectorConfig{WindowSize: cfg.WindowSize})
	engine := analytics.NewAnalyticsEngine(detector, opts...)

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        handlers.NewRouter(engine),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting AI Pipeline Server on %s (window=%d)", srv.Addr, cfg.WindowSize)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	engine.Close()

	log.Println("Server exited")
}
