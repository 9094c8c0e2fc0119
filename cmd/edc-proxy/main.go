package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/edc-client/pkg/config"
	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("EDC_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("edc-proxy")

	port := getEnv("PORT", "8080")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid redis URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	var cacheClient redis.UniversalClient
	if rdb != nil {
		cacheClient = rdb
	}
	sdk, err := edc.NewFromConfig(cfg, cacheClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create EDC client")
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newServer(sdk, rdb).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_url", cfg.BaseURL).Msg("Starting EDC proxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
