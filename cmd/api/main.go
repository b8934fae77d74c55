package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/pulsefit/backend/internal/cache"
	"github.com/pulsefit/backend/internal/config"
	"github.com/pulsefit/backend/internal/database"
	"github.com/pulsefit/backend/internal/modules/garmin"
	"github.com/pulsefit/backend/internal/server"
	"github.com/pulsefit/backend/internal/session"
	"github.com/pulsefit/backend/internal/synclock"
)

// Options for the CLI.
type Options struct {
	Port int `help:"Port to listen on" short:"p"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		// Use a structured logger
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		cfg := config.Load()
		if cfg == nil {
			logger.Error("failed to load configuration")
			os.Exit(1)
		}
		logger.Info("configuration loaded successfully", "env", cfg.Server.Env)

		// --- Database & Cache ---
		dbPool := database.NewPostgresPool(cfg.Database.URL)
		if dbPool == nil {
			logger.Error("failed to connect to postgres")
			os.Exit(1)
		}
		hooks.OnStop(dbPool.Close)
		logger.Info("successfully connected to postgres database")
		redisClient := cache.NewRedisClient(cfg.Redis.URL)
		if redisClient == nil {
			logger.Error("failed to connect to redis")
			os.Exit(1)
		}
		hooks.OnStop(func() { redisClient.Close() })
		logger.Info("successfully connected to redis")

		// --- Module Initialization (Bottom-Up) ---
		sessions := session.NewPostgresProvider(dbPool, session.Config{})

		// Garmin Module
		garminRepo := garmin.NewRepository(dbPool)
		garminClient := garmin.NewClient(cfg.Garmin)
		garminService := garmin.NewService(&garmin.Config{
			Repo:   garminRepo,
			Client: garminClient,
			Locker: synclock.NewMemoryLocker(),
			Cache:  redisClient,
			Logger: logger,
			Config: cfg,
		})

		router := server.New(cfg, logger, garminService, sessions)
		hooks.OnStart(func() {
			logger.Info(fmt.Sprintf("Starting server on port %d...", options.Port))
			if err := http.ListenAndServe(fmt.Sprintf(":%d", options.Port), router); err != nil {
				slog.Error("Server failed to start", "error", err)
				os.Exit(1)
			}
		})
	})
	cli.Run()
}
