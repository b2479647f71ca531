package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/api"
	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/config"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/presence"
	"github.com/davidm/taskflow/internal/ratelimit"
	"github.com/davidm/taskflow/internal/repository/postgres"
	"github.com/davidm/taskflow/internal/service"
	"github.com/davidm/taskflow/internal/session"
	"github.com/davidm/taskflow/internal/store"
	"github.com/davidm/taskflow/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	logLevel := "info"
	if cfg.Environment == "development" {
		logLevel = "debug"
	}
	logger.Init(logLevel)

	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	rdb, err := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	repos := postgres.NewRepositories(db)
	sessions := session.NewStore(rdb)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	limiter := ratelimit.NewLimiter(rdb)
	tracker := presence.NewTracker(rdb)

	hub := websocket.NewHub(rdb, tracker)
	go hub.Run()
	tracker.SetBroadcaster(hub)

	activities := activity.NewLog(rdb)
	activities.SetBroadcaster(hub)

	sweeper, err := tracker.StartSweeper(cfg.PresenceSweepInterval)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start presence sweeper")
	}

	services := service.NewServices(repos, sessions, tokens, hub, activities, cfg)
	router := api.NewRouter(services, hub, activities, limiter, db, rdb, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	sweeper.Stop()
	hub.Stop()

	logger.Info().Msg("server stopped")
}
