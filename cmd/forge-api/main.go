package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"idleforge/internal/api"
	"idleforge/internal/config"
	"idleforge/internal/db"
	"idleforge/internal/events"
	"idleforge/internal/game"
	"idleforge/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var saves store.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		saves = store.NewPostgres(pool, logger)
	} else {
		dir := filepath.Join(config.LoadCLIFromEnv().Home, "saves")
		fileStore, err := store.NewFile(dir)
		if err != nil {
			logger.Error("save dir init failed", "err", err, "dir", dir)
			os.Exit(1)
		}
		logger.Warn("DATABASE_URL not set, saving to disk", "dir", dir)
		saves = fileStore
	}

	feed := events.NewLog(256)
	engine, err := game.NewFromConfig(cfg.Engine, game.Options{
		Logger:    logger,
		Publisher: events.Multi(feed, events.NewSlogPublisher(logger)),
	})
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	server := api.New(cfg, logger, engine, saves, feed)
	if err := server.Restore(ctx); err != nil {
		logger.Error("restore failed", "err", err, "player_id", cfg.PlayerID)
		os.Exit(1)
	}
	ticking := make(chan struct{})
	go func() {
		defer close(ticking)
		server.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("forge api listening", "addr", cfg.Addr, "player_id", cfg.PlayerID)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-ticking
	logger.Info("forge api stopped")
}
