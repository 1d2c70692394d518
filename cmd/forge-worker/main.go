package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idleforge/internal/config"
	"idleforge/internal/db"
	"idleforge/internal/game"
	"idleforge/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
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

	w := &worker{
		saves: store.NewPostgres(pool, logger),
		cfg:   cfg.Engine,
		log:   logger,
		now:   time.Now,
	}

	if cfg.RunOnce {
		if _, err := w.settleAll(ctx); err != nil {
			logger.Error("settle failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.Every)
	defer ticker.Stop()

	logger.Info("worker started", "every", cfg.Every.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			settled, err := w.settleAll(ctx)
			if err != nil {
				logger.Error("settle failed", "err", err)
				continue
			}
			logger.Info("offline settle complete", "players", settled)
		}
	}
}

// worker credits offline progress to every stored save so players that
// stay away still see their balances move.
type worker struct {
	saves store.Store
	cfg   config.EngineConfig
	log   *slog.Logger
	now   func() time.Time
}

func (w *worker) settleAll(ctx context.Context) (int, error) {
	players, err := w.saves.Players(ctx)
	if err != nil {
		return 0, fmt.Errorf("list players: %w", err)
	}
	settled := 0
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if err := w.settle(ctx, player); err != nil {
			w.log.Error("player settle failed", "player_id", player, "err", err)
			continue
		}
		settled++
	}
	return settled, nil
}

func (w *worker) settle(ctx context.Context, player string) error {
	engine, err := game.NewFromConfig(w.cfg, game.Options{Logger: w.log})
	if err != nil {
		return err
	}
	return w.saves.Update(ctx, player, func(current []byte) ([]byte, error) {
		if err := engine.Load(current); err != nil {
			return nil, err
		}
		claim := engine.ClaimOffline(w.now())
		if claim.Reward.IsZero() {
			return current, nil
		}
		w.log.Info("offline settled",
			"player_id", player,
			"reward", claim.Reward.String(),
			"away", claim.TimeAway.String(),
		)
		return engine.Save()
	})
}
