package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/store"
)

// localGame is an engine backed by a save file under the forge home.
type localGame struct {
	engine *game.Engine
	saves  *store.File
	player string
	// claim is the offline reward collected when the save was opened.
	claim game.OfflineClaim
}

func openLocal(ctx context.Context, cfg config.CLIConfig, player string) (*localGame, error) {
	if err := game.ValidatePlayerID(player); err != nil {
		return nil, err
	}
	saves, err := store.NewFile(filepath.Join(cfg.Home, "saves"))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine, err := game.NewFromConfig(cfg.Engine, game.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	raw, err := saves.Load(ctx, player)
	switch {
	case errors.Is(err, store.ErrNotFound):
		printInfo(fmt.Sprintf("Starting a new forge for %s.", player))
	case err != nil:
		return nil, err
	default:
		if err := engine.Load(raw); err != nil {
			if errors.Is(err, game.ErrUnsupportedSaveVersion) {
				return nil, fmt.Errorf("save for %s needs a newer forge: %w", player, err)
			}
			printWarn(fmt.Sprintf("Save for %s was damaged and has been reset: %v", player, err))
		}
	}

	g := &localGame{engine: engine, saves: saves, player: player}
	g.claim = engine.ClaimOffline(engine.Now())
	if !g.claim.Reward.IsZero() {
		renderOffline(g.claim)
	}
	return g, nil
}

func (g *localGame) save(ctx context.Context) error {
	raw, err := g.engine.Save()
	if err != nil {
		return err
	}
	return g.saves.Save(ctx, g.player, raw)
}
