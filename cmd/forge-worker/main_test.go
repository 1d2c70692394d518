package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"
	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/registry"
	"idleforge/internal/store"
)

func TestSettleAllCreditsOfflineProgress(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := game.New(game.Options{Clock: clk, Logger: logger})
	engine.Ledger().Credit("pixels", bignum.New(15), "test")
	if _, err := engine.BuyProducer(game.BuyInput{ID: "cursor", Quantity: registry.Quantity(1)}); err != nil {
		t.Fatalf("buy cursor: %v", err)
	}
	raw, err := engine.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	saves := store.NewMemory()
	if err := saves.Save(ctx, "alice", raw); err != nil {
		t.Fatalf("store save: %v", err)
	}
	if err := saves.Save(ctx, "broken", []byte(`"nope"`)); err != nil {
		t.Fatalf("store save: %v", err)
	}

	w := &worker{
		saves: saves,
		cfg:   config.EngineConfig{},
		log:   logger,
		now:   func() time.Time { return start.Add(2 * time.Hour) },
	}
	settled, err := w.settleAll(ctx)
	if err != nil {
		t.Fatalf("settleAll: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	got, err := saves.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("load alice: %v", err)
	}
	after := game.New(game.Options{Clock: clk, Logger: logger})
	if err := after.Load(got); err != nil {
		t.Fatalf("engine load: %v", err)
	}
	// 0.1/s for 7200s at 10% efficiency.
	if pixels := after.GetResourceAmount("pixels"); !pixels.EqWithin(bignum.New(72), 1e-9) {
		t.Fatalf("pixels = %s, want 72", pixels)
	}
	if !after.LastActive().Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("last active = %s", after.LastActive())
	}

	broken, err := saves.Load(ctx, "broken")
	if err != nil {
		t.Fatalf("load broken: %v", err)
	}
	if string(broken) != `"nope"` {
		t.Fatalf("corrupt save was overwritten: %s", broken)
	}

	// A second pass finds nothing new to pay.
	before := string(got)
	if _, err := w.settleAll(ctx); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	again, _ := saves.Load(ctx, "alice")
	if string(again) != before {
		t.Fatal("second settle rewrote an up to date save")
	}
}
