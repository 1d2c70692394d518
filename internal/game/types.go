package game

import (
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/offline"
	"idleforge/internal/pipeline"
	"idleforge/internal/registry"
)

type Dashboard struct {
	Phase          int                           `json:"phase"`
	PhaseName      string                        `json:"phase_name"`
	NextPhaseAt    *bignum.Decimal               `json:"next_phase_at,omitempty"`
	Resources      []ResourceView                `json:"resources"`
	Breakdowns     map[string]pipeline.Breakdown `json:"breakdowns"`
	Producers      []ItemView                    `json:"producers"`
	Upgrades       []ItemView                    `json:"upgrades"`
	Boosts         []BoostView                   `json:"boosts"`
	PrestigeReward bignum.Decimal                `json:"prestige_reward"`
	Prestiges      int64                         `json:"prestiges"`
	LastActive     time.Time                     `json:"last_active"`
}

type ResourceView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Amount   bignum.Decimal `json:"amount"`
	Rate     bignum.Decimal `json:"rate_per_second"`
	Lifetime bignum.Decimal `json:"lifetime"`
	Eternal  bool           `json:"eternal"`
}

type ItemView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Level         int64          `json:"level"`
	MaxLevel      int64          `json:"max_level,omitempty"`
	Unlocked      bool           `json:"unlocked"`
	Owned         bool           `json:"owned"`
	OneTime       bool           `json:"one_time,omitempty"`
	Eternal       bool           `json:"eternal,omitempty"`
	Currency      string         `json:"currency"`
	NextCost      bignum.Decimal `json:"next_cost"`
	MaxAffordable int64          `json:"max_affordable"`
	Production    bignum.Decimal `json:"production_per_level"`
	TotalProduced bignum.Decimal `json:"total_produced"`
	TotalSpent    bignum.Decimal `json:"total_spent"`
}

type BoostView struct {
	ID        string         `json:"id"`
	Scope     string         `json:"scope"`
	Factor    bignum.Decimal `json:"factor"`
	Remaining float64        `json:"remaining_seconds"`
}

type BuyInput struct {
	ID             string
	Quantity       registry.Quantity
	IdempotencyKey string
}

type BoostInput struct {
	Scope    string
	Factor   bignum.Decimal
	Duration time.Duration
}

type PrestigeResult struct {
	Resource string         `json:"resource"`
	Reward   bignum.Decimal `json:"reward"`
	Balance  bignum.Decimal `json:"balance"`
	Count    int64          `json:"count"`
}

type OfflineClaim struct {
	Resource string `json:"resource"`
	offline.Result
}

// SaveFile is the persisted form of an engine.
type SaveFile struct {
	Version    int                `json:"version"`
	SavedAt    time.Time          `json:"savedAt"`
	LastActive time.Time          `json:"lastActive"`
	Resources  map[string]string  `json:"resources"`
	Lifetime   map[string]string  `json:"lifetime"`
	AllTime    map[string]string  `json:"allTime"`
	Prestiges  int64              `json:"prestiges"`
	Producers  registry.SaveState `json:"producers"`
	Upgrades   registry.SaveState `json:"upgrades"`
}
