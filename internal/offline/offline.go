// Package offline projects the reward for time spent away from the game.
package offline

import (
	"time"

	"idleforge/internal/bignum"
)

type Bonus string

const (
	BonusNone     Bonus = ""
	BonusFullRest Bonus = "full_rest"
)

type Config struct {
	CappedHours float64
	Efficiency  float64
	MinimumTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		CappedHours: 8,
		Efficiency:  0.1,
		MinimumTime: time.Minute,
	}
}

func (c Config) Cap() time.Duration {
	if c.CappedHours <= 0 {
		return 0
	}
	return time.Duration(c.CappedHours * float64(time.Hour))
}

type Result struct {
	Reward               bignum.Decimal `json:"reward"`
	TimeAway             time.Duration  `json:"time_away"`
	CappedTime           time.Duration  `json:"capped_time"`
	Capped               bool           `json:"capped"`
	Bonus                Bonus          `json:"bonus,omitempty"`
	RatePerHour          bignum.Decimal `json:"rate_per_hour"`
	EffectiveRatePerHour bignum.Decimal `json:"effective_rate_per_hour"`
	Duration             string         `json:"duration"`
}

var secondsPerHour = bignum.New(3600)

// Calculate returns what rate (per second) earns between lastActive and now.
// Absences shorter than the minimum, including clocks that run backwards,
// earn nothing.
func Calculate(lastActive, now time.Time, rate bignum.Decimal, cfg Config) Result {
	efficiency := bignum.NewFromFloat(cfg.Efficiency)
	if cfg.Efficiency < 0 {
		efficiency = bignum.Zero()
	}
	if !rate.IsFinite() || rate.IsNegative() {
		rate = bignum.Zero()
	}
	res := Result{
		Reward:               bignum.Zero(),
		RatePerHour:          rate.Mul(secondsPerHour),
		EffectiveRatePerHour: rate.Mul(efficiency).Mul(secondsPerHour),
		Duration:             "0s",
	}

	away := now.Sub(lastActive)
	if away < 0 {
		away = 0
	}
	res.TimeAway = away
	if away < cfg.MinimumTime || away == 0 {
		return res
	}

	capped := away
	if limit := cfg.Cap(); capped >= limit {
		capped = limit
		res.Capped = true
		res.Bonus = BonusFullRest
	}
	res.CappedTime = capped
	res.Reward = rate.Mul(efficiency).Mul(bignum.NewFromFloat(capped.Seconds()))
	res.Duration = capped.Round(time.Second).String()
	return res
}
