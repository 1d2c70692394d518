// Package pipeline composes production multipliers. Contributions are grouped
// by scope and combined as (base + Σ additive) × Π multiplicative.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"
)

type Stacking int

const (
	Additive Stacking = iota
	Multiplicative
)

func (s Stacking) String() string {
	switch s {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	default:
		return "unknown"
	}
}

func (s Stacking) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stacking) UnmarshalText(text []byte) error {
	v, ok := ParseStacking(string(text))
	if !ok {
		return fmt.Errorf("unknown stacking %q", text)
	}
	*s = v
	return nil
}

// ParseStacking accepts "additive" and "multiplicative".
func ParseStacking(s string) (Stacking, bool) {
	switch s {
	case "additive", "add":
		return Additive, true
	case "multiplicative", "mul", "mult":
		return Multiplicative, true
	default:
		return Additive, false
	}
}

type Contribution struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Scope    string         `json:"scope"`
	Stacking Stacking       `json:"stacking"`
	Value    bignum.Decimal `json:"value"`
	AddedAt  time.Time      `json:"added_at"`
	Duration time.Duration  `json:"duration"`
}

// Expired reports whether a timed contribution has run out at now.
// Zero or negative durations never expire.
func (c Contribution) Expired(now time.Time) bool {
	return c.Duration > 0 && !now.Before(c.AddedAt.Add(c.Duration))
}

// Remaining is the time left on a timed contribution, or zero.
func (c Contribution) Remaining(now time.Time) time.Duration {
	if c.Duration <= 0 {
		return 0
	}
	left := c.AddedAt.Add(c.Duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

type Breakdown struct {
	Base                 bignum.Decimal `json:"base"`
	AdditiveBonus        bignum.Decimal `json:"additive_bonus"`
	MultiplicativeFactor bignum.Decimal `json:"multiplicative_factor"`
	Final                bignum.Decimal `json:"final"`
}

// Pipeline is not safe for concurrent use.
type Pipeline struct {
	clock         clock.Clock
	contributions map[string]Contribution
}

func New(clk clock.Clock) *Pipeline {
	return &Pipeline{
		clock:         clock.Or(clk),
		contributions: make(map[string]Contribution),
	}
}

// Add registers a contribution, replacing any existing one with the same id.
func (p *Pipeline) Add(id, source string, value bignum.Decimal, stacking Stacking, scope string, duration time.Duration) {
	p.contributions[id] = Contribution{
		ID:       id,
		Source:   source,
		Scope:    scope,
		Stacking: stacking,
		Value:    value,
		AddedAt:  p.clock.Now(),
		Duration: duration,
	}
}

func (p *Pipeline) Remove(id string) {
	delete(p.contributions, id)
}

// Has reports whether id is registered, expired or not.
func (p *Pipeline) Has(id string) bool {
	_, ok := p.contributions[id]
	return ok
}

func (p *Pipeline) Get(id string) (Contribution, bool) {
	c, ok := p.contributions[id]
	return c, ok
}

func (p *Pipeline) Len() int {
	return len(p.contributions)
}

func (p *Pipeline) sortedIDs() []string {
	ids := make([]string, 0, len(p.contributions))
	for id := range p.contributions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Breakdown evaluates every unexpired contribution for scope against base.
func (p *Pipeline) Breakdown(scope string, base bignum.Decimal) Breakdown {
	now := p.clock.Now()
	bonus := bignum.Zero()
	factor := bignum.One()
	for _, id := range p.sortedIDs() {
		c := p.contributions[id]
		if c.Scope != scope || c.Expired(now) {
			continue
		}
		switch c.Stacking {
		case Additive:
			bonus = bonus.Add(c.Value)
		case Multiplicative:
			factor = factor.Mul(c.Value)
		}
	}
	return Breakdown{
		Base:                 base,
		AdditiveBonus:        bonus,
		MultiplicativeFactor: factor,
		Final:                base.Add(bonus).Mul(factor),
	}
}

// Contributions lists the unexpired contributions for scope in id order.
// An empty scope lists every scope.
func (p *Pipeline) Contributions(scope string) []Contribution {
	now := p.clock.Now()
	out := make([]Contribution, 0, len(p.contributions))
	for _, id := range p.sortedIDs() {
		c := p.contributions[id]
		if c.Expired(now) || (scope != "" && c.Scope != scope) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Prune drops expired contributions and returns how many were removed.
func (p *Pipeline) Prune() int {
	now := p.clock.Now()
	removed := 0
	for id, c := range p.contributions {
		if c.Expired(now) {
			delete(p.contributions, id)
			removed++
		}
	}
	return removed
}
