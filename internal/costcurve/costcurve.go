// Package costcurve prices exponentially scaling purchases:
// the item at level L costs BaseCost × Multiplier^L.
package costcurve

import (
	"math"

	"idleforge/internal/bignum"
)

// MaxCount bounds every count this package returns (2^53, the largest
// integer a float64 holds exactly).
const MaxCount = int64(1) << 53

const (
	nearOneThreshold  = 1e-6
	flatThreshold     = 1e-12
	maxCorrectionStep = 8
)

type Params struct {
	BaseCost   bignum.Decimal `json:"base_cost" yaml:"base_cost"`
	Multiplier bignum.Decimal `json:"multiplier" yaml:"multiplier"`
	// MaxLevel caps the level; zero means uncapped.
	MaxLevel int64 `json:"max_level,omitempty" yaml:"max_level"`
}

// Valid reports whether p describes a usable curve. Invalid curves price
// everything at zero and afford nothing.
func (p Params) Valid() bool {
	if !p.BaseCost.IsFinite() || p.BaseCost.IsNegative() {
		return false
	}
	if !p.Multiplier.IsFinite() || p.Multiplier.Lt(bignum.One()) {
		return false
	}
	return p.MaxLevel >= 0
}

// Remaining is how many more levels can be bought from level.
func (p Params) Remaining(level int64) int64 {
	if level < 0 {
		level = 0
	}
	if p.MaxLevel == 0 {
		return MaxCount
	}
	left := p.MaxLevel - level
	if left < 0 {
		return 0
	}
	return min(left, MaxCount)
}

func Next(p Params, level int64) bignum.Decimal {
	if !p.Valid() {
		return bignum.Zero()
	}
	if level <= 0 || p.Multiplier.Eq(bignum.One()) {
		return p.BaseCost
	}
	return p.BaseCost.Mul(p.Multiplier.PowFloat(float64(level)))
}

// Bulk is the total price of n consecutive purchases starting at level.
func Bulk(p Params, level, n int64) bignum.Decimal {
	if !p.Valid() || n <= 0 {
		return bignum.Zero()
	}
	first := Next(p, level)
	if first.IsZero() {
		return first
	}
	if n == 1 {
		return first
	}
	return first.Mul(seriesFactor(p.Multiplier, n))
}

// seriesFactor returns (M^n − 1)/(M − 1), the sum of M^i for i in [0, n).
func seriesFactor(m bignum.Decimal, n int64) bignum.Decimal {
	if m.Eq(bignum.One()) {
		return bignum.New(n)
	}
	d := m.Float64() - 1
	if !math.IsInf(d, 0) && math.Abs(d) < nearOneThreshold {
		x := float64(n) * math.Log1p(d)
		// expm1(x)/d leaves float64 range well before expm1(x) does
		if x < 700 {
			if f := math.Expm1(x) / d; !math.IsInf(f, 0) && !math.IsNaN(f) {
				return bignum.NewFromFloat(f)
			}
		}
		return expDecimal(x).Sub(bignum.One()).Div(bignum.NewFromFloat(d))
	}
	return m.PowFloat(float64(n)).Sub(bignum.One()).Div(m.Sub(bignum.One()))
}

// expDecimal returns e^x for x beyond the float64 range of math.Exp.
func expDecimal(x float64) bignum.Decimal {
	y := x / math.Ln10
	whole := math.Floor(y)
	return bignum.FromMantissaExp(math.Pow(10, y-whole), int64(whole))
}

// MaxAffordable returns the largest k with Bulk(p, level, k) <= budget,
// limited by MaxLevel and MaxCount.
func MaxAffordable(p Params, level int64, budget bignum.Decimal) int64 {
	if !p.Valid() || !budget.IsFinite() || budget.IsNegative() {
		return 0
	}
	limit := p.Remaining(level)
	if limit == 0 {
		return 0
	}
	first := Next(p, level)
	// Free items are limited only by MaxLevel or MaxCount.
	if first.IsZero() {
		return limit
	}
	if !first.IsFinite() || budget.Lt(first) {
		return 0
	}
	ratio := budget.Div(first)
	if p.Multiplier.Eq(bignum.One()) {
		return min(clampCount(ratio.Floor()), limit)
	}

	d := p.Multiplier.Sub(bignum.One())
	if d.Lt(bignum.NewFromFloat(flatThreshold)) {
		return search(p, level, budget, limit)
	}
	est := closedForm(ratio, d)
	if math.IsNaN(est) || math.IsInf(est, 0) || est < 0 || est > float64(MaxCount) {
		return search(p, level, budget, limit)
	}
	k, ok := correct(p, level, budget, min(int64(est), limit), limit)
	if !ok {
		return search(p, level, budget, limit)
	}
	return k
}

// closedForm solves c0 × (M^k − 1)/(M − 1) = B for k in log space.
func closedForm(ratio, d bignum.Decimal) float64 {
	num := log1pDecimal(ratio.Mul(d))
	den := log1pDecimal(d)
	if den <= 0 {
		return math.NaN()
	}
	return math.Floor(num / den)
}

func log1pDecimal(x bignum.Decimal) float64 {
	if f := x.Float64(); !math.IsInf(f, 0) && f < 1e15 {
		return math.Log1p(f)
	}
	// ln(x) + ln(1 + 1/x), the second term is negligible at this size.
	return x.Log10() * math.Ln10
}

func correct(p Params, level int64, budget bignum.Decimal, k, limit int64) (int64, bool) {
	for range maxCorrectionStep {
		switch {
		case k > 0 && !fits(p, level, k, budget):
			k--
		case k < limit && fits(p, level, k+1, budget):
			k++
		default:
			return k, true
		}
	}
	return k, false
}

// search brackets the answer by doubling, then bisects.
func search(p Params, level int64, budget bignum.Decimal, limit int64) int64 {
	lo, hi := int64(1), int64(2)
	for hi < limit && fits(p, level, hi, budget) {
		lo = hi
		hi *= 2
	}
	if hi >= limit {
		if fits(p, level, limit, budget) {
			return limit
		}
		hi = limit
	}
	// Bulk(lo) fits, Bulk(hi) does not.
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if fits(p, level, mid, budget) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// fits reports whether n purchases from level cost at most budget. A price
// that is not finite never fits.
func fits(p Params, level, n int64, budget bignum.Decimal) bool {
	cost := Bulk(p, level, n)
	return cost.IsFinite() && cost.Lte(budget)
}

func clampCount(d bignum.Decimal) int64 {
	if !d.IsFinite() || d.Sign() <= 0 {
		return 0
	}
	if d.Gte(bignum.New(MaxCount)) {
		return MaxCount
	}
	return d.Int64()
}
