// Package bignum implements Decimal, a signed floating decimal with a float64
// mantissa and an int64 base-10 exponent. It covers magnitudes far beyond the
// float64 range (1e300, 1e100000, ...) at float64 precision.
//
// Every operation is total: nothing panics, division by zero yields zero, and
// undefined results (for example a fractional power of a negative base) yield a
// not-finite value that propagates through all further arithmetic.
//
// The zero value is the number 0.
package bignum

import (
	"math"
)

// MaxExponent bounds the base-10 exponent. Results above it are not finite,
// results below its negation collapse to zero.
const MaxExponent = int64(9e15)

// sums ignore an addend this many orders of magnitude below the other.
const maxSignificantGap = 17

type Decimal struct {
	m float64
	e int64
}

func Zero() Decimal { return Decimal{} }

func One() Decimal { return Decimal{m: 1} }

// NaN returns the not-finite sentinel.
func NaN() Decimal { return Decimal{m: math.NaN()} }

func New(v int64) Decimal {
	return NewFromFloat(float64(v))
}

// NewFromFloat converts f using its shortest decimal representation, so
// NewFromFloat(12345.67) holds exactly the digits 1234567 with exponent 4.
// Infinities and NaN become the not-finite sentinel.
func NewFromFloat(f float64) Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NaN()
	}
	if f == 0 {
		return Decimal{}
	}
	m, e, ok := splitScientific(f)
	if !ok {
		return normalize(f, 0)
	}
	return Decimal{m: m, e: e}
}

// FromMantissaExp builds m × 10^e, normalizing the mantissa.
func FromMantissaExp(m float64, e int64) Decimal {
	return normalize(m, e)
}

func (d Decimal) Mantissa() float64 { return d.m }

func (d Decimal) Exponent() int64 { return d.e }

func (d Decimal) isNaN() bool { return math.IsNaN(d.m) }

func (d Decimal) IsFinite() bool { return !d.isNaN() }

func (d Decimal) IsZero() bool { return d.m == 0 }

// Sign returns -1, 0 or 1. The not-finite sentinel reports 0.
func (d Decimal) Sign() int {
	switch {
	case d.m > 0:
		return 1
	case d.m < 0:
		return -1
	default:
		return 0
	}
}

func (d Decimal) IsNegative() bool { return d.m < 0 }

func (d Decimal) Neg() Decimal {
	if d.m == 0 || d.isNaN() {
		return d
	}
	return Decimal{m: -d.m, e: d.e}
}

func (d Decimal) Abs() Decimal {
	if d.m < 0 {
		return Decimal{m: -d.m, e: d.e}
	}
	return d
}

func (d Decimal) Add(o Decimal) Decimal {
	if d.isNaN() || o.isNaN() {
		return NaN()
	}
	if d.m == 0 {
		return o
	}
	if o.m == 0 {
		return d
	}
	big, small := d, o
	if small.e > big.e {
		big, small = small, big
	}
	gap := big.e - small.e
	if gap > maxSignificantGap {
		return big
	}
	// align on the smaller exponent so integral operands stay exact
	return normalize(big.m*math.Pow10(int(gap))+small.m, small.e)
}

func (d Decimal) Sub(o Decimal) Decimal {
	return d.Add(o.Neg())
}

func (d Decimal) Mul(o Decimal) Decimal {
	if d.isNaN() || o.isNaN() {
		return NaN()
	}
	if d.m == 0 || o.m == 0 {
		return Decimal{}
	}
	return normalize(d.m*o.m, d.e+o.e)
}

// Div returns d / o, or zero when o is zero.
func (d Decimal) Div(o Decimal) Decimal {
	if d.isNaN() || o.isNaN() {
		return NaN()
	}
	if o.m == 0 || d.m == 0 {
		return Decimal{}
	}
	return normalize(d.m/o.m, d.e-o.e)
}

func (d Decimal) Pow(p Decimal) Decimal {
	if p.isNaN() {
		return NaN()
	}
	return d.PowFloat(p.Float64())
}

// PowFloat raises d to p. The sign of a negative base is kept only for
// integral p; a fractional power of a negative base is not finite. Zero to a
// negative power is a division by zero and yields zero.
func (d Decimal) PowFloat(p float64) Decimal {
	if d.isNaN() || math.IsNaN(p) || math.IsInf(p, 0) {
		return NaN()
	}
	if p == 0 {
		return One()
	}
	if d.m == 0 {
		return Decimal{}
	}
	integral := p == math.Trunc(p)
	if d.m < 0 && !integral {
		return NaN()
	}
	negative := d.m < 0 && integral && math.Mod(p, 2) != 0

	total := float64(d.e) * p
	whole := math.Floor(total)
	frac := total - whole

	var m float64
	if mp := math.Pow(math.Abs(d.m), p); mp != 0 && !math.IsInf(mp, 0) {
		if frac == 0 {
			m = mp
		} else {
			m = mp * math.Pow(10, frac)
		}
	} else {
		l := p*math.Log10(math.Abs(d.m)) + frac
		lw := math.Floor(l)
		m = math.Pow(10, l-lw)
		whole += lw
	}
	if whole > float64(MaxExponent) {
		return NaN()
	}
	if whole < -float64(MaxExponent) {
		return Decimal{}
	}
	if negative {
		m = -m
	}
	return normalize(m, int64(whole))
}

// Log10 returns log10(d) as a float64, which stays finite for every finite
// positive d. Zero gives -Inf, negatives and the sentinel give NaN.
func (d Decimal) Log10() float64 {
	switch {
	case d.isNaN() || d.m < 0:
		return math.NaN()
	case d.m == 0:
		return math.Inf(-1)
	}
	return math.Log10(d.m) + float64(d.e)
}

// Cmp orders d against o. The not-finite sentinel equals itself and sorts
// below every finite value, which keeps the ordering total.
func (d Decimal) Cmp(o Decimal) int {
	dn, on := d.isNaN(), o.isNaN()
	switch {
	case dn && on:
		return 0
	case dn:
		return -1
	case on:
		return 1
	}
	ds, osg := d.Sign(), o.Sign()
	if ds != osg {
		if ds < osg {
			return -1
		}
		return 1
	}
	if ds == 0 {
		return 0
	}
	c := 0
	switch {
	case d.e < o.e:
		c = -1
	case d.e > o.e:
		c = 1
	case math.Abs(d.m) < math.Abs(o.m):
		c = -1
	case math.Abs(d.m) > math.Abs(o.m):
		c = 1
	}
	return c * ds
}

func (d Decimal) Eq(o Decimal) bool  { return d.Cmp(o) == 0 }
func (d Decimal) Gt(o Decimal) bool  { return d.Cmp(o) > 0 }
func (d Decimal) Gte(o Decimal) bool { return d.Cmp(o) >= 0 }
func (d Decimal) Lt(o Decimal) bool  { return d.Cmp(o) < 0 }
func (d Decimal) Lte(o Decimal) bool { return d.Cmp(o) <= 0 }

// EqWithin reports whether d and o differ by at most rel times the larger
// magnitude.
func (d Decimal) EqWithin(o Decimal, rel float64) bool {
	if d.isNaN() || o.isNaN() {
		return d.isNaN() && o.isNaN()
	}
	if d.Eq(o) {
		return true
	}
	diff := d.Sub(o).Abs()
	scale := Max(d.Abs(), o.Abs())
	return diff.Lte(scale.Mul(NewFromFloat(rel)))
}

func Max(a, b Decimal) Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Clamp limits d to [lo, hi]. The sentinel passes through unchanged.
func (d Decimal) Clamp(lo, hi Decimal) Decimal {
	if d.isNaN() {
		return d
	}
	if d.Lt(lo) {
		return lo
	}
	if d.Gt(hi) {
		return hi
	}
	return d
}

type roundMode int

const (
	roundFloor roundMode = iota
	roundCeil
	roundHalf
)

func (d Decimal) Floor() Decimal { return d.round(roundFloor) }
func (d Decimal) Ceil() Decimal  { return d.round(roundCeil) }

// Round rounds half away from zero.
func (d Decimal) Round() Decimal { return d.round(roundHalf) }

func (d Decimal) round(mode roundMode) Decimal {
	// a float64 mantissa carries at most 17 significant digits.
	if d.isNaN() || d.m == 0 || d.e >= 16 {
		return d
	}
	if d.e < -1 {
		switch {
		case mode == roundFloor && d.m < 0:
			return New(-1)
		case mode == roundCeil && d.m > 0:
			return One()
		default:
			return Decimal{}
		}
	}
	f := d.Float64()
	switch mode {
	case roundFloor:
		f = math.Floor(f)
	case roundCeil:
		f = math.Ceil(f)
	default:
		f = math.Round(f)
	}
	return NewFromFloat(f)
}

// Float64 converts d, saturating to ±Inf above the float64 range.
func (d Decimal) Float64() float64 {
	switch {
	case d.isNaN():
		return math.NaN()
	case d.m == 0:
		return 0
	case d.e > 308:
		return math.Inf(d.Sign())
	case d.e < -324:
		return 0
	}
	return parseScientific(d.m, d.e)
}

// Int64 truncates d toward zero, saturating at the int64 bounds. The sentinel
// converts to 0.
func (d Decimal) Int64() int64 {
	if d.isNaN() || d.e < 0 {
		return 0
	}
	if d.e >= 19 {
		if d.m < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	f := math.Trunc(d.Float64())
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func normalize(m float64, e int64) Decimal {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return NaN()
	}
	if m == 0 {
		return Decimal{}
	}
	if a := math.Abs(m); a >= 10 || a < 1 {
		shift := int64(math.Floor(math.Log10(a)))
		m = shiftDown(m, shift)
		e += shift
		for math.Abs(m) >= 10 {
			m /= 10
			e++
		}
		for math.Abs(m) < 1 {
			m *= 10
			e--
		}
	}
	if e > MaxExponent {
		return NaN()
	}
	if e < -MaxExponent {
		return Decimal{}
	}
	return Decimal{m: m, e: e}
}

// shiftDown returns m / 10^shift without overflowing the intermediate power.
func shiftDown(m float64, shift int64) float64 {
	for shift > 300 {
		m /= 1e300
		shift -= 300
	}
	for shift < -300 {
		m *= 1e300
		shift += 300
	}
	if shift >= 0 {
		return m / math.Pow10(int(shift))
	}
	return m * math.Pow10(int(-shift))
}
