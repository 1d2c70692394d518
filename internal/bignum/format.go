package bignum

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidLiteral = errors.New("invalid decimal literal")

// Parse reads a decimal literal such as "12345.67", "-3", "1e100" or
// "1.5E-20". Literals may carry any number of digits and exponents beyond the
// float64 range. "NaN" and the infinities parse to the not-finite sentinel.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return Decimal{}, ErrInvalidLiteral
	case "nan", "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity":
		return NaN(), nil
	}
	// shopspring holds exponents in an int32, so the exponent is read here
	// and only the coefficient is handed over.
	coef, exp := s, int64(0)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		coef = s[:i]
		e, err := parseExponent(s[i+1:])
		if err != nil {
			return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidLiteral, s)
		}
		exp = e
	}
	d, err := decimal.NewFromString(coef)
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidLiteral, s)
	}
	return fromDecimal(d, exp), nil
}

// parseExponent reads a signed base-10 exponent. Values past the int64 range
// saturate beyond MaxExponent so normalize maps them to not finite or zero.
func parseExponent(s string) (int64, error) {
	e, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return max(min(e, 2*MaxExponent), -2*MaxExponent), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return -2 * MaxExponent, nil
		}
		return 2 * MaxExponent, nil
	}
	return 0, err
}

func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseOr returns fallback when s is not a valid literal.
func ParseOr(s string, fallback Decimal) Decimal {
	d, err := Parse(s)
	if err != nil {
		return fallback
	}
	return d
}

func fromDecimal(d decimal.Decimal, exp int64) Decimal {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return Decimal{}
	}
	digits := coef.String()
	negative := false
	if digits[0] == '-' {
		negative = true
		digits = digits[1:]
	}
	e := int64(d.Exponent()) + int64(len(digits)) - 1 + exp
	digits = strings.TrimRight(digits, "0")
	lit := digits[:1]
	if len(digits) > 1 {
		lit += "." + digits[1:]
	}
	m, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return NaN()
	}
	if negative {
		m = -m
	}
	return normalize(m, e)
}

// String returns the exact text form "<mantissa>e<exponent>", for example
// "1.234567e4" or "1e100". Parse(d.String()) reproduces d bit for bit.
func (d Decimal) String() string {
	switch {
	case d.isNaN():
		return "NaN"
	case d.m == 0:
		return "0"
	}
	return strconv.FormatFloat(d.m, 'f', -1, 64) + "e" + strconv.FormatInt(d.e, 10)
}

func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decimal) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

var shortSuffixes = []string{"", "K", "M", "B", "T", "Qa", "Qi", "Sx", "Sp", "Oc", "No", "Dc"}

// Short renders d for humans: plain digits below a thousand, named suffixes
// up to decillions, scientific notation beyond.
func (d Decimal) Short(places int) string {
	switch {
	case d.isNaN():
		return "NaN"
	case d.m == 0:
		return "0"
	}
	if places < 0 {
		places = 0
	}
	if d.e < 3 {
		if d.e < -int64(places) {
			return strconv.FormatFloat(d.m, 'f', places, 64) + "e" + strconv.FormatInt(d.e, 10)
		}
		return strconv.FormatFloat(d.Float64(), 'f', places, 64)
	}
	group := d.e / 3
	if group < int64(len(shortSuffixes)) {
		v := d.m * math.Pow10(int(d.e-group*3))
		return strconv.FormatFloat(v, 'f', places, 64) + shortSuffixes[group]
	}
	return strconv.FormatFloat(d.m, 'f', places, 64) + "e" + strconv.FormatInt(d.e, 10)
}

// splitScientific breaks f into the mantissa and exponent of its shortest
// decimal representation.
func splitScientific(f float64) (float64, int64, bool) {
	s := strconv.FormatFloat(f, 'e', -1, 64)
	i := strings.IndexByte(s, 'e')
	if i < 0 {
		return 0, 0, false
	}
	m, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, 0, false
	}
	e, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return m, e, true
}

func parseScientific(m float64, e int64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(m, 'g', -1, 64)+"e"+strconv.FormatInt(e, 10), 64)
	return f
}
