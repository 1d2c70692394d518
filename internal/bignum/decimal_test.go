package bignum

import (
	"encoding/json"
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	values := []Decimal{
		NewFromFloat(12345.67),
		MustParse("1e100"),
		MustParse("1e-20"),
		MustParse("-4.2e308"),
		MustParse("7.77e123456"),
		New(10).PowFloat(1e10),
		MustParse("-3.25e-4000000000"),
		FromMantissaExp(9.5, MaxExponent-1),
		NewFromFloat(0.1).Add(NewFromFloat(0.2)),
		New(3).Div(New(7)),
		Zero(),
		New(-1),
	}
	for _, v := range values {
		got, err := Parse(v.String())
		if err != nil {
			t.Fatalf("parse %q: %v", v.String(), err)
		}
		if !got.Eq(v) {
			t.Fatalf("round trip %q: got %q", v.String(), got.String())
		}
		if got.Mantissa() != v.Mantissa() || got.Exponent() != v.Exponent() {
			t.Fatalf("round trip %q drifted to m=%v e=%d", v.String(), got.Mantissa(), got.Exponent())
		}
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "12345.67", want: "1.234567e4"},
		{in: "1e100", want: "1e100"},
		{in: "1E+100", want: "1e100"},
		{in: "0.00000000000000000001", want: "1e-20"},
		{in: "-250", want: "-2.5e2"},
		{in: "0", want: "0"},
		{in: "000123.4500", want: "1.2345e2"},
		{in: "NaN", want: "NaN"},
		{in: "1e10000000000", want: "1e10000000000"},
		{in: "12.5E+3000000000", want: "1.25e3000000001"},
		{in: "1e99999999999999999999", want: "NaN"},
		{in: "1e-99999999999999999999", want: "0"},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: got %q want %q", tc.in, got.String(), tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "1e", "1.2.3", "e5", "1e2e3", "1e+-2"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := New(1500)
	b := NewFromFloat(2.5)

	if got := a.Add(b); !got.EqWithin(NewFromFloat(1502.5), 1e-12) {
		t.Fatalf("add: got %s", got)
	}
	if got := a.Sub(b); !got.EqWithin(NewFromFloat(1497.5), 1e-12) {
		t.Fatalf("sub: got %s", got)
	}
	if got := a.Mul(b); !got.Eq(New(3750)) {
		t.Fatalf("mul: got %s", got)
	}
	if got := a.Div(b); !got.EqWithin(New(600), 1e-12) {
		t.Fatalf("div: got %s", got)
	}
	if got := a.Sub(a); !got.IsZero() {
		t.Fatalf("self subtraction: got %s", got)
	}
}

func TestBeyondFloatRange(t *testing.T) {
	big := MustParse("1e300")
	sq := big.Mul(big)
	if sq.Exponent() != 600 || !sq.IsFinite() {
		t.Fatalf("1e300^2: got %s", sq)
	}
	if !sq.Gt(big) {
		t.Fatalf("expected 1e600 > 1e300")
	}
	if got := big.PowFloat(10); got.Exponent() != 3000 {
		t.Fatalf("pow: got %s", got)
	}
	if got := sq.Div(big); !got.EqWithin(big, 1e-12) {
		t.Fatalf("div: got %s", got)
	}
	if f := sq.Float64(); !math.IsInf(f, 1) {
		t.Fatalf("expected +Inf float conversion, got %v", f)
	}
	if got := big.Add(New(1)); !got.Eq(big) {
		t.Fatalf("insignificant addend changed value: %s", got)
	}
}

func TestDivideByZeroIsZero(t *testing.T) {
	if got := New(42).Div(Zero()); !got.IsZero() || !got.IsFinite() {
		t.Fatalf("got %s", got)
	}
	if got := Zero().PowFloat(-2); !got.IsZero() {
		t.Fatalf("0^-2: got %s", got)
	}
}

func TestPowSigns(t *testing.T) {
	if got := New(-2).PowFloat(3); !got.Eq(New(-8)) {
		t.Fatalf("(-2)^3: got %s", got)
	}
	if got := New(-2).PowFloat(2); !got.Eq(New(4)) {
		t.Fatalf("(-2)^2: got %s", got)
	}
	if got := New(-2).PowFloat(0.5); got.IsFinite() {
		t.Fatalf("(-2)^0.5 should not be finite, got %s", got)
	}
	if got := New(9).PowFloat(0.5); !got.EqWithin(New(3), 1e-12) {
		t.Fatalf("9^0.5: got %s", got)
	}
	if got := NewFromFloat(1.5).PowFloat(5); !got.Eq(NewFromFloat(7.59375)) {
		t.Fatalf("1.5^5: got %s", got)
	}
	if got := New(7).PowFloat(0); !got.Eq(One()) {
		t.Fatalf("7^0: got %s", got)
	}
}

func TestNotFinitePropagates(t *testing.T) {
	bad := New(-2).PowFloat(0.5)
	ops := []Decimal{
		bad.Add(New(1)),
		New(1).Sub(bad),
		bad.Mul(New(3)),
		New(3).Div(bad),
		bad.PowFloat(2),
		bad.Floor(),
	}
	for i, v := range ops {
		if v.IsFinite() {
			t.Fatalf("op %d: expected not finite, got %s", i, v)
		}
	}
	if !bad.Eq(NaN()) || !bad.Lt(New(-1e9)) {
		t.Fatalf("sentinel should equal itself and sort below finite values")
	}
	if bad.Int64() != 0 {
		t.Fatalf("sentinel Int64 should be 0")
	}
}

func TestOrdering(t *testing.T) {
	ordered := []Decimal{
		MustParse("-1e100"),
		New(-5),
		NewFromFloat(-0.5),
		Zero(),
		MustParse("1e-20"),
		NewFromFloat(0.5),
		New(5),
		MustParse("1e15"),
		MustParse("1e100"),
	}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Lt(ordered[i]) {
			t.Fatalf("expected %s < %s", ordered[i-1], ordered[i])
		}
		if !ordered[i].Gte(ordered[i-1]) || !ordered[i].Gt(ordered[i-1]) {
			t.Fatalf("expected %s > %s", ordered[i], ordered[i-1])
		}
	}
	if !Max(New(2), New(3)).Eq(New(3)) || !Min(New(2), New(3)).Eq(New(2)) {
		t.Fatalf("max/min mismatch")
	}
}

func TestRounding(t *testing.T) {
	tests := []struct {
		in                 float64
		floor, ceil, round float64
	}{
		{in: 2.5, floor: 2, ceil: 3, round: 3},
		{in: -2.5, floor: -3, ceil: -2, round: -3},
		{in: 0.4, floor: 0, ceil: 1, round: 0},
		{in: 0.001, floor: 0, ceil: 1, round: 0},
		{in: -0.001, floor: -1, ceil: 0, round: 0},
		{in: 7, floor: 7, ceil: 7, round: 7},
	}
	for _, tc := range tests {
		d := NewFromFloat(tc.in)
		if got := d.Floor(); !got.Eq(NewFromFloat(tc.floor)) {
			t.Fatalf("floor(%v): got %s", tc.in, got)
		}
		if got := d.Ceil(); !got.Eq(NewFromFloat(tc.ceil)) {
			t.Fatalf("ceil(%v): got %s", tc.in, got)
		}
		if got := d.Round(); !got.Eq(NewFromFloat(tc.round)) {
			t.Fatalf("round(%v): got %s", tc.in, got)
		}
	}
	huge := MustParse("1.5e200")
	if !huge.Floor().Eq(huge) {
		t.Fatalf("huge values are already integral")
	}
}

func TestClamp(t *testing.T) {
	lo, hi := New(0), New(10)
	if got := New(-3).Clamp(lo, hi); !got.Eq(lo) {
		t.Fatalf("got %s", got)
	}
	if got := MustParse("1e50").Clamp(lo, hi); !got.Eq(hi) {
		t.Fatalf("got %s", got)
	}
	if got := New(4).Clamp(lo, hi); !got.Eq(New(4)) {
		t.Fatalf("got %s", got)
	}
}

func TestInt64Saturates(t *testing.T) {
	if got := MustParse("1e40").Int64(); got != math.MaxInt64 {
		t.Fatalf("got %d", got)
	}
	if got := MustParse("-1e40").Int64(); got != math.MinInt64 {
		t.Fatalf("got %d", got)
	}
	if got := NewFromFloat(99.9).Int64(); got != 99 {
		t.Fatalf("got %d", got)
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		in   Decimal
		want string
	}{
		{in: New(999), want: "999.00"},
		{in: New(1500), want: "1.50K"},
		{in: MustParse("2.5e6"), want: "2.50M"},
		{in: MustParse("1e15"), want: "1.00Qa"},
		{in: MustParse("1.23e100"), want: "1.23e100"},
		{in: Zero(), want: "0"},
	}
	for _, tc := range tests {
		if got := tc.in.Short(2); got != tc.want {
			t.Fatalf("short(%s): got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestJSONUsesTextForm(t *testing.T) {
	type payload struct {
		Amount Decimal `json:"amount"`
	}
	raw, err := json.Marshal(payload{Amount: MustParse("1e100")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"amount":"1e100"}` {
		t.Fatalf("got %s", raw)
	}
	var back payload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Amount.Eq(MustParse("1e100")) {
		t.Fatalf("got %s", back.Amount)
	}
}
