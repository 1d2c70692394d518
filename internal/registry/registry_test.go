package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"
	"idleforge/internal/costcurve"
	"idleforge/internal/events"
	"idleforge/internal/ledger"
	"idleforge/internal/pipeline"
)

type fixture struct {
	clock     *clock.FakeClock
	ledger    *ledger.Ledger
	pipeline  *pipeline.Pipeline
	log       *events.Log
	producers *Registry
	upgrades  *Registry
}

func curve(base, mult float64, maxLevel int64) costcurve.Params {
	return costcurve.Params{
		BaseCost:   bignum.NewFromFloat(base),
		Multiplier: bignum.NewFromFloat(mult),
		MaxLevel:   maxLevel,
	}
}

func newFixture() *fixture {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		clock:    clk,
		ledger:   ledger.New(clk),
		pipeline: pipeline.New(clk),
		log:      events.NewLog(0),
	}
	opts := Options{Ledger: f.ledger, Pipeline: f.pipeline, Publisher: f.log, Clock: clk}
	f.producers = NewProducers([]Definition{
		{ID: "cursor", Name: "Cursor", Curve: curve(15, 1.15, 0), Currency: "pixels", Produces: "pixels", BaseProduction: bignum.NewFromFloat(0.1), StartUnlocked: true},
		{ID: "farm", Name: "Farm", Curve: curve(100, 1.15, 0), Currency: "pixels", Produces: "pixels", BaseProduction: bignum.New(1), Phase: 1, Prerequisites: []string{"cursor"}},
		{ID: "monolith", Name: "Monolith", Curve: curve(1e6, 1.2, 0), Currency: "pixels", Produces: "pixels", BaseProduction: bignum.New(100), Phase: 1, Prerequisites: []string{"gloves"}},
		{ID: "secret", Name: "Secret", Curve: curve(1, 2, 0), Currency: "pixels", Hidden: true},
		{ID: "shrine", Name: "Shrine", Curve: curve(1, 2, 3), Currency: "pixels", Category: Eternal, StartUnlocked: true},
		{ID: "broken", Name: "Broken", Curve: costcurve.Params{BaseCost: bignum.New(-1), Multiplier: bignum.New(2)}, Currency: "pixels", StartUnlocked: true},
	}, opts)
	f.upgrades = NewUpgrades([]Definition{
		{ID: "gloves", Name: "Gloves", Curve: curve(50, 1, 0), Currency: "pixels", OneTime: true, StartUnlocked: true,
			Effect: &Effect{Scope: "pixels", Stacking: pipeline.Multiplicative, PerLevel: bignum.New(2)}},
		{ID: "legacy", Name: "Legacy", Curve: curve(10, 2, 0), Currency: "pixels", Category: Eternal, StartUnlocked: true,
			Effect: &Effect{Scope: "pixels", Stacking: pipeline.Additive, PerLevel: bignum.New(5)}},
	}, opts)
	f.producers.SetOwnershipLookup(f.upgrades.IsOwned)
	f.upgrades.SetOwnershipLookup(f.producers.IsOwned)
	return f
}

func TestPurchaseIsAtomic(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(10))

	res := f.producers.Purchase("cursor", 1)
	if res.Success || res.AmountPurchased != 0 || !errors.Is(res.Err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %+v", res)
	}
	if f.producers.Level("cursor") != 0 || !f.ledger.Balance("pixels").Eq(bignum.New(10)) {
		t.Fatalf("failed purchase mutated state")
	}
	if f.log.Len() != 0 {
		t.Fatalf("failed purchase published %d events", f.log.Len())
	}

	f.ledger.Add("pixels", bignum.New(90))
	res = f.producers.Purchase("cursor", 1)
	if !res.Success || res.NewLevel != 1 || !res.Cost.Eq(bignum.New(15)) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !f.ledger.Balance("pixels").Eq(bignum.New(85)) {
		t.Fatalf("expected 85 left, got %s", f.ledger.Balance("pixels"))
	}
	st, _ := f.producers.State("cursor")
	if st.FirstPurchase.IsZero() || !st.TotalSpent.Eq(bignum.New(15)) {
		t.Fatalf("unexpected state %+v", st)
	}
	got := f.log.ByType(events.TypeProducerPurchased)
	if len(got) != 1 {
		t.Fatalf("expected one purchase event, got %d", len(got))
	}
	if p := got[0].Payload.(events.Purchased); p.ID != "cursor" || p.NewLevel != 1 {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestPublishSeesCompletedState(t *testing.T) {
	f := newFixture()
	var seen int64 = -1
	r := NewProducers(f.producers.Definitions(), Options{
		Ledger: f.ledger,
		Publisher: events.PublisherFunc(func(t events.Type, _ any) {
			if t == events.TypeProducerPurchased {
				seen = f.producers.Level("cursor")
			}
		}),
	})
	f.producers = r
	f.ledger.Add("pixels", bignum.New(100))
	r.Purchase("cursor", 2)
	if seen != 2 {
		t.Fatalf("listener saw level %d, want 2", seen)
	}
}

func TestPurchaseGating(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.MustParse("1e9"))

	tests := []struct {
		name string
		reg  *Registry
		id   string
		qty  Quantity
		want error
	}{
		{name: "unknown", reg: f.producers, id: "nope", qty: 1, want: ErrUnknownItem},
		{name: "locked", reg: f.producers, id: "farm", qty: 1, want: ErrLocked},
		{name: "hidden", reg: f.producers, id: "secret", qty: 1, want: ErrLocked},
		{name: "malformed", reg: f.producers, id: "broken", qty: 1, want: ErrMalformedItem},
		{name: "bad quantity", reg: f.producers, id: "cursor", qty: -7, want: ErrInvalidQuantity},
	}
	for _, tc := range tests {
		res := tc.reg.Purchase(tc.id, tc.qty)
		if res.Success || !errors.Is(res.Err, tc.want) {
			t.Fatalf("%s: got %+v", tc.name, res)
		}
	}
	if !f.ledger.Balance("pixels").Eq(bignum.MustParse("1e9")) {
		t.Fatalf("gated purchases must not spend")
	}
}

func TestOneTimeUpgrade(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(500))

	if res := f.upgrades.Purchase("gloves", 5); !res.Success || res.AmountPurchased != 1 {
		t.Fatalf("unexpected %+v", res)
	}
	if !f.upgrades.IsOwned("gloves") || !f.pipeline.Has("upgrade:gloves") {
		t.Fatalf("expected gloves owned with an active effect")
	}
	if res := f.upgrades.Purchase("gloves", 1); !errors.Is(res.Err, ErrAlreadyOwned) {
		t.Fatalf("expected already owned, got %+v", res)
	}
	if f.upgrades.CanAfford("gloves", 1) || f.upgrades.MaxAffordable("gloves") != 0 {
		t.Fatalf("owned one-time item must not be affordable")
	}
	if !f.ledger.Balance("pixels").Eq(bignum.New(450)) {
		t.Fatalf("got %s", f.ledger.Balance("pixels"))
	}
}

func TestMaxLevelClampsQuantity(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(1000))

	res := f.producers.Purchase("shrine", 10)
	if !res.Success || res.AmountPurchased != 3 || !res.Cost.Eq(bignum.New(7)) {
		t.Fatalf("unexpected %+v", res)
	}
	if res := f.producers.Purchase("shrine", 1); !errors.Is(res.Err, ErrMaxLevel) {
		t.Fatalf("expected max level, got %+v", res)
	}
}

func TestCostClampsToMaxLevel(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(1000))

	tests := []struct {
		qty  Quantity
		want int64
	}{
		{qty: 1, want: 1},
		{qty: 3, want: 7},
		{qty: 50, want: 7},
		{qty: Max, want: 7},
	}
	for _, tc := range tests {
		if got := f.producers.Cost("shrine", tc.qty); !got.Eq(bignum.New(tc.want)) {
			t.Fatalf("Cost(shrine, %d) = %s, want %d", tc.qty, got, tc.want)
		}
	}

	quoted := f.producers.Cost("shrine", 50)
	res := f.producers.Purchase("shrine", 50)
	if !res.Success || !res.Cost.Eq(quoted) {
		t.Fatalf("quoted %s, charged %+v", quoted, res)
	}
	if got := f.producers.Cost("shrine", 50); !got.IsZero() {
		t.Fatalf("maxed item still quotes %s", got)
	}
}

func TestPurchaseMax(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(100))

	want := f.producers.MaxAffordable("cursor")
	if want != 4 {
		t.Fatalf("expected 4 affordable, got %d", want)
	}
	cost := f.producers.Cost("cursor", Max)
	res := f.producers.Purchase("cursor", Max)
	if !res.Success || res.AmountPurchased != want || !res.Cost.Eq(cost) {
		t.Fatalf("unexpected %+v", res)
	}
	if f.producers.CanAfford("cursor", 1) {
		t.Fatalf("nothing should be left to buy a fifth cursor")
	}
	if res := f.producers.Purchase("cursor", Max); !errors.Is(res.Err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %+v", res)
	}
}

func TestCostOfUnknownIsZero(t *testing.T) {
	f := newFixture()
	if !f.producers.Cost("nope", 3).IsZero() || !f.producers.NextCost("broken").IsZero() {
		t.Fatalf("expected zero costs")
	}
	if f.producers.MaxAffordable("nope") != 0 || f.producers.CanAfford("nope", 1) {
		t.Fatalf("unknown items are never affordable")
	}
}

func TestTickRoutesThroughPipeline(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.MustParse("1e6"))
	f.producers.Purchase("cursor", 10)
	produced := f.producers.Tick(2 * time.Second)
	if !produced["pixels"].EqWithin(bignum.New(2), 1e-12) {
		t.Fatalf("expected 2 pixels, got %s", produced["pixels"])
	}

	f.upgrades.Purchase("gloves", 1)
	start := f.ledger.Balance("pixels")
	produced = f.producers.Tick(2 * time.Second)
	if !produced["pixels"].EqWithin(bignum.New(4), 1e-12) {
		t.Fatalf("expected 4 pixels with gloves, got %s", produced["pixels"])
	}
	if !f.ledger.Balance("pixels").Sub(start).EqWithin(bignum.New(4), 1e-12) {
		t.Fatalf("ledger not credited")
	}
	st, _ := f.producers.State("cursor")
	if !st.TotalProduced.EqWithin(bignum.New(6), 1e-12) {
		t.Fatalf("expected 6 produced in total, got %s", st.TotalProduced)
	}
	if rate := f.producers.Rates()["pixels"]; !rate.EqWithin(bignum.New(2), 1e-12) {
		t.Fatalf("expected rate 2/s, got %s", rate)
	}
	if got := f.producers.Tick(0); len(got) != 0 {
		t.Fatalf("zero tick produced %v", got)
	}
}

func TestCheckUnlocks(t *testing.T) {
	f := newFixture()
	if got := f.producers.CheckUnlocks(5); len(got) != 0 {
		t.Fatalf("farm needs a cursor first, unlocked %v", got)
	}

	f.ledger.Add("pixels", bignum.New(1000))
	f.producers.Purchase("cursor", 1)
	if got := f.producers.CheckUnlocks(0); len(got) != 0 {
		t.Fatalf("farm needs phase 1, unlocked %v", got)
	}
	if got := f.producers.CheckUnlocks(1); len(got) != 1 || got[0] != "farm" {
		t.Fatalf("expected farm, got %v", got)
	}
	if got := f.producers.CheckUnlocks(1); len(got) != 0 {
		t.Fatalf("second check unlocked %v", got)
	}
	if n := len(f.log.ByType(events.TypeProducerUnlocked)); n != 1 {
		t.Fatalf("expected one unlock event, got %d", n)
	}

	f.upgrades.Purchase("gloves", 1)
	if got := f.producers.CheckUnlocks(1); len(got) != 1 || got[0] != "monolith" {
		t.Fatalf("expected monolith through the upgrade lookup, got %v", got)
	}
	if f.producers.IsUnlocked("secret") {
		t.Fatalf("hidden items never auto-unlock")
	}
}

func TestExplicitUnlockIsIdempotent(t *testing.T) {
	f := newFixture()
	changed, err := f.producers.Unlock("secret")
	if err != nil || !changed {
		t.Fatalf("expected unlock, got %v %v", changed, err)
	}
	changed, err = f.producers.Unlock("secret")
	if err != nil || changed {
		t.Fatalf("second unlock should be a no-op, got %v %v", changed, err)
	}
	if n := len(f.log.ByType(events.TypeProducerUnlocked)); n != 1 {
		t.Fatalf("expected one unlock event, got %d", n)
	}
	if _, err := f.producers.Unlock("nope"); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected unknown item, got %v", err)
	}
}

func TestResetKeepsEternalItems(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(10000))
	f.producers.Purchase("cursor", 4)
	f.producers.Purchase("shrine", 2)
	f.upgrades.Purchase("gloves", 1)
	f.upgrades.Purchase("legacy", 2)
	f.producers.Unlock("secret")
	shrineBefore, _ := f.producers.State("shrine")

	f.producers.Reset()
	f.upgrades.Reset()

	if f.producers.Level("cursor") != 0 || !f.producers.NextCost("cursor").Eq(bignum.New(15)) {
		t.Fatalf("run producer not reset: level %d cost %s", f.producers.Level("cursor"), f.producers.NextCost("cursor"))
	}
	if f.producers.IsUnlocked("secret") || !f.producers.IsUnlocked("cursor") {
		t.Fatalf("unlock flags should return to their initial configuration")
	}
	shrineAfter, _ := f.producers.State("shrine")
	if shrineAfter.Level != 2 || !shrineAfter.TotalSpent.Eq(shrineBefore.TotalSpent) {
		t.Fatalf("eternal producer changed: %+v", shrineAfter)
	}
	if f.upgrades.IsOwned("gloves") || f.pipeline.Has("upgrade:gloves") {
		t.Fatalf("run upgrade and its effect should be gone")
	}
	if f.upgrades.Level("legacy") != 2 || !f.pipeline.Has("upgrade:legacy") {
		t.Fatalf("eternal upgrade should keep level and effect")
	}
	if n := len(f.log.ByType(events.TypeRegistryReset)); n != 2 {
		t.Fatalf("expected two reset events, got %d", n)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	f := newFixture()
	f.ledger.Add("pixels", bignum.New(5000))
	f.producers.Purchase("cursor", 7)
	f.upgrades.Purchase("gloves", 1)
	f.clock.Advance(time.Minute)
	f.producers.Tick(time.Minute)

	raw, err := json.Marshal(f.producers.Serialize())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	upRaw, err := json.Marshal(f.upgrades.Serialize())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	g := newFixture()
	g.producers.Deserialize(raw)
	g.upgrades.Deserialize(upRaw)

	want, _ := f.producers.State("cursor")
	got, _ := g.producers.State("cursor")
	if got.Level != 7 || !got.TotalProduced.Eq(want.TotalProduced) || !got.TotalSpent.Eq(want.TotalSpent) {
		t.Fatalf("cursor state drifted: %+v vs %+v", got, want)
	}
	if !got.FirstPurchase.Equal(want.FirstPurchase.Truncate(time.Millisecond)) {
		t.Fatalf("first purchase drifted: %v vs %v", got.FirstPurchase, want.FirstPurchase)
	}
	if !g.upgrades.IsOwned("gloves") || !g.pipeline.Has("upgrade:gloves") {
		t.Fatalf("upgrade effect not restored")
	}
}

func TestDeserializeMalformed(t *testing.T) {
	inputs := []string{
		``,
		`null`,
		`{}`,
		`[1, 2, 3]`,
		`"levels"`,
		`{"levels": null, "unlocked": {}, "totalSpent": 4}`,
	}
	for _, in := range inputs {
		f := newFixture()
		f.ledger.Add("pixels", bignum.New(100))
		f.producers.Purchase("cursor", 2)
		f.producers.Deserialize([]byte(in))
		if f.producers.Level("cursor") != 0 || !f.producers.IsUnlocked("cursor") || f.producers.IsUnlocked("farm") {
			t.Fatalf("input %q: expected initial configuration", in)
		}
	}

	f := newFixture()
	f.producers.Deserialize([]byte(`{
		"levels": {"cursor": "many", "farm": 3, "shrine": 99, "ghost": 4, "secret": -2, "monolith": 1.5},
		"unlocked": ["farm", 7, null, "ghost"],
		"totalProduced": {"farm": "1e100", "cursor": "garbage"},
		"totalSpent": {"farm": 300},
		"firstPurchaseTimes": {"farm": 1717232400000, "cursor": "yesterday"}
	}`))
	if f.producers.Level("cursor") != 0 || f.producers.Level("farm") != 3 || f.producers.Level("secret") != 0 || f.producers.Level("monolith") != 0 {
		t.Fatalf("unexpected levels: cursor=%d farm=%d", f.producers.Level("cursor"), f.producers.Level("farm"))
	}
	if f.producers.Level("shrine") != 3 {
		t.Fatalf("levels above max should clamp, got %d", f.producers.Level("shrine"))
	}
	farm, _ := f.producers.State("farm")
	if !farm.Unlocked || !farm.TotalProduced.Eq(bignum.MustParse("1e100")) || !farm.TotalSpent.Eq(bignum.New(300)) {
		t.Fatalf("unexpected farm state %+v", farm)
	}
	if farm.FirstPurchase.UnixMilli() != 1717232400000 {
		t.Fatalf("unexpected first purchase %v", farm.FirstPurchase)
	}
	cursor, _ := f.producers.State("cursor")
	if !cursor.TotalProduced.IsZero() || !cursor.FirstPurchase.IsZero() {
		t.Fatalf("invalid cursor fields should default, got %+v", cursor)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
		err  bool
	}{
		{in: "", want: 1},
		{in: "10", want: 10},
		{in: "max", want: Max},
		{in: "0", err: true},
		{in: "3abc", err: true},
	}
	for _, tc := range tests {
		got, err := ParseQuantity(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("%q: expected error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %d %v", tc.in, got, err)
		}
	}
}
