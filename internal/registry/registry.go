// Package registry owns per-item state for producers and upgrades and runs
// their purchase transactions against a ledger.
//
// A Registry is not safe for concurrent use. Events are published strictly
// after the state change they describe has completed.
package registry

import (
	"log/slog"
	"sort"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"
	"idleforge/internal/costcurve"
	"idleforge/internal/events"
	"idleforge/internal/ledger"
	"idleforge/internal/pipeline"
)

type Options struct {
	Ledger    *ledger.Ledger
	Pipeline  *pipeline.Pipeline
	Publisher events.Publisher
	Clock     clock.Clock
	Logger    *slog.Logger
	// Owned answers prerequisite checks for ids this registry does not hold.
	Owned func(id string) bool
}

type Registry struct {
	kind   Kind
	order  []string
	defs   map[string]Definition
	states map[string]*State

	ledger   *ledger.Ledger
	pipeline *pipeline.Pipeline
	pub      events.Publisher
	clock    clock.Clock
	log      *slog.Logger
	owned    func(id string) bool
}

func NewProducers(defs []Definition, opts Options) *Registry {
	return newRegistry(KindProducer, defs, opts)
}

func NewUpgrades(defs []Definition, opts Options) *Registry {
	return newRegistry(KindUpgrade, defs, opts)
}

func newRegistry(kind Kind, defs []Definition, opts Options) *Registry {
	clk := clock.Or(opts.Clock)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := opts.Ledger
	if l == nil {
		l = ledger.New(clk)
	}
	p := opts.Pipeline
	if p == nil {
		p = pipeline.New(clk)
	}
	r := &Registry{
		kind:     kind,
		defs:     make(map[string]Definition, len(defs)),
		states:   make(map[string]*State, len(defs)),
		ledger:   l,
		pipeline: p,
		pub:      events.Or(opts.Publisher),
		clock:    clk,
		log:      logger,
		owned:    opts.Owned,
	}
	for _, def := range defs {
		if def.ID == "" {
			continue
		}
		if _, dup := r.defs[def.ID]; dup {
			r.log.Warn("duplicate definition ignored", "kind", string(kind), "id", def.ID)
			continue
		}
		r.order = append(r.order, def.ID)
		r.defs[def.ID] = def
		r.states[def.ID] = initialState(def)
	}
	return r
}

func initialState(def Definition) *State {
	return &State{Unlocked: def.StartUnlocked}
}

func (r *Registry) Kind() Kind { return r.kind }

func (r *Registry) Ledger() *ledger.Ledger { return r.ledger }

func (r *Registry) Pipeline() *pipeline.Pipeline { return r.pipeline }

// SetOwnershipLookup replaces the lookup used for prerequisites that live in
// another registry.
func (r *Registry) SetOwnershipLookup(fn func(id string) bool) {
	r.owned = fn
}

// Definitions returns every definition in catalog order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

func (r *Registry) Definition(id string) (Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

func (r *Registry) State(id string) (State, bool) {
	st, ok := r.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func (r *Registry) Level(id string) int64 {
	if st, ok := r.states[id]; ok {
		return st.Level
	}
	return 0
}

func (r *Registry) IsUnlocked(id string) bool {
	st, ok := r.states[id]
	return ok && st.Unlocked
}

// IsOwned reports ownership: the owned flag for one-time items, a positive
// level otherwise.
func (r *Registry) IsOwned(id string) bool {
	st, ok := r.states[id]
	if !ok {
		return false
	}
	if r.defs[id].OneTime {
		return st.Owned
	}
	return st.Level > 0
}

// resolve turns a requested quantity into a concrete count, or an error.
func (r *Registry) resolve(def Definition, st *State, qty Quantity) (int64, error) {
	if !st.Unlocked {
		return 0, ErrLocked
	}
	if !def.Curve.Valid() {
		return 0, ErrMalformedItem
	}
	if qty < Max {
		return 0, ErrInvalidQuantity
	}
	if def.OneTime {
		if st.Owned {
			return 0, ErrAlreadyOwned
		}
		return 1, nil
	}
	remaining := def.Curve.Remaining(st.Level)
	if remaining == 0 {
		return 0, ErrMaxLevel
	}
	switch qty {
	case Max:
		n := costcurve.MaxAffordable(def.Curve, st.Level, r.ledger.Balance(def.Currency))
		if n == 0 {
			return 0, ErrInsufficientFunds
		}
		return n, nil
	case 0:
		return 1, nil
	default:
		return min(int64(qty), remaining), nil
	}
}

// Purchase buys qty of id. The ledger debit and the level increase happen
// together or not at all.
func (r *Registry) Purchase(id string, qty Quantity) Result {
	def, ok := r.defs[id]
	if !ok {
		return failed(id, ErrUnknownItem)
	}
	st := r.states[id]
	n, err := r.resolve(def, st, qty)
	if err != nil {
		return failed(id, err)
	}
	cost := costcurve.Bulk(def.Curve, st.Level, n)
	if !r.ledger.Debit(def.Currency, cost, "buy:"+id) {
		return failed(id, ErrInsufficientFunds)
	}

	st.Level += n
	if def.OneTime {
		st.Owned = true
	}
	if st.FirstPurchase.IsZero() {
		st.FirstPurchase = r.clock.Now().UTC()
	}
	st.TotalSpent = st.TotalSpent.Add(cost)
	r.syncEffect(def, st)

	r.log.Debug("item purchased", "kind", string(r.kind), "id", id, "amount", n, "level", st.Level, "cost", cost.String())
	r.pub.Publish(r.purchasedType(), events.Purchased{ID: id, NewLevel: st.Level, Amount: n, Cost: cost})
	return Result{Success: true, ID: id, AmountPurchased: n, NewLevel: st.Level, Cost: cost}
}

// Cost prices qty of id from its current level, ignoring unlock state.
// Max prices the largest affordable quantity. Unknown items cost zero.
func (r *Registry) Cost(id string, qty Quantity) bignum.Decimal {
	def, ok := r.defs[id]
	if !ok {
		return bignum.Zero()
	}
	st := r.states[id]
	n := int64(qty)
	switch {
	case def.OneTime:
		n = 1
	case qty == Max:
		n = costcurve.MaxAffordable(def.Curve, st.Level, r.ledger.Balance(def.Currency))
	case qty == 0:
		n = 1
	case n < 0:
		return bignum.Zero()
	}
	if !def.OneTime {
		n = min(n, def.Curve.Remaining(st.Level))
	}
	return costcurve.Bulk(def.Curve, st.Level, n)
}

func (r *Registry) NextCost(id string) bignum.Decimal {
	return r.Cost(id, 1)
}

// MaxAffordable is the quantity a Max purchase would buy right now.
func (r *Registry) MaxAffordable(id string) int64 {
	def, ok := r.defs[id]
	if !ok {
		return 0
	}
	st := r.states[id]
	n, err := r.resolve(def, st, Max)
	if err != nil {
		return 0
	}
	if def.OneTime && !r.ledger.CanAfford(def.Currency, costcurve.Bulk(def.Curve, st.Level, 1)) {
		return 0
	}
	return n
}

// CanAfford reports whether Purchase(id, qty) would succeed right now.
func (r *Registry) CanAfford(id string, qty Quantity) bool {
	def, ok := r.defs[id]
	if !ok {
		return false
	}
	st := r.states[id]
	n, err := r.resolve(def, st, qty)
	if err != nil {
		return false
	}
	return r.ledger.CanAfford(def.Currency, costcurve.Bulk(def.Curve, st.Level, n))
}

type production struct {
	scope    string
	resource string
	base     bignum.Decimal
	items    []string
	shares   []bignum.Decimal
}

func (r *Registry) production() []*production {
	groups := make(map[string]*production)
	var keys []string
	for _, id := range r.order {
		def := r.defs[id]
		st := r.states[id]
		if def.Produces == "" || st.Level <= 0 || !def.BaseProduction.IsFinite() || def.BaseProduction.Sign() <= 0 {
			continue
		}
		key := def.scope() + "\x00" + def.Produces
		g, ok := groups[key]
		if !ok {
			g = &production{scope: def.scope(), resource: def.Produces, base: bignum.Zero()}
			groups[key] = g
			keys = append(keys, key)
		}
		share := def.BaseProduction.Mul(bignum.New(st.Level))
		g.base = g.base.Add(share)
		g.items = append(g.items, id)
		g.shares = append(g.shares, share)
	}
	sort.Strings(keys)
	out := make([]*production, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}

// Rates returns per-second production per resource after the pipeline.
func (r *Registry) Rates() map[string]bignum.Decimal {
	out := make(map[string]bignum.Decimal)
	for _, g := range r.production() {
		final := r.pipeline.Breakdown(g.scope, g.base).Final
		out[g.resource] = out[g.resource].Add(final)
	}
	return out
}

// Breakdowns returns the pipeline breakdown behind each produced resource,
// keyed by scope.
func (r *Registry) Breakdowns() map[string]pipeline.Breakdown {
	out := make(map[string]pipeline.Breakdown)
	for _, g := range r.production() {
		out[g.scope] = r.pipeline.Breakdown(g.scope, g.base)
	}
	return out
}

// Tick credits dt worth of production to the ledger and returns what was
// produced per resource.
func (r *Registry) Tick(dt time.Duration) map[string]bignum.Decimal {
	out := make(map[string]bignum.Decimal)
	if dt <= 0 {
		return out
	}
	secs := bignum.NewFromFloat(dt.Seconds())
	for _, g := range r.production() {
		final := r.pipeline.Breakdown(g.scope, g.base).Final
		amount := final.Mul(secs)
		if !amount.IsFinite() || amount.Sign() <= 0 {
			continue
		}
		if !r.ledger.Credit(g.resource, amount, "") {
			continue
		}
		out[g.resource] = out[g.resource].Add(amount)
		for i, id := range g.items {
			st := r.states[id]
			st.TotalProduced = st.TotalProduced.Add(amount.Mul(g.shares[i]).Div(g.base))
		}
	}
	return out
}

// CheckUnlocks unlocks every visible item whose phase is reached and whose
// prerequisites are owned. It returns the ids unlocked by this call.
func (r *Registry) CheckUnlocks(phase int) []string {
	var unlocked []string
	for _, id := range r.order {
		def := r.defs[id]
		st := r.states[id]
		if st.Unlocked || def.Hidden || def.Phase > phase || !r.prerequisitesMet(def) {
			continue
		}
		r.unlock(id, st)
		unlocked = append(unlocked, id)
	}
	return unlocked
}

func (r *Registry) prerequisitesMet(def Definition) bool {
	for _, pre := range def.Prerequisites {
		if _, local := r.defs[pre]; local {
			if !r.IsOwned(pre) {
				return false
			}
			continue
		}
		if r.owned == nil || !r.owned(pre) {
			return false
		}
	}
	return true
}

// Unlock unlocks id regardless of phase, prerequisites or visibility. It
// reports whether the item changed state.
func (r *Registry) Unlock(id string) (bool, error) {
	st, ok := r.states[id]
	if !ok {
		return false, ErrUnknownItem
	}
	if st.Unlocked {
		return false, nil
	}
	r.unlock(id, st)
	return true, nil
}

func (r *Registry) unlock(id string, st *State) {
	st.Unlocked = true
	r.log.Debug("item unlocked", "kind", string(r.kind), "id", id)
	r.pub.Publish(r.unlockedType(), events.Unlocked{ID: id})
}

// Reset returns run items to their initial state. Eternal items keep their
// level, ownership and totals.
func (r *Registry) Reset() {
	for _, id := range r.order {
		def := r.defs[id]
		if def.Category == Eternal {
			continue
		}
		st := initialState(def)
		r.states[id] = st
		r.syncEffect(def, st)
	}
	r.log.Debug("registry reset", "kind", string(r.kind))
	r.pub.Publish(events.TypeRegistryReset, events.Reset{Registry: string(r.kind)})
}

func (r *Registry) effectID(id string) string {
	return string(r.kind) + ":" + id
}

// syncEffect keeps the item's pipeline contribution in line with its level.
func (r *Registry) syncEffect(def Definition, st *State) {
	if def.Effect == nil {
		return
	}
	cid := r.effectID(def.ID)
	active := st.Level > 0 || st.Owned
	if !active || !def.Effect.PerLevel.IsFinite() {
		r.pipeline.Remove(cid)
		return
	}
	level := st.Level
	if level == 0 {
		level = 1
	}
	r.pipeline.Add(cid, def.ID, def.Effect.value(level), def.Effect.Stacking, def.Effect.Scope, 0)
}

func (r *Registry) syncAllEffects() {
	for _, id := range r.order {
		r.syncEffect(r.defs[id], r.states[id])
	}
}

func (r *Registry) purchasedType() events.Type {
	if r.kind == KindUpgrade {
		return events.TypeUpgradePurchased
	}
	return events.TypeProducerPurchased
}

func (r *Registry) unlockedType() events.Type {
	if r.kind == KindUpgrade {
		return events.TypeUpgradeUnlocked
	}
	return events.TypeProducerUnlocked
}
