package game

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"
	"idleforge/internal/config"
	"idleforge/internal/content"
	"idleforge/internal/events"
	"idleforge/internal/ledger"
	"idleforge/internal/offline"
	"idleforge/internal/pipeline"
	"idleforge/internal/registry"

	"github.com/google/uuid"
)

const boostSource = "boost"

var _ GameContext = (*Engine)(nil)

type Options struct {
	Catalog   *content.Catalog
	Offline   offline.Config
	Clock     clock.Clock
	Logger    *slog.Logger
	Publisher events.Publisher
}

// Engine wires the ledger, pipeline and both registries to one catalog. It
// holds no locks; hosts serialize access.
type Engine struct {
	catalog *content.Catalog
	offline offline.Config
	clock   clock.Clock
	log     *slog.Logger
	pub     events.Publisher

	ledger    *ledger.Ledger
	pipeline  *pipeline.Pipeline
	producers *registry.Registry
	upgrades  *registry.Registry

	lifetime   map[string]bignum.Decimal
	allTime    map[string]bignum.Decimal
	phase      int
	prestiges  int64
	lastActive time.Time

	keys     map[string]struct{}
	keyOrder []string
}

func New(opts Options) *Engine {
	cat := opts.Catalog
	if cat == nil {
		cat = content.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	offCfg := opts.Offline
	if offCfg == (offline.Config{}) {
		offCfg = offline.DefaultConfig()
	}
	clk := clock.Or(opts.Clock)
	pub := events.Or(opts.Publisher)

	e := &Engine{
		catalog:  cat,
		offline:  offCfg,
		clock:    clk,
		log:      logger,
		pub:      pub,
		ledger:   ledger.New(clk),
		pipeline: pipeline.New(clk),
		lifetime: make(map[string]bignum.Decimal),
		allTime:  make(map[string]bignum.Decimal),
		keys:     make(map[string]struct{}),
	}
	regOpts := registry.Options{
		Ledger:    e.ledger,
		Pipeline:  e.pipeline,
		Publisher: pub,
		Clock:     clk,
		Logger:    logger,
	}
	e.producers = registry.NewProducers(cat.ProducerDefinitions(), regOpts)
	e.upgrades = registry.NewUpgrades(cat.UpgradeDefinitions(), regOpts)
	e.producers.SetOwnershipLookup(e.upgrades.IsOwned)
	e.upgrades.SetOwnershipLookup(e.producers.IsOwned)
	e.lastActive = clk.Now().UTC()
	e.refreshPhase()
	return e
}

// NewFromConfig loads the configured catalog and builds an engine on it.
func NewFromConfig(cfg config.EngineConfig, opts Options) (*Engine, error) {
	cat, err := content.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	if cfg.PrimaryResource != "" {
		if err := cat.SetPrimaryResource(cfg.PrimaryResource); err != nil {
			return nil, err
		}
	}
	opts.Catalog = cat
	opts.Offline = cfg.Offline
	return New(opts), nil
}

func (e *Engine) Catalog() *content.Catalog     { return e.catalog }
func (e *Engine) Ledger() *ledger.Ledger        { return e.ledger }
func (e *Engine) Pipeline() *pipeline.Pipeline  { return e.pipeline }
func (e *Engine) Producers() *registry.Registry { return e.producers }
func (e *Engine) Upgrades() *registry.Registry  { return e.upgrades }
func (e *Engine) Phase() int                    { return e.phase }
func (e *Engine) Prestiges() int64              { return e.prestiges }
func (e *Engine) Now() time.Time                { return e.clock.Now() }
func (e *Engine) LastActive() time.Time         { return e.lastActive }
func (e *Engine) OfflineConfig() offline.Config { return e.offline }
func (e *Engine) PrimaryResource() string       { return e.catalog.PrimaryResource }

// Lifetime returns what resource has earned this run.
func (e *Engine) Lifetime(resource string) bignum.Decimal {
	return e.lifetime[resource]
}

// AllTime returns what resource has earned across every run.
func (e *Engine) AllTime(resource string) bignum.Decimal {
	return e.allTime[resource]
}

func (e *Engine) GetResourceAmount(id string) bignum.Decimal {
	return e.ledger.Balance(id)
}

func (e *Engine) GetProducerCount(id string) int64 {
	return e.producers.Level(id)
}

func (e *Engine) HasUpgrade(id string) bool {
	return e.upgrades.IsOwned(id)
}

func (e *Engine) GetUpgradeLevel(id string) int64 {
	return e.upgrades.Level(id)
}

// Tick advances production by dt and returns what was produced.
func (e *Engine) Tick(dt time.Duration) map[string]bignum.Decimal {
	produced := e.producers.Tick(dt)
	for res, amt := range e.upgrades.Tick(dt) {
		produced[res] = produced[res].Add(amt)
	}
	for res, amt := range produced {
		e.earn(res, amt)
	}
	e.lastActive = e.clock.Now().UTC()
	e.refreshPhase()
	return produced
}

func (e *Engine) earn(resource string, amount bignum.Decimal) {
	e.lifetime[resource] = e.lifetime[resource].Add(amount)
	e.allTime[resource] = e.allTime[resource].Add(amount)
}

// Rates returns the current per-second production per resource.
func (e *Engine) Rates() map[string]bignum.Decimal {
	out := e.producers.Rates()
	for res, r := range e.upgrades.Rates() {
		out[res] = out[res].Add(r)
	}
	return out
}

func (e *Engine) ProductionRate(resource string) bignum.Decimal {
	return e.Rates()[resource]
}

// refreshPhase recomputes the phase from lifetime earnings of the primary
// resource and runs unlock checks.
func (e *Engine) refreshPhase() []string {
	phase := e.catalog.PhaseFor(e.lifetime[e.catalog.PrimaryResource])
	if phase > e.phase {
		e.log.Info("phase reached", "phase", phase, "name", e.catalog.PhaseName(phase))
		e.phase = phase
		e.pub.Publish(events.TypePhaseReached, events.PhaseReached{Phase: phase})
	} else {
		e.phase = phase
	}
	return e.CheckUnlocks()
}

// CheckUnlocks runs unlock checks for the current phase on both registries.
// Producers go first so upgrade prerequisites see fresh producer state.
func (e *Engine) CheckUnlocks() []string {
	var out []string
	for {
		got := append(e.producers.CheckUnlocks(e.phase), e.upgrades.CheckUnlocks(e.phase)...)
		if len(got) == 0 {
			return out
		}
		out = append(out, got...)
	}
}

func (e *Engine) BuyProducer(in BuyInput) (registry.Result, error) {
	return e.buy(e.producers, in)
}

func (e *Engine) BuyUpgrade(in BuyInput) (registry.Result, error) {
	return e.buy(e.upgrades, in)
}

func (e *Engine) buy(r *registry.Registry, in BuyInput) (registry.Result, error) {
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if _, seen := e.keys[key]; seen {
			return registry.Result{ID: in.ID, Err: ErrDuplicateIdempotency}, ErrDuplicateIdempotency
		}
	}
	res := r.Purchase(in.ID, in.Quantity)
	if !res.Success {
		return res, fmt.Errorf("buy %s %s: %w", r.Kind(), in.ID, res.Err)
	}
	if key != "" {
		e.rememberKey(key)
	}
	e.lastActive = e.clock.Now().UTC()
	e.CheckUnlocks()
	return res, nil
}

func (e *Engine) rememberKey(key string) {
	e.keys[key] = struct{}{}
	e.keyOrder = append(e.keyOrder, key)
	if len(e.keyOrder) > idempotencyWindow {
		delete(e.keys, e.keyOrder[0])
		e.keyOrder = e.keyOrder[1:]
	}
}

// Unlock unlocks an item from either registry, hidden items included.
func (e *Engine) Unlock(id string) (bool, error) {
	if _, ok := e.producers.Definition(id); ok {
		return e.producers.Unlock(id)
	}
	if _, ok := e.upgrades.Definition(id); ok {
		return e.upgrades.Unlock(id)
	}
	return false, fmt.Errorf("unlock %s: %w", id, ErrUnknownItem)
}

// PreviewOffline reports what ClaimOffline would pay at now.
func (e *Engine) PreviewOffline(now time.Time) OfflineClaim {
	res := e.catalog.PrimaryResource
	return OfflineClaim{
		Resource: res,
		Result:   offline.Calculate(e.lastActive, now, e.ProductionRate(res), e.offline),
	}
}

// ClaimOffline credits the reward for the time since the last activity and
// marks the engine active at now.
func (e *Engine) ClaimOffline(now time.Time) OfflineClaim {
	claim := e.PreviewOffline(now)
	if now.After(e.lastActive) {
		e.lastActive = now.UTC()
	}
	if claim.Reward.Sign() <= 0 {
		return claim
	}
	if !e.ledger.Credit(claim.Resource, claim.Reward, "offline") {
		e.log.Warn("offline reward rejected", "reward", claim.Reward.String())
		claim.Reward = bignum.Zero()
		return claim
	}
	e.earn(claim.Resource, claim.Reward)
	e.log.Info("offline progress claimed",
		"resource", claim.Resource,
		"reward", claim.Reward.String(),
		"away", claim.TimeAway.String(),
		"full_rest", claim.Bonus == offline.BonusFullRest,
	)
	e.pub.Publish(events.TypeOfflineClaimed, events.OfflineClaimed{
		Reward:   claim.Reward,
		Resource: claim.Resource,
		Duration: claim.Duration,
		FullRest: claim.Bonus == offline.BonusFullRest,
	})
	e.refreshPhase()
	return claim
}

func (e *Engine) PrestigeReward() bignum.Decimal {
	return e.catalog.PrestigeReward(e.lifetime[e.catalog.PrimaryResource])
}

// Prestige converts this run's lifetime earnings into the prestige resource,
// then resets run items, run resources and run earnings.
func (e *Engine) Prestige() (PrestigeResult, error) {
	reward := e.PrestigeReward()
	if reward.Sign() <= 0 {
		return PrestigeResult{}, ErrPrestigeUnavailable
	}
	target := e.catalog.Prestige.Resource

	e.producers.Reset()
	e.upgrades.Reset()
	runResources := e.catalog.RunResources()
	e.ledger.Reset(runResources...)
	for _, res := range runResources {
		delete(e.lifetime, res)
	}
	e.ledger.Credit(target, reward, "prestige")
	e.prestiges++
	e.phase = 0
	e.refreshPhase()

	out := PrestigeResult{
		Resource: target,
		Reward:   reward,
		Balance:  e.ledger.Balance(target),
		Count:    e.prestiges,
	}
	e.log.Info("prestige", "reward", reward.String(), "resource", target, "count", e.prestiges)
	e.pub.Publish(events.TypePrestige, out)
	return out, nil
}

// AddBoost registers a timed multiplicative boost and returns its id.
func (e *Engine) AddBoost(in BoostInput) (string, error) {
	if strings.TrimSpace(in.Scope) == "" || !in.Factor.IsFinite() || in.Factor.Sign() <= 0 || in.Duration <= 0 {
		return "", ErrInvalidBoost
	}
	e.pipeline.Prune()
	id := boostSource + ":" + uuid.NewString()
	e.pipeline.Add(id, boostSource, in.Factor, pipeline.Multiplicative, in.Scope, in.Duration)
	return id, nil
}

func (e *Engine) Boosts() []BoostView {
	now := e.clock.Now()
	var out []BoostView
	for _, c := range e.pipeline.Contributions("") {
		if c.Source != boostSource {
			continue
		}
		out = append(out, BoostView{
			ID:        c.ID,
			Scope:     c.Scope,
			Factor:    c.Value,
			Remaining: c.Remaining(now).Seconds(),
		})
	}
	return out
}

func (e *Engine) Dashboard() Dashboard {
	rates := e.Rates()
	d := Dashboard{
		Phase:          e.phase,
		PhaseName:      e.catalog.PhaseName(e.phase),
		Breakdowns:     e.producers.Breakdowns(),
		Producers:      e.items(e.producers),
		Upgrades:       e.items(e.upgrades),
		Boosts:         e.Boosts(),
		PrestigeReward: e.PrestigeReward(),
		Prestiges:      e.prestiges,
		LastActive:     e.lastActive,
	}
	if next, ok := e.catalog.NextPhaseThreshold(e.phase); ok {
		d.NextPhaseAt = &next
	}
	seen := make(map[string]bool)
	for _, r := range e.catalog.Resources {
		seen[r.ID] = true
		d.Resources = append(d.Resources, ResourceView{
			ID:       r.ID,
			Name:     r.Name,
			Amount:   e.ledger.Balance(r.ID),
			Rate:     rates[r.ID],
			Lifetime: e.lifetime[r.ID],
			Eternal:  r.Eternal,
		})
	}
	var extra []string
	for _, id := range e.ledger.Resources() {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		d.Resources = append(d.Resources, ResourceView{ID: id, Name: id, Amount: e.ledger.Balance(id), Rate: rates[id], Lifetime: e.lifetime[id]})
	}
	return d
}

func (e *Engine) items(r *registry.Registry) []ItemView {
	defs := r.Definitions()
	out := make([]ItemView, 0, len(defs))
	for _, def := range defs {
		st, _ := r.State(def.ID)
		if def.Hidden && !st.Unlocked {
			continue
		}
		out = append(out, ItemView{
			ID:            def.ID,
			Name:          def.Name,
			Description:   def.Description,
			Level:         st.Level,
			MaxLevel:      def.Curve.MaxLevel,
			Unlocked:      st.Unlocked,
			Owned:         r.IsOwned(def.ID),
			OneTime:       def.OneTime,
			Eternal:       def.Category == registry.Eternal,
			Currency:      def.Currency,
			NextCost:      r.NextCost(def.ID),
			MaxAffordable: r.MaxAffordable(def.ID),
			Production:    def.BaseProduction,
			TotalProduced: st.TotalProduced,
			TotalSpent:    st.TotalSpent,
		})
	}
	return out
}
