// Package content loads the static catalog of resources, phases, producers and
// upgrades. A default catalog is embedded in the binary.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"idleforge/internal/bignum"
	"idleforge/internal/costcurve"
	"idleforge/internal/pipeline"
	"idleforge/internal/registry"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type Catalog struct {
	Version         string     `yaml:"version" json:"version"`
	PrimaryResource string     `yaml:"primary_resource" json:"primary_resource"`
	Resources       []Resource `yaml:"resources" json:"resources"`
	Phases          []Phase    `yaml:"phases" json:"phases"`
	Producers       []Item     `yaml:"producers" json:"producers"`
	Upgrades        []Item     `yaml:"upgrades" json:"upgrades"`
	Prestige        Prestige   `yaml:"prestige" json:"prestige"`

	phaseThresholds []bignum.Decimal
	producers       []registry.Definition
	upgrades        []registry.Definition
}

type Resource struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Eternal bool   `yaml:"eternal" json:"eternal"`
}

type Phase struct {
	Name      string `yaml:"name" json:"name"`
	Threshold string `yaml:"threshold" json:"threshold"`
}

type Item struct {
	ID             string      `yaml:"id" json:"id"`
	Name           string      `yaml:"name" json:"name"`
	Description    string      `yaml:"description" json:"description,omitempty"`
	BaseCost       string      `yaml:"base_cost" json:"base_cost"`
	Multiplier     string      `yaml:"multiplier" json:"multiplier"`
	MaxLevel       int64       `yaml:"max_level" json:"max_level,omitempty"`
	Currency       string      `yaml:"currency" json:"currency"`
	Produces       string      `yaml:"produces" json:"produces,omitempty"`
	BaseProduction string      `yaml:"base_production" json:"base_production,omitempty"`
	Scope          string      `yaml:"scope" json:"scope,omitempty"`
	Phase          int         `yaml:"phase" json:"phase"`
	Prerequisites  []string    `yaml:"prerequisites" json:"prerequisites,omitempty"`
	Hidden         bool        `yaml:"hidden" json:"hidden,omitempty"`
	Category       string      `yaml:"category" json:"category,omitempty"`
	OneTime        bool        `yaml:"one_time" json:"one_time,omitempty"`
	StartUnlocked  bool        `yaml:"start_unlocked" json:"start_unlocked,omitempty"`
	Effect         *ItemEffect `yaml:"effect" json:"effect,omitempty"`
}

type ItemEffect struct {
	Scope    string `yaml:"scope" json:"scope"`
	Stacking string `yaml:"stacking" json:"stacking"`
	PerLevel string `yaml:"per_level" json:"per_level"`
}

// Prestige converts lifetime earnings of the primary resource into
// floor((lifetime / threshold)^exponent) of Resource.
type Prestige struct {
	Resource  string  `yaml:"resource" json:"resource"`
	Threshold string  `yaml:"threshold" json:"threshold"`
	Exponent  float64 `yaml:"exponent" json:"exponent"`

	threshold bignum.Decimal
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the embedded one when path is
// empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

func (c *Catalog) compile() error {
	if c.PrimaryResource == "" {
		return invalid("primary_resource is required")
	}
	resources := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if r.ID == "" {
			return invalid("resource without id")
		}
		if resources[r.ID] {
			return invalid("duplicate resource %q", r.ID)
		}
		resources[r.ID] = true
	}
	if !resources[c.PrimaryResource] {
		return invalid("primary resource %q is not declared", c.PrimaryResource)
	}

	c.phaseThresholds = make([]bignum.Decimal, 0, len(c.Phases))
	prev := bignum.Zero()
	for i, p := range c.Phases {
		v, err := bignum.Parse(p.Threshold)
		if err != nil || !v.IsFinite() || v.IsNegative() {
			return invalid("phase %d threshold %q", i, p.Threshold)
		}
		if i > 0 && v.Lt(prev) {
			return invalid("phase %d threshold decreases", i)
		}
		prev = v
		c.phaseThresholds = append(c.phaseThresholds, v)
	}

	ids := make(map[string]bool)
	var err error
	if c.producers, err = compileItems("producer", c.Producers, resources, ids); err != nil {
		return err
	}
	if c.upgrades, err = compileItems("upgrade", c.Upgrades, resources, ids); err != nil {
		return err
	}
	for _, defs := range [][]registry.Definition{c.producers, c.upgrades} {
		for _, def := range defs {
			for _, pre := range def.Prerequisites {
				if !ids[pre] {
					return invalid("%s requires unknown item %q", def.ID, pre)
				}
			}
		}
	}

	if c.Prestige.Resource != "" {
		if !resources[c.Prestige.Resource] {
			return invalid("prestige resource %q is not declared", c.Prestige.Resource)
		}
		v, err := bignum.Parse(c.Prestige.Threshold)
		if err != nil || v.Sign() <= 0 {
			return invalid("prestige threshold %q", c.Prestige.Threshold)
		}
		c.Prestige.threshold = v
		if c.Prestige.Exponent <= 0 {
			c.Prestige.Exponent = 0.5
		}
	}
	return nil
}

func compileItems(kind string, items []Item, resources, ids map[string]bool) ([]registry.Definition, error) {
	defs := make([]registry.Definition, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			return nil, invalid("%s without id", kind)
		}
		if ids[it.ID] {
			return nil, invalid("duplicate item id %q", it.ID)
		}
		ids[it.ID] = true
		if !resources[it.Currency] {
			return nil, invalid("%s %q spends unknown resource %q", kind, it.ID, it.Currency)
		}
		if it.Produces != "" && !resources[it.Produces] {
			return nil, invalid("%s %q produces unknown resource %q", kind, it.ID, it.Produces)
		}
		base, err := bignum.Parse(it.BaseCost)
		if err != nil {
			return nil, invalid("%s %q base_cost %q", kind, it.ID, it.BaseCost)
		}
		mult, err := bignum.Parse(it.Multiplier)
		if err != nil {
			return nil, invalid("%s %q multiplier %q", kind, it.ID, it.Multiplier)
		}
		curve := costcurve.Params{BaseCost: base, Multiplier: mult, MaxLevel: it.MaxLevel}
		if !curve.Valid() {
			return nil, invalid("%s %q has a malformed cost curve", kind, it.ID)
		}
		prod := bignum.Zero()
		if it.BaseProduction != "" {
			if prod, err = bignum.Parse(it.BaseProduction); err != nil || prod.IsNegative() {
				return nil, invalid("%s %q base_production %q", kind, it.ID, it.BaseProduction)
			}
		}
		cat, err := registry.ParseCategory(it.Category)
		if err != nil {
			return nil, invalid("%s %q: %v", kind, it.ID, err)
		}
		def := registry.Definition{
			ID:             it.ID,
			Name:           it.Name,
			Description:    it.Description,
			Curve:          curve,
			Currency:       it.Currency,
			Produces:       it.Produces,
			BaseProduction: prod,
			Scope:          it.Scope,
			Phase:          it.Phase,
			Prerequisites:  it.Prerequisites,
			Hidden:         it.Hidden,
			Category:       cat,
			OneTime:        it.OneTime,
			StartUnlocked:  it.StartUnlocked,
		}
		if it.Effect != nil {
			stacking, ok := pipeline.ParseStacking(it.Effect.Stacking)
			if !ok {
				return nil, invalid("%s %q stacking %q", kind, it.ID, it.Effect.Stacking)
			}
			per, err := bignum.Parse(it.Effect.PerLevel)
			if err != nil || !per.IsFinite() {
				return nil, invalid("%s %q per_level %q", kind, it.ID, it.Effect.PerLevel)
			}
			def.Effect = &registry.Effect{Scope: it.Effect.Scope, Stacking: stacking, PerLevel: per}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (c *Catalog) ProducerDefinitions() []registry.Definition {
	return append([]registry.Definition(nil), c.producers...)
}

func (c *Catalog) UpgradeDefinitions() []registry.Definition {
	return append([]registry.Definition(nil), c.upgrades...)
}

func (c *Catalog) Resource(id string) (Resource, bool) {
	for _, r := range c.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// RunResources lists the resources that Prestige wipes.
func (c *Catalog) RunResources() []string {
	var out []string
	for _, r := range c.Resources {
		if !r.Eternal {
			out = append(out, r.ID)
		}
	}
	return out
}

// PhaseFor returns the highest phase whose threshold lifetime has reached.
func (c *Catalog) PhaseFor(lifetime bignum.Decimal) int {
	phase := 0
	for i, th := range c.phaseThresholds {
		if lifetime.Gte(th) {
			phase = i
		}
	}
	return phase
}

func (c *Catalog) PhaseName(phase int) string {
	if phase < 0 || phase >= len(c.Phases) {
		return ""
	}
	return c.Phases[phase].Name
}

// NextPhaseThreshold returns the lifetime earnings that reach phase+1.
func (c *Catalog) NextPhaseThreshold(phase int) (bignum.Decimal, bool) {
	if phase+1 >= len(c.phaseThresholds) || phase+1 < 0 {
		return bignum.Zero(), false
	}
	return c.phaseThresholds[phase+1], true
}

// PrestigeReward is what a prestige would pay for the given lifetime
// earnings. Zero when prestige is not configured or the threshold is unmet.
func (c *Catalog) PrestigeReward(lifetime bignum.Decimal) bignum.Decimal {
	p := c.Prestige
	if p.Resource == "" || lifetime.Lt(p.threshold) {
		return bignum.Zero()
	}
	return lifetime.Div(p.threshold).PowFloat(p.Exponent).Floor()
}

// SetPrimaryResource overrides the resource that drives phases, offline
// rewards and prestige.
func (c *Catalog) SetPrimaryResource(id string) error {
	if _, ok := c.Resource(id); !ok {
		return invalid("primary resource %q is not declared", id)
	}
	c.PrimaryResource = id
	return nil
}
