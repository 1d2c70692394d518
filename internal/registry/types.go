package registry

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/costcurve"
	"idleforge/internal/pipeline"
)

var (
	ErrUnknownItem       = errors.New("unknown item")
	ErrLocked            = errors.New("item is locked")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrMaxLevel          = errors.New("item is at max level")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrMalformedItem     = errors.New("item has a malformed cost curve")
)

type Kind string

const (
	KindProducer Kind = "producer"
	KindUpgrade  Kind = "upgrade"
)

// Category decides what survives Reset.
type Category int

const (
	Run Category = iota
	Eternal
)

func (c Category) String() string {
	if c == Eternal {
		return "eternal"
	}
	return "run"
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	v, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func ParseCategory(s string) (Category, error) {
	switch s {
	case "", "run":
		return Run, nil
	case "eternal", "permanent":
		return Eternal, nil
	default:
		return Run, fmt.Errorf("unknown category %q", s)
	}
}

// Effect is the pipeline contribution an item grants per level owned.
// Additive effects contribute PerLevel × level, multiplicative ones
// PerLevel^level.
type Effect struct {
	Scope    string            `json:"scope"`
	Stacking pipeline.Stacking `json:"stacking"`
	PerLevel bignum.Decimal    `json:"per_level"`
}

func (e Effect) value(level int64) bignum.Decimal {
	switch e.Stacking {
	case pipeline.Multiplicative:
		return e.PerLevel.PowFloat(float64(level))
	default:
		return e.PerLevel.Mul(bignum.New(level))
	}
}

type Definition struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Curve       costcurve.Params `json:"curve"`
	// Currency is the resource spent on purchases.
	Currency string `json:"currency"`
	// Produces is the resource credited by Tick; empty means nothing.
	Produces       string         `json:"produces,omitempty"`
	BaseProduction bignum.Decimal `json:"base_production"`
	// Scope selects pipeline contributions; defaults to Produces.
	Scope         string   `json:"scope,omitempty"`
	Phase         int      `json:"phase"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Hidden        bool     `json:"hidden,omitempty"`
	Category      Category `json:"category"`
	OneTime       bool     `json:"one_time,omitempty"`
	StartUnlocked bool     `json:"start_unlocked,omitempty"`
	Effect        *Effect  `json:"effect,omitempty"`
}

func (d Definition) scope() string {
	if d.Scope != "" {
		return d.Scope
	}
	return d.Produces
}

type State struct {
	Level         int64          `json:"level"`
	Unlocked      bool           `json:"unlocked"`
	Owned         bool           `json:"owned"`
	TotalProduced bignum.Decimal `json:"total_produced"`
	TotalSpent    bignum.Decimal `json:"total_spent"`
	FirstPurchase time.Time      `json:"first_purchase,omitzero"`
}

// Quantity is a purchase amount. Max buys as many as the balance allows and
// the zero value buys one.
type Quantity int64

const Max Quantity = -1

func ParseQuantity(s string) (Quantity, error) {
	if s == "" {
		return 1, nil
	}
	if s == "max" || s == "all" {
		return Max, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return Quantity(n), nil
}

type Result struct {
	Success         bool           `json:"success"`
	ID              string         `json:"id"`
	AmountPurchased int64          `json:"amount_purchased"`
	NewLevel        int64          `json:"new_level"`
	Cost            bignum.Decimal `json:"cost"`
	Err             error          `json:"-"`
}

func failed(id string, err error) Result {
	return Result{ID: id, Err: err}
}

// SaveState is the persisted form of a registry.
type SaveState struct {
	Levels             map[string]int64  `json:"levels"`
	Unlocked           []string          `json:"unlocked"`
	Owned              []string          `json:"owned,omitempty"`
	TotalProduced      map[string]string `json:"totalProduced"`
	TotalSpent         map[string]string `json:"totalSpent"`
	FirstPurchaseTimes map[string]int64  `json:"firstPurchaseTimes"`
}
