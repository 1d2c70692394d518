package game

import (
	"errors"
	"regexp"
	"strings"

	"idleforge/internal/bignum"
	"idleforge/internal/registry"
)

const (
	SaveVersion = 1

	// recent idempotency keys remembered per engine
	idempotencyWindow = 512
)

var (
	ErrInvalidItemID          = errors.New("item id must be 1-48 lowercase letters, digits or underscores")
	ErrInvalidPlayerID        = errors.New("player id must be 3-64 letters, digits, dashes or underscores")
	ErrUnknownItem            = registry.ErrUnknownItem
	ErrInsufficientFunds      = registry.ErrInsufficientFunds
	ErrPrestigeUnavailable    = errors.New("prestige threshold not reached")
	ErrInvalidBoost           = errors.New("boost needs a scope, a positive factor and a positive duration")
	ErrDuplicateIdempotency   = errors.New("duplicate idempotency key")
	ErrCorruptSave            = errors.New("corrupt save")
	ErrUnsupportedSaveVersion = errors.New("unsupported save version")
)

var (
	itemIDRE   = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)
	playerIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)
)

func ValidateItemID(id string) error {
	if !itemIDRE.MatchString(strings.TrimSpace(id)) {
		return ErrInvalidItemID
	}
	return nil
}

func ValidatePlayerID(id string) error {
	if !playerIDRE.MatchString(strings.TrimSpace(id)) {
		return ErrInvalidPlayerID
	}
	return nil
}

// GameContext is the read-only view other systems query. Every method is a
// pure read.
type GameContext interface {
	GetResourceAmount(id string) bignum.Decimal
	GetProducerCount(id string) int64
	HasUpgrade(id string) bool
	GetUpgradeLevel(id string) int64
}
