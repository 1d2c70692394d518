// Package events carries the notifications the engine emits after a state
// change has completed. The engine only publishes; delivery belongs to
// whatever Publisher the host wires in.
package events

import (
	"log/slog"
	"sync"
	"time"

	"idleforge/internal/bignum"

	"github.com/google/uuid"
)

type Type string

const (
	TypeProducerPurchased Type = "producer.purchased"
	TypeUpgradePurchased  Type = "upgrade.purchased"
	TypeProducerUnlocked  Type = "producer.unlocked"
	TypeUpgradeUnlocked   Type = "upgrade.unlocked"
	TypeRegistryReset     Type = "registry.reset"
	TypeOfflineClaimed    Type = "offline.claimed"
	TypePhaseReached      Type = "phase.reached"
	TypePrestige          Type = "prestige"
)

type Purchased struct {
	ID       string         `json:"id"`
	NewLevel int64          `json:"new_level"`
	Amount   int64          `json:"amount"`
	Cost     bignum.Decimal `json:"cost"`
}

type Unlocked struct {
	ID string `json:"id"`
}

type Reset struct {
	Registry string `json:"registry"`
}

type OfflineClaimed struct {
	Reward   bignum.Decimal `json:"reward"`
	Resource string         `json:"resource"`
	Duration string         `json:"duration"`
	FullRest bool           `json:"full_rest"`
}

type PhaseReached struct {
	Phase int `json:"phase"`
}

type Publisher interface {
	Publish(t Type, payload any)
}

type PublisherFunc func(t Type, payload any)

func (f PublisherFunc) Publish(t Type, payload any) { f(t, payload) }

type discard struct{}

func (discard) Publish(Type, any) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Or returns p, or Discard when p is nil.
func Or(p Publisher) Publisher {
	if p == nil {
		return Discard
	}
	return p
}

type multi []Publisher

func (m multi) Publish(t Type, payload any) {
	for _, p := range m {
		p.Publish(t, payload)
	}
}

// Multi fans each event out to every non-nil publisher in order.
func Multi(publishers ...Publisher) Publisher {
	out := make(multi, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

type Event struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Type    Type      `json:"type"`
	Payload any       `json:"payload"`
}

// Log is an in-memory publisher that keeps the most recent events.
type Log struct {
	mu     sync.RWMutex
	events []Event
	limit  int
	now    func() time.Time
}

// NewLog keeps at most limit events; limit <= 0 keeps everything.
func NewLog(limit int) *Log {
	return &Log{limit: limit, now: time.Now}
}

func (l *Log) Publish(t Type, payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{
		ID:      uuid.NewString(),
		At:      l.now().UTC(),
		Type:    t,
		Payload: payload,
	})
	if l.limit > 0 && len(l.events) > l.limit {
		l.events = append([]Event(nil), l.events[len(l.events)-l.limit:]...)
	}
}

func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

func (l *Log) ByType(t Type) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

type slogPublisher struct {
	logger *slog.Logger
}

// NewSlogPublisher logs every event at debug level.
func NewSlogPublisher(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return slogPublisher{logger: logger}
}

func (p slogPublisher) Publish(t Type, payload any) {
	p.logger.Debug("event published", "type", string(t), "payload", payload)
}
