package ledger

import (
	"sort"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/clock"

	"github.com/google/uuid"
)

const DefaultJournalSize = 256

type Entry struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Resource string         `json:"resource"`
	Delta    bignum.Decimal `json:"delta"`
	Balance  bignum.Decimal `json:"balance"`
	Action   string         `json:"action"`
}

// Ledger maps resource ids to non-negative balances. Unknown resources read
// as zero. Not safe for concurrent use.
type Ledger struct {
	balances map[string]bignum.Decimal
	journal  []Entry
	limit    int
	clock    clock.Clock
}

func New(clk clock.Clock) *Ledger {
	return &Ledger{
		balances: make(map[string]bignum.Decimal),
		limit:    DefaultJournalSize,
		clock:    clock.Or(clk),
	}
}

// SetJournalSize bounds the journal; zero disables it.
func (l *Ledger) SetJournalSize(n int) {
	if n < 0 {
		n = 0
	}
	l.limit = n
	l.trim()
}

func (l *Ledger) Balance(resource string) bignum.Decimal {
	return l.balances[resource]
}

func (l *Ledger) CanAfford(resource string, amount bignum.Decimal) bool {
	if !amount.IsFinite() {
		return false
	}
	return l.balances[resource].Gte(amount)
}

// Add credits a non-negative finite amount. Anything else is ignored.
func (l *Ledger) Add(resource string, amount bignum.Decimal) {
	l.Credit(resource, amount, "")
}

func (l *Ledger) Credit(resource string, amount bignum.Decimal, action string) bool {
	if !amount.IsFinite() || amount.IsNegative() {
		return false
	}
	if amount.IsZero() {
		return true
	}
	next := l.balances[resource].Add(amount)
	if !next.IsFinite() {
		return false
	}
	l.balances[resource] = next
	l.record(resource, amount, next, action)
	return true
}

// Subtract debits amount and reports success. It leaves the balance untouched
// when amount is invalid or exceeds the balance.
func (l *Ledger) Subtract(resource string, amount bignum.Decimal) bool {
	return l.Debit(resource, amount, "")
}

func (l *Ledger) Debit(resource string, amount bignum.Decimal, action string) bool {
	if !amount.IsFinite() || amount.IsNegative() {
		return false
	}
	if amount.IsZero() {
		return true
	}
	cur := l.balances[resource]
	if cur.Lt(amount) {
		return false
	}
	next := cur.Sub(amount)
	if next.IsNegative() {
		next = bignum.Zero()
	}
	l.balances[resource] = next
	l.record(resource, amount.Neg(), next, action)
	return true
}

// Set overwrites a balance. Negative or non-finite amounts set zero.
func (l *Ledger) Set(resource string, amount bignum.Decimal) {
	if !amount.IsFinite() || amount.IsNegative() {
		amount = bignum.Zero()
	}
	delta := amount.Sub(l.balances[resource])
	l.balances[resource] = amount
	l.record(resource, delta, amount, "set")
}

func (l *Ledger) Resources() []string {
	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns balances in their lossless text form.
func (l *Ledger) Snapshot() map[string]string {
	out := make(map[string]string, len(l.balances))
	for id, v := range l.balances {
		out[id] = v.String()
	}
	return out
}

// Restore replaces every balance from a snapshot. Unparseable or negative
// entries are dropped.
func (l *Ledger) Restore(snapshot map[string]string) {
	l.balances = make(map[string]bignum.Decimal, len(snapshot))
	for id, raw := range snapshot {
		v, err := bignum.Parse(raw)
		if err != nil || !v.IsFinite() || v.IsNegative() {
			continue
		}
		l.balances[id] = v
	}
}

// Reset zeroes the given resources, or every resource when none are named.
func (l *Ledger) Reset(resources ...string) {
	if len(resources) == 0 {
		l.balances = make(map[string]bignum.Decimal)
		return
	}
	for _, id := range resources {
		delete(l.balances, id)
	}
}

// Journal returns the retained entries, oldest first.
func (l *Ledger) Journal() []Entry {
	return append([]Entry(nil), l.journal...)
}

func (l *Ledger) record(resource string, delta, balance bignum.Decimal, action string) {
	if l.limit == 0 || action == "" {
		return
	}
	l.journal = append(l.journal, Entry{
		ID:       uuid.NewString(),
		At:       l.clock.Now().UTC(),
		Resource: resource,
		Delta:    delta,
		Balance:  balance,
		Action:   action,
	})
	l.trim()
}

func (l *Ledger) trim() {
	if len(l.journal) > l.limit {
		l.journal = append([]Entry(nil), l.journal[len(l.journal)-l.limit:]...)
	}
}
