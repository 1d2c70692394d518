package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"idleforge/internal/bignum"
)

// Save captures the whole engine as JSON. Boosts are transient and are not
// saved.
func (e *Engine) Save() ([]byte, error) {
	file := SaveFile{
		Version:    SaveVersion,
		SavedAt:    e.clock.Now().UTC(),
		LastActive: e.lastActive.UTC(),
		Resources:  e.ledger.Snapshot(),
		Lifetime:   decimalStrings(e.lifetime),
		AllTime:    decimalStrings(e.allTime),
		Prestiges:  e.prestiges,
		Producers:  e.producers.Serialize(),
		Upgrades:   e.upgrades.Serialize(),
	}
	b, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshal save: %w", err)
	}
	return b, nil
}

// Load replaces the engine state with a save. Empty input starts fresh.
// Input that is not a JSON object resets to a fresh engine and reports
// ErrCorruptSave; otherwise every field restores independently and invalid
// fields fall back to their defaults. A save from a newer version is
// rejected and leaves the engine untouched.
func (e *Engine) Load(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	var fields map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			e.reset()
			e.log.Warn("save unreadable, starting fresh", "err", err)
			return fmt.Errorf("%w: %v", ErrCorruptSave, err)
		}
	}

	var version int
	if v, ok := fields["version"]; ok && json.Unmarshal(v, &version) == nil && version > SaveVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSaveVersion, version)
	}

	e.reset()
	if fields == nil {
		return nil
	}
	e.ledger.Restore(decodeStrings(fields["resources"]))
	e.lifetime = decodeDecimalMap(fields["lifetime"])
	e.allTime = decodeDecimalMap(fields["allTime"])
	for res, v := range e.lifetime {
		// all-time earnings include this run
		if e.allTime[res].Lt(v) {
			e.allTime[res] = v
		}
	}
	var prestiges int64
	if json.Unmarshal(fields["prestiges"], &prestiges) == nil && prestiges > 0 {
		e.prestiges = prestiges
	}
	var lastActive time.Time
	if json.Unmarshal(fields["lastActive"], &lastActive) == nil && !lastActive.IsZero() {
		e.lastActive = lastActive.UTC()
	}
	e.producers.Deserialize(fields["producers"])
	e.upgrades.Deserialize(fields["upgrades"])

	e.phase = e.catalog.PhaseFor(e.lifetime[e.catalog.PrimaryResource])
	e.CheckUnlocks()
	e.log.Info("save loaded",
		"version", version,
		"phase", e.phase,
		"prestiges", e.prestiges,
		"last_active", e.lastActive,
	)
	return nil
}

// reset returns the engine to a fresh state without publishing anything.
func (e *Engine) reset() {
	e.ledger.Reset()
	e.pipeline.Prune()
	for _, c := range e.pipeline.Contributions("") {
		if c.Source == boostSource {
			e.pipeline.Remove(c.ID)
		}
	}
	e.producers.Deserialize(nil)
	e.upgrades.Deserialize(nil)
	e.lifetime = make(map[string]bignum.Decimal)
	e.allTime = make(map[string]bignum.Decimal)
	e.prestiges = 0
	e.phase = 0
	e.lastActive = e.clock.Now().UTC()
	e.keys = make(map[string]struct{})
	e.keyOrder = nil
}

func decimalStrings(m map[string]bignum.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func decodeStrings(raw json.RawMessage) map[string]string {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
			continue
		}
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			out[k] = n.String()
		}
	}
	return out
}

func decodeDecimalMap(raw json.RawMessage) map[string]bignum.Decimal {
	out := make(map[string]bignum.Decimal)
	for k, s := range decodeStrings(raw) {
		v, err := bignum.Parse(s)
		if err != nil || !v.IsFinite() || v.IsNegative() {
			continue
		}
		out[k] = v
	}
	return out
}
