package registry

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"idleforge/internal/bignum"
)

// Serialize captures the state of every item in its persisted form.
func (r *Registry) Serialize() SaveState {
	out := SaveState{
		Levels:             make(map[string]int64),
		Unlocked:           []string{},
		TotalProduced:      make(map[string]string),
		TotalSpent:         make(map[string]string),
		FirstPurchaseTimes: make(map[string]int64),
	}
	for _, id := range r.order {
		st := r.states[id]
		out.Levels[id] = st.Level
		if st.Unlocked {
			out.Unlocked = append(out.Unlocked, id)
		}
		if st.Owned {
			out.Owned = append(out.Owned, id)
		}
		out.TotalProduced[id] = st.TotalProduced.String()
		out.TotalSpent[id] = st.TotalSpent.String()
		if !st.FirstPurchase.IsZero() {
			out.FirstPurchaseTimes[id] = st.FirstPurchase.UnixMilli()
		}
	}
	return out
}

// Deserialize restores state from raw JSON. It never fails: input that is
// empty, null, not an object, or partially malformed resets to the initial
// configuration and then applies every field and entry that does parse.
func (r *Registry) Deserialize(raw []byte) {
	r.Restore(decodeSaveState(raw))
}

// Restore resets every item to its initial state and applies s on top.
// Unknown ids and invalid values are skipped.
func (r *Registry) Restore(s SaveState) {
	for _, id := range r.order {
		r.states[id] = initialState(r.defs[id])
	}
	for id, level := range s.Levels {
		st, ok := r.states[id]
		if !ok || level < 0 {
			continue
		}
		def := r.defs[id]
		if def.Curve.MaxLevel > 0 && level > def.Curve.MaxLevel {
			level = def.Curve.MaxLevel
		}
		st.Level = level
	}
	for _, id := range s.Unlocked {
		if st, ok := r.states[id]; ok {
			st.Unlocked = true
		}
	}
	for _, id := range s.Owned {
		if st, ok := r.states[id]; ok {
			st.Owned = true
		}
	}
	for id, st := range r.states {
		// older saves carry only levels for one-time items
		if r.defs[id].OneTime && st.Level > 0 {
			st.Owned = true
		}
	}
	restoreTotals(r.states, s.TotalProduced, func(st *State, v bignum.Decimal) { st.TotalProduced = v })
	restoreTotals(r.states, s.TotalSpent, func(st *State, v bignum.Decimal) { st.TotalSpent = v })
	for id, ms := range s.FirstPurchaseTimes {
		if st, ok := r.states[id]; ok && ms > 0 {
			st.FirstPurchase = time.UnixMilli(ms).UTC()
		}
	}
	r.syncAllEffects()
}

func restoreTotals(states map[string]*State, values map[string]string, set func(*State, bignum.Decimal)) {
	for id, raw := range values {
		st, ok := states[id]
		if !ok {
			continue
		}
		v, err := bignum.Parse(raw)
		if err != nil || !v.IsFinite() || v.IsNegative() {
			continue
		}
		set(st, v)
	}
}

// decodeSaveState reads each field and entry independently so one bad value
// does not discard the rest.
func decodeSaveState(raw []byte) SaveState {
	var s SaveState
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return s
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return s
	}

	s.Levels = make(map[string]int64)
	for id, v := range decodeObject(fields["levels"]) {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil || f < 0 || f != math.Trunc(f) || f > float64(math.MaxInt64/2) {
			continue
		}
		s.Levels[id] = int64(f)
	}
	s.Unlocked = decodeIDs(fields["unlocked"])
	s.Owned = decodeIDs(fields["owned"])
	s.TotalProduced = decodeDecimals(fields["totalProduced"])
	s.TotalSpent = decodeDecimals(fields["totalSpent"])

	s.FirstPurchaseTimes = make(map[string]int64)
	for id, v := range decodeObject(fields["firstPurchaseTimes"]) {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil || f <= 0 || f > 1e15 {
			continue
		}
		s.FirstPurchaseTimes[id] = int64(f)
	}
	return s
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func decodeIDs(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var id string
		if json.Unmarshal(item, &id) == nil && id != "" {
			out = append(out, id)
		}
	}
	return out
}

// decodeDecimals accepts both the string form and plain JSON numbers.
func decodeDecimals(raw json.RawMessage) map[string]string {
	out := make(map[string]string)
	for id, v := range decodeObject(raw) {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[id] = s
			continue
		}
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			out[id] = n.String()
		}
	}
	return out
}
