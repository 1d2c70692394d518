package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogKeepsMostRecent(t *testing.T) {
	log := NewLog(2)
	log.Publish(TypeProducerPurchased, Purchased{ID: "cursor", NewLevel: 1})
	log.Publish(TypeUpgradePurchased, Purchased{ID: "gloves", NewLevel: 1})
	log.Publish(TypeProducerPurchased, Purchased{ID: "cursor", NewLevel: 2})

	got := log.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeUpgradePurchased {
		t.Fatalf("oldest event should have been dropped, got %s first", got[0].Type)
	}
	last, ok := got[1].Payload.(Purchased)
	if !ok || last.NewLevel != 2 {
		t.Fatalf("unexpected payload %#v", got[1].Payload)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("expected distinct event ids")
	}
	if n := len(log.ByType(TypeProducerPurchased)); n != 1 {
		t.Fatalf("expected 1 producer event, got %d", n)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := NewLog(0), NewLog(0)
	p := Multi(a, nil, b)
	p.Publish(TypeRegistryReset, Reset{Registry: "producers"})
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected both logs to receive the event")
	}
}

func TestPublisherFuncAndDiscard(t *testing.T) {
	var seen []Type
	p := PublisherFunc(func(t Type, _ any) { seen = append(seen, t) })
	p.Publish(TypeOfflineClaimed, nil)
	Or(nil).Publish(TypeOfflineClaimed, nil)
	if len(seen) != 1 || seen[0] != TypeOfflineClaimed {
		t.Fatalf("unexpected %v", seen)
	}
}

func TestSlogPublisherWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogPublisher(logger).Publish(TypeProducerUnlocked, Unlocked{ID: "farm"})

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["type"] != string(TypeProducerUnlocked) {
		t.Fatalf("unexpected record %v", rec)
	}
	if !strings.Contains(buf.String(), "farm") {
		t.Fatalf("payload missing from %s", buf.String())
	}
}
