package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

// sameJSON compares documents semantically; jsonb does not keep formatting.
func sameJSON(a []byte, b string) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal([]byte(b), &y) != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "player-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Save(ctx, "x", []byte(`{}`)); !errors.Is(err, ErrInvalidPlayerID) {
		t.Fatalf("expected invalid player, got %v", err)
	}
	if err := s.Save(ctx, "player-1", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "player-1")
	if err != nil || !sameJSON(got, `{"version":1}`) {
		t.Fatalf("load: %q %v", got, err)
	}

	err = s.Update(ctx, "player-2", func(current []byte) ([]byte, error) {
		if current != nil {
			t.Fatalf("expected no current save, got %q", current)
		}
		return []byte(`{"n":1}`), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	boom := errors.New("boom")
	if err := s.Update(ctx, "player-2", func([]byte) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got, _ := s.Load(ctx, "player-2"); !sameJSON(got, `{"n":1}`) {
		t.Fatalf("failed update changed the save: %q", got)
	}

	players, err := s.Players(ctx)
	if err != nil || len(players) != 2 || players[0] != "player-1" || players[1] != "player-2" {
		t.Fatalf("players: %v %v", players, err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "saves")
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	testStore(t, s)

	info, err := os.Stat(filepath.Join(dir, "player-1.json"))
	if err != nil {
		t.Fatalf("stat save: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 save, got %v", info.Mode().Perm())
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("write stray file: %v", err)
	}
	if players, _ := s.Players(context.Background()); len(players) != 2 {
		t.Fatalf("stray file listed as player: %v", players)
	}
	if err := s.Remove("player-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove("player-1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := s.Load(context.Background(), "player-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected removed save to be gone, got %v", err)
	}
}

func TestMemoryUpdateIsSerialized(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "counter", func(current []byte) ([]byte, error) {
				return append(current, 'x'), nil
			})
		}()
	}
	wg.Wait()
	got, err := s.Load(ctx, "counter")
	if err != nil || len(got) != 50 {
		t.Fatalf("expected 50 serialized updates, got %d (%v)", len(got), err)
	}
}
