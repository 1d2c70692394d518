package syncq

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestQueuePushAndSettle(t *testing.T) {
	home := filepath.Join(t.TempDir(), "forge")
	q, err := New(home)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	cmds, err := q.Load()
	if err != nil || len(cmds) != 0 {
		t.Fatalf("expected empty queue, got %v %v", cmds, err)
	}

	a, err := q.Push(Command{Method: http.MethodPost, Path: "/v1/producers/cursor/buy"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if a.IdempotencyKey == "" || a.QueuedAt.IsZero() {
		t.Fatalf("push did not fill key and time: %+v", a)
	}
	b, err := q.Push(Command{Method: http.MethodPost, Path: "/v1/prestige", IdempotencyKey: "fixed"})
	if err != nil || b.IdempotencyKey != "fixed" {
		t.Fatalf("push kept key: %+v %v", b, err)
	}
	c, _ := q.Push(Command{Method: http.MethodPost, Path: "/v1/offline/claim"})

	info, err := os.Stat(filepath.Join(home, "queue.json"))
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("queue file mode: %v %v", info, err)
	}

	pending, err := q.Settle([]Result{
		{IdempotencyKey: a.IdempotencyKey, Status: http.StatusOK},
		{IdempotencyKey: b.IdempotencyKey, Status: http.StatusBadGateway},
		{IdempotencyKey: c.IdempotencyKey, Status: http.StatusConflict},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(pending) != 1 || pending[0].IdempotencyKey != "fixed" {
		t.Fatalf("expected only the failed command to remain, got %+v", pending)
	}
	reloaded, _ := q.Load()
	if len(reloaded) != 1 {
		t.Fatalf("settle was not persisted: %+v", reloaded)
	}
}

func TestResultSettled(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{status: 0, want: false},
		{status: http.StatusOK, want: true},
		{status: http.StatusBadRequest, want: true},
		{status: http.StatusConflict, want: true},
		{status: http.StatusTooManyRequests, want: false},
		{status: http.StatusInternalServerError, want: false},
	}
	for _, tc := range tests {
		if got := (Result{Status: tc.status}).Settled(); got != tc.want {
			t.Fatalf("status %d: got %v want %v", tc.status, got, tc.want)
		}
	}
}
