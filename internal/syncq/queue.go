// Package syncq keeps remote commands that could not reach the API so they
// can be replayed later with their original idempotency keys.
package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// Result is the outcome of replaying one command.
type Result struct {
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         int             `json:"status"`
	Response       json.RawMessage `json:"response,omitempty"`
}

// Settled reports whether the command reached a final outcome. Server errors
// and throttling leave it queued.
func (r Result) Settled() bool {
	return r.Status > 0 && r.Status < http.StatusInternalServerError && r.Status != http.StatusTooManyRequests
}

type Queue struct {
	path string
}

func New(home string) (*Queue, error) {
	if strings.TrimSpace(home) == "" {
		return nil, fmt.Errorf("queue home is required")
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(home, "queue.json")}, nil
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(commands []Command) error {
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

// Push appends cmd, filling in an idempotency key and queue time when unset.
func (q *Queue) Push(cmd Command) (Command, error) {
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = uuid.NewString()
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands, err := q.Load()
	if err != nil {
		return cmd, err
	}
	commands = append(commands, cmd)
	return cmd, q.Save(commands)
}

// Settle drops every command whose result is final and keeps the rest.
func (q *Queue) Settle(results []Result) ([]Command, error) {
	commands, err := q.Load()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Settled() {
			done[r.IdempotencyKey] = true
		}
	}
	pending := commands[:0]
	for _, cmd := range commands {
		if !done[cmd.IdempotencyKey] {
			pending = append(pending, cmd)
		}
	}
	return pending, q.Save(pending)
}
