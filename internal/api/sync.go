package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"idleforge/internal/syncq"
)

const maxReplayCommands = 100

// handleSyncReplay replays queued CLI commands in order against the v1
// routes, each with its original idempotency key.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Commands []syncq.Command `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(in.Commands) > maxReplayCommands {
		writeError(w, http.StatusBadRequest, "too many commands in one replay")
		return
	}
	results := make([]syncq.Result, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		results = append(results, s.replay(cmd))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) replay(cmd syncq.Command) syncq.Result {
	out := syncq.Result{Method: cmd.Method, Path: cmd.Path, IdempotencyKey: cmd.IdempotencyKey}
	path, ok := strings.CutPrefix(cmd.Path, "/v1")
	if !ok || cmd.Method != http.MethodPost || strings.HasPrefix(path, "/sync/") {
		out.Status = http.StatusBadRequest
		out.Response = json.RawMessage(`{"error":"command cannot be replayed"}`)
		return out
	}
	body, err := json.Marshal(cmd.Body)
	if err != nil || cmd.Body == nil {
		body = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, cmd.Method, path, bytes.NewReader(body))
	if err != nil {
		out.Status = http.StatusBadRequest
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	if cmd.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", cmd.IdempotencyKey)
	}

	rec := &replayRecorder{header: make(http.Header)}
	s.v1.ServeHTTP(rec, req)
	out.Status = rec.status
	if out.Status == 0 {
		out.Status = http.StatusOK
	}
	if raw := bytes.TrimSpace(rec.body.Bytes()); json.Valid(raw) {
		out.Response = raw
	}
	s.log.Info("command replayed", "method", cmd.Method, "path", cmd.Path, "status", out.Status)
	return out
}

type replayRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *replayRecorder) Header() http.Header { return r.header }

func (r *replayRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *replayRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}
