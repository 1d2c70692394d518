package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/config"
	"idleforge/internal/events"
	"idleforge/internal/game"
	"idleforge/internal/registry"
	"idleforge/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server hosts one engine over HTTP. Every engine access holds mu.
type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	saves  store.Store
	feed   *events.Log
	limits *limiterSet
	mux    *chi.Mux
	v1     *chi.Mux

	mu       sync.Mutex
	engine   *game.Engine
	lastTick time.Time
}

func New(cfg config.APIConfig, logger *slog.Logger, engine *game.Engine, saves store.Store, feed *events.Log) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if saves == nil {
		saves = store.NewMemory()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		saves:    saves,
		feed:     feed,
		limits:   newLimiterSet(cfg.RateLimit, cfg.RateBurst),
		mux:      chi.NewRouter(),
		engine:   engine,
		lastTick: engine.Now(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.v1 = chi.NewRouter()
	s.v1Routes(s.v1)
	r.With(s.rateLimit).Mount("/v1", s.v1)
}

func (s *Server) v1Routes(r chi.Router) {
	r.Get("/state", s.handleState)
	r.Get("/producers", s.handleProducers)
	r.Get("/upgrades", s.handleUpgrades)
	r.Post("/producers/{id}/buy", s.handleBuyProducer)
	r.Post("/upgrades/{id}/buy", s.handleBuyUpgrade)
	r.Post("/unlock/{id}", s.handleUnlock)

	r.Get("/offline", s.handleOfflinePreview)
	r.Post("/offline/claim", s.handleOfflineClaim)
	r.Post("/prestige", s.handlePrestige)
	r.Post("/boosts", s.handleAddBoost)

	r.Get("/events", s.handleEvents)
	r.Get("/journal", s.handleJournal)
	r.Post("/save", s.handleSave)
	r.Post("/sync/replay", s.handleSyncReplay)
}

// Restore loads the player's save, if any, and pays out offline progress.
func (s *Server) Restore(ctx context.Context) error {
	data, err := s.saves.Load(ctx, s.cfg.PlayerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, store.ErrNotFound) {
		s.log.Info("no save found, starting fresh", "player_id", s.cfg.PlayerID)
	} else if err := s.engine.Load(data); err != nil {
		if !errors.Is(err, game.ErrCorruptSave) {
			return err
		}
		s.log.Warn("save corrupt, starting fresh", "player_id", s.cfg.PlayerID, "err", err)
	}
	now := s.engine.Now()
	claim := s.engine.ClaimOffline(now)
	s.lastTick = now
	s.log.Info("engine restored",
		"player_id", s.cfg.PlayerID,
		"offline_reward", claim.Reward.String(),
		"away", claim.TimeAway.String(),
	)
	return nil
}

// Persist writes the current engine state to the store.
func (s *Server) Persist(ctx context.Context) error {
	s.mu.Lock()
	data, err := s.engine.Save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.saves.Save(ctx, s.cfg.PlayerID, data); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// Run advances the engine every TickEvery and persists every SaveEvery until
// ctx ends, then persists once more.
func (s *Server) Run(ctx context.Context) {
	tick := time.NewTicker(s.cfg.TickEvery)
	defer tick.Stop()
	var saveC <-chan time.Time
	if s.cfg.SaveEvery > 0 {
		save := time.NewTicker(s.cfg.SaveEvery)
		defer save.Stop()
		saveC = save.C
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Persist(shutdownCtx); err != nil {
				s.log.Error("final save failed", "err", err)
			}
			cancel()
			return
		case <-tick.C:
			s.Tick()
		case <-saveC:
			if err := s.Persist(ctx); err != nil {
				s.log.Error("periodic save failed", "err", err)
			}
		}
	}
}

// Tick advances the engine by the time since the previous tick.
func (s *Server) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.engine.Now()
	dt := now.Sub(s.lastTick)
	s.lastTick = now
	if dt <= 0 {
		return
	}
	s.engine.Tick(dt)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	d := s.engine.Dashboard()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleProducers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	d := s.engine.Dashboard()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"producers": d.Producers})
}

func (s *Server) handleUpgrades(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	d := s.engine.Dashboard()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": d.Upgrades})
}

func (s *Server) handleBuyProducer(w http.ResponseWriter, r *http.Request) {
	s.handleBuy(w, r, (*game.Engine).BuyProducer)
}

func (s *Server) handleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	s.handleBuy(w, r, (*game.Engine).BuyUpgrade)
}

type buyFunc func(*game.Engine, game.BuyInput) (registry.Result, error)

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, buy buyFunc) {
	id := chi.URLParam(r, "id")
	if err := game.ValidateItemID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	qty, err := parseQuantity(in.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	res, err := buy(s.engine, game.BuyInput{
		ID:             id,
		Quantity:       qty,
		IdempotencyKey: idempotencyKey(r),
	})
	var balance bignum.Decimal
	if def, ok := s.definition(id); ok {
		balance = s.engine.GetResourceAmount(def.Currency)
	}
	s.mu.Unlock()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  res,
		"balance": balance,
	})
}

func (s *Server) definition(id string) (registry.Definition, bool) {
	if def, ok := s.engine.Producers().Definition(id); ok {
		return def, true
	}
	return s.engine.Upgrades().Definition(id)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := game.ValidateItemID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	changed, err := s.engine.Unlock(id)
	s.mu.Unlock()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "changed": changed})
}

func (s *Server) handleOfflinePreview(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	claim := s.engine.PreviewOffline(s.engine.Now())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleOfflineClaim(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	now := s.engine.Now()
	claim := s.engine.ClaimOffline(now)
	s.lastTick = now
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handlePrestige(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	res, err := s.engine.Prestige()
	s.mu.Unlock()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddBoost(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Scope    string         `json:"scope"`
		Factor   bignum.Decimal `json:"factor"`
		Duration string         `json:"duration"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(in.Duration))
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration must look like 30s or 5m")
		return
	}
	s.mu.Lock()
	id, err := s.engine.AddBoost(game.BoostInput{Scope: in.Scope, Factor: in.Factor, Duration: d})
	s.mu.Unlock()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []events.Event{}})
		return
	}
	list := s.feed.Events()
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		list = s.feed.ByType(events.Type(t))
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(list) {
		list = list[len(list)-n:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func (s *Server) handleJournal(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	entries := s.engine.Ledger().Journal()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Persist(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "player_id": s.cfg.PlayerID})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrAlreadyOwned), errors.Is(err, registry.ErrMaxLevel):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, registry.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrPrestigeUnavailable), errors.Is(err, game.ErrInvalidBoost):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrUnknownItem), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseQuantity(raw json.RawMessage) (registry.Quantity, error) {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return 1, nil
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		v = str
	}
	return registry.ParseQuantity(strings.ToLower(strings.TrimSpace(v)))
}

// decodeJSON accepts an empty body as an empty object.
func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
