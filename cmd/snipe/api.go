package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/snipe"
	"solana-snipe-engine/internal/storage"
)

// api serves health and metrics, plus the registration endpoints on detectors.
type api struct {
	app      *app
	registry *snipe.Registry // nil on executor-only processes
	log      logrus.FieldLogger
}

func newAPI(a *app, d *detector) *api {
	s := &api{app: a, log: a.log.WithField("component", "api")}
	if d != nil {
		s.registry = d.registry
	}
	return s
}

// Handler returns the routes:
//
//	GET    /health
//	GET    /metrics
//	POST   /snipes                 register a snipe order
//	DELETE /users/{userID}/snipes  clear a user's orders
//	POST   /poke                   dispatch a manual check
func (s *api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.HandlerFor(s.app.registry))

	if s.registry != nil {
		mux.HandleFunc("POST /snipes", s.handleRegister)
		mux.HandleFunc("DELETE /users/{userID}/snipes", s.handleClear)
		mux.HandleFunc("POST /poke", s.handlePoke)
	}
	return mux
}

type registerRequest struct {
	UserID int64              `json:"userId"`
	Token  string             `json:"token"`
	Params domain.SnipeParams `json:"params"`
}

func (s *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Params.AmountMode == "" {
		req.Params.AmountMode = domain.AmountNative
	}

	id, err := s.registry.RegisterSnipe(r.Context(), req.UserID, req.Token, req.Params)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": id})
}

func (s *api) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	n, err := s.registry.ClearAll(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

type pokeRequest struct {
	PoolID string `json:"poolId"`
	Slot   int64  `json:"slot"`
}

func (s *api) handlePoke(w http.ResponseWriter, r *http.Request) {
	var req pokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shard, err := s.registry.Poke(r.Context(), req.PoolID, req.Slot)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"shard": shard})
}

func (s *api) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
