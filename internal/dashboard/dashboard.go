// Package dashboard exposes a read-only HTTP surface over recent run
// history and overall health. There is no push/streaming path — callers
// poll, matching the pull-only scope this system carries.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/franksunye/fsoa-agent/internal/store"
)

// HealthProvider is the subset of Orchestrator the dashboard depends on.
type HealthProvider interface {
	Health(ctx context.Context) HealthView
}

// HealthView is the JSON-serializable projection of Orchestrator.Health's
// HealthReport, decoupled here to avoid importing the orchestrator
// package's concrete result type.
type HealthView struct {
	StoreOK     bool      `json:"store_ok"`
	AnalyticsOK bool      `json:"analytics_ok"`
	WebhookOK   bool      `json:"webhook_ok"`
	TrackerBusy bool      `json:"tracker_busy"`
	CheckedAt   time.Time `json:"checked_at"`
}

// RunStore is the subset of store.Store the dashboard reads.
type RunStore interface {
	ListRecentRuns(ctx context.Context, limit int) ([]*store.AgentRun, error)
}

// Server builds the read-only dashboard router.
type Server struct {
	runs   RunStore
	health HealthProvider
}

// New builds a Server.
func New(runs RunStore, health HealthProvider) *Server {
	return &Server{runs: runs, health: health}
}

// Router returns the chi router exposing /api/runs and /api/health.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/runs", s.handleRecentRuns)
	r.Get("/api/health", s.handleHealth)
	return r
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.runs.ListRecentRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.health.Health(r.Context()))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
